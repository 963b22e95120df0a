/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package tracker wraps the issue/PR tracker REST and GraphQL APIs behind
// the narrow contract the reconcilers need. Mutating helpers come in two
// flavors: primary operations return errors, while Safe* variants degrade to
// a logged warning because comment and label side effects must never mask
// the outcome of the operation that triggered them.
package tracker

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"
)

const defaultAPIBase = "https://api.github.com"

var repoRE = regexp.MustCompile(`^[^/\s]+/[^/\s]+$`)

// NormalizeRepo accepts "owner/name" or a repository web URL and returns the
// owner and name. A trailing ".git" on URL forms is stripped.
func NormalizeRepo(repo string) (owner, name string, err error) {
	repo = strings.TrimSpace(repo)

	if strings.HasPrefix(repo, "http://") || strings.HasPrefix(repo, "https://") {
		u, err := url.Parse(repo)
		if err != nil {
			return "", "", fmt.Errorf("parsing repo URL: %w", err)
		}
		parts := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
		if len(parts) < 2 {
			return "", "", fmt.Errorf("cannot parse repo from URL: %s", repo)
		}
		return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
	}

	if !repoRE.MatchString(repo) {
		return "", "", fmt.Errorf("repo must be owner/name or a repository URL, got: %s", repo)
	}
	owner, name, _ = strings.Cut(repo, "/")
	return owner, name, nil
}

// Client is a tracker client bound to a single repository.
type Client struct {
	gh    *github.Client
	gql   *githubv4.Client
	owner string
	repo  string
}

// New constructs a Client for the given repository. The token source is
// shared between the REST and GraphQL transports.
func New(ctx context.Context, tokenSource oauth2.TokenSource, apiBase, repoSpec string) (*Client, error) {
	owner, name, err := NormalizeRepo(repoSpec)
	if err != nil {
		return nil, err
	}

	httpClient := oauth2.NewClient(ctx, tokenSource)
	gh := github.NewClient(httpClient)
	if apiBase != "" && strings.TrimSuffix(apiBase, "/") != defaultAPIBase {
		gh, err = gh.WithEnterpriseURLs(apiBase, apiBase)
		if err != nil {
			return nil, fmt.Errorf("configuring API base %s: %w", apiBase, err)
		}
	}

	return &Client{
		gh:    gh,
		gql:   githubv4.NewClient(httpClient),
		owner: owner,
		repo:  name,
	}, nil
}

// Owner returns the repository owner.
func (c *Client) Owner() string { return c.owner }

// Repo returns the repository name.
func (c *Client) Repo() string { return c.repo }

// FullName returns "owner/name".
func (c *Client) FullName() string { return c.owner + "/" + c.repo }

// DefaultBranch resolves the repository's default branch.
func (c *Client) DefaultBranch(ctx context.Context) (string, error) {
	repo, _, err := c.gh.Repositories.Get(ctx, c.owner, c.repo)
	if err != nil {
		return "", fmt.Errorf("fetching repository: %w", err)
	}
	if repo.GetDefaultBranch() == "" {
		return "main", nil
	}
	return repo.GetDefaultBranch(), nil
}

// Issue fetches an issue (or the issue view of a PR) by number.
func (c *Client) Issue(ctx context.Context, number int) (*github.Issue, error) {
	issue, _, err := c.gh.Issues.Get(ctx, c.owner, c.repo, number)
	if err != nil {
		return nil, fmt.Errorf("fetching issue #%d: %w", number, err)
	}
	return issue, nil
}

// IssueLabels returns the label names currently attached to an issue or PR.
// Reads are authoritative only at the instant they are fetched; callers must
// not cache the result across mutations.
func (c *Client) IssueLabels(ctx context.Context, number int) ([]string, error) {
	issue, err := c.Issue(ctx, number)
	if err != nil {
		return nil, err
	}
	labels := make([]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		labels = append(labels, l.GetName())
	}
	return labels, nil
}

// Pull fetches a pull request by number.
func (c *Client) Pull(ctx context.Context, number int) (*github.PullRequest, error) {
	pr, _, err := c.gh.PullRequests.Get(ctx, c.owner, c.repo, number)
	if err != nil {
		return nil, fmt.Errorf("fetching PR #%d: %w", number, err)
	}
	return pr, nil
}

// CreatePull opens a new pull request.
func (c *Client) CreatePull(ctx context.Context, title, body, head, base string) (*github.PullRequest, error) {
	pr, _, err := c.gh.PullRequests.Create(ctx, c.owner, c.repo, &github.NewPullRequest{
		Title: github.Ptr(title),
		Body:  github.Ptr(body),
		Head:  github.Ptr(head),
		Base:  github.Ptr(base),
		Draft: github.Ptr(false),
	})
	if err != nil {
		return nil, fmt.Errorf("creating pull request: %w", err)
	}
	return pr, nil
}

// OpenPullForBranch resolves the open PR whose head is the given branch, if
// any, using a single GraphQL query. Returns 0 when no such PR exists.
func (c *Client) OpenPullForBranch(ctx context.Context, branch string) (number int, htmlURL string, err error) {
	var query struct {
		Repository struct {
			PullRequests struct {
				Nodes []struct {
					Number int
					Url    string
				}
			} `graphql:"pullRequests(headRefName: $headRef, states: [OPEN], first: 1)"`
		} `graphql:"repository(owner: $owner, name: $repo)"`
	}

	variables := map[string]any{
		"owner":   githubv4.String(c.owner),
		"repo":    githubv4.String(c.repo),
		"headRef": githubv4.String(branch),
	}
	if err := c.gql.Query(ctx, &query, variables); err != nil {
		return 0, "", fmt.Errorf("querying open PR for branch %s: %w", branch, err)
	}

	if nodes := query.Repository.PullRequests.Nodes; len(nodes) > 0 {
		return nodes[0].Number, nodes[0].Url, nil
	}
	return 0, "", nil
}

// ListComments returns all issue comments on an issue or PR, oldest first.
func (c *Client) ListComments(ctx context.Context, number int) ([]*github.IssueComment, error) {
	var all []*github.IssueComment
	opts := &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}
	for {
		comments, resp, err := c.gh.Issues.ListComments(ctx, c.owner, c.repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("listing comments on #%d: %w", number, err)
		}
		all = append(all, comments...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// Comment posts an issue comment.
func (c *Client) Comment(ctx context.Context, number int, body string) error {
	_, _, err := c.gh.Issues.CreateComment(ctx, c.owner, c.repo, number, &github.IssueComment{
		Body: github.Ptr(body),
	})
	if err != nil {
		return fmt.Errorf("commenting on #%d: %w", number, err)
	}
	return nil
}

// SafeComment posts a comment, degrading failure to a warning.
func (c *Client) SafeComment(ctx context.Context, number int, body string) {
	if err := c.Comment(ctx, number, body); err != nil {
		clog.FromContext(ctx).Warnf("Cannot comment on #%d: %v", number, err)
	}
}

// AddLabels attaches labels to an issue or PR. Empty entries are dropped.
func (c *Client) AddLabels(ctx context.Context, number int, labels []string) error {
	labs := make([]string, 0, len(labels))
	for _, l := range labels {
		if l != "" {
			labs = append(labs, l)
		}
	}
	if len(labs) == 0 {
		return nil
	}
	if _, _, err := c.gh.Issues.AddLabelsToIssue(ctx, c.owner, c.repo, number, labs); err != nil {
		return fmt.Errorf("adding labels to #%d: %w", number, err)
	}
	return nil
}

// SafeAddLabels attaches labels, degrading failure to a warning.
func (c *Client) SafeAddLabels(ctx context.Context, number int, labels []string) {
	if err := c.AddLabels(ctx, number, labels); err != nil {
		clog.FromContext(ctx).Warnf("Cannot add labels to #%d: %v", number, err)
	}
}

// RemoveLabel detaches one label from an issue or PR.
func (c *Client) RemoveLabel(ctx context.Context, number int, label string) error {
	if _, err := c.gh.Issues.RemoveLabelForIssue(ctx, c.owner, c.repo, number, label); err != nil {
		return fmt.Errorf("removing label %q from #%d: %w", label, number, err)
	}
	return nil
}

// SafeRemoveLabel detaches a label, swallowing failure (the label may simply
// not be present).
func (c *Client) SafeRemoveLabel(ctx context.Context, number int, label string) {
	if err := c.RemoveLabel(ctx, number, label); err != nil {
		clog.FromContext(ctx).Debugf("Cannot remove label %q from #%d: %v", label, number, err)
	}
}

// CreateReview submits a PR review with the given event: APPROVE,
// REQUEST_CHANGES, or COMMENT.
func (c *Client) CreateReview(ctx context.Context, number int, body, event string) error {
	_, _, err := c.gh.PullRequests.CreateReview(ctx, c.owner, c.repo, number, &github.PullRequestReviewRequest{
		Body:  github.Ptr(body),
		Event: github.Ptr(event),
	})
	if err != nil {
		return fmt.Errorf("creating review on #%d: %w", number, err)
	}
	return nil
}

// ViewerLogin resolves the authenticated identity behind the client's token.
func (c *Client) ViewerLogin(ctx context.Context) (string, error) {
	user, _, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		return "", fmt.Errorf("resolving authenticated user: %w", err)
	}
	return user.GetLogin(), nil
}
