/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package changereconciler implements the code-side reconcilers: turning an
// issue into a pull request, and turning review feedback on a pull request
// into a follow-up commit on the same branch.
package changereconciler

import (
	"context"
	"fmt"
	"strings"

	"chainguard.dev/issueforge/agents/completer"
	"chainguard.dev/issueforge/agents/prompts"
	"chainguard.dev/issueforge/agents/result"
	"chainguard.dev/issueforge/clonemanager"
	"chainguard.dev/issueforge/config"
	"chainguard.dev/issueforge/state"
	"chainguard.dev/issueforge/tracker"
	"github.com/chainguard-dev/clog"
	"golang.org/x/oauth2"
)

const (
	// maxSelectedFiles caps how many files the model may request to read.
	maxSelectedFiles = 8

	// fallbackFileCount is how many tracked files are read when the model's
	// selection is empty or unparseable.
	fallbackFileCount = 3

	commitSubjectLimit = 72

	selectTemperature  = 0.0
	patchTemperature   = 0.0
	rewriteTemperature = 0.2
)

// Reconciler drives issue-to-PR and fix reconciliations for one repository.
type Reconciler struct {
	cfg     *config.Config
	gh      *tracker.Client
	llm     completer.Completer
	repoDir string
}

// New constructs a Reconciler. repoDir may be empty, in which case each
// reconciliation clones into a temp directory.
func New(ctx context.Context, cfg *config.Config, repoSpec, repoDir string) (*Reconciler, error) {
	token, err := cfg.Token(config.ActorCode)
	if err != nil {
		return nil, err
	}
	gh, err := tracker.New(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}), cfg.GitHubAPIBase, repoSpec)
	if err != nil {
		return nil, err
	}
	llm, err := completer.New(cfg)
	if err != nil {
		return nil, err
	}
	return &Reconciler{cfg: cfg, gh: gh, llm: llm, repoDir: repoDir}, nil
}

// FileSelection is the model's answer to the file-select prompt.
type FileSelection struct {
	Files  []string `json:"files"`
	Reason string   `json:"reason"`
}

// BranchForIssue returns the working branch name for an issue.
func BranchForIssue(issueNumber int) string {
	return fmt.Sprintf("agent/issue-%d", issueNumber)
}

// ReconcileIssue generates changes for an issue and opens (or updates) the
// pull request for it.
func (r *Reconciler) ReconcileIssue(ctx context.Context, issueNumber int) error {
	log := clog.FromContext(ctx)

	issue, err := r.gh.Issue(ctx, issueNumber)
	if err != nil {
		return err
	}
	issueCtx := prompts.Issue{
		Number: issueNumber,
		Title:  issue.GetTitle(),
		Body:   issue.GetBody(),
	}

	base, err := r.baseBranch(ctx)
	if err != nil {
		return err
	}
	branch := BranchForIssue(issueNumber)

	mgr, err := r.openClone(ctx)
	if err != nil {
		return err
	}
	if err := mgr.Fetch(ctx); err != nil {
		return err
	}
	if err := mgr.CheckoutBranch(ctx, branch, base); err != nil {
		return err
	}
	log.With("branch", branch, "base", base).Info("Prepared working branch")

	files, rewrite, err := r.selectFiles(ctx, mgr, issueCtx)
	if err != nil {
		return err
	}

	if rewrite {
		if err := r.rewriteFile(ctx, mgr, issueCtx); err != nil {
			return err
		}
	} else {
		if err := r.generateAndApply(ctx, mgr, issueCtx, files, "", nil, issueNumber); err != nil {
			return err
		}
	}

	if err := r.checkRejects(ctx, mgr, issueNumber); err != nil {
		return err
	}

	dirty, err := mgr.Dirty()
	if err != nil {
		return err
	}
	if !dirty {
		log.Info("Working tree is clean, nothing to commit")
		r.gh.SafeComment(ctx, issueNumber, "The agent made no changes (working tree is clean).")
		return nil
	}

	subject := shorten(fmt.Sprintf("Agent: %s (#%d)", issueCtx.Title, issueNumber), commitSubjectLimit)
	if _, err := mgr.CommitAll(subject); err != nil {
		return err
	}
	if err := mgr.Push(ctx); err != nil {
		return err
	}

	prNumber, err := r.upsertPull(ctx, issueCtx, branch, base)
	if err != nil {
		return err
	}

	r.gh.SafeAddLabels(ctx, prNumber, []string{state.LabelManaged, state.IterLabel(1)})
	log.With("pr", prNumber).Info("Reconciled issue")
	return nil
}

// ReconcileFix pushes a follow-up commit to a PR that carries review
// feedback, advancing the iteration state and enforcing the iteration cap.
func (r *Reconciler) ReconcileFix(ctx context.Context, prNumber int) error {
	log := clog.FromContext(ctx)

	pr, err := r.gh.Pull(ctx, prNumber)
	if err != nil {
		return err
	}
	issueNumber := tracker.ParseIssueRef(pr.GetBody())
	if issueNumber == 0 {
		return fmt.Errorf("cannot find issue number in PR body (expected 'Closes #<n>')")
	}

	issue, err := r.gh.Issue(ctx, issueNumber)
	if err != nil {
		return err
	}
	issueCtx := prompts.Issue{
		Number: issueNumber,
		Title:  issue.GetTitle(),
		Body:   issue.GetBody(),
	}

	labels, err := r.gh.IssueLabels(ctx, prNumber)
	if err != nil {
		return err
	}
	if state.Stopped(labels) {
		log.Info("PR is marked stopped, skipping")
		r.gh.SafeRemoveLabel(ctx, prNumber, state.LabelFix)
		return nil
	}

	cur := state.Iteration(labels)
	if cur >= r.cfg.MaxIters {
		log.With("iteration", cur, "max", r.cfg.MaxIters).Info("Iteration cap reached, stopping")
		r.gh.SafeComment(ctx, prNumber,
			fmt.Sprintf("Iteration limit reached (%d). Stopping; human intervention required.", r.cfg.MaxIters))
		r.gh.SafeAddLabels(ctx, prNumber, []string{state.LabelStopped})
		r.gh.SafeRemoveLabel(ctx, prNumber, state.LabelFix)
		return nil
	}

	next := state.NextIteration(cur)
	for _, old := range state.IterLabels(labels) {
		r.gh.SafeRemoveLabel(ctx, prNumber, old)
	}
	r.gh.SafeAddLabels(ctx, prNumber, []string{state.IterLabel(next)})
	log.With("iteration", next).Info("Advancing fix iteration")

	comments, err := r.gh.ListComments(ctx, prNumber)
	if err != nil {
		return err
	}
	feedback := tracker.LatestFeedback(comments)

	headRef := pr.GetHead().GetRef()
	if headRef == "" {
		return fmt.Errorf("PR head ref is missing")
	}
	base, err := r.baseBranch(ctx)
	if err != nil {
		return err
	}

	mgr, err := r.openClone(ctx)
	if err != nil {
		return err
	}
	if err := mgr.Fetch(ctx); err != nil {
		return err
	}
	if err := mgr.CheckoutBranch(ctx, headRef, base); err != nil {
		return err
	}
	if err := mgr.PullFF(ctx); err != nil {
		clog.FromContext(ctx).Warnf("Cannot fast-forward %s: %v", headRef, err)
	}

	files, rewrite, err := r.selectFiles(ctx, mgr, issueCtx)
	if err != nil {
		return err
	}
	var allow []string
	if rewrite {
		// Fix mode always patches, but a rewrite-style issue pins the
		// allowed paths so stray hunks cannot touch other files.
		allow = []string{r.cfg.RewritePath}
	}

	if err := r.generateAndApply(ctx, mgr, issueCtx, files, feedback, allow, prNumber); err != nil {
		return err
	}
	if err := r.checkRejects(ctx, mgr, prNumber); err != nil {
		return err
	}

	dirty, err := mgr.Dirty()
	if err != nil {
		return err
	}
	if !dirty {
		log.Info("Working tree is clean, nothing to commit")
		r.gh.SafeComment(ctx, prNumber, "The agent made no changes (working tree is clean).")
		r.gh.SafeRemoveLabel(ctx, prNumber, state.LabelFix)
		return nil
	}

	subject := shorten(fmt.Sprintf("Agent fix: %s (#%d)", issueCtx.Title, issueNumber), commitSubjectLimit)
	if _, err := mgr.CommitAll(subject); err != nil {
		return err
	}
	if err := mgr.Push(ctx); err != nil {
		return err
	}

	r.gh.SafeComment(ctx, prNumber,
		fmt.Sprintf("Pushed fixes (iteration %d).\n\n- Branch: `%s`\n", next, headRef))
	r.gh.SafeRemoveLabel(ctx, prNumber, state.LabelFix)
	log.With("pr", prNumber, "iteration", next).Info("Reconciled fix")
	return nil
}

func (r *Reconciler) baseBranch(ctx context.Context) (string, error) {
	if r.cfg.BaseBranch != "" {
		return r.cfg.BaseBranch, nil
	}
	return r.gh.DefaultBranch(ctx)
}

func (r *Reconciler) openClone(ctx context.Context) (*clonemanager.Manager, error) {
	token, err := r.cfg.Token(config.ActorCode)
	if err != nil {
		return nil, err
	}
	return clonemanager.Open(ctx, clonemanager.Options{
		TokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
		AuthorName:  r.cfg.GitUserName,
		AuthorEmail: r.cfg.GitUserEmail,
		Dir:         r.repoDir,
		RemoteURL:   fmt.Sprintf("https://github.com/%s", r.gh.FullName()),
	})
}

// matchesRewrite reports whether an issue title triggers the full-rewrite
// override. An empty term disables the override entirely.
func matchesRewrite(title, term string) bool {
	return term != "" && strings.Contains(strings.ToLower(title), strings.ToLower(term))
}

// resolvePaths applies the selection policy to the model's answer: the
// rewrite override pins the selection to exactly the rewrite path regardless
// of what the model chose, an empty selection falls back to the first
// tracked files, and the result is capped.
func resolvePaths(selected, allFiles []string, rewrite bool, rewritePath string) []string {
	if rewrite {
		return []string{rewritePath}
	}

	var paths []string
	for _, p := range selected {
		if p != "" {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		n := min(fallbackFileCount, len(allFiles))
		paths = allFiles[:n:n]
	}
	if len(paths) > maxSelectedFiles {
		paths = paths[:maxSelectedFiles]
	}
	return paths
}

// selectFiles asks the model which files to read and loads their content.
// The second return reports whether the issue matched the full-rewrite
// override, in which case only the rewrite path is loaded.
func (r *Reconciler) selectFiles(ctx context.Context, mgr *clonemanager.Manager, issue prompts.Issue) ([]prompts.FileContent, bool, error) {
	log := clog.FromContext(ctx)

	rewrite := matchesRewrite(issue.Title, r.cfg.RewriteTitleTerm)

	allFiles, err := mgr.TrackedFiles()
	if err != nil {
		return nil, false, err
	}

	var selected []string
	if !rewrite {
		raw, err := r.llm.Complete(ctx, prompts.FileSelectSystem, prompts.FileSelect(issue, allFiles), selectTemperature)
		if err != nil {
			return nil, false, fmt.Errorf("selecting files: %w", err)
		}
		sel, err := result.Extract[FileSelection](raw)
		if err != nil {
			log.Warnf("Cannot parse file selection, falling back: %v", err)
		}
		selected = sel.Files
	}
	paths := resolvePaths(selected, allFiles, rewrite, r.cfg.RewritePath)

	files := make([]prompts.FileContent, 0, len(paths))
	for _, p := range paths {
		content, err := mgr.ReadFileBounded(p)
		if err != nil {
			return nil, false, err
		}
		files = append(files, prompts.FileContent{Path: p, Content: content})
	}
	log.With("files", paths, "rewrite", rewrite).Debug("Selected files")
	return files, rewrite, nil
}

// rewriteFile replaces the configured rewrite path wholesale instead of
// patching it. Full-file rewrites are more reliable than diffs for prose.
func (r *Reconciler) rewriteFile(ctx context.Context, mgr *clonemanager.Manager, issue prompts.Issue) error {
	path := r.cfg.RewritePath
	current, err := mgr.ReadFileBounded(path)
	if err != nil {
		return err
	}

	text, err := r.llm.Complete(ctx, prompts.RewriteSystem(path), prompts.Rewrite(issue, path, current), rewriteTemperature)
	if err != nil {
		return fmt.Errorf("rewriting %s: %w", path, err)
	}
	text = stripFences(strings.TrimSpace(text))
	if text == "" {
		return fmt.Errorf("model returned empty content for %s", path)
	}
	return mgr.WriteFile(path, text+"\n")
}

// checkRejects fails the reconciliation when a patch only partially landed.
func (r *Reconciler) checkRejects(ctx context.Context, mgr *clonemanager.Manager, number int) error {
	rejects, err := mgr.RejectArtifacts()
	if err != nil {
		return err
	}
	if len(rejects) > 0 {
		msg := "Patch applied partially, .rej files appeared. Another iteration with a correct diff is needed."
		r.gh.SafeComment(ctx, number, msg)
		return fmt.Errorf("patch rejected: %v", rejects)
	}
	return nil
}

// upsertPull reuses the PR previously recorded for the issue, then any open
// PR with the same head branch, and only then creates a fresh one. Whenever
// no marker comment existed yet, one is posted so later runs find the PR.
func (r *Reconciler) upsertPull(ctx context.Context, issue prompts.Issue, branch, base string) (int, error) {
	log := clog.FromContext(ctx)

	comments, err := r.gh.ListComments(ctx, issue.Number)
	if err != nil {
		return 0, err
	}
	if prNumber := tracker.LinkedPR(comments); prNumber != 0 {
		log.With("pr", prNumber).Info("Updating existing PR")
		return prNumber, nil
	}

	prNumber, htmlURL, err := r.gh.OpenPullForBranch(ctx, branch)
	if err != nil {
		return 0, err
	}
	if prNumber == 0 {
		title := issue.Title
		if title == "" {
			title = fmt.Sprintf("Issue #%d", issue.Number)
		}
		body := fmt.Sprintf("Closes #%d\n\nGenerated by **sdlc-agent**.\n- Branch: `%s`\n", issue.Number, branch)
		pr, err := r.gh.CreatePull(ctx, title, body, branch, base)
		if err != nil {
			return 0, err
		}
		prNumber = pr.GetNumber()
		htmlURL = pr.GetHTMLURL()
		log.With("pr", prNumber).Info("Created PR")
	}

	r.gh.SafeComment(ctx, issue.Number,
		fmt.Sprintf("PR created: %s\n\n%s", htmlURL, tracker.PRMarker(prNumber)))
	return prNumber, nil
}

// shorten collapses whitespace and truncates to limit, marking the cut.
func shorten(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}

// stripFences removes accidental markdown fencing around full-file output.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if _, rest, ok := strings.Cut(s, "\n"); ok {
		s = rest
	}
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
