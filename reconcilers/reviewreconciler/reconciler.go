/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package reviewreconciler implements the reviewer side of the pipeline: it
// judges a pull request against its issue and the CI results, submits a PR
// review, and flips the labels that drive the fix loop.
package reviewreconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"chainguard.dev/issueforge/agents/completer"
	"chainguard.dev/issueforge/agents/prompts"
	"chainguard.dev/issueforge/agents/result"
	"chainguard.dev/issueforge/cireport"
	"chainguard.dev/issueforge/clonemanager"
	"chainguard.dev/issueforge/config"
	"chainguard.dev/issueforge/state"
	"chainguard.dev/issueforge/tracker"
	"github.com/chainguard-dev/clog"
	"golang.org/x/oauth2"
)

const (
	// diffLimit and ciLogsLimit bound how much context is forwarded to the
	// model.
	diffLimit   = 120_000
	ciLogsLimit = 60_000

	reviewTemperature = 0.1

	eventApprove        = "APPROVE"
	eventRequestChanges = "REQUEST_CHANGES"
	eventComment        = "COMMENT"
)

// Verdict is the model's structured answer to the review prompt.
type Verdict struct {
	NeedsChanges bool     `json:"needs_changes"`
	SummaryMD    string   `json:"summary_md"`
	ReviewMD     string   `json:"review_md"`
	ActionItems  []string `json:"action_items"`
	Confidence   float64  `json:"confidence"`
}

// Reconciler drives PR reviews for one repository.
type Reconciler struct {
	cfg     *config.Config
	gh      *tracker.Client
	llm     completer.Completer
	repoDir string
}

// New constructs a Reconciler using the reviewer token chain. repoDir must
// hold a checkout with both PR base and head commits reachable.
func New(ctx context.Context, cfg *config.Config, repoSpec, repoDir string) (*Reconciler, error) {
	token, err := cfg.Token(config.ActorReviewer)
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

// ReconcilePull reviews a pull request. ciResultsPath may be empty or point
// to a missing file, both of which read as "no CI data" (treated as green).
func (r *Reconciler) ReconcilePull(ctx context.Context, prNumber int, ciResultsPath string) error {
	log := clog.FromContext(ctx)

	pr, err := r.gh.Pull(ctx, prNumber)
	if err != nil {
		return err
	}

	author := pr.GetUser().GetLogin()
	reviewer, err := r.gh.ViewerLogin(ctx)
	if err != nil {
		return err
	}
	if sameIdentity(author, reviewer) {
		msg := fmt.Sprintf("**Self-review is not allowed** (the reviewer and the PR author are the same account).\n\n"+
			"- PR author: `%s`\n- Reviewer token user: `%s`\n\n"+
			"Configure `REVIEWER_GITHUB_TOKEN` from a different account. Stopping the auto loop.",
			author, reviewer)
		log.With("author", author, "reviewer", reviewer).Warn("Refusing self-review")
		if err := r.gh.Comment(ctx, prNumber, msg); err != nil {
			return err
		}
		r.gh.SafeAddLabels(ctx, prNumber, []string{state.LabelStopped})
		r.gh.SafeRemoveLabel(ctx, prNumber, state.LabelFix)
		writeStepSummary(ctx, msg+"\n")
		return nil
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

	report, err := cireport.Load(ciResultsPath)
	if err != nil {
		return err
	}
	ciSummary, ciLogs, green := report.Summarize()

	diff, err := r.pullDiff(ctx, pr.GetBase().GetSHA(), pr.GetHead().GetSHA())
	if err != nil {
		return err
	}

	user := prompts.Review(issueCtx, pr.GetTitle(), pr.GetBody(),
		bound(diff, diffLimit), ciSummary, bound(ciLogs, ciLogsLimit))

	raw, err := r.llm.Complete(ctx, prompts.ReviewJSONSystem, user, reviewTemperature)
	if err != nil {
		return fmt.Errorf("generating review: %w", err)
	}
	verdict, err := parseVerdict(raw)
	if err != nil {
		return err
	}

	labels, err := r.gh.IssueLabels(ctx, prNumber)
	if err != nil {
		return err
	}
	event, stopped := applyPolicy(&verdict, green, ciSummary, state.Iteration(labels), r.cfg.MaxIters)
	if stopped {
		r.gh.SafeAddLabels(ctx, prNumber, []string{state.LabelStopped})
	}
	log.With("event", event, "needs_changes", verdict.NeedsChanges, "confidence", verdict.Confidence).
		Info("Review verdict")

	writeStepSummary(ctx, fmt.Sprintf("## Reviewer summary\n\n%s\n\n### CI\n%s\n", verdict.SummaryMD, ciSummary))

	if err := r.gh.Comment(ctx, prNumber, verdictComment(verdict)); err != nil {
		return err
	}

	reviewBody := verdict.ReviewMD
	if reviewBody == "" {
		reviewBody = verdict.SummaryMD
	}
	if reviewBody == "" {
		reviewBody = "AI review"
	}
	if err := r.gh.CreateReview(ctx, prNumber, reviewBody, event); err != nil {
		return err
	}

	if verdict.NeedsChanges {
		r.gh.SafeAddLabels(ctx, prNumber, []string{state.LabelFix})
		r.gh.SafeRemoveLabel(ctx, prNumber, state.LabelDone)
	} else {
		r.gh.SafeAddLabels(ctx, prNumber, []string{state.LabelDone})
		r.gh.SafeRemoveLabel(ctx, prNumber, state.LabelFix)
	}
	return nil
}

// pullDiff computes the base..head diff from the local checkout.
func (r *Reconciler) pullDiff(ctx context.Context, baseSHA, headSHA string) (string, error) {
	if baseSHA == "" || headSHA == "" {
		return "", fmt.Errorf("missing base/head SHA in PR payload")
	}

	token, err := r.cfg.Token(config.ActorReviewer)
	if err != nil {
		return "", err
	}
	mgr, err := clonemanager.Open(ctx, clonemanager.Options{
		TokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
		AuthorName:  r.cfg.GitUserName,
		AuthorEmail: r.cfg.GitUserEmail,
		Dir:         r.repoDir,
		RemoteURL:   fmt.Sprintf("https://github.com/%s", r.gh.FullName()),
	})
	if err != nil {
		return "", err
	}
	if err := mgr.Fetch(ctx); err != nil {
		return "", err
	}

	diff, err := mgr.DiffRange(baseSHA, headSHA)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(diff) == "" {
		return "(diff is empty)", nil
	}
	return diff, nil
}

// parseVerdict decodes the model's JSON, tolerating missing fields.
// Confidence defaults to 0.5 when the model omits it.
func parseVerdict(text string) (Verdict, error) {
	raw, err := result.FirstObject(result.ExtractJSON(text))
	if err != nil {
		return Verdict{}, fmt.Errorf("parsing review verdict: %w", err)
	}
	verdict := Verdict{Confidence: 0.5}
	if err := json.Unmarshal(raw, &verdict); err != nil {
		return Verdict{}, fmt.Errorf("parsing review verdict: %w", err)
	}
	verdict.SummaryMD = strings.TrimSpace(verdict.SummaryMD)
	verdict.ReviewMD = strings.TrimSpace(verdict.ReviewMD)
	return verdict, nil
}

// applyPolicy enforces the two rules the model is not trusted with: a red CI
// always needs changes, and the iteration cap downgrades REQUEST_CHANGES to
// a non-blocking COMMENT. Returns the review event and whether the auto
// loop was stopped by the cap.
func applyPolicy(v *Verdict, green bool, ciSummary string, curIter, maxIters int) (event string, stopped bool) {
	if !green {
		v.NeedsChanges = true
		if !strings.Contains(v.ReviewMD, "CI") {
			v.ReviewMD = fmt.Sprintf("### CI\n%s\n\n%s", ciSummary, v.ReviewMD)
		}
	}

	event = eventApprove
	if v.NeedsChanges {
		event = eventRequestChanges
	}

	if v.NeedsChanges && curIter >= maxIters {
		v.NeedsChanges = false
		event = eventComment
		stopped = true
		v.ReviewMD = fmt.Sprintf("Iteration limit reached (%d). Auto-fixes stopped.\n\n%s", maxIters, v.ReviewMD)
	}
	return event, stopped
}

// verdictComment renders the PR comment, ending with the review marker and a
// machine-readable JSON block that the fix loop picks up as feedback.
func verdictComment(v Verdict) string {
	var sb strings.Builder
	sb.WriteString("## 🤖 AI Reviewer\n\n")
	fmt.Fprintf(&sb, "**needs_changes:** `%v`\n\n", v.NeedsChanges)
	fmt.Fprintf(&sb, "%s\n\n%s\n\n", v.SummaryMD, v.ReviewMD)
	sb.WriteString("### Action items\n")
	for _, item := range v.ActionItems {
		fmt.Fprintf(&sb, "- %s\n", item)
	}
	fmt.Fprintf(&sb, "\nConfidence: `%v`\n\n", v.Confidence)
	sb.WriteString(tracker.ReviewMarker + "\n")

	data, err := json.MarshalIndent(v, "", "  ")
	if err == nil {
		fmt.Fprintf(&sb, "```json\n%s\n```\n", data)
	}
	return sb.String()
}

// sameIdentity compares tracker logins case-insensitively, treating a bot
// account and its "[bot]" suffixed form as the same identity.
func sameIdentity(a, b string) bool {
	norm := func(s string) string {
		return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "[bot]")
	}
	a, b = norm(a), norm(b)
	return a != "" && a == b
}

// bound truncates to at most limit bytes without splitting a rune.
func bound(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

// writeStepSummary publishes markdown to the Actions job summary when the
// environment provides one.
func writeStepSummary(ctx context.Context, md string) {
	path := os.Getenv("GITHUB_STEP_SUMMARY")
	if path == "" {
		return
	}
	if err := os.WriteFile(path, []byte(md), 0o644); err != nil {
		clog.FromContext(ctx).Warnf("Cannot write step summary: %v", err)
	}
}
