/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package prompts renders every prompt the agent sends to a model. Keeping
// them in one place makes the model-facing contract reviewable: output
// format requirements here must stay in sync with the parsers in
// agents/result and unidiff.
package prompts

import (
	"fmt"
	"strings"
)

// Issue is the tracker context threaded through every code-side prompt.
type Issue struct {
	Number int
	Title  string
	Body   string
}

// FileContent pairs a repository path with its (possibly truncated) content.
// A slice keeps prompt rendering deterministic.
type FileContent struct {
	Path    string
	Content string
}

// System instructions. The code agent never executes anything, so its
// instruction stresses conservative, minimal changes.
const (
	CodeAgentSystem = `You are an autonomous **Code Agent** in a GitHub SDLC pipeline.

Your task: given an Issue description, propose code changes in the repository.
You do NOT run code and do NOT see CI directly, so make changes conservatively and minimally.

Key rules:
- Change only what is needed to satisfy the requirements.
- Preserve the existing style and architecture.
- Do not invent files: use only paths from the provided list.
- If a new file is needed, add it via the unified diff.
- The output format must be followed exactly (see below).`

	ReviewerSystem = `You are an autonomous **AI Reviewer Agent** running in GitHub Actions.

Your goal: review the PR against the Issue and the CI results.
Consider:
- the diff (the actual changes)
- the CI command results (pass/fail plus logs)
- the Issue requirements (what was asked for)

Rules:
- No hallucinations: claim only what is visible in the diff, logs, or Issue.
- If CI failed, changes are almost always required (needs_changes=true).
- Be practical: suggest concrete fix steps.
- Output strictly JSON.`

	FileSelectSystem = "You select files to read."

	PatchSystem = "Return ONLY a unified diff (git). No prose, plan, or markdown. Start with 'diff --git'."

	ReviewJSONSystem = "You write a strictly JSON review."
)

// RewriteSystem instructs the model to emit a complete replacement for one
// file, with no fences or diffs.
func RewriteSystem(path string) string {
	return fmt.Sprintf("You are editing %s. Return ONLY the complete new text of the file %s. "+
		"No explanations, no ``` markdown blocks, no diffs. Only the file content.", path, path)
}

// FileSelect asks the model to pick the files worth reading for an issue.
// The answer format matches agents/result.Extract's FileSelection type.
func FileSelect(issue Issue, allFiles []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Issue #%d: %s\n\n", issue.Number, issue.Title)
	fmt.Fprintf(&sb, "Description:\n%s\n\n", issue.Body)
	sb.WriteString(`Below is the list of repository files. Select AT MOST 8 files that need to be read to solve the task.
If the task is simple and obvious, still select the 1-3 most relevant files.

Return STRICTLY JSON (no markdown), format:
{
  "files": ["path1", "path2", "..."],
  "reason": "briefly why these files"
}

File list:
`)
	for _, p := range allFiles {
		fmt.Fprintf(&sb, "- %s\n", p)
	}
	return strings.TrimSpace(sb.String())
}

// Patch asks the model for a unified diff over the selected files. Feedback
// from a prior review, when present, is surfaced right after the issue body.
func Patch(issue Issue, files []FileContent, feedback string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Issue #%d: %s\n\n", issue.Number, issue.Title)
	fmt.Fprintf(&sb, "Description:\n%s\n", issue.Body)
	if feedback != "" {
		fmt.Fprintf(&sb, "\n\nAdditional reviewer feedback (address it!):\n%s\n", feedback)
	}
	sb.WriteString(`
Below is the content of the selected files.
Generate a PATCH in unified diff (git) format that solves the task.

Constraints:
- Change as few files as possible.
- Do not touch .github/workflows unless the Issue is explicitly about it.
- The patch must apply with ` + "`git apply`" + `.
- The diff must contain lines of the form ` + "`diff --git a/... b/...`" + `.

Answer:
- First a short plan (up to 5 bullets).
- Then ONE code block ` + "```diff ...```" + `.

Files:
`)
	for _, f := range files {
		fmt.Fprintf(&sb, "--- FILE: %s ---\n%s\n--- END FILE: %s ---\n\n", f.Path, f.Content, f.Path)
	}
	return strings.TrimSpace(sb.String())
}

// PatchAttemptHint is appended to the patch prompt on retries so the model
// knows the previous diff did not apply.
func PatchAttemptHint(attempt int) string {
	if attempt <= 1 {
		return ""
	}
	return fmt.Sprintf("\n\nAttempt #%d. If the previous patch did not apply, fix the diff so that it applies with git apply.", attempt)
}

// Rewrite asks the model for a complete replacement of one file.
func Rewrite(issue Issue, path, current string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Issue #%d: %s\n\n", issue.Number, issue.Title)
	fmt.Fprintf(&sb, "Description:\n%s\n\n", issue.Body)
	fmt.Fprintf(&sb, "Current content of %s:\n-----\n%s\n-----\n\n", path, current)
	fmt.Fprintf(&sb, "Return the complete updated %s:", path)
	return sb.String()
}

// Review asks the model for a verdict on a PR. The answer format matches the
// reviewreconciler's Verdict type.
func Review(issue Issue, prTitle, prBody, diff, ciSummary, ciLogsTail string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Issue #%d: %s\n\n", issue.Number, issue.Title)
	fmt.Fprintf(&sb, "Issue body:\n%s\n\n", issue.Body)
	fmt.Fprintf(&sb, "PR title: %s\n\n", prTitle)
	fmt.Fprintf(&sb, "PR body:\n%s\n\n", prBody)
	fmt.Fprintf(&sb, "CI summary:\n%s\n\n", ciSummary)
	fmt.Fprintf(&sb, "CI logs (tail):\n%s\n\n", ciLogsTail)
	fmt.Fprintf(&sb, "PR diff:\n%s\n\n", diff)
	sb.WriteString(`Return STRICTLY JSON (no markdown), format:
{
  "needs_changes": true/false,
  "summary_md": "short summary (1-3 sentences)",
  "review_md": "detailed review in markdown (checklist, remarks, recommendations)",
  "action_items": ["...", "..."],
  "confidence": 0.0-1.0
}

Hint:
- needs_changes=true if CI is not green OR the Issue requirements are not met.
- If confidence is low, say so in confidence and ask for minimal clarifications in action_items.`)
	return sb.String()
}
