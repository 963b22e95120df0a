/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package changereconciler

import (
	"context"
	"errors"
	"fmt"

	"chainguard.dev/issueforge/agents/prompts"
	"chainguard.dev/issueforge/clonemanager"
	"chainguard.dev/issueforge/unidiff"
	"github.com/chainguard-dev/clog"
)

// maxPatchAttempts bounds the generate/sanitize/apply loop. The retry prompt
// carries an attempt hint so the model knows its previous diff failed.
const maxPatchAttempts = 2

// generateAndApply runs the patch loop: ask the model for a diff, sanitize
// it, and apply it to the working tree. When every attempt fails, the last
// error is surfaced as a comment on the issue or PR before returning.
func (r *Reconciler) generateAndApply(ctx context.Context, mgr *clonemanager.Manager, issue prompts.Issue, files []prompts.FileContent, feedback string, allow []string, number int) error {
	log := clog.FromContext(ctx)
	basePrompt := prompts.Patch(issue, files, feedback)

	var lastErr string
	for attempt := 1; attempt <= maxPatchAttempts; attempt++ {
		raw, err := r.llm.Complete(ctx, prompts.PatchSystem, basePrompt+prompts.PatchAttemptHint(attempt), patchTemperature)
		if err != nil {
			return fmt.Errorf("generating patch: %w", err)
		}

		patch := unidiff.Sanitize(raw, allow)
		if patch == "" {
			lastErr = "model output contained no unified diff"
			log.With("attempt", attempt).Warn(lastErr)
			continue
		}
		touched, err := unidiff.Files(patch)
		if err != nil {
			lastErr = fmt.Sprintf("diff is not well formed: %v", err)
			log.With("attempt", attempt).Warn(lastErr)
			continue
		}
		log.With("attempt", attempt, "files", touched).Debug("Applying patch")

		if err := mgr.ApplyPatch(ctx, patch); err != nil {
			var applyErr *clonemanager.ApplyError
			if errors.As(err, &applyErr) {
				lastErr = applyErr.Stderr
			} else {
				lastErr = err.Error()
			}
			log.With("attempt", attempt).Warnf("git apply failed: %v", err)
			// A failed apply can leave partial hunks and .rej files behind;
			// the next attempt (and the caller's reject scan) must see a
			// clean tree.
			if resetErr := mgr.ResetHard(); resetErr != nil {
				return fmt.Errorf("resetting worktree after failed apply: %w", resetErr)
			}
			continue
		}
		return nil
	}

	msg := fmt.Sprintf("Could not apply the patch (git apply).\n\nstderr:\n```\n%s\n```", lastErr)
	r.gh.SafeComment(ctx, number, msg)
	return fmt.Errorf("applying patch: %s", lastErr)
}
