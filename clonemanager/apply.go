/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package clonemanager

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/chainguard-dev/clog"
)

// applyStderrLimit bounds how much of git's stderr is surfaced in errors.
const applyStderrLimit = 2000

// ApplyError carries the tail of git's stderr so the caller can feed it back
// to the model on a retry attempt.
type ApplyError struct {
	Stderr string
	err    error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("git apply: %v\n%s", e.err, e.Stderr)
}

func (e *ApplyError) Unwrap() error { return e.err }

// ApplyPatch applies a unified diff to the working tree using the git binary.
// go-git has no equivalent of apply with reject handling, so this is the one
// operation that shells out. Whitespace errors are fixed rather than fatal,
// and hunks that cannot be placed land in .rej files (see RejectArtifacts).
func (m *Manager) ApplyPatch(ctx context.Context, diff string) error {
	cmd := exec.CommandContext(ctx, "git", "apply", "--reject", "--whitespace=fix", "-")
	cmd.Dir = m.path
	cmd.Stdin = strings.NewReader(diff)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		tail := stderr.String()
		if len(tail) > applyStderrLimit {
			tail = tail[len(tail)-applyStderrLimit:]
		}
		clog.FromContext(ctx).Warnf("git apply failed: %v", err)
		return &ApplyError{Stderr: tail, err: err}
	}
	return nil
}

// RejectArtifacts lists .rej files left behind by a partial apply. A clean
// apply leaves none; any present mean the patch only partially landed.
func (m *Manager) RejectArtifacts() ([]string, error) {
	worktree, err := m.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("getting worktree: %w", err)
	}
	status, err := worktree.Status()
	if err != nil {
		return nil, fmt.Errorf("getting worktree status: %w", err)
	}

	var rejects []string
	for path := range status {
		if strings.HasSuffix(path, ".rej") {
			rejects = append(rejects, path)
		}
	}
	return rejects, nil
}
