/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package state_test

import (
	"testing"

	"chainguard.dev/issueforge/state"
	"github.com/google/go-cmp/cmp"
)

func TestIteration(t *testing.T) {
	t.Parallel()
	labels := []string{"bug", "agent:iter-1", "agent:iter-3", "agent:managed"}

	if got := state.Iteration(labels); got != 3 {
		t.Errorf("Iteration = %d, want 3", got)
	}
	want := []string{"agent:iter-1", "agent:iter-3"}
	if diff := cmp.Diff(want, state.IterLabels(labels)); diff != "" {
		t.Errorf("IterLabels mismatch (-want +got):\n%s", diff)
	}
}

func TestIteration_Absent(t *testing.T) {
	t.Parallel()
	if got := state.Iteration([]string{"bug", "agent:managed"}); got != 0 {
		t.Errorf("Iteration = %d, want 0", got)
	}
	if got := state.IterLabels(nil); got != nil {
		t.Errorf("IterLabels = %v, want nil", got)
	}
}

func TestIteration_IgnoresMalformedSuffixes(t *testing.T) {
	t.Parallel()
	labels := []string{"agent:iter-", "agent:iter-x", "agent:iter-2extra", "agent:iter-2"}
	if got := state.Iteration(labels); got != 2 {
		t.Errorf("Iteration = %d, want 2", got)
	}
}

func TestNextIteration(t *testing.T) {
	t.Parallel()
	tests := []struct{ cur, want int }{
		{0, 2}, // first fix after creation lands on 2
		{1, 2},
		{2, 3},
		{5, 6},
	}
	for _, tc := range tests {
		if got := state.NextIteration(tc.cur); got != tc.want {
			t.Errorf("NextIteration(%d) = %d, want %d", tc.cur, got, tc.want)
		}
	}
}

func TestIterLabel(t *testing.T) {
	t.Parallel()
	if got := state.IterLabel(4); got != "agent:iter-4" {
		t.Errorf("IterLabel(4) = %q", got)
	}
}

func TestStopped(t *testing.T) {
	t.Parallel()
	if state.Stopped([]string{"agent:managed", "agent:iter-2"}) {
		t.Error("Stopped = true for running change")
	}
	if !state.Stopped([]string{"agent:stopped"}) {
		t.Error("Stopped = false for halted change")
	}
}
