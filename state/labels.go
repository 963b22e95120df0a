/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package state models the iteration ledger for a managed change. The ledger
// has no storage of its own: it is persisted entirely as labels on the pull
// request, re-derived from a fresh label fetch on every read and mutated
// through the tracker. Labels must round-trip bit-exactly across invocations.
package state

import (
	"regexp"
	"strconv"
)

// Labels attached to managed pull requests.
const (
	// LabelManaged marks a PR as owned by the agent.
	LabelManaged = "agent:managed"
	// LabelFix requests a correction round on the PR.
	LabelFix = "agent:fix"
	// LabelDone marks a PR whose review passed.
	LabelDone = "agent:done"
	// LabelStopped marks a PR whose automated loop has been halted and
	// now needs human intervention. Terminal.
	LabelStopped = "agent:stopped"

	// IterPrefix prefixes the iteration counter label. Exactly one
	// iteration label should be present at a time; stale ones are removed
	// before the next is added.
	IterPrefix = "agent:iter-"
)

var iterRE = regexp.MustCompile(`^agent:iter-(\d+)$`)

// IterLabel returns the iteration label for round n.
func IterLabel(n int) string {
	return IterPrefix + strconv.Itoa(n)
}

// Iteration derives the current iteration number from a label set. The read
// is order-independent: when multiple iteration labels have leaked onto the
// PR, the maximum numeric suffix wins. Absence means 0 (never fixed).
func Iteration(labels []string) int {
	max := 0
	for _, lab := range labels {
		m := iterRE.FindStringSubmatch(lab)
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > max {
			max = n
		}
	}
	return max
}

// IterLabels returns the iteration labels present in the set, preserving
// input order. Callers remove all of them before attaching the next counter.
func IterLabels(labels []string) []string {
	var out []string
	for _, lab := range labels {
		if iterRE.MatchString(lab) {
			out = append(out, lab)
		}
	}
	return out
}

// NextIteration returns the iteration number the next fix round should
// record. Iteration 1 is the original PR itself, so the first correction of
// an untouched change jumps straight to 2.
func NextIteration(cur int) int {
	if cur == 0 {
		return 2
	}
	return cur + 1
}

// Stopped reports whether the label set marks the change as halted.
func Stopped(labels []string) bool {
	for _, lab := range labels {
		if lab == LabelStopped {
			return true
		}
	}
	return false
}
