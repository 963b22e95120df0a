/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package cireport consumes the externally produced CI result feed: a JSON
// mapping from check name to exit code and log tail. The report is read-only
// input; an absent report is treated as vacuously green.
package cireport

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// perCheckTail bounds the log tail quoted for each check in the summary.
const perCheckTail = 2000

// Check is the recorded outcome of one CI check.
type Check struct {
	ExitCode int    `json:"exit_code"`
	LogTail  string `json:"log_tail"`
}

// Report maps check name to outcome.
type Report map[string]Check

// Load reads a report from path. An empty path or missing file yields an
// empty (vacuously green) report; a present but malformed file is an error.
func Load(path string) (Report, error) {
	if path == "" {
		return Report{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Report{}, nil
		}
		return nil, fmt.Errorf("reading CI report: %w", err)
	}

	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing CI report %s: %w", path, err)
	}
	return r, nil
}

// Green reports whether every check exited zero. Empty reports are green.
func (r Report) Green() bool {
	for _, c := range r {
		if c.ExitCode != 0 {
			return false
		}
	}
	return true
}

// Summarize renders the report for prompts and comments. It returns a
// markdown per-check summary, a concatenation of bounded log tails for the
// failing-prone checks, and the green classification. Checks are ordered by
// name so output is deterministic.
func (r Report) Summarize() (summary, logTails string, green bool) {
	if len(r) == 0 {
		return "(no CI data)", "", true
	}

	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)

	green = true
	var lines, tails []string
	for _, name := range names {
		c := r[name]
		outcome := "pass"
		if c.ExitCode != 0 {
			outcome = "FAIL"
			green = false
		}
		lines = append(lines, fmt.Sprintf("- %s **%s** (exit=%d)", outcome, name, c.ExitCode))

		if tail := c.LogTail; tail != "" {
			if len(tail) > perCheckTail {
				tail = tail[len(tail)-perCheckTail:]
			}
			tails = append(tails, fmt.Sprintf("## %s\n```\n%s\n```", name, tail))
		}
	}

	return strings.Join(lines, "\n"), strings.Join(tails, "\n\n"), green
}
