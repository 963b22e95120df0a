/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package cireport_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"chainguard.dev/issueforge/cireport"
)

func TestGreen(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		report cireport.Report
		want   bool
	}{
		{name: "empty is vacuously green", report: cireport.Report{}, want: true},
		{name: "all zero", report: cireport.Report{
			"build": {ExitCode: 0},
			"test":  {ExitCode: 0},
		}, want: true},
		{name: "any nonzero is not green", report: cireport.Report{
			"build": {ExitCode: 0},
			"test":  {ExitCode: 2, LogTail: "FAIL: TestThing"},
		}, want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.report.Green(); got != tc.want {
				t.Errorf("Green = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()
	r := cireport.Report{
		"test":  {ExitCode: 1, LogTail: "panic: boom"},
		"build": {ExitCode: 0},
	}

	summary, tails, green := r.Summarize()
	if green {
		t.Error("expected non-green summary")
	}
	// Deterministic name ordering
	if !strings.Contains(summary, "**build**") || !strings.Contains(summary, "**test**") {
		t.Errorf("summary missing checks:\n%s", summary)
	}
	if strings.Index(summary, "build") > strings.Index(summary, "test") {
		t.Errorf("summary not name-ordered:\n%s", summary)
	}
	if !strings.Contains(tails, "panic: boom") {
		t.Errorf("log tails missing failure output:\n%s", tails)
	}
}

func TestSummarize_Empty(t *testing.T) {
	t.Parallel()
	summary, tails, green := cireport.Report{}.Summarize()
	if !green || tails != "" || summary == "" {
		t.Errorf("empty report: summary=%q tails=%q green=%v", summary, tails, green)
	}
}

func TestSummarize_BoundsLogTail(t *testing.T) {
	t.Parallel()
	r := cireport.Report{"lint": {ExitCode: 1, LogTail: strings.Repeat("x", 10_000)}}
	_, tails, _ := r.Summarize()
	if len(tails) > 3000 {
		t.Errorf("log tail not bounded: %d chars", len(tails))
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "ci_results.json")
	content := `{"test": {"exit_code": 1, "log_tail": "FAIL"}, "build": {"exit_code": 0, "log_tail": ""}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := cireport.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if r["test"].ExitCode != 1 || r["test"].LogTail != "FAIL" {
		t.Errorf("unexpected report: %+v", r)
	}
	if r.Green() {
		t.Error("loaded report should not be green")
	}
}

func TestLoad_MissingIsGreen(t *testing.T) {
	t.Parallel()
	r, err := cireport.Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !r.Green() {
		t.Error("missing report should be vacuously green")
	}

	r, err = cireport.Load("")
	if err != nil || !r.Green() {
		t.Errorf("empty path: r=%v err=%v", r, err)
	}
}

func TestLoad_Malformed(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := cireport.Load(path); err == nil {
		t.Error("expected error for malformed report")
	}
}
