/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package tracker

import (
	"strings"
	"testing"

	"github.com/google/go-github/v84/github"
)

func comment(body string) *github.IssueComment {
	return &github.IssueComment{Body: github.Ptr(body)}
}

func TestPRMarkerRoundTrip(t *testing.T) {
	marker := PRMarker(42)
	if want := "<!--sdlc-agent:pr=42-->"; marker != want {
		t.Errorf("PRMarker(42) = %q, want %q", marker, want)
	}
	if got := ParsePRMarker("Opened a PR.\n\n" + marker); got != 42 {
		t.Errorf("ParsePRMarker() = %d, want 42", got)
	}
	if got := ParsePRMarker("no marker here"); got != 0 {
		t.Errorf("ParsePRMarker(no marker) = %d, want 0", got)
	}
}

func TestParseIssueRef(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"Closes #17", 17},
		{"closes #17", 17},
		{"CLOSES  #17", 17},
		{"Fixes #17", 0},
		{"body\n\nCloses #9\n", 9},
		{"", 0},
	}
	for _, tc := range tests {
		if got := ParseIssueRef(tc.text); got != tc.want {
			t.Errorf("ParseIssueRef(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}

func TestLinkedPR(t *testing.T) {
	comments := []*github.IssueComment{
		comment("first"),
		comment("Opened " + PRMarker(3)),
		comment("chatter"),
		comment("Reopened " + PRMarker(8)),
		comment("more chatter"),
	}
	if got := LinkedPR(comments); got != 8 {
		t.Errorf("LinkedPR() = %d, want 8 (newest marker wins)", got)
	}
	if got := LinkedPR(nil); got != 0 {
		t.Errorf("LinkedPR(nil) = %d, want 0", got)
	}
}

func TestLatestFeedback(t *testing.T) {
	comments := []*github.IssueComment{
		comment(ReviewMarker + "\nOld feedback"),
		comment("unmarked discussion"),
		comment(ReviewMarker + "\nPlease fix the nil check."),
	}
	if got := LatestFeedback(comments); got != "Please fix the nil check." {
		t.Errorf("LatestFeedback() = %q", got)
	}
	if got := LatestFeedback([]*github.IssueComment{comment("nothing marked")}); got != "" {
		t.Errorf("LatestFeedback(unmarked) = %q, want empty", got)
	}
}

func TestLatestFeedbackBounded(t *testing.T) {
	long := strings.Repeat("x", feedbackLimit+500)
	got := LatestFeedback([]*github.IssueComment{comment(ReviewMarker + long)})
	if len(got) != feedbackLimit {
		t.Errorf("len(LatestFeedback()) = %d, want %d", len(got), feedbackLimit)
	}
}

func TestNormalizeRepo(t *testing.T) {
	tests := []struct {
		in        string
		owner     string
		name      string
		wantError bool
	}{
		{in: "octo/project", owner: "octo", name: "project"},
		{in: "https://github.com/octo/project", owner: "octo", name: "project"},
		{in: "https://github.com/octo/project.git", owner: "octo", name: "project"},
		{in: "https://ghe.example.com/octo/project/pull/3", owner: "octo", name: "project"},
		{in: "not-a-repo", wantError: true},
		{in: "https://github.com/just-owner", wantError: true},
	}
	for _, tc := range tests {
		owner, name, err := NormalizeRepo(tc.in)
		if tc.wantError {
			if err == nil {
				t.Errorf("NormalizeRepo(%q) expected error, got %s/%s", tc.in, owner, name)
			}
			continue
		}
		if err != nil {
			t.Errorf("NormalizeRepo(%q) unexpected error: %v", tc.in, err)
			continue
		}
		if owner != tc.owner || name != tc.name {
			t.Errorf("NormalizeRepo(%q) = %s/%s, want %s/%s", tc.in, owner, name, tc.owner, tc.name)
		}
	}
}
