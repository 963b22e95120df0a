/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package tracker

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/go-github/v84/github"
)

// Machine-readable markers embedded in comment and PR bodies. These are the
// on-wire protocol between runs: changing them orphans state recorded by
// earlier invocations.
const (
	prMarkerFormat = "<!--sdlc-agent:pr=%d-->"

	// ReviewMarker tags verdict comments so the fix loop can tell review
	// feedback apart from ordinary discussion.
	ReviewMarker = "<!--sdlc-agent-review-->"

	// feedbackLimit bounds how much of a feedback comment is forwarded to
	// the model.
	feedbackLimit = 8000
)

var (
	prMarkerRE = regexp.MustCompile(`<!--sdlc-agent:pr=(\d+)-->`)
	issueRefRE = regexp.MustCompile(`(?i)closes\s+#(\d+)`)
)

// PRMarker renders the hidden marker that links an issue comment to the PR
// created for it.
func PRMarker(prNumber int) string {
	return fmt.Sprintf(prMarkerFormat, prNumber)
}

// ParsePRMarker scans text for a PR marker and returns the PR number, or 0
// when no marker is present.
func ParsePRMarker(text string) int {
	m := prMarkerRE.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// ParseIssueRef extracts the issue number from a "Closes #N" reference,
// case-insensitively. Returns 0 when the text carries no reference.
func ParseIssueRef(text string) int {
	m := issueRefRE.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// LinkedPR scans issue comments newest-first for a PR marker and returns the
// most recently recorded PR number, or 0.
func LinkedPR(comments []*github.IssueComment) int {
	for i := len(comments) - 1; i >= 0; i-- {
		if n := ParsePRMarker(comments[i].GetBody()); n != 0 {
			return n
		}
	}
	return 0
}

// LatestFeedback returns the newest comment carrying the review marker,
// stripped of the marker, trimmed, and capped at the forwarding bound.
// Returns "" when no marked feedback exists.
func LatestFeedback(comments []*github.IssueComment) string {
	for i := len(comments) - 1; i >= 0; i-- {
		body := comments[i].GetBody()
		if !strings.Contains(body, ReviewMarker) {
			continue
		}
		body = strings.TrimSpace(strings.ReplaceAll(body, ReviewMarker, ""))
		if len(body) > feedbackLimit {
			body = body[:feedbackLimit]
		}
		return body
	}
	return ""
}
