/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package unidiff normalizes free-text model output into a minimal,
// well-formed multi-file unified diff. Model responses routinely wrap the
// diff in narrative text, markdown fences, or interleave prose inside hunks;
// each stage of the pipeline strictly narrows the candidate until only
// unified-diff syntax remains. Unusable input yields empty output, never an
// error escaping to the caller.
package unidiff

import (
	"errors"
	"regexp"
	"strings"

	"github.com/waigani/diffparser"
)

// FileHeader is the literal token that opens a unified diff file block.
const FileHeader = "diff --git"

// ErrNoDiff is returned by Extract when the text contains neither a
// diff-tagged fence nor a diff file header.
var ErrNoDiff = errors.New("no unified diff found (expected 'diff --git ...')")

var fenceRE = regexp.MustCompile("(?s)```([a-zA-Z0-9_-]*)[ \t]*\n(.*?)```")

// directivePrefixes are the non-content lines a unified diff may legally
// contain. Anything else inside a block is prose the model interleaved and
// would corrupt patch application.
var directivePrefixes = []string{
	FileHeader + " ",
	"index ",
	"--- ",
	"+++ ",
	"@@ ",
	"new file mode ",
	"deleted file mode ",
	"similarity index ",
	"rename from ",
	"rename to ",
	"old mode ",
	"new mode ",
	"Binary files ",
	"\\ No newline at end of file",
}

// Extract locates the unified diff within an arbitrary text blob.
// Preference order: the first fenced block tagged as diff, then the raw text
// from the first file header onward. If fences exist but none is diff-tagged,
// the fence delimiters are stripped before re-scanning so a diff fenced under
// the wrong language tag is still recovered.
func Extract(text string) (string, error) {
	if strings.Contains(text, "```") {
		for _, m := range fenceRE.FindAllStringSubmatch(text, -1) {
			lang, body := strings.ToLower(strings.TrimSpace(m[1])), m[2]
			if lang == "diff" && strings.Contains(body, FileHeader) {
				return strings.TrimSpace(body), nil
			}
		}
		// No diff-tagged fence: drop the delimiters and re-scan the text.
		text = strings.ReplaceAll(text, "```diff", "")
		text = strings.ReplaceAll(text, "```", "")
	}

	if idx := strings.Index(text, FileHeader); idx != -1 {
		return strings.TrimSpace(text[idx:]), nil
	}
	return "", ErrNoDiff
}

// Blocks splits a unified diff into per-file blocks. A new block begins at
// each file header line; lines preceding the first header are dropped.
func Blocks(diff string) []string {
	if diff == "" {
		return nil
	}

	var blocks []string
	var cur strings.Builder
	open := false
	for _, line := range strings.SplitAfter(diff, "\n") {
		if strings.HasPrefix(line, FileHeader+" ") {
			if open {
				blocks = append(blocks, cur.String())
				cur.Reset()
			}
			open = true
		}
		if open {
			cur.WriteString(line)
		}
	}
	if open && cur.Len() > 0 {
		blocks = append(blocks, cur.String())
	}
	return blocks
}

// FilterBlocks keeps the per-file blocks whose header references one of the
// allowed paths. A filter that matches nothing falls back to keeping every
// block rather than discarding salvageable output; an absent allow-list keeps
// everything. An empty result with at least one block degrades to the first
// block only.
func FilterBlocks(blocks []string, allowPaths []string) []string {
	if len(blocks) == 0 {
		return nil
	}

	kept := blocks
	if len(allowPaths) > 0 {
		var matched []string
		for _, b := range blocks {
			header, _, _ := strings.Cut(b, "\n")
			for _, p := range allowPaths {
				if strings.Contains(header, p) {
					matched = append(matched, b)
					break
				}
			}
		}
		if len(matched) > 0 {
			kept = matched
		}
	}

	if len(kept) == 0 {
		kept = blocks[:1]
	}
	return kept
}

// SanitizeLines drops every line that is not valid unified-diff syntax:
// recognized directive lines, and hunk content lines beginning with a space,
// '+', or '-'. This removes prose the model interleaved inside hunks.
func SanitizeLines(diff string) string {
	if diff == "" {
		return ""
	}

	var out []string
	for _, line := range strings.Split(diff, "\n") {
		if allowedLine(line) {
			out = append(out, line)
		}
	}

	joined := strings.TrimSpace(strings.Join(out, "\n"))
	if joined == "" {
		return ""
	}
	return joined + "\n"
}

func allowedLine(line string) bool {
	for _, p := range directivePrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	if line == "" {
		return false
	}
	switch line[0] {
	case ' ', '+', '-':
		return true
	}
	return false
}

// Sanitize runs the full pipeline: extraction, block segmentation, block
// filtering against the optional path allow-list, and line-level sanitation.
// It never fails; input with no usable diff yields the empty string, which
// callers must treat as "no patch produced" rather than as an error.
func Sanitize(raw string, allowPaths []string) string {
	extracted, err := Extract(raw)
	if err != nil {
		return ""
	}

	blocks := FilterBlocks(Blocks(extracted+"\n"), allowPaths)
	if len(blocks) == 0 {
		return ""
	}

	return SanitizeLines(strings.Join(blocks, ""))
}

// Files parses a sanitized diff and returns the paths it touches, preferring
// the post-image name. A parse failure means the diff is not well formed.
func Files(diff string) ([]string, error) {
	parsed, err := diffparser.Parse(diff)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, f := range parsed.Files {
		name := f.NewName
		if name == "" {
			name = f.OrigName
		}
		if name != "" {
			paths = append(paths, name)
		}
	}
	return paths, nil
}
