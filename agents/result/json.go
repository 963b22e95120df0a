/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package result extracts structured output from model responses. Models are
// unreliable producers of structured text: the JSON we ask for may arrive
// fenced, bare, or buried in prose, so every helper here degrades through
// progressively looser scans instead of failing on the first mismatch.
package result

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// maxObjectScan bounds the candidate spans considered by FirstObject so a
// pathological response cannot make extraction quadratic in a huge buffer.
const maxObjectScan = 200_000

// ErrNoJSON is returned when no parseable JSON object can be found.
var ErrNoJSON = errors.New("no JSON object found in response")

// ExtractJSON extracts JSON content from a text response that may contain
// markdown code blocks. It looks for content between ```json and ``` markers,
// or returns the input trimmed of any stray fences if no tagged block exists.
func ExtractJSON(responseText string) string {
	// Search for the first ```json fence on its own line and collect content
	// until the closing ```.
	var buf bytes.Buffer
	inBlock := false
	found := false
	for _, line := range strings.Split(responseText, "\n") {
		if !inBlock && strings.TrimSpace(line) == "```json" {
			inBlock = true
			found = true
			continue
		}
		if inBlock && strings.TrimSpace(line) == "```" {
			break
		}
		if inBlock {
			if buf.Len() > 0 {
				buf.WriteString("\n")
			}
			buf.WriteString(line)
		}
	}
	if found {
		return strings.TrimSpace(buf.String())
	}

	// Fallback: strip any fences wrapping the whole response.
	responseText = strings.TrimSpace(responseText)
	responseText = strings.TrimPrefix(responseText, "```json")
	responseText = strings.TrimPrefix(responseText, "```")
	responseText = strings.TrimSuffix(responseText, "```")
	return strings.TrimSpace(responseText)
}

// FirstObject returns the first {...} span in text that parses as a JSON
// object. It is the last resort for responses where the model interleaved
// the object with prose and no fence survived.
func FirstObject(text string) (json.RawMessage, error) {
	for start := 0; start < len(text); start++ {
		if text[start] != '{' {
			continue
		}
		depth := 0
		inString := false
		escaped := false
		for end := start; end < len(text) && end-start < maxObjectScan; end++ {
			c := text[end]
			switch {
			case escaped:
				escaped = false
			case inString && c == '\\':
				escaped = true
			case c == '"':
				inString = !inString
			case !inString && c == '{':
				depth++
			case !inString && c == '}':
				depth--
				if depth == 0 {
					candidate := text[start : end+1]
					if json.Valid([]byte(candidate)) {
						return json.RawMessage(candidate), nil
					}
					// Balanced but invalid; try the next opening brace.
					end = len(text)
				}
			}
		}
	}
	return nil, ErrNoJSON
}

// Extract extracts JSON content from a text response and unmarshals it into
// the provided type. It tries the fenced/trimmed form first and falls back to
// scanning for the first embedded object.
func Extract[T any](responseText string) (T, error) {
	var result T

	content := ExtractJSON(responseText)
	if err := json.Unmarshal([]byte(content), &result); err == nil {
		return result, nil
	}

	raw, err := FirstObject(responseText)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return result, err
	}
	return result, nil
}
