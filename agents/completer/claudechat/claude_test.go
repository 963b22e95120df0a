/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package claudechat

import (
	"errors"
	"fmt"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{429, true},
		{503, true},
		{504, true},
		{529, true},
		{400, false},
		{401, false},
		{500, false},
	}
	for _, tc := range tests {
		err := fmt.Errorf("wrapped: %w", &anthropic.Error{StatusCode: tc.status})
		if got := isRetryable(err); got != tc.want {
			t.Errorf("isRetryable(status %d) = %v, want %v", tc.status, got, tc.want)
		}
	}

	if isRetryable(errors.New("plain error")) {
		t.Errorf("plain errors must not be retryable")
	}
}
