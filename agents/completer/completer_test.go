/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package completer

import (
	"strings"
	"testing"

	"chainguard.dev/issueforge/agents/completer/claudechat"
	"chainguard.dev/issueforge/agents/completer/openaichat"
	"chainguard.dev/issueforge/config"
)

func TestNewSelectsProvider(t *testing.T) {
	c, err := New(&config.Config{Provider: "openai", OpenAIModel: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("New(openai): %v", err)
	}
	if _, ok := c.(*openaichat.Client); !ok {
		t.Errorf("New(openai) = %T, want *openaichat.Client", c)
	}

	c, err = New(&config.Config{Provider: "anthropic", AnthropicModel: "claude-sonnet-4-20250514"})
	if err != nil {
		t.Fatalf("New(anthropic): %v", err)
	}
	if _, ok := c.(*claudechat.Client); !ok {
		t.Errorf("New(anthropic) = %T, want *claudechat.Client", c)
	}

	if _, err := New(&config.Config{Provider: "cohere"}); err == nil {
		t.Errorf("New(cohere) expected error")
	} else if !strings.Contains(err.Error(), "cohere") {
		t.Errorf("New(cohere) error %q does not name the provider", err)
	}
}
