/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package completer abstracts single-shot LLM completions behind a provider
// neutral interface. Backends live in subpackages so that callers never
// depend on a specific vendor SDK.
package completer

import (
	"context"
	"fmt"

	"chainguard.dev/issueforge/agents/completer/claudechat"
	"chainguard.dev/issueforge/agents/completer/openaichat"
	"chainguard.dev/issueforge/config"
)

// Completer produces a single completion for a system/user prompt pair.
type Completer interface {
	// Complete returns the model's text output. Implementations retry
	// transient provider failures internally.
	Complete(ctx context.Context, system, user string, temperature float64) (string, error)
}

// New constructs the backend selected by the configuration.
func New(cfg *config.Config) (Completer, error) {
	switch cfg.Provider {
	case "openai":
		return openaichat.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.RequestTimeout), nil
	case "anthropic":
		return claudechat.New(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.RequestTimeout), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q (want openai or anthropic)", cfg.Provider)
	}
}
