/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package config loads runtime configuration from the process environment.
// The environment is read exactly once at startup and never re-read mid-run.
package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Actor identifies which credential chain an invocation runs under. The code
// and reviewer agents must be distinct identities or the reviewer will refuse
// to review its own changes.
type Actor string

const (
	// ActorCode is the change-producing agent.
	ActorCode Actor = "code"
	// ActorReviewer is the independent review agent.
	ActorReviewer Actor = "reviewer"
)

// Config is the runtime configuration for one invocation.
type Config struct {
	// GitHub credentials. Token selection depends on the actor; see Token.
	GitHubToken   string `env:"GITHUB_TOKEN"`
	AgentToken    string `env:"AGENT_GITHUB_TOKEN"`
	CodeToken     string `env:"CODE_AGENT_GITHUB_TOKEN"`
	ReviewerToken string `env:"REVIEWER_GITHUB_TOKEN"`

	GitHubAPIBase string `env:"GITHUB_API_BASE, default=https://api.github.com"`

	// Model provider selection: "openai" (chat-message array) or "anthropic"
	// (system instruction as a separate field). Both expose the same
	// complete(system, user, temperature) contract.
	Provider string `env:"LLM_PROVIDER, default=openai"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL, default=https://api.openai.com"`
	OpenAIModel   string `env:"OPENAI_MODEL, default=gpt-4o-mini"`

	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	AnthropicModel  string `env:"ANTHROPIC_MODEL, default=claude-sonnet-4-20250514"`

	// Agent behavior.
	MaxIters   int    `env:"AGENT_MAX_ITERS, default=3"`
	BaseBranch string `env:"AGENT_BASE_BRANCH"`

	// Title-based rewrite override: when the issue title contains
	// RewriteTitleTerm (case-insensitive), file selection is pinned to
	// RewritePath and the change is produced as a full-file rewrite
	// instead of a diff. Set AGENT_REWRITE_TITLE_TERM empty to disable.
	RewriteTitleTerm string `env:"AGENT_REWRITE_TITLE_TERM, default=readme"`
	RewritePath      string `env:"AGENT_REWRITE_PATH, default=README.md"`

	// Git identity for automated commits.
	GitUserName  string `env:"AGENT_GIT_NAME, default=sdlc-agent[bot]"`
	GitUserEmail string `env:"AGENT_GIT_EMAIL, default=sdlc-agent[bot]@users.noreply.github.com"`

	// Per-call timeout for external HTTP requests.
	RequestTimeout time.Duration `env:"AGENT_REQUEST_TIMEOUT, default=60s"`
}

// Load populates a Config from the environment.
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("processing environment: %w", err)
	}
	if cfg.MaxIters < 1 {
		return nil, fmt.Errorf("AGENT_MAX_ITERS must be at least 1, got %d", cfg.MaxIters)
	}
	return &cfg, nil
}

// Token resolves the GitHub token for the given actor. The code agent
// prefers its dedicated token, then the shared agent token, then the ambient
// one; the reviewer prefers its own so the two identities stay distinct.
func (c *Config) Token(actor Actor) (string, error) {
	var chain []string
	switch actor {
	case ActorReviewer:
		chain = []string{c.ReviewerToken, c.GitHubToken, c.AgentToken}
	default:
		chain = []string{c.CodeToken, c.AgentToken, c.GitHubToken}
	}
	for _, tok := range chain {
		if tok != "" {
			return tok, nil
		}
	}
	return "", errors.New("no GitHub token configured")
}
