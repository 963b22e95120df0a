/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package config

import (
	"context"
	"testing"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/require"
)

func loadFrom(t *testing.T, env map[string]string) *Config {
	t.Helper()
	var cfg Config
	require.NoError(t, envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   &cfg,
		Lookuper: envconfig.MapLookuper(env),
	}))
	return &cfg
}

func TestDefaults(t *testing.T) {
	cfg := loadFrom(t, nil)

	require.Equal(t, "openai", cfg.Provider)
	require.Equal(t, "gpt-4o-mini", cfg.OpenAIModel)
	require.Equal(t, "https://api.github.com", cfg.GitHubAPIBase)
	require.Equal(t, 3, cfg.MaxIters)
	require.Equal(t, "readme", cfg.RewriteTitleTerm)
	require.Equal(t, "README.md", cfg.RewritePath)
	require.Equal(t, "sdlc-agent[bot]", cfg.GitUserName)
}

func TestTokenChains(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		actor Actor
		want  string
	}{
		{
			name:  "code prefers dedicated token",
			env:   map[string]string{"CODE_AGENT_GITHUB_TOKEN": "code", "AGENT_GITHUB_TOKEN": "agent", "GITHUB_TOKEN": "gh"},
			actor: ActorCode,
			want:  "code",
		},
		{
			name:  "code falls back to agent then github",
			env:   map[string]string{"AGENT_GITHUB_TOKEN": "agent", "GITHUB_TOKEN": "gh"},
			actor: ActorCode,
			want:  "agent",
		},
		{
			name:  "code last resort github token",
			env:   map[string]string{"GITHUB_TOKEN": "gh"},
			actor: ActorCode,
			want:  "gh",
		},
		{
			name:  "reviewer prefers dedicated token",
			env:   map[string]string{"REVIEWER_GITHUB_TOKEN": "rev", "GITHUB_TOKEN": "gh"},
			actor: ActorReviewer,
			want:  "rev",
		},
		{
			name:  "reviewer falls back to github before agent",
			env:   map[string]string{"GITHUB_TOKEN": "gh", "AGENT_GITHUB_TOKEN": "agent"},
			actor: ActorReviewer,
			want:  "gh",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := loadFrom(t, tc.env)
			token, err := cfg.Token(tc.actor)
			require.NoError(t, err)
			require.Equal(t, tc.want, token)
		})
	}
}

func TestTokenMissing(t *testing.T) {
	cfg := loadFrom(t, nil)
	_, err := cfg.Token(ActorCode)
	require.Error(t, err)
	_, err = cfg.Token(ActorReviewer)
	require.Error(t, err)
}
