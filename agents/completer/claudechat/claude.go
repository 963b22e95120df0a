/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package claudechat implements the completer backend for the Anthropic
// Messages API.
package claudechat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chainguard.dev/issueforge/agents/retry"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const maxTokens = 8192

// Client issues single-shot completions against the Anthropic API.
type Client struct {
	api   anthropic.Client
	model anthropic.Model
	retry retry.Config
}

// New constructs a Client. An empty API key defers to the SDK's environment
// based credential resolution.
func New(apiKey, model string, timeout time.Duration) *Client {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	return &Client{
		api:   anthropic.NewClient(opts...),
		model: anthropic.Model(model),
		retry: retry.DefaultConfig(),
	}
}

// Complete sends one system/user exchange and returns the text of the reply.
func (c *Client) Complete(ctx context.Context, system, user string, temperature float64) (string, error) {
	return retry.WithBackoff(ctx, c.retry, "anthropic completion", isRetryable, func() (string, error) {
		msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
			Model:       c.model,
			MaxTokens:   maxTokens,
			Temperature: anthropic.Float(temperature),
			System: []anthropic.TextBlockParam{
				{Text: system},
			},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
			},
		})
		if err != nil {
			return "", fmt.Errorf("anthropic API call: %w", err)
		}

		for _, block := range msg.Content {
			if block.Type == "text" {
				return block.Text, nil
			}
		}
		return "", errors.New("no text content in API response")
	})
}

// isRetryable reports whether an error is a transient provider failure:
// rate limiting, overload, or a gateway error.
func isRetryable(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 503, 504, 529:
			return true
		}
	}
	return false
}
