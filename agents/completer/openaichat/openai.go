/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package openaichat implements the completer backend for OpenAI-compatible
// chat completion endpoints. The base URL is configurable so local and
// alternate OpenAI-style servers work with the same client.
package openaichat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chainguard.dev/issueforge/agents/retry"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Client issues single-shot completions against a chat completion endpoint.
type Client struct {
	api   openai.Client
	model openai.ChatModel
	retry retry.Config
}

// New constructs a Client. Empty apiKey or baseURL defer to the SDK's
// defaults and environment based resolution.
func New(apiKey, baseURL, model string, timeout time.Duration) *Client {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	return &Client{
		api:   openai.NewClient(opts...),
		model: openai.ChatModel(model),
		retry: retry.DefaultConfig(),
	}
}

// Complete sends one system/user exchange and returns the text of the reply.
func (c *Client) Complete(ctx context.Context, system, user string, temperature float64) (string, error) {
	return retry.WithBackoff(ctx, c.retry, "openai completion", isRetryable, func() (string, error) {
		resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model:       c.model,
			Temperature: openai.Float(temperature),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(system),
				openai.UserMessage(user),
			},
		})
		if err != nil {
			return "", fmt.Errorf("openai API call: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", errors.New("no choices in API response")
		}
		return resp.Choices[0].Message.Content, nil
	})
}

// isRetryable reports whether an error is a transient provider failure:
// rate limiting or any server-side error.
func isRetryable(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
