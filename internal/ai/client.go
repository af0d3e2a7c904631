// Package ai holds the Claude-backed collaborators: clustering, title merge,
// drafting, QA review and classification.
package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/newsroom-engine/internal/config"
	"github.com/newsroom-engine/pkg/logger"
	"github.com/newsroom-engine/pkg/ratelimit"
)

const jsonOnly = "\n\nRespond with one valid JSON document and nothing else. No markdown fences, no prose."

// Client sends single-turn prompts to the Messages API
type Client struct {
	client      anthropic.Client
	model       string
	maxTokens   int
	temperature float64
	limiter     *ratelimit.MultiLimiter
	log         *logger.Logger
}

// NewClient builds a client for cfg. The SDK does not retry; stage executors
// wrap every call in pkg/retry.
func NewClient(cfg config.AnthropicConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{
		client:      anthropic.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		limiter:     limiter,
		log:         log.WithComponent("ai"),
	}
}

func (c *Client) params(system, user string) anthropic.MessageNewParams {
	return anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(c.maxTokens),
		Temperature: anthropic.Float(c.temperature),
		System:      []anthropic.TextBlockParam{{Type: "text", Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	}
}

// Complete returns the concatenated text blocks of the reply
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	if err := c.limiter.Wait(ctx, ratelimit.LimiterAnthropic); err != nil {
		return "", fmt.Errorf("anthropic rate limit: %w", err)
	}

	msg, err := c.client.Messages.New(ctx, c.params(system, user))
	if err != nil {
		c.log.Warn().Err(err).Str("model", c.model).Msg("Messages request failed")
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		sb.WriteString(block.AsText().Text)
	}

	c.log.Debug().
		Str("model", c.model).
		Int64("input_tokens", msg.Usage.InputTokens).
		Int64("output_tokens", msg.Usage.OutputTokens).
		Str("stop_reason", string(msg.StopReason)).
		Msg("Claude replied")

	return sb.String(), nil
}

// CompleteWithJSON is Complete with a JSON-only instruction appended to system
func (c *Client) CompleteWithJSON(ctx context.Context, system, user string) (string, error) {
	return c.Complete(ctx, system+jsonOnly, user)
}
