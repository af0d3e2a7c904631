// Package embedding turns topic titles into vectors through an
// OpenAI-compatible embeddings endpoint.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/newsroom-engine/internal/config"
	"github.com/newsroom-engine/pkg/logger"
	"github.com/newsroom-engine/pkg/ratelimit"
	"github.com/newsroom-engine/pkg/retry"
)

// Client calls the embeddings endpoint
type Client struct {
	httpClient  *http.Client
	endpoint    string
	apiKey      string
	model       string
	dimensions  int
	rateLimiter *ratelimit.MultiLimiter
	log         *logger.Logger
}

// NewClient creates a new embeddings client
func NewClient(cfg config.EmbeddingConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		endpoint:    cfg.Endpoint,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		dimensions:  cfg.Dimensions,
		rateLimiter: limiter,
		log:         log.WithComponent("embedding"),
	}
}

type embedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed returns the embedding of text. Client errors (4xx other than 429) are
// marked permanent so callers using pkg/retry do not hammer the endpoint.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, retry.Permanent(errors.New("embedding: empty input"))
	}

	if err := c.rateLimiter.Wait(ctx, ratelimit.LimiterEmbedding); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	data, err := json.Marshal(embedRequest{Model: c.model, Input: []string{text}, Dimensions: c.dimensions})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("embedding endpoint returned %s - %s", resp.Status, string(body))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, retry.Permanent(err)
		}
		return nil, err
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("embedding error: %s", out.Error.Message)
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, errors.New("embedding response contained no vectors")
	}

	vector := out.Data[0].Embedding
	c.log.Debug().Int("dimensions", len(vector)).Msg("Embedded text")
	return vector, nil
}
