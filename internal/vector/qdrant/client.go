// Package qdrant is a small REST client for the Qdrant vector database,
// covering the calls topic deduplication needs.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/newsroom-engine/internal/config"
	"github.com/newsroom-engine/internal/models"
	"github.com/newsroom-engine/pkg/logger"
	"github.com/newsroom-engine/pkg/ratelimit"
	"github.com/newsroom-engine/pkg/retry"
)

// Client talks to one Qdrant collection
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	collection  string
	rateLimiter *ratelimit.MultiLimiter
	log         *logger.Logger
}

// NewClient creates a new Qdrant client
func NewClient(cfg config.QdrantConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		baseURL:     strings.TrimRight(cfg.URL, "/"),
		apiKey:      cfg.APIKey,
		collection:  cfg.Collection,
		rateLimiter: limiter,
		log:         log.WithComponent("qdrant"),
	}
}

// StatusError is returned for non-2xx responses
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("qdrant returned %d - %s", e.Code, e.Body)
}

// do performs a request and decodes the "result" member into out when non-nil
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	if err := c.rateLimiter.Wait(ctx, ratelimit.LimiterQdrant); err != nil {
		return fmt.Errorf("rate limit error: %w", err)
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return retry.Permanent(fmt.Errorf("failed to marshal request body: %w", err))
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	c.log.Debug().Str("method", method).Str("path", path).Msg("Making Qdrant request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		statusErr := &StatusError{Code: resp.StatusCode, Body: string(data)}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return retry.Permanent(statusErr)
		}
		return statusErr
	}

	if out == nil {
		return nil
	}

	envelope := struct {
		Result json.RawMessage `json:"result"`
	}{}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode qdrant response: %w", err)
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("failed to decode qdrant result: %w", err)
	}
	return nil
}

func (c *Client) collectionPath(suffix string) string {
	return "/collections/" + url.PathEscape(c.collection) + suffix
}

// EnsureCollection creates the collection with cosine distance when it does not exist
func (c *Client) EnsureCollection(ctx context.Context, dimensions int) error {
	err := c.do(ctx, http.MethodGet, c.collectionPath(""), nil, nil)
	if err == nil {
		return nil
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusNotFound {
		return fmt.Errorf("check collection %s: %w", c.collection, err)
	}

	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     dimensions,
			"distance": "Cosine",
		},
	}
	if err := c.do(ctx, http.MethodPut, c.collectionPath(""), body, nil); err != nil {
		return fmt.Errorf("create collection %s: %w", c.collection, err)
	}

	c.log.Info().Str("collection", c.collection).Int("dimensions", dimensions).Msg("Created vector collection")
	return nil
}

type scoredPoint struct {
	ID      json.RawMessage        `json:"id"`
	Score   float64                `json:"score"`
	Payload map[string]interface{} `json:"payload"`
}

// Search returns up to limit points scoring at least threshold, best first
func (c *Client) Search(ctx context.Context, vector []float32, limit int, threshold float64) ([]models.VectorHit, error) {
	body := map[string]interface{}{
		"vector":          vector,
		"limit":           limit,
		"with_payload":    true,
		"score_threshold": threshold,
	}

	var points []scoredPoint
	if err := c.do(ctx, http.MethodPost, c.collectionPath("/points/search"), body, &points); err != nil {
		return nil, err
	}

	hits := make([]models.VectorHit, 0, len(points))
	for _, p := range points {
		hits = append(hits, models.VectorHit{
			ID:      pointID(p.ID),
			Score:   p.Score,
			Payload: p.Payload,
		})
	}
	return hits, nil
}

// Upsert writes one point. wait=true makes the write visible to the next search.
func (c *Client) Upsert(ctx context.Context, id string, vector []float32, payload map[string]interface{}) error {
	body := map[string]interface{}{
		"points": []map[string]interface{}{
			{
				"id":      id,
				"vector":  vector,
				"payload": payload,
			},
		},
	}
	return c.do(ctx, http.MethodPut, c.collectionPath("/points?wait=true"), body, nil)
}

// pointID renders string and numeric ids the same way
func pointID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n uint64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatUint(n, 10)
	}
	return strings.Trim(string(raw), `"`)
}
