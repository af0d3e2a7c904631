package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// MultiLimiter manages multiple rate limiters for different services
type MultiLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
}

// NewMultiLimiter creates a new multi-limiter
func NewMultiLimiter() *MultiLimiter {
	return &MultiLimiter{
		limiters: make(map[string]*rate.Limiter),
	}
}

// AddLimiter adds a new rate limiter for a service
// requestsPerSecond: the rate limit (e.g., 10 means 10 requests per second)
// burst: maximum burst size
func (m *MultiLimiter) AddLimiter(name string, requestsPerSecond float64, burst int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limiters[name] = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// Wait blocks until the limiter allows an event
func (m *MultiLimiter) Wait(ctx context.Context, name string) error {
	m.mu.RLock()
	limiter, ok := m.limiters[name]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("limiter %s not found", name)
	}

	return limiter.Wait(ctx)
}

// Allow reports whether an event may happen now
func (m *MultiLimiter) Allow(name string) bool {
	m.mu.RLock()
	limiter, ok := m.limiters[name]
	m.mu.RUnlock()

	if !ok {
		return false
	}

	return limiter.Allow()
}

// Reserve returns a reservation for a future event
func (m *MultiLimiter) Reserve(name string) (*rate.Reservation, error) {
	m.mu.RLock()
	limiter, ok := m.limiters[name]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("limiter %s not found", name)
	}

	return limiter.Reserve(), nil
}

// Has reports whether a limiter with the given name is registered
func (m *MultiLimiter) Has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.limiters[name]
	return ok
}

// Limiter names used by the collaborator clients
const (
	LimiterAnthropic = "anthropic"
	LimiterEmbedding = "embedding"
	LimiterQdrant    = "qdrant"
	LimiterFetcher   = "fetcher"
	LimiterRSS       = "rss"
	LimiterYouTube   = "youtube"
	LimiterSheets    = "sheets"
)

// Limits configures per-minute budgets. Zero values fall back to defaults.
type Limits struct {
	AnthropicPerMinute int
	EmbeddingPerMinute int
	FetcherPerMinute   int
}

// NewDefaultLimiter creates a limiter with default rate limits
func NewDefaultLimiter() *MultiLimiter {
	return NewLimiter(Limits{})
}

// NewLimiter creates a limiter using the given budgets
func NewLimiter(l Limits) *MultiLimiter {
	if l.AnthropicPerMinute <= 0 {
		l.AnthropicPerMinute = 50
	}
	if l.EmbeddingPerMinute <= 0 {
		l.EmbeddingPerMinute = 300
	}
	if l.FetcherPerMinute <= 0 {
		l.FetcherPerMinute = 120
	}

	m := NewMultiLimiter()

	m.AddLimiter(LimiterAnthropic, float64(l.AnthropicPerMinute)/60, 5)
	m.AddLimiter(LimiterEmbedding, float64(l.EmbeddingPerMinute)/60, 20)
	m.AddLimiter(LimiterFetcher, float64(l.FetcherPerMinute)/60, 10)

	// Qdrant is usually local; keep it generous
	m.AddLimiter(LimiterQdrant, 50, 100)

	// RSS: No strict limit, but be polite - 1 per second, burst 10
	m.AddLimiter(LimiterRSS, 1, 10)

	// YouTube Data API: 10k quota units per day, a list call costs 1
	m.AddLimiter(LimiterYouTube, 10000.0/(24*60*60), 10)

	// Sheets: 60 write requests per minute per user
	m.AddLimiter(LimiterSheets, 1, 5)

	return m
}
