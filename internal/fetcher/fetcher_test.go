package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsroom-engine/internal/config"
	"github.com/newsroom-engine/pkg/logger"
	"github.com/newsroom-engine/pkg/ratelimit"
	"github.com/newsroom-engine/pkg/retry"
)

func newTestFetcher(timedText string, maxQuote int) *Fetcher {
	return New(config.FetcherConfig{
		UserAgent:        "TestBot/1.0",
		MaxQuoteChars:    maxQuote,
		MaxTranscript:    50,
		TimedTextBaseURL: timedText,
	}, ratelimit.NewDefaultLimiter(), logger.Nop())
}

func TestScrape_Article(t *testing.T) {
	paragraph := strings.Repeat("The new chip doubles throughput while halving power draw. ", 10)
	html := `<html><head><title>Chip launch | Example</title></head><body>
		<nav>Home About</nav>
		<article><h1>Chip launch</h1><p>` + paragraph + `</p><p>` + paragraph + `</p></article>
		<footer>Copyright</footer>
	</body></html>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "TestBot/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(html))
	}))
	defer srv.Close()

	page, err := newTestFetcher("", 0).Scrape(context.Background(), srv.URL+"/story")
	require.NoError(t, err)
	assert.NotEmpty(t, page.Title)
	assert.Contains(t, page.Text, "doubles throughput")
	assert.NotContains(t, page.Text, "Copyright")
}

func TestScrape_ShortPageUsesSelectorFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>Tiny</title><script>var x=1;</script></head><body><p>Short note.</p></body></html>`))
	}))
	defer srv.Close()

	page, err := newTestFetcher("", 0).Scrape(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Tiny", page.Title)
	assert.Equal(t, "Short note.", page.Text)
}

func TestScrape_Truncates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><article>` + strings.Repeat("é", 500) + `</article></body></html>`))
	}))
	defer srv.Close()

	page, err := newTestFetcher("", 100).Scrape(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 100, len([]rune(page.Text)))
}

func TestScrape_NotFoundIsPermanent(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := newTestFetcher("", 0)
	_, err := retry.DoValue(context.Background(), retry.Config{MaxAttempts: 3}, func(ctx context.Context) (interface{}, error) {
		return f.Scrape(ctx, srv.URL)
	})
	require.Error(t, err)
	assert.False(t, errors.Is(err, retry.ErrAttemptsExhausted))
	assert.Equal(t, 1, calls)
}

func TestScrape_InvalidURL(t *testing.T) {
	_, err := newTestFetcher("", 0).Scrape(context.Background(), "not a url")
	assert.Error(t, err)
}

func TestTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "abc123", r.URL.Query().Get("v"))
		assert.Equal(t, "en", r.URL.Query().Get("lang"))
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="utf-8"?><transcript>
			<text start="0" dur="2">Hello &amp; welcome</text>
			<text start="2" dur="2">to the   review</text>
		</transcript>`))
	}))
	defer srv.Close()

	text, err := newTestFetcher(srv.URL, 0).Transcribe(context.Background(), "https://www.youtube.com/watch?v=abc123")
	require.NoError(t, err)
	assert.Equal(t, "Hello & welcome to the review", text)
}

func TestTranscribe_NoCaptions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	text, err := newTestFetcher(srv.URL, 0).Transcribe(context.Background(), "https://youtu.be/abc123")
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestTranscribe_NotAVideo(t *testing.T) {
	_, err := newTestFetcher("http://unused", 0).Transcribe(context.Background(), "https://example.com/page")
	assert.Error(t, err)
}

func TestVideoID(t *testing.T) {
	tests := map[string]string{
		"https://www.youtube.com/watch?v=abc123&t=10": "abc123",
		"https://youtu.be/xyz789?si=share":            "xyz789",
		"https://m.youtube.com/shorts/short1":         "short1",
		"https://www.youtube.com/embed/emb1/extra":    "emb1",
		"https://example.com/watch?v=nope":            "",
		"::bad::":                                     "",
	}
	for input, want := range tests {
		assert.Equal(t, want, VideoID(input), input)
	}
}
