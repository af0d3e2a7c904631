// Package fetcher retrieves source content for citations: readable text from
// web pages and caption transcripts from YouTube videos.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/newsroom-engine/internal/config"
	"github.com/newsroom-engine/internal/models"
	"github.com/newsroom-engine/pkg/logger"
	"github.com/newsroom-engine/pkg/ratelimit"
	"github.com/newsroom-engine/pkg/retry"
)

// minReadableChars is the shortest readability output trusted over the selector fallback
const minReadableChars = 200

// nonContentSelectors lists elements stripped before selector-based extraction
const nonContentSelectors = "script, style, noscript, nav, header, footer, aside, form"

// Fetcher scrapes pages and transcripts over HTTP
type Fetcher struct {
	httpClient    *http.Client
	userAgent     string
	maxQuote      int
	maxTranscript int
	maxBody       int64
	lang          string
	timedTextURL  string
	rateLimiter   *ratelimit.MultiLimiter
	log           *logger.Logger
}

// New creates a new fetcher
func New(cfg config.FetcherConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 5 << 20
	}
	lang := cfg.TranscriptLang
	if lang == "" {
		lang = "en"
	}

	return &Fetcher{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		userAgent:     cfg.UserAgent,
		maxQuote:      cfg.MaxQuoteChars,
		maxTranscript: cfg.MaxTranscript,
		maxBody:       maxBody,
		lang:          lang,
		timedTextURL:  cfg.TimedTextBaseURL,
		rateLimiter:   limiter,
		log:           log.WithComponent("fetcher"),
	}
}

// get downloads a URL, capping the body size. 4xx answers are permanent failures.
func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := f.rateLimiter.Wait(ctx, ratelimit.LimiterFetcher); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("fetch %s: %s", rawURL, resp.Status)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, retry.Permanent(err)
		}
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// Scrape extracts the title and readable text of a web page
func (f *Fetcher) Scrape(ctx context.Context, pageURL string) (*models.ScrapedPage, error) {
	parsedURL, err := url.Parse(pageURL)
	if err != nil || parsedURL.Host == "" {
		return nil, retry.Permanent(fmt.Errorf("invalid url %q", pageURL))
	}

	body, err := f.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	page := &models.ScrapedPage{}

	article, rerr := readability.FromReader(bytes.NewReader(body), parsedURL)
	if rerr == nil {
		page.Title = strings.TrimSpace(article.Title)
		page.Text = collapseSpace(article.TextContent)
	}

	if len(page.Text) < minReadableChars {
		title, text, err := extractWithSelectors(body)
		if err != nil && rerr != nil {
			return nil, fmt.Errorf("extract %s: %w", pageURL, errors.Join(rerr, err))
		}
		if page.Title == "" {
			page.Title = title
		}
		if len(text) > len(page.Text) {
			page.Text = text
		}
	}

	page.Text = truncate(page.Text, f.maxQuote)

	f.log.Debug().
		Str("url", pageURL).
		Int("text_len", len(page.Text)).
		Msg("Scraped page")

	return page, nil
}

// extractWithSelectors prefers <article> and falls back to <body>
func extractWithSelectors(body []byte) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("parse html: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		if og, ok := doc.Find("meta[property='og:title']").Attr("content"); ok {
			title = strings.TrimSpace(og)
		}
	}

	for _, selector := range []string{"article", "body"} {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		sel.Find(nonContentSelectors).Remove()
		if text := collapseSpace(sel.Text()); text != "" {
			return title, text, nil
		}
	}
	return title, "", nil
}

// Transcribe returns the caption text of a YouTube video, or "" when the
// video has no captions in the configured language.
func (f *Fetcher) Transcribe(ctx context.Context, videoURL string) (string, error) {
	id := VideoID(videoURL)
	if id == "" {
		return "", retry.Permanent(fmt.Errorf("not a youtube video url: %q", videoURL))
	}
	if f.timedTextURL == "" {
		return "", nil
	}

	q := url.Values{}
	q.Set("v", id)
	q.Set("lang", f.lang)
	body, err := f.get(ctx, f.timedTextURL+"?"+q.Encode())
	if err != nil {
		return "", err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse transcript: %w", err)
	}

	var lines []string
	doc.Find("text").Each(func(_ int, s *goquery.Selection) {
		if line := collapseSpace(s.Text()); line != "" {
			lines = append(lines, line)
		}
	})

	transcript := truncate(strings.Join(lines, " "), f.maxTranscript)
	f.log.Debug().Str("video_id", id).Int("lines", len(lines)).Msg("Fetched transcript")
	return transcript, nil
}

// VideoID extracts the video id from watch, short, embed and youtu.be URLs
func VideoID(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	path := strings.Trim(u.Path, "/")

	switch host {
	case "youtu.be":
		return firstSegment(path)
	case "youtube.com", "music.youtube.com":
		if v := u.Query().Get("v"); v != "" {
			return v
		}
		for _, prefix := range []string{"shorts/", "embed/", "live/"} {
			if strings.HasPrefix(path, prefix) {
				return firstSegment(strings.TrimPrefix(path, prefix))
			}
		}
	}
	return ""
}

func firstSegment(path string) string {
	if i := strings.Index(path, "/"); i >= 0 {
		return path[:i]
	}
	return path
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate cuts s to at most max runes; max <= 0 disables the limit
func truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
