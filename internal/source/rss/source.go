package rss

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"github.com/newsroom-engine/internal/config"
	"github.com/newsroom-engine/internal/models"
	"github.com/newsroom-engine/internal/source"
	"github.com/newsroom-engine/pkg/logger"
	"github.com/newsroom-engine/pkg/ratelimit"
)

const defaultMaxAge = 7 * 24 * time.Hour

// Source implements TrendSource for RSS feeds. Google Trends daily feeds are
// plain RSS carrying the linked article in ht:news_item extensions.
type Source struct {
	name     string
	kind     string
	url      string
	label    string
	itemKind models.SourceKind
	maxAge   time.Duration
	parser   *gofeed.Parser
	limiter  *ratelimit.MultiLimiter
	log      *logger.Logger
}

// New creates a new RSS source for a single feed
func New(feed config.RSSFeed, maxAge time.Duration, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Source {
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	return &Source{
		name:     feed.Name,
		kind:     "rss",
		url:      feed.URL,
		label:    feed.Name,
		itemKind: models.ParseSourceKind(feed.Kind),
		maxAge:   maxAge,
		parser:   gofeed.NewParser(),
		limiter:  limiter,
		log:      log.WithSource("rss", feed.Name),
	}
}

// NewMultiple creates multiple RSS sources from config
func NewMultiple(cfg config.RSSConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger) []*Source {
	maxAge, _ := time.ParseDuration(cfg.MaxAge)
	sources := make([]*Source, 0, len(cfg.Feeds))
	for _, feed := range cfg.Feeds {
		sources = append(sources, New(feed, maxAge, limiter, log))
	}
	return sources
}

// NewTrends creates one Google Trends source for a country code
func NewTrends(baseURL, geo string, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Source {
	geo = strings.ToUpper(strings.TrimSpace(geo))
	name := "google-trends-" + strings.ToLower(geo)
	return &Source{
		name:     name,
		kind:     "trends",
		url:      baseURL + "?geo=" + url.QueryEscape(geo),
		label:    name,
		itemKind: models.SourceKindNews,
		parser:   gofeed.NewParser(),
		limiter:  limiter,
		log:      log.WithSource("trends", name),
	}
}

// NewTrendsMultiple creates a trends source per configured geo
func NewTrendsMultiple(cfg config.TrendsConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger) []*Source {
	sources := make([]*Source, 0, len(cfg.Geos))
	for _, geo := range cfg.Geos {
		sources = append(sources, NewTrends(cfg.BaseURL, geo, limiter, log))
	}
	return sources
}

// Name returns the source name
func (s *Source) Name() string {
	return s.name
}

// Type returns "rss" or "trends"
func (s *Source) Type() string {
	return s.kind
}

// Fetch retrieves trend items from the feed
func (s *Source) Fetch(ctx context.Context) ([]models.TrendItem, error) {
	if err := s.limiter.Wait(ctx, ratelimit.LimiterRSS); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	s.log.Debug().Str("url", s.url).Msg("Fetching feed")

	feed, err := s.parser.ParseURLWithContext(s.url, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed %s: %w", s.name, err)
	}

	items := make([]models.TrendItem, 0, len(feed.Items))
	skipped := 0

	for _, entry := range feed.Items {
		publishedAt := time.Now()
		if entry.PublishedParsed != nil {
			publishedAt = *entry.PublishedParsed
			if s.maxAge > 0 && time.Since(publishedAt) > s.maxAge {
				continue
			}
		}

		item := models.TrendItem{
			Title:       cleanText(entry.Title),
			URL:         strings.TrimSpace(entry.Link),
			SourceLabel: s.label,
			Kind:        s.itemKind,
			PublishedAt: publishedAt,
		}
		if news, ok := firstNewsItem(entry); ok {
			if t := cleanText(news["news_item_title"]); t != "" {
				item.Title = t
			}
			if u := strings.TrimSpace(news["news_item_url"]); u != "" {
				item.URL = u
			}
			if src := strings.TrimSpace(news["news_item_source"]); src != "" {
				item.SourceLabel = src
			}
		}

		if item.Title == "" || item.URL == "" {
			skipped++
			continue
		}
		items = append(items, item)
	}

	s.log.Info().
		Int("count", len(items)).
		Int("skipped", skipped).
		Str("feed", s.name).
		Msg("Fetched feed items")

	return items, nil
}

// HealthCheck verifies the feed is accessible
func (s *Source) HealthCheck(ctx context.Context) error {
	_, err := s.parser.ParseURLWithContext(s.url, ctx)
	return err
}

// firstNewsItem flattens the first ht:news_item child elements into a map
func firstNewsItem(entry *gofeed.Item) (map[string]string, bool) {
	ht, ok := entry.Extensions["ht"]
	if !ok {
		return nil, false
	}
	newsItems := ht["news_item"]
	if len(newsItems) == 0 {
		return nil, false
	}
	return childValues(newsItems[0]), true
}

func childValues(e ext.Extension) map[string]string {
	values := make(map[string]string, len(e.Children))
	for name, children := range e.Children {
		if len(children) > 0 {
			values[name] = children[0].Value
		}
	}
	return values
}

// cleanText removes HTML tags and extra whitespace
func cleanText(text string) string {
	text = strings.ReplaceAll(text, "<br>", " ")
	text = strings.ReplaceAll(text, "<br/>", " ")
	text = strings.ReplaceAll(text, "<br />", " ")
	text = strings.ReplaceAll(text, "</p>", " ")
	text = strings.ReplaceAll(text, "<p>", "")

	var result strings.Builder
	inTag := false
	for _, r := range text {
		if r == '<' {
			inTag = true
		} else if r == '>' {
			inTag = false
		} else if !inTag {
			result.WriteRune(r)
		}
	}

	text = result.String()
	text = strings.Join(strings.Fields(text), " ")
	return strings.TrimSpace(text)
}

// Ensure Source implements source.TrendSource
var _ source.TrendSource = (*Source)(nil)
