package static

import (
	"context"
	"strings"
	"time"

	"github.com/newsroom-engine/internal/config"
	"github.com/newsroom-engine/internal/models"
	"github.com/newsroom-engine/internal/source"
	"github.com/newsroom-engine/pkg/logger"
)

// Source implements TrendSource for hand-picked items from config
type Source struct {
	items []config.StaticItem
	log   *logger.Logger
}

// New creates a new static source
func New(cfg config.StaticConfig, log *logger.Logger) *Source {
	return &Source{
		items: cfg.Items,
		log:   log.WithSource("static", "configured"),
	}
}

// Name returns the source name
func (s *Source) Name() string {
	return "static"
}

// Type returns "static"
func (s *Source) Type() string {
	return "static"
}

// Fetch returns the configured items
func (s *Source) Fetch(ctx context.Context) ([]models.TrendItem, error) {
	now := time.Now()
	items := make([]models.TrendItem, 0, len(s.items))

	for _, it := range s.items {
		title := strings.TrimSpace(it.Title)
		url := strings.TrimSpace(it.URL)
		if title == "" || url == "" {
			s.log.Warn().Str("title", it.Title).Str("url", it.URL).Msg("Skipping incomplete static item")
			continue
		}
		items = append(items, models.TrendItem{
			Title:       title,
			URL:         url,
			SourceLabel: "static",
			Kind:        models.ParseSourceKind(it.Kind),
			PublishedAt: now,
		})
	}

	s.log.Info().
		Int("count", len(items)).
		Msg("Returned static items")

	return items, nil
}

// HealthCheck always succeeds for the static source
func (s *Source) HealthCheck(ctx context.Context) error {
	return nil
}

// Ensure Source implements source.TrendSource
var _ source.TrendSource = (*Source)(nil)
