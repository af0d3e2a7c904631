// Package youtube discovers trending technology videos through the YouTube
// Data API most-popular chart.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/newsroom-engine/internal/config"
	"github.com/newsroom-engine/internal/models"
	"github.com/newsroom-engine/internal/source"
	"github.com/newsroom-engine/pkg/logger"
	"github.com/newsroom-engine/pkg/ratelimit"
)

const watchURL = "https://www.youtube.com/watch?v="

// Source implements TrendSource for YouTube most-popular videos
type Source struct {
	service    *youtube.Service
	regions    []string
	categoryID string
	maxResults int64
	limiter    *ratelimit.MultiLimiter
	log        *logger.Logger
}

// New creates a YouTube source. Extra client options are appended after the API
// key, which lets tests point the service at a local endpoint.
func New(ctx context.Context, cfg config.YouTubeConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger, opts ...option.ClientOption) (*Source, error) {
	opts = append([]option.ClientOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create youtube service: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 20
	}

	return &Source{
		service:    service,
		regions:    cfg.Regions,
		categoryID: cfg.CategoryID,
		maxResults: maxResults,
		limiter:    limiter,
		log:        log.WithSource("youtube", "most-popular"),
	}, nil
}

// Name returns the source name
func (s *Source) Name() string {
	return "youtube"
}

// Type returns "youtube"
func (s *Source) Type() string {
	return "youtube"
}

// Fetch lists the most popular videos per region. Failing regions are skipped;
// the call only fails when every region failed.
func (s *Source) Fetch(ctx context.Context) ([]models.TrendItem, error) {
	var items []models.TrendItem
	var errs []error

	for _, region := range s.regions {
		regionItems, err := s.fetchRegion(ctx, region)
		if err != nil {
			s.log.Warn().Err(err).Str("region", region).Msg("YouTube trends fetch failed")
			errs = append(errs, fmt.Errorf("region %s: %w", region, err))
			continue
		}
		items = append(items, regionItems...)
	}

	if len(errs) > 0 && len(errs) == len(s.regions) {
		return nil, errors.Join(errs...)
	}

	s.log.Info().
		Int("count", len(items)).
		Int("regions", len(s.regions)).
		Msg("Fetched YouTube trends")

	return items, nil
}

func (s *Source) fetchRegion(ctx context.Context, region string) ([]models.TrendItem, error) {
	if err := s.limiter.Wait(ctx, ratelimit.LimiterYouTube); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	call := s.service.Videos.List([]string{"snippet"}).
		Chart("mostPopular").
		RegionCode(strings.ToUpper(region)).
		MaxResults(s.maxResults).
		Context(ctx)
	if s.categoryID != "" {
		call = call.VideoCategoryId(s.categoryID)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, err
	}

	items := make([]models.TrendItem, 0, len(resp.Items))
	for _, video := range resp.Items {
		if video.Id == "" || video.Snippet == nil || strings.TrimSpace(video.Snippet.Title) == "" {
			continue
		}

		label := video.Snippet.ChannelTitle
		if label == "" {
			label = "youtube-" + strings.ToLower(region)
		}

		publishedAt := time.Now()
		if t, err := time.Parse(time.RFC3339, video.Snippet.PublishedAt); err == nil {
			publishedAt = t
		}

		items = append(items, models.TrendItem{
			Title:       strings.TrimSpace(video.Snippet.Title),
			URL:         watchURL + video.Id,
			SourceLabel: label,
			Kind:        models.SourceKindYouTube,
			PublishedAt: publishedAt,
		})
	}
	return items, nil
}

// HealthCheck lists a single video in the first region
func (s *Source) HealthCheck(ctx context.Context) error {
	if len(s.regions) == 0 {
		return errors.New("no regions configured")
	}
	_, err := s.service.Videos.List([]string{"id"}).
		Chart("mostPopular").
		RegionCode(s.regions[0]).
		MaxResults(1).
		Context(ctx).
		Do()
	return err
}

// Ensure Source implements source.TrendSource
var _ source.TrendSource = (*Source)(nil)
