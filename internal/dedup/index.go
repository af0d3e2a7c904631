package dedup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/newsroom-engine/internal/apperr"
	"github.com/newsroom-engine/internal/models"
	"github.com/newsroom-engine/internal/storage"
	"github.com/newsroom-engine/pkg/logger"
	"github.com/newsroom-engine/pkg/retry"
	"github.com/newsroom-engine/pkg/slug"
)

// Embedder turns text into a vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is a nearest-neighbour store keyed by topic external id
type VectorIndex interface {
	Search(ctx context.Context, vector []float32, limit int, threshold float64) ([]models.VectorHit, error)
	Upsert(ctx context.Context, id string, vector []float32, payload map[string]interface{}) error
}

// Default semantic matching parameters
const (
	DefaultSimilarityThreshold = 0.80
	DefaultSearchLimit         = 3
)

// Method records how a cluster was resolved to a topic
type Method string

const (
	MethodSemantic Method = "semantic"
	MethodSlug     Method = "slug"
	MethodCreated  Method = "created"
)

// Options tunes the index
type Options struct {
	SimilarityThreshold float64
	SearchLimit         int
	Retry               retry.Config
}

// Index is the deduplication index
type Index struct {
	repo     storage.Repository
	cache    HashCache
	embedder Embedder
	vectors  VectorIndex
	opts     Options
	log      *logger.Logger
}

// NewIndex creates an index. embedder and vectors may be nil, in which case
// resolution is slug-only.
func NewIndex(
	repo storage.Repository,
	cache HashCache,
	embedder Embedder,
	vectors VectorIndex,
	opts Options,
	log *logger.Logger,
) *Index {
	if cache == nil {
		cache = NopCache{}
	}
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = DefaultSearchLimit
	}
	return &Index{
		repo:     repo,
		cache:    cache,
		embedder: embedder,
		vectors:  vectors,
		opts:     opts,
		log:      log.WithComponent("dedup"),
	}
}

// Candidate is a trend item that survived the exact stage
type Candidate struct {
	Item    models.TrendItem
	URLNorm string
	URLHash string
}

// ExactResult is the output of the exact stage
type ExactResult struct {
	Fresh   []Candidate
	Skipped int
	Invalid int
	// KnownTopicIDs are the topics that already own a skipped URL
	KnownTopicIDs []uint
}

// FilterExact drops items whose normalized URL is already stored anywhere, plus
// repeats inside the batch and items missing a title or URL.
func (x *Index) FilterExact(ctx context.Context, items []models.TrendItem) (*ExactResult, error) {
	result := &ExactResult{}
	batch := make(map[string]struct{}, len(items))
	candidates := make([]Candidate, 0, len(items))

	for _, item := range items {
		if strings.TrimSpace(item.Title) == "" || strings.TrimSpace(item.URL) == "" {
			result.Invalid++
			continue
		}
		norm := NormalizeURL(item.URL)
		hash := HashURL(item.URL)
		if _, seen := batch[hash]; seen {
			result.Skipped++
			continue
		}
		batch[hash] = struct{}{}
		candidates = append(candidates, Candidate{Item: item, URLNorm: norm, URLHash: hash})
	}

	hashes := make([]string, len(candidates))
	for i, c := range candidates {
		hashes[i] = c.URLHash
	}

	known, err := x.cache.Lookup(ctx, hashes)
	if err != nil {
		x.log.Warn().Err(err).Msg("Hash cache unavailable, using database only")
		known = map[string]uint{}
	}

	var misses []string
	for _, h := range hashes {
		if _, ok := known[h]; !ok {
			misses = append(misses, h)
		}
	}

	if len(misses) > 0 {
		stored, err := x.repo.FindTopicsBySourceHash(ctx, misses)
		if err != nil {
			return nil, fmt.Errorf("lookup source hashes: %w", err)
		}
		for h, topicID := range stored {
			known[h] = topicID
			if err := x.cache.Remember(ctx, h, topicID); err != nil {
				x.log.Debug().Err(err).Msg("Failed to warm hash cache")
			}
		}
	}

	topicSet := make(map[uint]struct{})
	for _, c := range candidates {
		if topicID, dup := known[c.URLHash]; dup {
			result.Skipped++
			topicSet[topicID] = struct{}{}
			continue
		}
		result.Fresh = append(result.Fresh, c)
	}

	for id := range topicSet {
		result.KnownTopicIDs = append(result.KnownTopicIDs, id)
	}
	sort.Slice(result.KnownTopicIDs, func(i, j int) bool { return result.KnownTopicIDs[i] < result.KnownTopicIDs[j] })

	x.log.Debug().
		Int("items", len(items)).
		Int("fresh", len(result.Fresh)).
		Int("skipped", result.Skipped).
		Int("invalid", result.Invalid).
		Msg("Exact dedup complete")

	return result, nil
}

// Resolution is the outcome of the semantic stage for one master title
type Resolution struct {
	Topic    *models.Topic
	Method   Method
	Score    float64
	Degraded bool
}

// Created reports whether Resolve inserted a new topic
func (r *Resolution) Created() bool { return r.Method == MethodCreated }

// Reused reports whether an existing topic was matched
func (r *Resolution) Reused() bool { return r.Method != MethodCreated }

// Resolve maps a cluster master title onto an existing topic or a new one.
// Embedding and index failures degrade to slug matching and never fail the call.
func (x *Index) Resolve(ctx context.Context, masterTitle string) (*Resolution, error) {
	title := strings.TrimSpace(masterTitle)
	if title == "" {
		return nil, apperr.Validation("resolve: blank master title")
	}
	topicSlug := slug.From(title)
	if topicSlug == "" {
		topicSlug = "topic-" + HashURL(title)[:12]
	}

	res := &Resolution{}
	vector := x.embed(ctx, title, res)

	if vector != nil {
		topic, score := x.semanticMatch(ctx, vector, res)
		if topic != nil {
			res.Topic = topic
			res.Method = MethodSemantic
			res.Score = score
		}
	}

	if res.Topic == nil {
		topic, err := x.repo.GetTopicBySlug(ctx, topicSlug)
		switch {
		case err == nil:
			res.Topic = topic
			res.Method = MethodSlug
		case errors.Is(err, storage.ErrNotFound):
		default:
			return nil, apperr.Internal("resolve", fmt.Errorf("lookup topic by slug: %w", err))
		}
	}

	if res.Topic == nil {
		topic, err := x.create(ctx, title, topicSlug)
		if err != nil {
			return nil, err
		}
		res.Topic = topic
		res.Method = MethodCreated
	}

	if vector != nil {
		x.upsert(ctx, res.Topic, vector, res)
	}

	return res, nil
}

func (x *Index) embed(ctx context.Context, title string, res *Resolution) []float32 {
	if x.embedder == nil || x.vectors == nil {
		return nil
	}
	vector, err := retry.DoValue(ctx, x.opts.Retry, func(ctx context.Context) ([]float32, error) {
		return x.embedder.Embed(ctx, title)
	})
	if err != nil || len(vector) == 0 {
		x.log.Warn().Err(err).Str("title", title).Msg("Embedding unavailable, falling back to slug dedup")
		res.Degraded = true
		return nil
	}
	return vector
}

func (x *Index) semanticMatch(ctx context.Context, vector []float32, res *Resolution) (*models.Topic, float64) {
	hits, err := retry.DoValue(ctx, x.opts.Retry, func(ctx context.Context) ([]models.VectorHit, error) {
		return x.vectors.Search(ctx, vector, x.opts.SearchLimit, x.opts.SimilarityThreshold)
	})
	if err != nil {
		x.log.Warn().Err(err).Msg("Similarity search failed, falling back to slug dedup")
		res.Degraded = true
		return nil, 0
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	for _, hit := range hits {
		if hit.Score < x.opts.SimilarityThreshold {
			continue
		}
		if hit.ID != "" {
			topic, err := x.repo.GetTopicByExternalID(ctx, hit.ID)
			if err == nil {
				return topic, hit.Score
			}
			if !errors.Is(err, storage.ErrNotFound) {
				x.log.Warn().Err(err).Str("point_id", hit.ID).Msg("Topic lookup by external id failed")
			}
		}
		if s := hit.PayloadString("slug"); s != "" {
			topic, err := x.repo.GetTopicBySlug(ctx, s)
			if err == nil {
				return topic, hit.Score
			}
		}
		x.log.Debug().Str("point_id", hit.ID).Msg("Stale vector hit, topic no longer exists")
	}
	return nil, 0
}

func (x *Index) create(ctx context.Context, title, topicSlug string) (*models.Topic, error) {
	topic := &models.Topic{
		ExternalID: uuid.NewString(),
		Slug:       topicSlug,
		Title:      title,
		Status:     models.TopicStatusNew,
	}
	if err := x.repo.CreateTopic(ctx, topic); err != nil {
		// A concurrent run may have created the same slug first
		existing, lookupErr := x.repo.GetTopicBySlug(ctx, topicSlug)
		if lookupErr == nil {
			return existing, nil
		}
		return nil, apperr.Internal("resolve", fmt.Errorf("create topic: %w", err))
	}
	return topic, nil
}

func (x *Index) upsert(ctx context.Context, topic *models.Topic, vector []float32, res *Resolution) {
	payload := map[string]interface{}{
		"title":    topic.Title,
		"slug":     topic.Slug,
		"topic_id": topic.ID,
	}
	err := retry.Do(ctx, x.opts.Retry, func(ctx context.Context) error {
		return x.vectors.Upsert(ctx, topic.ExternalID, vector, payload)
	})
	if err != nil {
		x.log.Warn().Err(err).Uint("topic_id", topic.ID).Msg("Failed to index topic vector")
		res.Degraded = true
	}
}

// Remember pushes freshly stored source hashes into the cache
func (x *Index) Remember(ctx context.Context, sources []*models.Source) {
	for _, s := range sources {
		if err := x.cache.Remember(ctx, s.URLHash, s.TopicID); err != nil {
			x.log.Debug().Err(err).Msg("Failed to cache source hash")
			return
		}
	}
}

// Forget evicts hashes, used when topics are deleted
func (x *Index) Forget(ctx context.Context, hashes []string) {
	if err := x.cache.Forget(ctx, hashes...); err != nil {
		x.log.Debug().Err(err).Msg("Failed to evict source hashes")
	}
}
