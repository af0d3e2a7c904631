package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsroom-engine/internal/config"
	"github.com/newsroom-engine/internal/models"
	"github.com/newsroom-engine/internal/storage"
	"github.com/newsroom-engine/pkg/logger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Database: config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "data", "app.db")},
		Dedup:    config.DedupConfig{SimilarityThreshold: 0.8, SearchLimit: 3},
		Sources: config.SourcesConfig{
			Static: config.StaticConfig{Enabled: true, Items: []config.StaticItem{{Title: "Pinned", URL: "https://example.com/pinned"}}},
		},
		Pipeline: config.PipelineConfig{MaxAttempts: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
		Audit:    config.AuditConfig{BufferSize: 16},
		Metrics:  config.MetricsConfig{Enabled: true, Namespace: "newsroom_test"},
		Taxonomy: []config.CategorySeed{{Name: "Hardware", Subcategories: []string{"GPUs", "Phones"}}},
	}
}

func TestOpen_WiresComponents(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	a, err := Open(ctx, cfg, logger.Nop())
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Discovery)
	assert.NotNil(t, a.Pipeline)
	assert.NotNil(t, a.Metrics)
	assert.Equal(t, []string{"static"}, a.Sources.Names())

	options, err := a.Repo.ListSubcategories(ctx)
	require.NoError(t, err)
	assert.Len(t, options, 2)

	topic, err := a.Pipeline.CreateTopic(ctx, "Hand picked", []string{"https://example.com/story"})
	require.NoError(t, err)
	require.NoError(t, a.Audit.Flush(ctx))

	topicID := topic.ID
	entries, err := a.Repo.ListAudit(ctx, storage.AuditFilter{TopicID: &topicID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditManualCreation, entries[0].Action)

	families, err := a.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestOpen_RedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis = config.RedisConfig{Enabled: true, Addr: mr.Addr(), TTL: time.Hour}

	a, err := Open(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	require.NotNil(t, a.redis)

	_, err = a.Pipeline.CreateTopic(context.Background(), "Cached", []string{"https://example.com/cached"})
	require.NoError(t, err)
	assert.NotEmpty(t, mr.Keys())

	require.NoError(t, a.Close())
}

func TestOpen_UnreachableRedisDegrades(t *testing.T) {
	cfg := testConfig(t)
	cfg.Redis = config.RedisConfig{Enabled: true, Addr: "127.0.0.1:1"}

	a, err := Open(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.redis)
}

func TestOpen_RejectsUnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "oracle"

	_, err := Open(context.Background(), cfg, logger.Nop())
	assert.Error(t, err)
}
