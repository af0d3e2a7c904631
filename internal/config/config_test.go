package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 0.80, cfg.Dedup.SimilarityThreshold)
	assert.Equal(t, 3, cfg.Dedup.SearchLimit)
	assert.Equal(t, 3, cfg.Pipeline.MaxAttempts)
	assert.Equal(t, []string{"IN", "US", "AU", "GB"}, cfg.Sources.Trends.Geos)
	assert.Equal(t, "28", cfg.Sources.YouTube.CategoryID)
	assert.Equal(t, 2000, cfg.Fetcher.MaxQuoteChars)
	assert.Equal(t, 1500, cfg.Fetcher.MaxTranscript)
	assert.Equal(t, 20*time.Second, cfg.Fetcher.Timeout)
	assert.Equal(t, "*/30 * * * *", cfg.Scheduler.DiscoveryCron)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "config.yaml")
	yaml := `
database:
  driver: postgres
  dsn: host=db user=app
dedup:
  similarity_threshold: 0.9
taxonomy:
  - name: Hardware
    subcategories: [Phones, Laptops]
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("NEWSROOM_ANTHROPIC_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 0.9, cfg.Dedup.SimilarityThreshold)
	assert.Equal(t, "sk-test", cfg.Anthropic.APIKey)
	require.Len(t, cfg.Taxonomy, 1)
	assert.Equal(t, []string{"Phones", "Laptops"}, cfg.Taxonomy[0].Subcategories)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Database:  DatabaseConfig{Driver: "sqlite"},
			Anthropic: AnthropicConfig{APIKey: "k"},
			Dedup:     DedupConfig{SimilarityThreshold: 0.8},
		}
	}

	assert.NoError(t, base().Validate())

	c := base()
	c.Anthropic.APIKey = ""
	assert.Error(t, c.Validate())

	c = base()
	c.Database.Driver = "mysql"
	assert.Error(t, c.Validate())

	c = base()
	c.Dedup.SimilarityThreshold = 1.5
	assert.Error(t, c.Validate())

	c = base()
	c.Sources.YouTube.Enabled = true
	assert.Error(t, c.Validate())

	c = base()
	c.Embedding.Enabled = true
	assert.Error(t, c.Validate())
}
