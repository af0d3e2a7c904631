package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Qdrant    QdrantConfig    `mapstructure:"qdrant"`
	Dedup     DedupConfig     `mapstructure:"dedup"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Taxonomy  []CategorySeed  `mapstructure:"taxonomy"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite or postgres
	DSN    string `mapstructure:"dsn"`    // Connection string
}

// RedisConfig configures the exact-duplicate hash cache
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// AnthropicConfig holds Claude API settings
type AnthropicConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
	BaseURL     string  `mapstructure:"base_url"`
}

// EmbeddingConfig points at an OpenAI-compatible embeddings endpoint
type EmbeddingConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Endpoint   string `mapstructure:"endpoint"`
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// QdrantConfig holds vector index settings
type QdrantConfig struct {
	URL        string `mapstructure:"url"`
	APIKey     string `mapstructure:"api_key"`
	Collection string `mapstructure:"collection"`
}

// DedupConfig holds the semantic matching knobs
type DedupConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	SearchLimit         int     `mapstructure:"search_limit"`
}

// SourcesConfig holds all trend source configurations
type SourcesConfig struct {
	Trends  TrendsConfig  `mapstructure:"trends"`
	RSS     RSSConfig     `mapstructure:"rss"`
	YouTube YouTubeConfig `mapstructure:"youtube"`
	Static  StaticConfig  `mapstructure:"static"`
}

// TrendsConfig configures the Google Trends daily RSS feeds, one per geo
type TrendsConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Geos    []string `mapstructure:"geos"`
	BaseURL string   `mapstructure:"base_url"`
}

// RSSConfig holds plain RSS feed settings
type RSSConfig struct {
	Enabled bool      `mapstructure:"enabled"`
	Feeds   []RSSFeed `mapstructure:"feeds"`
	MaxAge  string    `mapstructure:"max_age"`
}

// RSSFeed represents a single RSS feed
type RSSFeed struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
	Kind string `mapstructure:"kind"` // NEWS, BLOG, SPEC
}

// YouTubeConfig holds YouTube Data API settings
type YouTubeConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	APIKey     string   `mapstructure:"api_key"`
	Regions    []string `mapstructure:"regions"`
	CategoryID string   `mapstructure:"category_id"`
	MaxResults int64    `mapstructure:"max_results"`
}

// StaticConfig lists hand-picked items injected into every discovery run
type StaticConfig struct {
	Enabled bool         `mapstructure:"enabled"`
	Items   []StaticItem `mapstructure:"items"`
}

// StaticItem is one configured trend item
type StaticItem struct {
	Title string `mapstructure:"title"`
	URL   string `mapstructure:"url"`
	Kind  string `mapstructure:"kind"`
}

// FetcherConfig configures content scraping
type FetcherConfig struct {
	UserAgent        string        `mapstructure:"user_agent"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxQuoteChars    int           `mapstructure:"max_quote_chars"`
	MaxTranscript    int           `mapstructure:"max_transcript_chars"`
	TranscriptLang   string        `mapstructure:"transcript_lang"`
	MaxBodyBytes     int64         `mapstructure:"max_body_bytes"`
	TimedTextBaseURL string        `mapstructure:"timedtext_base_url"`
}

// PipelineConfig controls stage execution
type PipelineConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	CallTimeout    time.Duration `mapstructure:"call_timeout"`
	AutoCategorize bool          `mapstructure:"auto_categorize"`
	DefaultType    string        `mapstructure:"default_content_type"`
}

// AuditConfig configures the audit log writer
type AuditConfig struct {
	BufferSize int          `mapstructure:"buffer_size"`
	Sheets     SheetsConfig `mapstructure:"sheets"`
}

// SheetsConfig holds the optional Google Sheets audit mirror
type SheetsConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	SpreadsheetID      string `mapstructure:"spreadsheet_id"`
	SheetName          string `mapstructure:"sheet_name"`
	CredentialsFile    string `mapstructure:"credentials_file"`
	ServiceAccountJSON string `mapstructure:"service_account_json"`
}

// SchedulerConfig holds scheduler settings
type SchedulerConfig struct {
	DiscoveryCron string `mapstructure:"discovery_cron"`
	ResumeCron    string `mapstructure:"resume_cron"`
	Port          string `mapstructure:"port"`
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	AnthropicRequestsPerMinute int `mapstructure:"anthropic_requests_per_minute"`
	EmbeddingRequestsPerMinute int `mapstructure:"embedding_requests_per_minute"`
	FetcherRequestsPerMinute   int `mapstructure:"fetcher_requests_per_minute"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json or console
	Output string `mapstructure:"output"` // stdout or file path
}

// MetricsConfig toggles prometheus collectors
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// CategorySeed seeds the taxonomy on migrate
type CategorySeed struct {
	Name          string   `mapstructure:"name"`
	Subcategories []string `mapstructure:"subcategories"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Load .env file if present (ignore errors if not found)
	_ = godotenv.Load()
	_ = godotenv.Load(".env.local")

	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")

		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".newsroom"))
		}
	}

	v.SetEnvPrefix("NEWSROOM")
	v.AutomaticEnv()

	// Explicit bindings for nested keys (Viper doesn't auto-bind underscored nested keys)
	v.BindEnv("anthropic.api_key", "NEWSROOM_ANTHROPIC_API_KEY")
	v.BindEnv("embedding.api_key", "NEWSROOM_EMBEDDING_API_KEY")
	v.BindEnv("embedding.endpoint", "NEWSROOM_EMBEDDING_ENDPOINT")
	v.BindEnv("qdrant.url", "NEWSROOM_QDRANT_URL")
	v.BindEnv("qdrant.api_key", "NEWSROOM_QDRANT_API_KEY")
	v.BindEnv("database.driver", "NEWSROOM_DATABASE_DRIVER")
	v.BindEnv("database.dsn", "NEWSROOM_DATABASE_DSN")
	v.BindEnv("redis.enabled", "NEWSROOM_REDIS_ENABLED")
	v.BindEnv("redis.addr", "NEWSROOM_REDIS_ADDR")
	v.BindEnv("redis.password", "NEWSROOM_REDIS_PASSWORD")
	v.BindEnv("sources.youtube.api_key", "NEWSROOM_YOUTUBE_API_KEY")
	v.BindEnv("audit.sheets.enabled", "NEWSROOM_AUDIT_SHEETS_ENABLED")
	v.BindEnv("audit.sheets.spreadsheet_id", "NEWSROOM_AUDIT_SHEETS_SPREADSHEET_ID")
	v.BindEnv("audit.sheets.service_account_json", "NEWSROOM_AUDIT_SHEETS_SERVICE_ACCOUNT_JSON")
	v.BindEnv("scheduler.port", "PORT")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/newsroom.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.ttl", 30*24*time.Hour)

	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.temperature", 0.4)

	v.SetDefault("embedding.enabled", true)
	v.SetDefault("embedding.endpoint", "https://api.openai.com/v1/embeddings")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimensions", 1536)

	v.SetDefault("qdrant.url", "http://localhost:6333")
	v.SetDefault("qdrant.collection", "topics")

	// One canonical cosine threshold for every semantic lookup
	v.SetDefault("dedup.similarity_threshold", 0.80)
	v.SetDefault("dedup.search_limit", 3)

	v.SetDefault("sources.trends.enabled", true)
	v.SetDefault("sources.trends.geos", []string{"IN", "US", "AU", "GB"})
	v.SetDefault("sources.trends.base_url", "https://trends.google.com/trending/rss")
	v.SetDefault("sources.rss.enabled", false)
	v.SetDefault("sources.rss.max_age", "168h")
	v.SetDefault("sources.youtube.enabled", false)
	v.SetDefault("sources.youtube.regions", []string{"US"})
	v.SetDefault("sources.youtube.category_id", "28") // Science & Technology
	v.SetDefault("sources.youtube.max_results", 20)
	v.SetDefault("sources.static.enabled", false)

	v.SetDefault("fetcher.user_agent", "Mozilla/5.0 (compatible; NewsroomBot/1.0)")
	v.SetDefault("fetcher.timeout", 20*time.Second)
	v.SetDefault("fetcher.max_quote_chars", 2000)
	v.SetDefault("fetcher.max_transcript_chars", 1500)
	v.SetDefault("fetcher.transcript_lang", "en")
	v.SetDefault("fetcher.max_body_bytes", 5<<20)
	v.SetDefault("fetcher.timedtext_base_url", "https://www.youtube.com/api/timedtext")

	v.SetDefault("pipeline.max_attempts", 3)
	v.SetDefault("pipeline.initial_backoff", 500*time.Millisecond)
	v.SetDefault("pipeline.max_backoff", 8*time.Second)
	v.SetDefault("pipeline.call_timeout", 90*time.Second)
	v.SetDefault("pipeline.auto_categorize", true)
	v.SetDefault("pipeline.default_content_type", "NEWS")

	v.SetDefault("audit.buffer_size", 256)
	v.SetDefault("audit.sheets.enabled", false)
	v.SetDefault("audit.sheets.sheet_name", "Audit")

	v.SetDefault("scheduler.discovery_cron", "*/30 * * * *")
	v.SetDefault("scheduler.resume_cron", "*/15 * * * *")
	v.SetDefault("scheduler.port", "10000")

	v.SetDefault("rate_limit.anthropic_requests_per_minute", 50)
	v.SetDefault("rate_limit.embedding_requests_per_minute", 300)
	v.SetDefault("rate_limit.fetcher_requests_per_minute", 120)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "newsroom")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Anthropic.APIKey == "" {
		return fmt.Errorf("anthropic.api_key is required")
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Embedding.Enabled && c.Embedding.Endpoint == "" {
		return fmt.Errorf("embedding.endpoint is required when embeddings are enabled")
	}
	if c.Dedup.SimilarityThreshold <= 0 || c.Dedup.SimilarityThreshold > 1 {
		return fmt.Errorf("dedup.similarity_threshold must be in (0, 1], got %v", c.Dedup.SimilarityThreshold)
	}
	if c.Sources.YouTube.Enabled && c.Sources.YouTube.APIKey == "" {
		return fmt.Errorf("sources.youtube.api_key is required when youtube is enabled")
	}
	if c.Audit.Sheets.Enabled && c.Audit.Sheets.SpreadsheetID == "" {
		return fmt.Errorf("audit.sheets.spreadsheet_id is required when the sheets mirror is enabled")
	}
	return nil
}
