package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	// Auth
	APIKey string

	// Chunk store
	StoreBackend string // memory, sqlite or postgres
	SQLitePath   string
	DatabaseURL  string

	// Embeddings
	EmbedProvider  string // hash, openai or gemini
	EmbedModel     string
	EmbedAPIKey    string
	EmbedBaseURL   string
	EmbedDim       int
	EmbedCacheSize int
	EmbedCacheTTL  time.Duration

	// Chunking
	ChunkTargetSize int
	ChunkOverlap    int
	ChunkMinSize    int
	ChunkStrategy   string // paragraph or contextual

	// Claude contextual prefixes
	AnthropicAPIKey string
	AnthropicModel  string

	// Lazy loading
	LoadConcurrency     int
	DownloadMaxAttempts int
	DownloadRetryDelay  time.Duration
	DownloadTimeout     time.Duration

	// Download cache
	CacheDir           string
	CacheMaxAge        time.Duration
	CachePruneSchedule string

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Upload limits
	MaxUploadBytes int64

	// Job state
	JobTTL time.Duration

	// PDF
	PDFFallbackPdftotext bool
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; variables already set win.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Port: envOr("PORT", "8090"),

		APIKey: os.Getenv("PAPERIDX_API_KEY"),

		StoreBackend: envOr("STORE_BACKEND", "sqlite"),
		SQLitePath:   envOr("SQLITE_PATH", "paperidx.db"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),

		EmbedProvider:  envOr("EMBED_PROVIDER", "hash"),
		EmbedModel:     os.Getenv("EMBED_MODEL"),
		EmbedAPIKey:    os.Getenv("EMBED_API_KEY"),
		EmbedBaseURL:   envOr("EMBED_BASE_URL", "https://api.openai.com"),
		EmbedDim:       envInt("EMBED_DIM", 768),
		EmbedCacheSize: envInt("EMBED_CACHE_SIZE", 4096),
		EmbedCacheTTL:  envDuration("EMBED_CACHE_TTL", time.Hour),

		ChunkTargetSize: envInt("CHUNK_TARGET_SIZE", 800),
		ChunkOverlap:    envInt("CHUNK_OVERLAP", 100),
		ChunkMinSize:    envInt("CHUNK_MIN_SIZE", 100),
		ChunkStrategy:   envOr("CHUNK_STRATEGY", "paragraph"),

		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:  envOr("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),

		LoadConcurrency:     envInt("LOAD_CONCURRENCY", 4),
		DownloadMaxAttempts: envInt("DOWNLOAD_MAX_ATTEMPTS", 3),
		DownloadRetryDelay:  envDuration("DOWNLOAD_RETRY_DELAY", 2*time.Second),
		DownloadTimeout:     envDuration("DOWNLOAD_TIMEOUT", 120*time.Second),

		CacheDir:           os.Getenv("CACHE_DIR"),
		CacheMaxAge:        envDuration("CACHE_MAX_AGE", 168*time.Hour),
		CachePruneSchedule: envOr("CACHE_PRUNE_SCHEDULE", "@every 6h"),

		WorkerCount:  envInt("WORKER_COUNT", 2),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 100),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 10485760), // 10MB

		JobTTL: envDuration("JOB_TTL", 1*time.Hour),

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),
	}

	if cfg.EmbedDim <= 0 {
		cfg.EmbedDim = 768
	}
	if cfg.EmbedCacheSize < 0 {
		cfg.EmbedCacheSize = 4096
	}
	if cfg.EmbedCacheTTL <= 0 {
		cfg.EmbedCacheTTL = time.Hour
	}
	if cfg.ChunkTargetSize <= 0 {
		cfg.ChunkTargetSize = 800
	}
	// Zero disables overlap and tail merging.
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 100
	}
	if cfg.ChunkMinSize < 0 {
		cfg.ChunkMinSize = 100
	}
	if cfg.LoadConcurrency <= 0 {
		cfg.LoadConcurrency = 4
	}
	if cfg.DownloadMaxAttempts <= 0 {
		cfg.DownloadMaxAttempts = 3
	}
	if cfg.DownloadRetryDelay <= 0 {
		cfg.DownloadRetryDelay = 2 * time.Second
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 120 * time.Second
	}
	if cfg.CacheMaxAge <= 0 {
		cfg.CacheMaxAge = 168 * time.Hour
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10485760
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}

	return cfg
}

func (c Config) Validate() error {
	switch c.StoreBackend {
	case "memory", "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.EmbedProvider {
	case "hash":
	case "openai", "gemini":
		if c.EmbedAPIKey == "" {
			return fmt.Errorf("EMBED_API_KEY is required for the %s embedder", c.EmbedProvider)
		}
	default:
		return fmt.Errorf("unknown EMBED_PROVIDER %q", c.EmbedProvider)
	}

	switch c.ChunkStrategy {
	case "paragraph", "contextual":
	default:
		return fmt.Errorf("unknown CHUNK_STRATEGY %q", c.ChunkStrategy)
	}
	return nil
}

// ContextualEnabled reports whether chunks get LLM-written context prefixes.
func (c Config) ContextualEnabled() bool {
	return c.ChunkStrategy == "contextual" && c.AnthropicAPIKey != ""
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
