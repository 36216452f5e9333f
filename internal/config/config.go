// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/clipforge/clipforge-api/internal/overlay"
)

// Static errors for configuration validation.
var (
	// ErrInvalidPort is returned when PORT is outside the valid range.
	ErrInvalidPort = errors.New("config: PORT must be between 1 and 65535")
	// ErrInvalidSegmentSeconds is returned when DEFAULT_SEGMENT_SECONDS is not positive.
	ErrInvalidSegmentSeconds = errors.New("config: DEFAULT_SEGMENT_SECONDS must be positive")
	// ErrInvalidWorkerConcurrency is returned when WORKER_CONCURRENCY is not positive.
	ErrInvalidWorkerConcurrency = errors.New("config: WORKER_CONCURRENCY must be positive")
)

// Config holds all configuration for both the API and worker roles.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"

	// S3 settings. Empty bucket selects the in-memory blob store.
	S3Bucket           string        `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string        `env:"S3_REGION, default=us-east-1" json:"s3_region"`
	S3Endpoint         string        `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"` // Optional: S3-compatible endpoints
	S3PathStyle        bool          `env:"S3_PATH_STYLE" json:"s3_path_style"`
	AWSAccessKeyID     string        `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string        `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON
	PresignTTL         time.Duration `env:"PRESIGN_TTL, default=1h" json:"presign_ttl"`

	// Redis settings for the job queue, progress bus and upload sessions.
	// Empty address selects the in-process implementations.
	RedisAddr     string `env:"REDIS_ADDR" json:"redis_addr,omitempty"`
	RedisPassword string `env:"REDIS_PASSWORD" json:"-"` // Masked in JSON
	RedisDB       int    `env:"REDIS_DB, default=0" json:"redis_db"`

	// Postgres job store. Empty URL selects the in-memory repository.
	DatabaseURL string `env:"DATABASE_URL" json:"-"` // Masked in JSON

	// Worker settings
	ScratchDir        string        `env:"SCRATCH_DIR, default=/tmp/clipforge" json:"scratch_dir"`
	WorkerConcurrency int           `env:"WORKER_CONCURRENCY, default=2" json:"worker_concurrency"`
	QueuePollInterval time.Duration `env:"QUEUE_POLL_INTERVAL, default=5s" json:"queue_poll_interval"`
	MaxAttempts       int           `env:"MAX_ATTEMPTS, default=3" json:"max_attempts"`
	RetryBaseDelay    time.Duration `env:"RETRY_BASE_DELAY, default=60s" json:"retry_base_delay"`
	LowResourceMode   bool          `env:"LOW_RESOURCE_MODE" json:"low_resource_mode"`

	// Media tool paths
	FFmpegPath  string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath string `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`

	// Text variation generator (OpenAI-compatible chat completions).
	// Empty API key disables generation; base_vary falls back to the base text.
	OpenAIAPIKey  string `env:"OPENAI_API_KEY" json:"-"` // Masked in JSON
	OpenAIBaseURL string `env:"OPENAI_BASE_URL, default=https://api.openai.com/v1" json:"openai_base_url"`
	OpenAIModel   string `env:"OPENAI_MODEL, default=gpt-4o-mini" json:"openai_model"`

	// Remote render service for jobs flagged for off-box processing.
	RenderFarmAPIKey       string        `env:"RENDERFARM_API_KEY" json:"-"` // Masked in JSON
	RenderFarmEndpoint     string        `env:"RENDERFARM_ENDPOINT" json:"renderfarm_endpoint,omitempty"`
	RenderFarmPollInterval time.Duration `env:"RENDERFARM_POLL_INTERVAL, default=5s" json:"renderfarm_poll_interval"`

	// Cutting defaults
	DefaultSegmentSeconds int `env:"DEFAULT_SEGMENT_SECONDS, default=30" json:"default_segment_seconds"`

	// Overlay layout tunables. Historical renditions of the wrapping math
	// disagreed on these constants, so they live in configuration.
	OverlayFontDivisor     int     `env:"OVERLAY_FONT_DIVISOR, default=15" json:"overlay_font_divisor"`
	OverlayFontMin         int     `env:"OVERLAY_FONT_MIN, default=20" json:"overlay_font_min"`
	OverlayFontMax         int     `env:"OVERLAY_FONT_MAX, default=72" json:"overlay_font_max"`
	OverlayCharWidthRatio  float64 `env:"OVERLAY_CHAR_WIDTH_RATIO, default=0.6" json:"overlay_char_width_ratio"`
	OverlayLineHeightRatio float64 `env:"OVERLAY_LINE_HEIGHT_RATIO, default=1.2" json:"overlay_line_height_ratio"`
	OverlaySafeWidthRatio  float64 `env:"OVERLAY_SAFE_WIDTH_RATIO, default=0.9" json:"overlay_safe_width_ratio"`
	OverlaySafeHeightRatio float64 `env:"OVERLAY_SAFE_HEIGHT_RATIO, default=0.4" json:"overlay_safe_height_ratio"`
	OverlayMarginRatio     float64 `env:"OVERLAY_MARGIN_RATIO, default=0.05" json:"overlay_margin_ratio"`
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != ""
}

// RedisEnabled returns true if a Redis address is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// PostgresEnabled returns true if a database URL is configured.
func (c *Config) PostgresEnabled() bool {
	return c.DatabaseURL != ""
}

// SegmentTimeout returns the per-segment render timeout for this deployment.
func (c *Config) SegmentTimeout() time.Duration {
	if c.LowResourceMode {
		return 3 * time.Minute
	}
	return 5 * time.Minute
}

// OverlayStyle returns the overlay layout tunables as an overlay.Style.
func (c *Config) OverlayStyle() overlay.Style {
	return overlay.Style{
		FontDivisor:     c.OverlayFontDivisor,
		FontMin:         c.OverlayFontMin,
		FontMax:         c.OverlayFontMax,
		CharWidthRatio:  c.OverlayCharWidthRatio,
		LineHeightRatio: c.OverlayLineHeightRatio,
		SafeWidthRatio:  c.OverlaySafeWidthRatio,
		SafeHeightRatio: c.OverlaySafeHeightRatio,
		MarginRatio:     c.OverlayMarginRatio,
	}
}

// Load reads configuration from environment variables using go-envconfig.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the loaded configuration is usable.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidPort
	}
	if c.DefaultSegmentSeconds <= 0 {
		return ErrInvalidSegmentSeconds
	}
	if c.WorkerConcurrency <= 0 {
		return ErrInvalidWorkerConcurrency
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, S3Bucket: %s, S3Region: %s, RedisAddr: %s, PostgresEnabled: %t, ScratchDir: %s, WorkerConcurrency: %d, LowResourceMode: %t, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.S3Bucket,
		c.S3Region,
		c.RedisAddr,
		c.PostgresEnabled(),
		c.ScratchDir,
		c.WorkerConcurrency,
		c.LowResourceMode,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
