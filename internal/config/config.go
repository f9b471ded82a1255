package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Config is the top-level configuration structure.
type Config struct {
	Server    ServerConfig     `json:"server"`
	Pipeline  PipelineConfig   `json:"pipeline"`
	Capture   CaptureConfig    `json:"capture"`
	Providers []ProviderConfig `json:"providers"`
	Routing   RoutingConfig    `json:"routing"`
	Search    SearchConfig     `json:"search"`
	Gateway   GatewayConfig    `json:"gateway"`
	Database  DatabaseConfig   `json:"database"`
	Embedding EmbeddingConfig  `json:"embedding"`
	Recall    RecallConfig     `json:"recall"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

// PipelineConfig holds the capture-classify-suggest parameters. Durations
// are milliseconds.
type PipelineConfig struct {
	FrameBatchSize       int    `json:"frame_batch_size"`
	FrameIntervalMS      int64  `json:"frame_interval_ms"`
	IdleThresholdMS      int64  `json:"idle_threshold_ms"`
	SuggestionCooldownMS int64  `json:"suggestion_cooldown_ms"`
	DismissSuppressionMS int64  `json:"dismiss_suppression_ms"`
	RequestTimeoutMS     int64  `json:"request_timeout_ms"`
	SnapshotDir          string `json:"snapshot_dir,omitempty"`
	Strict               bool   `json:"strict,omitempty"`
}

func (p PipelineConfig) FrameInterval() time.Duration { return ms(p.FrameIntervalMS) }
func (p PipelineConfig) IdleThreshold() time.Duration { return ms(p.IdleThresholdMS) }
func (p PipelineConfig) SuggestionCooldown() time.Duration {
	return ms(p.SuggestionCooldownMS)
}
func (p PipelineConfig) DismissSuppression() time.Duration {
	return ms(p.DismissSuppressionMS)
}
func (p PipelineConfig) RequestTimeout() time.Duration { return ms(p.RequestTimeoutMS) }

func ms(v int64) time.Duration { return time.Duration(v) * time.Millisecond }

// CaptureConfig selects the frame source: "dir" replays images from Dir,
// "command" runs Command and reads an image from stdout.
type CaptureConfig struct {
	Source    string `json:"source"`
	Dir       string `json:"dir,omitempty"`
	Command   string `json:"command,omitempty"`
	TimeoutMS int64  `json:"timeout_ms,omitempty"`
}

type ProviderConfig struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Name       string            `json:"name"`
	Endpoint   string            `json:"endpoint"`
	APIKey     string            `json:"api_key"`
	Models     map[string]string `json:"models,omitempty"` // purpose -> model
	Extra      map[string]string `json:"extra,omitempty"`
	TimeoutSec int               `json:"timeout_sec,omitempty"`
}

// RoutingConfig binds purposes (classify, analyze, describe) to provider IDs.
type RoutingConfig struct {
	Default   string              `json:"default,omitempty"`
	Bindings  map[string]string   `json:"bindings,omitempty"`
	Fallbacks map[string][]string `json:"fallbacks,omitempty"`
}

type SearchConfig struct {
	Enabled    bool    `json:"enabled"`
	Endpoint   string  `json:"endpoint,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	CacheTTLMS int64   `json:"cache_ttl_ms,omitempty"`
}

type GatewayConfig struct {
	Slack   SlackGatewayConfig   `json:"slack"`
	Discord DiscordGatewayConfig `json:"discord"`
	Redis   RedisGatewayConfig   `json:"redis"`
}

type SlackGatewayConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	Channel  string `json:"channel"`
}

type DiscordGatewayConfig struct {
	Enabled   bool   `json:"enabled"`
	BotToken  string `json:"bot_token"`
	ChannelID string `json:"channel_id"`
}

// RedisGatewayConfig publishes suggestions to a stream and reads control
// signals from another. The connection comes from Database.Redis.
type RedisGatewayConfig struct {
	Enabled bool `json:"enabled"`
}

// DatabaseConfig selects the context store ("memory", "sqlite" or
// "postgres") and the optional Redis and Qdrant connections.
type DatabaseConfig struct {
	Driver   string         `json:"driver"`
	SQLite   SQLiteConfig   `json:"sqlite"`
	Postgres PostgresConfig `json:"postgres"`
	Redis    RedisConfig    `json:"redis"`
	Qdrant   QdrantConfig   `json:"qdrant"`
}

type SQLiteConfig struct {
	Path string `json:"path"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

type QdrantConfig struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Collection string `json:"collection,omitempty"`
}

type EmbeddingConfig struct {
	Provider  string `json:"provider"`
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
}

type RecallConfig struct {
	Enabled  bool    `json:"enabled"`
	TopK     int     `json:"top_k,omitempty"`
	MinScore float32 `json:"min_score,omitempty"`
}

// Pipeline defaults.
const (
	DefaultPort                 = 7777
	DefaultFrameBatchSize       = 15
	DefaultFrameIntervalMS      = 1000
	DefaultIdleThresholdMS      = 180_000
	DefaultSuggestionCooldownMS = 60_000
	DefaultDismissSuppressionMS = 300_000
	DefaultRequestTimeoutMS     = 45_000
)

// Default returns a configuration that runs with the in-memory store and the
// default routing: classification and descriptions on OpenRouter, analysis on
// Anthropic, each falling back to the other.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: DefaultPort, LogLevel: "info"},
		Pipeline: PipelineConfig{
			FrameBatchSize:       DefaultFrameBatchSize,
			FrameIntervalMS:      DefaultFrameIntervalMS,
			IdleThresholdMS:      DefaultIdleThresholdMS,
			SuggestionCooldownMS: DefaultSuggestionCooldownMS,
			DismissSuppressionMS: DefaultDismissSuppressionMS,
			RequestTimeoutMS:     DefaultRequestTimeoutMS,
		},
		Routing: RoutingConfig{
			Default: "openrouter",
			Bindings: map[string]string{
				"classify": "openrouter",
				"analyze":  "anthropic",
				"describe": "openrouter",
			},
			Fallbacks: map[string][]string{
				"classify": {"anthropic"},
				"analyze":  {"openrouter"},
				"describe": {"anthropic"},
			},
		},
		Search:   SearchConfig{Enabled: true},
		Database: DatabaseConfig{Driver: "memory"},
	}
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	cfg := Default()
	if err := json.Unmarshal([]byte(resolved), cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads path, or falls back to Default plus the environment
// when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		cfg.dropKeylessProviders()
		return cfg, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	cfg = Default()
	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// ApplyEnv reads OPENROUTER_API_KEY, ANTHROPIC_API_KEY, SCREENSHOT_INTERVAL
// (frames per batch), IDLE_THRESHOLD (seconds) and DEBUG.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if key := getenv("OPENROUTER_API_KEY"); key != "" && c.provider("openrouter") == nil {
		c.Providers = append(c.Providers, ProviderConfig{
			ID: "openrouter", Type: "openrouter", Name: "OpenRouter", APIKey: key,
		})
	}
	if key := getenv("ANTHROPIC_API_KEY"); key != "" && c.provider("anthropic") == nil {
		c.Providers = append(c.Providers, ProviderConfig{
			ID: "anthropic", Type: "anthropic", Name: "Anthropic", APIKey: key,
		})
	}
	if n, err := strconv.Atoi(getenv("SCREENSHOT_INTERVAL")); err == nil {
		c.Pipeline.FrameBatchSize = max(n, 1)
	}
	if n, err := strconv.ParseInt(getenv("IDLE_THRESHOLD"), 10, 64); err == nil {
		c.Pipeline.IdleThresholdMS = n * 1000
	}
	if getenv("DEBUG") == "true" {
		c.Server.LogLevel = "debug"
	}
	if v := getenv("CLIPPY_CAPTURE_DIR"); v != "" {
		c.Capture = CaptureConfig{Source: "dir", Dir: v}
	}
}

func (c *Config) provider(id string) *ProviderConfig {
	for i := range c.Providers {
		if c.Providers[i].ID == id {
			return &c.Providers[i]
		}
	}
	return nil
}

// dropKeylessProviders removes remote providers whose ${VAR} key resolved
// to nothing, so routing skips them.
func (c *Config) dropKeylessProviders() {
	kept := c.Providers[:0]
	for _, p := range c.Providers {
		if strings.TrimSpace(p.APIKey) == "" && p.Endpoint == "" {
			continue
		}
		kept = append(kept, p)
	}
	c.Providers = kept
}

// HasCredentials reports whether any model provider is usable. Without one
// the daemon runs with monitoring disabled.
func (c *Config) HasCredentials() bool {
	for _, p := range c.Providers {
		if strings.TrimSpace(p.APIKey) != "" || p.Endpoint != "" {
			return true
		}
	}
	return false
}

// Validate checks the pipeline parameters and store selection.
func (c *Config) Validate() error {
	var errs []error
	p := c.Pipeline
	if p.FrameBatchSize < 1 {
		errs = append(errs, fmt.Errorf("pipeline.frame_batch_size must be >= 1, got %d", p.FrameBatchSize))
	}
	for _, f := range []struct {
		name string
		v    int64
	}{
		{"frame_interval_ms", p.FrameIntervalMS},
		{"idle_threshold_ms", p.IdleThresholdMS},
		{"suggestion_cooldown_ms", p.SuggestionCooldownMS},
		{"dismiss_suppression_ms", p.DismissSuppressionMS},
		{"request_timeout_ms", p.RequestTimeoutMS},
	} {
		if f.v <= 0 {
			errs = append(errs, fmt.Errorf("pipeline.%s must be positive, got %d", f.name, f.v))
		}
	}
	switch c.Database.Driver {
	case "", "memory":
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			errs = append(errs, errors.New("database.sqlite.path is required for the sqlite driver"))
		}
	case "postgres":
		if c.Database.Postgres.DSN == "" {
			errs = append(errs, errors.New("database.postgres.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database.driver %q", c.Database.Driver))
	}
	switch c.Capture.Source {
	case "":
	case "dir":
		if c.Capture.Dir == "" {
			errs = append(errs, errors.New("capture.dir is required for the dir source"))
		}
	case "command":
		if c.Capture.Command == "" {
			errs = append(errs, errors.New("capture.command is required for the command source"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown capture.source %q", c.Capture.Source))
	}
	if c.Gateway.Redis.Enabled && c.Database.Redis.URL == "" {
		errs = append(errs, errors.New("gateway.redis requires database.redis.url"))
	}
	if c.Recall.Enabled && c.Database.Qdrant.Host == "" {
		errs = append(errs, errors.New("recall requires database.qdrant.host"))
	}
	return errors.Join(errs...)
}
