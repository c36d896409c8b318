// Package config loads docgen settings from defaults, an optional YAML file,
// a .env file, DOCGEN_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dshills/docgen/internal/batch"
	"github.com/dshills/docgen/internal/completion"
	"github.com/dshills/docgen/internal/embedder"
	"github.com/dshills/docgen/internal/generator"
	"github.com/dshills/docgen/internal/storage"
	"github.com/dshills/docgen/pkg/types"
)

// EnvPrefix prefixes every environment override: DOCGEN_API_BASE_URL=...
const EnvPrefix = "DOCGEN"

// Config is the resolved application configuration
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	Generation GenerationConfig `mapstructure:"generation"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Batch      BatchConfig      `mapstructure:"batch"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Prompt     PromptConfig     `mapstructure:"prompt"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
}

type APIConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Token      string        `mapstructure:"token"`
	Retries    int           `mapstructure:"retries"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RateLimit  float64       `mapstructure:"rate_limit"`
	Burst      int           `mapstructure:"burst"`
	MaxTokens  int           `mapstructure:"max_tokens"`
	TokenPrice float64       `mapstructure:"token_price"`
}

type GenerationConfig struct {
	Model        string  `mapstructure:"model"`
	Temperature  float64 `mapstructure:"temperature"`
	OutputFormat string  `mapstructure:"output_format"`
}

type DatabaseConfig struct {
	Path      string `mapstructure:"path"`
	CacheSize int    `mapstructure:"cache_size"`
}

type BatchConfig struct {
	MaxWorkers   int           `mapstructure:"max_workers"`
	BatchSize    int           `mapstructure:"batch_size"`
	Include      []string      `mapstructure:"include"`
	Exclude      []string      `mapstructure:"exclude"`
	Timeout      time.Duration `mapstructure:"timeout"`
	ReportFormat string        `mapstructure:"report_format"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// EmbeddingConfig enables vectors for saved documents. An empty provider disables them.
type EmbeddingConfig struct {
	Provider  string `mapstructure:"provider"`
	BaseURL   string `mapstructure:"base_url"`
	Token     string `mapstructure:"token"`
	Model     string `mapstructure:"model"`
	CacheSize int    `mapstructure:"cache_size"`
}

type PromptConfig struct {
	Templates map[string]string `mapstructure:"templates"`
}

// SetDefaults registers every key with its default value
func SetDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "")
	v.SetDefault("api.token", "")
	v.SetDefault("api.retries", 15)
	v.SetDefault("api.timeout", "30s")
	v.SetDefault("api.rate_limit", 0.0)
	v.SetDefault("api.burst", 1)
	v.SetDefault("api.max_tokens", completion.DefaultMaxTokens)
	v.SetDefault("api.token_price", batch.DefaultPricePerKToken)

	v.SetDefault("generation.model", generator.DefaultModel)
	v.SetDefault("generation.temperature", generator.DefaultTemperature)
	v.SetDefault("generation.output_format", string(types.FormatMarkdown))

	v.SetDefault("database.path", "docs.db")
	v.SetDefault("database.cache_size", storage.DefaultCacheSize)

	v.SetDefault("batch.max_workers", batch.DefaultMaxWorkers)
	v.SetDefault("batch.batch_size", batch.DefaultBatchSize)
	v.SetDefault("batch.include", batch.DefaultInclude)
	v.SetDefault("batch.exclude", batch.DefaultExclude)
	v.SetDefault("batch.timeout", "0s")
	v.SetDefault("batch.report_format", string(batch.FormatText))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("metrics.addr", "")

	v.SetDefault("prompt.templates", map[string]string{})

	v.SetDefault("embedding.provider", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.token", "")
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.cache_size", embedder.DefaultCacheSize)
}

// flagKeys maps flag names to config keys
var flagKeys = map[string]string{
	"base-url":      "api.base_url",
	"token":         "api.token",
	"retries":       "api.retries",
	"api-timeout":   "api.timeout",
	"rate-limit":    "api.rate_limit",
	"model":         "generation.model",
	"temperature":   "generation.temperature",
	"format":        "generation.output_format",
	"db":            "database.path",
	"workers":       "batch.max_workers",
	"batch-size":    "batch.batch_size",
	"include":       "batch.include",
	"exclude":       "batch.exclude",
	"timeout":       "batch.timeout",
	"report-format": "batch.report_format",
	"log-level":     "logging.level",
	"log-format":    "logging.format",
	"metrics-addr":  "metrics.addr",
	"embedding":     "embedding.provider",
}

// RegisterFlags adds the shared configuration flags to fs. Flag defaults
// are empty so unset flags never mask file or environment values.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", "", "Config file (default ./docgen.yaml)")
	fs.String("base-url", "", "Completion endpoint URL")
	fs.String("token", "", "API token")
	fs.Int("retries", 0, "Retries per request")
	fs.Duration("api-timeout", 0, "Per-attempt connect, header and idle-read timeout")
	fs.Float64("rate-limit", 0, "Outbound requests per second (0 = unlimited)")
	fs.StringP("model", "m", "", "Model name")
	fs.Float64P("temperature", "t", 0, "Sampling temperature")
	fs.StringP("format", "f", "", "Output format (markdown, json)")
	fs.String("db", "", "SQLite database path")
	fs.IntP("workers", "w", 0, "Maximum concurrent generations")
	fs.IntP("batch-size", "b", 0, "Files per batch chunk")
	fs.StringSliceP("include", "i", nil, "Include globs")
	fs.StringSliceP("exclude", "e", nil, "Exclude globs")
	fs.Duration("timeout", 0, "Overall batch deadline (0 = none)")
	fs.String("report-format", "", "Batch report format (text, json, yaml)")
	fs.String("log-level", "", "Log level (debug, info, warn, error)")
	fs.String("log-format", "", "Log format (console, json)")
	fs.String("metrics-addr", "", "Serve Prometheus metrics on this address during batch runs")
	fs.String("embedding", "", "Embedding provider for saved documents (http, local; default: none)")
}

// Load resolves configuration. Precedence: flags > env > config file > defaults.
// fs may be nil; only flags registered by RegisterFlags are bound.
func Load(fs *pflag.FlagSet) (*Config, *viper.Viper, error) {
	// Missing .env is fine
	_ = godotenv.Load()

	v := viper.New()
	SetDefaults(v)

	configPath := ""
	if fs != nil {
		if f := fs.Lookup("config"); f != nil {
			configPath = f.Value.String()
		}
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("docgen")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/docgen")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is fine -- use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return &cfg, v, nil
}

// Validate checks value ranges and enums
func (c *Config) Validate() error {
	if _, err := types.ParseOutputFormat(c.Generation.OutputFormat); err != nil {
		return err
	}
	if _, err := batch.ParseReportFormat(c.Batch.ReportFormat); err != nil {
		return err
	}
	if c.API.Retries < 0 {
		return fmt.Errorf("api.retries must be >= 0, got %d", c.API.Retries)
	}
	if c.API.TokenPrice < 0 {
		return fmt.Errorf("api.token_price must be >= 0, got %v", c.API.TokenPrice)
	}
	if c.API.RateLimit < 0 {
		return fmt.Errorf("api.rate_limit must be >= 0, got %v", c.API.RateLimit)
	}
	if c.Batch.MaxWorkers <= 0 {
		return fmt.Errorf("batch.max_workers must be > 0, got %d", c.Batch.MaxWorkers)
	}
	if c.Batch.BatchSize <= 0 {
		return fmt.Errorf("batch.batch_size must be > 0, got %d", c.Batch.BatchSize)
	}
	switch strings.ToLower(c.Embedding.Provider) {
	case "", embedder.ProviderHTTP, embedder.ProviderLocal:
	default:
		return fmt.Errorf("embedding.provider must be %q, %q or empty, got %q",
			embedder.ProviderHTTP, embedder.ProviderLocal, c.Embedding.Provider)
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		return fmt.Errorf("generation.temperature must be within [0, 2], got %v", c.Generation.Temperature)
	}
	return nil
}

// ClientConfig converts the api section into a completion client config
func (c *Config) ClientConfig() completion.Config {
	cc := completion.DefaultConfig()
	cc.BaseURL = c.API.BaseURL
	cc.Token = c.API.Token
	cc.Retry.MaxAttempts = c.API.Retries + 1
	if c.API.Timeout > 0 {
		cc.Timeout = c.API.Timeout
	}
	cc.RateLimit = c.API.RateLimit
	cc.Burst = c.API.Burst
	cc.MaxTokens = c.API.MaxTokens
	return cc
}

// EmbedderConfig converts the embedding section. Enabled is false when no
// provider is configured.
func (c *Config) EmbedderConfig() (cfg embedder.Config, enabled bool) {
	return embedder.Config{
		Provider:  c.Embedding.Provider,
		BaseURL:   c.Embedding.BaseURL,
		Token:     c.Embedding.Token,
		Model:     c.Embedding.Model,
		CacheSize: c.Embedding.CacheSize,
	}, c.Embedding.Provider != ""
}

// GeneratorDefaults converts the generation section into generator defaults
func (c *Config) GeneratorDefaults() generator.Defaults {
	return generator.Defaults{
		Model:        c.Generation.Model,
		Temperature:  c.Generation.Temperature,
		MaxTokens:    c.API.MaxTokens,
		OutputFormat: types.OutputFormat(c.Generation.OutputFormat),
	}
}

// BatchOptions converts the batch section into run options
func (c *Config) BatchOptions() batch.Options {
	opts := batch.DefaultOptions()
	opts.MaxWorkers = c.Batch.MaxWorkers
	opts.BatchSize = c.Batch.BatchSize
	opts.OutputFormat = types.OutputFormat(c.Generation.OutputFormat)
	opts.Model = c.Generation.Model
	temp := c.Generation.Temperature
	opts.Temperature = &temp
	opts.PricePerKToken = c.API.TokenPrice
	opts.Timeout = c.Batch.Timeout
	return opts
}
