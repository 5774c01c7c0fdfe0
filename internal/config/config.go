// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Checkpoint CheckpointConfig `yaml:"checkpoint" mapstructure:"checkpoint"`
	Places     PlacesConfig     `yaml:"places" mapstructure:"places"`
	Atlas      AtlasConfig      `yaml:"atlas" mapstructure:"atlas"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Workers    WorkersConfig    `yaml:"workers" mapstructure:"workers"`
	Dedupe     DedupeConfig     `yaml:"dedupe" mapstructure:"dedupe"`
	Validation ValidationConfig `yaml:"validation" mapstructure:"validation"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the run-history database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// CheckpointConfig configures where stage checkpoints and manifests live.
type CheckpointConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// PlacesConfig holds Places API settings.
type PlacesConfig struct {
	Key      string  `yaml:"key" mapstructure:"key"`
	BaseURL  string  `yaml:"base_url" mapstructure:"base_url"`
	RateQPS  float64 `yaml:"rate_qps" mapstructure:"rate_qps"`
	Burst    int     `yaml:"burst" mapstructure:"burst"`
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// AtlasConfig holds atlas directory API settings.
type AtlasConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// WorkersConfig bounds worker orchestration.
type WorkersConfig struct {
	Enabled          []string `yaml:"enabled" mapstructure:"enabled"`
	Concurrency      int      `yaml:"concurrency" mapstructure:"concurrency"`
	TimeoutSecs      int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RetryAttempts    int      `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	FailureThreshold int      `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	CooldownSecs     int      `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
}

// DedupeConfig configures candidate clustering.
type DedupeConfig struct {
	TitleWeight      float64 `yaml:"title_weight" mapstructure:"title_weight"`
	LocationWeight   float64 `yaml:"location_weight" mapstructure:"location_weight"`
	ClusterThreshold float64 `yaml:"cluster_threshold" mapstructure:"cluster_threshold"`
}

// ValidationConfig bounds cross-source validation.
type ValidationConfig struct {
	MaxCandidates   int      `yaml:"max_candidates" mapstructure:"max_candidates"`
	Concurrency     int      `yaml:"concurrency" mapstructure:"concurrency"`
	TimeoutSecs     int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	LowTrustOrigins []string `yaml:"low_trust_origins" mapstructure:"low_trust_origins"`
}

// PricingConfig holds per-provider pricing rates.
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	Places    QueryPricing            `yaml:"places" mapstructure:"places"`
	Atlas     QueryPricing            `yaml:"atlas" mapstructure:"atlas"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// QueryPricing holds flat per-query pricing.
type QueryPricing struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TRIP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", ".trip/runs.db")
	v.SetDefault("checkpoint.dir", ".trip/sessions")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("places.base_url", "https://places.googleapis.com")
	v.SetDefault("places.rate_qps", 10.0)
	v.SetDefault("places.burst", 5)
	v.SetDefault("atlas.base_url", "https://api.atlasindex.dev")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("workers.enabled", []string{"places", "atlas", "narrative"})
	v.SetDefault("workers.concurrency", 4)
	v.SetDefault("workers.timeout_secs", 60)
	v.SetDefault("workers.retry_attempts", 3)
	v.SetDefault("workers.failure_threshold", 3)
	v.SetDefault("workers.cooldown_secs", 60)
	v.SetDefault("dedupe.title_weight", 0.6)
	v.SetDefault("dedupe.location_weight", 0.4)
	v.SetDefault("dedupe.cluster_threshold", 0.85)
	v.SetDefault("validation.max_candidates", 10)
	v.SetDefault("validation.concurrency", 3)
	v.SetDefault("validation.timeout_secs", 10)
	v.SetDefault("validation.low_trust_origins", []string{"narrative"})
	v.SetDefault("pricing.places.per_query", 0.032)
	v.SetDefault("pricing.atlas.per_query", 0.004)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the configuration is usable for the given mode:
// "run" requires provider credentials, "serve" requires a valid port, and
// "status" only needs the store.
func (c *Config) Validate(mode string) error {
	var missing []string

	check := func(ok bool, msg string) {
		if !ok {
			missing = append(missing, msg)
		}
	}

	switch mode {
	case "run":
		check(c.Places.Key != "" || c.Atlas.Key != "" || c.Anthropic.Key != "",
			"at least one provider key (places.key, atlas.key, anthropic.key) is required")
		check(c.Workers.Concurrency >= 1 && c.Workers.Concurrency <= 32,
			"workers.concurrency must be between 1 and 32")
		check(c.Dedupe.ClusterThreshold > 0 && c.Dedupe.ClusterThreshold <= 1,
			"dedupe.cluster_threshold must be in (0,1]")
		check(c.Validation.MaxCandidates >= 1,
			"validation.max_candidates must be >= 1")
	case "serve":
		check(c.Server.Port > 0, "server.port must be > 0")
	case "status":
		// Store defaults always apply.
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
		missing = append(missing, "store.driver must be sqlite or postgres")
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		missing = append(missing, "store.database_url is required for postgres")
	}

	if len(missing) > 0 {
		return eris.New("config: " + strings.Join(missing, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
