package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Extraction ExtractionConfig `yaml:"extraction" mapstructure:"extraction"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Catalog    CatalogConfig    `yaml:"catalog" mapstructure:"catalog"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	PDF        PDFConfig        `yaml:"pdf" mapstructure:"pdf"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	Workers             int `yaml:"workers" mapstructure:"workers"`
	DocumentTimeoutSecs int `yaml:"document_timeout_secs" mapstructure:"document_timeout_secs"`
}

// DocumentTimeout returns the per-document deadline.
func (b BatchConfig) DocumentTimeout() time.Duration {
	return time.Duration(b.DocumentTimeoutSecs) * time.Second
}

// ExtractionConfig tunes the field extractor.
type ExtractionConfig struct {
	MLEnabled               bool    `yaml:"ml_enabled" mapstructure:"ml_enabled"`
	MLConfidenceThreshold   float64 `yaml:"ml_confidence_threshold" mapstructure:"ml_confidence_threshold"`
	DefaultDecimalSeparator string  `yaml:"default_decimal_separator" mapstructure:"default_decimal_separator"`
	ReferenceLookaheadLines int     `yaml:"reference_lookahead_lines" mapstructure:"reference_lookahead_lines"`
}

// AnthropicConfig holds Anthropic API settings for the ML extractor.
type AnthropicConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	Model             string  `yaml:"model" mapstructure:"model"`
	MaxTokens         int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// CatalogConfig configures catalog loading and seeding.
type CatalogConfig struct {
	LoadAttempts int    `yaml:"load_attempts" mapstructure:"load_attempts"`
	SeedFile     string `yaml:"seed_file" mapstructure:"seed_file"`
}

// ServerConfig configures the review API server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// PDFConfig configures PDF text extraction.
type PDFConfig struct {
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
}

// MonitoringConfig configures extraction health alerts.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	PendingThreshold     int     `yaml:"pending_corrections_threshold" mapstructure:"pending_corrections_threshold"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// Validation modes accepted by Validate.
const (
	ModeExtract = "extract"
	ModeServe   = "serve"
	ModeStore   = "store"
)

// Validate checks the requirements of the given command mode.
func (c *Config) Validate(mode string) error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		return eris.New("config: store.database_url is required for postgres")
	}

	switch mode {
	case ModeStore:
		return nil
	case ModeExtract, ModeServe:
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Batch.Workers < 1 {
		return eris.New("config: batch.workers must be at least 1")
	}
	if c.Batch.DocumentTimeoutSecs < 1 {
		return eris.New("config: batch.document_timeout_secs must be at least 1")
	}
	switch c.Extraction.DefaultDecimalSeparator {
	case ",", ".":
	default:
		return eris.Errorf("config: extraction.default_decimal_separator must be \",\" or \".\", got %q",
			c.Extraction.DefaultDecimalSeparator)
	}
	if t := c.Extraction.MLConfidenceThreshold; t < 0 || t > 1 {
		return eris.New("config: extraction.ml_confidence_threshold must be between 0 and 1")
	}
	if c.Extraction.MLEnabled && c.Anthropic.Key == "" {
		return eris.New("config: anthropic.key is required when extraction.ml_enabled is set")
	}
	if mode == ModeServe && c.Server.Port <= 0 {
		return eris.New("config: server.port must be positive")
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("labexam")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LABEXAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "labexam.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("batch.workers", 4)
	v.SetDefault("batch.document_timeout_secs", 30)
	v.SetDefault("extraction.ml_enabled", false)
	v.SetDefault("extraction.ml_confidence_threshold", 0.5)
	v.SetDefault("extraction.default_decimal_separator", ",")
	v.SetDefault("extraction.reference_lookahead_lines", 2)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.requests_per_second", 2.0)
	v.SetDefault("catalog.load_attempts", 3)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("pdf.pdftotext_path", "pdftotext")
	v.SetDefault("monitoring.failure_rate_threshold", 0.2)
	v.SetDefault("monitoring.pending_corrections_threshold", 50)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)

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
