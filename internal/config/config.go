// Package config loads the assistant configuration from
// config/ikaris.yaml with environment overrides, and hot-reloads the
// adapter rate-limit file while the process runs.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ikaris-ai/ikaris/internal/arxiv"
	"github.com/ikaris-ai/ikaris/internal/checkpoint"
	"github.com/ikaris-ai/ikaris/internal/embeddings"
	"github.com/ikaris-ai/ikaris/internal/llm"
	"github.com/ikaris-ai/ikaris/internal/notestore"
	"github.com/ikaris-ai/ikaris/internal/pubmed"
	"github.com/ikaris-ai/ikaris/internal/session"
	"github.com/ikaris-ai/ikaris/internal/telemetry"
	"github.com/ikaris-ai/ikaris/internal/tracing"
	"github.com/ikaris-ai/ikaris/internal/vectordb"
)

// ServiceConfig holds the HTTP boundary settings.
type ServiceConfig struct {
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout" yaml:"graceful_timeout"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // json | console
}

// Config is the full assistant configuration tree.
type Config struct {
	Service    ServiceConfig     `mapstructure:"service" yaml:"service"`
	Logging    LoggingConfig     `mapstructure:"logging" yaml:"logging"`
	LLM        llm.Config        `mapstructure:"llm" yaml:"llm"`
	VectorDB   vectordb.Config   `mapstructure:"vectordb" yaml:"vectordb"`
	Embeddings embeddings.Config `mapstructure:"embeddings" yaml:"embeddings"`
	PubMed     pubmed.Config     `mapstructure:"pubmed" yaml:"pubmed"`
	Arxiv      arxiv.Config      `mapstructure:"arxiv" yaml:"arxiv"`
	Notes      notestore.Config  `mapstructure:"notes" yaml:"notes"`
	Telemetry  telemetry.Config  `mapstructure:"telemetry" yaml:"telemetry"`
	Checkpoint checkpoint.Config `mapstructure:"checkpoint" yaml:"checkpoint"`
	Session    session.Config    `mapstructure:"session" yaml:"session"`
	Tracing    tracing.Config    `mapstructure:"tracing" yaml:"tracing"`
	PapersDir  string            `mapstructure:"papers_dir" yaml:"papers_dir"`
}

// Load reads config/ikaris.yaml (or IKARIS_CONFIG_PATH) and applies
// IKARIS_* environment overrides. A missing file yields defaults so a
// fresh checkout runs without any setup.
func Load() (*Config, error) {
	v := viper.New()

	cfgPath := os.Getenv("IKARIS_CONFIG_PATH")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.SetConfigName("ikaris")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}

	v.SetEnvPrefix("IKARIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Service.Port == 0 {
		c.Service.Port = 8088
	}
	if c.Service.ReadTimeout == 0 {
		c.Service.ReadTimeout = 30 * time.Second
	}
	if c.Service.WriteTimeout == 0 {
		// Research episodes run several model calls back to back.
		c.Service.WriteTimeout = 5 * time.Minute
	}
	if c.Service.GracefulTimeout == 0 {
		c.Service.GracefulTimeout = 10 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.PapersDir == "" {
		c.PapersDir = "./papers"
	}
	// Fetchers and the local index share one papers directory.
	if c.PubMed.PapersDir == "" {
		c.PubMed.PapersDir = c.PapersDir
	}
	if c.Arxiv.PapersDir == "" {
		c.Arxiv.PapersDir = c.PapersDir
	}
}

// Validate rejects configurations that cannot work at all.
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("service.port %d out of range", c.Service.Port)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format %q must be json or console", c.Logging.Format)
	}
	if c.PubMed.PapersDir != c.Arxiv.PapersDir {
		return fmt.Errorf("pubmed and arxiv papers_dir must match, the index scans one directory")
	}
	return nil
}
