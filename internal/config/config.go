package config

import (
	"fmt"
	"os"
	"runtime"

	"github.com/cloakstyle/cloak/internal/engine"
	"gopkg.in/yaml.v3"
)

// Residual actions decide what a non-empty residual list does to the batch
// outcome.
const (
	ResidualWarn  = "warn"
	ResidualBlock = "block"
)

// Config is the full tool configuration.
type Config struct {
	Entities   []string         `yaml:"entities"`
	MaskFormat string           `yaml:"mask_format"` // TOKEN | PARTIAL_REVEAL
	Validation ValidationConfig `yaml:"validation"`
	Caps       CapsConfig       `yaml:"caps"`
	Reports    []string         `yaml:"reports"` // json, csv, html
	Workers    int              `yaml:"workers"`
	Model      ModelConfig      `yaml:"model"`
	Review     ReviewConfig     `yaml:"review"`
	Audit      AuditConfig      `yaml:"audit"`
}

// ValidationConfig holds the triage band and the residual policy.
type ValidationConfig struct {
	MinConfidence    float64    `yaml:"min_confidence"`
	QuestionableBand [2]float64 `yaml:"questionable_band"`
	ResidualAction   string     `yaml:"residual_action"` // warn | block
}

// CapsConfig bounds how much of a file is processed. The caps are enforced by
// the file processor; the detection core handles arbitrarily long text.
type CapsConfig struct {
	MaxFileMB int `yaml:"max_file_mb"`
	MaxRows   int `yaml:"max_rows"`
}

// ModelConfig controls the ML detector chain.
type ModelConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"` // model download/cache directory
}

// ReviewConfig enables persisting questionable entities to Postgres.
type ReviewConfig struct {
	Enabled     bool   `yaml:"enabled"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// AuditConfig selects the scan-event sink. Empty DSN falls back to log output.
type AuditConfig struct {
	ClickHouseDSN string `yaml:"clickhouse_dsn"`
}

// Load reads configuration from a YAML file. A missing file yields the
// default config; a present but malformed one is an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := defaultConfig()
			return cfg, nil
		}
		return nil, fmt.Errorf("Load: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("Load: parse %s: %w", path, err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.MaskFormat == "" {
		cfg.MaskFormat = string(engine.MaskToken)
	}
	if cfg.Validation.MinConfidence == 0 {
		cfg.Validation.MinConfidence = 0.35
	}
	if cfg.Validation.QuestionableBand == ([2]float64{}) {
		cfg.Validation.QuestionableBand = [2]float64{cfg.Validation.MinConfidence, 0.65}
	}
	if cfg.Validation.ResidualAction == "" {
		cfg.Validation.ResidualAction = ResidualWarn
	}
	if cfg.Caps.MaxFileMB == 0 {
		cfg.Caps.MaxFileMB = 10
	}
	if cfg.Caps.MaxRows == 0 {
		cfg.Caps.MaxRows = 100000
	}
	if len(cfg.Reports) == 0 {
		cfg.Reports = []string{"html", "json"}
	}
	if cfg.Workers == 0 {
		cfg.Workers = defaultWorkers()
	}
	if cfg.Model.Dir == "" {
		cfg.Model.Dir = "./models"
	}
}

func defaultWorkers() int {
	n := runtime.NumCPU()
	if n > 8 {
		n = 8
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Validate fails fast on malformed configuration.
func (c *Config) Validate() error {
	if err := c.Engine().Validate(); err != nil {
		return err
	}
	if c.Validation.QuestionableBand[0] != c.Validation.MinConfidence {
		return fmt.Errorf("config: questionable_band lower bound %.2f must equal min_confidence %.2f",
			c.Validation.QuestionableBand[0], c.Validation.MinConfidence)
	}
	switch c.Validation.ResidualAction {
	case ResidualWarn, ResidualBlock:
	default:
		return fmt.Errorf("config: unknown residual_action %q", c.Validation.ResidualAction)
	}
	for _, r := range c.Reports {
		switch r {
		case "json", "csv", "html":
		default:
			return fmt.Errorf("config: unknown report format %q", r)
		}
	}
	if c.Workers < 1 {
		return fmt.Errorf("config: workers must be >= 1, got %d", c.Workers)
	}
	if c.Caps.MaxFileMB < 1 {
		return fmt.Errorf("config: caps.max_file_mb must be >= 1, got %d", c.Caps.MaxFileMB)
	}
	if c.Caps.MaxRows < 1 {
		return fmt.Errorf("config: caps.max_rows must be >= 1, got %d", c.Caps.MaxRows)
	}
	if c.Review.Enabled && c.Review.PostgresDSN == "" {
		return fmt.Errorf("config: review.enabled requires review.postgres_dsn")
	}
	return nil
}

// Engine derives the detection-core configuration.
func (c *Config) Engine() engine.Config {
	return engine.Config{
		Entities:               c.Entities,
		MaskFormat:             engine.MaskFormat(c.MaskFormat),
		MinConfidence:          c.Validation.MinConfidence,
		QuestionableUpperBound: c.Validation.QuestionableBand[1],
	}
}
