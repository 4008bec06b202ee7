package config

import (
	"fmt"
	"time"

	"github.com/kbukum/dagflow/logger"
	"github.com/kbukum/dagflow/validation"
)

// Gate policies accepted by EngineConfig.GatePolicy.
const (
	GatePolicySkip  = "skip"
	GatePolicyBlock = "block"
)

// Config is the root configuration of the dagflow binary.
type Config struct {
	Name        string          `yaml:"name" mapstructure:"name" validate:"required"`
	Environment string          `yaml:"environment" mapstructure:"environment" validate:"oneof=development staging production"`
	Debug       bool            `yaml:"debug" mapstructure:"debug"`
	Logging     logger.Config   `yaml:"logging" mapstructure:"logging"`
	Engine      EngineConfig    `yaml:"engine" mapstructure:"engine"`
	Simulator   SimulatorConfig `yaml:"simulator" mapstructure:"simulator"`
	Store       StoreConfig     `yaml:"store" mapstructure:"store"`
	Telemetry   TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`
}

// EngineConfig tunes the interpreter and the shell task runner.
type EngineConfig struct {
	// MaxParallel caps concurrent nodes per batch. Zero means unbounded.
	MaxParallel int           `yaml:"max_parallel" mapstructure:"max_parallel" validate:"gte=0"`
	GatePolicy  string        `yaml:"gate_policy" mapstructure:"gate_policy" validate:"oneof=skip block"`
	Shell       string        `yaml:"shell" mapstructure:"shell" validate:"required"`
	WorkDir     string        `yaml:"work_dir" mapstructure:"work_dir"`
	GracePeriod time.Duration `yaml:"grace_period" mapstructure:"grace_period" validate:"gte=0"`
}

// SimulatorConfig tunes simulated node behaviour.
type SimulatorConfig struct {
	TaskDelay    time.Duration `yaml:"task_delay" mapstructure:"task_delay" validate:"gte=0"`
	CollectDelay time.Duration `yaml:"collect_delay" mapstructure:"collect_delay" validate:"gte=0"`
	PassRate     float64       `yaml:"pass_rate" mapstructure:"pass_rate" validate:"gte=0,lte=1"`
	Seed         int64         `yaml:"seed" mapstructure:"seed"`
}

// StoreConfig selects the definition and run-history database.
type StoreConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver" validate:"oneof=sqlite3 postgres mysql"`
	DSN    string `yaml:"dsn" mapstructure:"dsn" validate:"required"`
}

// TelemetryConfig configures OTLP export of traces and metrics.
type TelemetryConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint" validate:"required_if=Enabled true"`
	Insecure   bool    `yaml:"insecure" mapstructure:"insecure"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate" validate:"gte=0,lte=1"`
}

// Rates where zero is a meaningful setting. ApplyDefaults cannot tell an
// explicit zero from an absent key, so Load seeds these as viper defaults.
const (
	DefaultPassRate   = 0.7
	DefaultSampleRate = 1.0
)

var keyDefaults = map[string]any{
	"simulator.pass_rate":   DefaultPassRate,
	"telemetry.sample_rate": DefaultSampleRate,
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{
		Simulator: SimulatorConfig{PassRate: DefaultPassRate},
		Telemetry: TelemetryConfig{SampleRate: DefaultSampleRate},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "dagflow"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Environment == "development" {
		c.Debug = true
	}
	c.Logging.ApplyDefaults()
	c.Engine.ApplyDefaults()
	c.Simulator.ApplyDefaults()
	c.Store.ApplyDefaults()
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("config.logging: %w", err)
	}
	return nil
}

// ApplyDefaults fills zero values.
func (c *EngineConfig) ApplyDefaults() {
	if c.GatePolicy == "" {
		c.GatePolicy = GatePolicySkip
	}
	if c.Shell == "" {
		c.Shell = "sh"
	}
	if c.GracePeriod == 0 {
		c.GracePeriod = 5 * time.Second
	}
}

// ApplyDefaults fills zero values.
func (c *SimulatorConfig) ApplyDefaults() {
	if c.TaskDelay == 0 {
		c.TaskDelay = 500 * time.Millisecond
	}
	if c.CollectDelay == 0 {
		c.CollectDelay = time.Second
	}
}

// ApplyDefaults fills zero values.
func (c *StoreConfig) ApplyDefaults() {
	if c.Driver == "" {
		c.Driver = "sqlite3"
	}
	if c.DSN == "" && c.Driver == "sqlite3" {
		c.DSN = "dagflow.db"
	}
}

