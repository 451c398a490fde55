// Package config loads processor settings for the coopdemo command from an
// optional YAML file, then applies COOPRUNNER_* environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/Swind/go-coop-runner/core"
)

const (
	ModeThreaded    = "threaded"
	ModeCooperative = "cooperative"

	// LogOff disables logging.
	LogOff = "off"
)

// Config holds the runtime configuration of a coopdemo run.
type Config struct {
	Mode            string        `yaml:"mode"             env:"COOPRUNNER_MODE"`
	Name            string        `yaml:"name"             env:"COOPRUNNER_NAME"`
	Processors      int           `yaml:"processors"       env:"COOPRUNNER_PROCESSORS"`
	PollInterval    time.Duration `yaml:"poll_interval"    env:"COOPRUNNER_POLL_INTERVAL"`
	HistoryCapacity int           `yaml:"history_capacity" env:"COOPRUNNER_HISTORY_CAPACITY"`
	LogLevel        string        `yaml:"log_level"        env:"COOPRUNNER_LOG_LEVEL"`
	MetricsAddr     string        `yaml:"metrics_addr"     env:"COOPRUNNER_METRICS_ADDR"`
	FrameInterval   time.Duration `yaml:"frame_interval"   env:"COOPRUNNER_FRAME_INTERVAL"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Mode:            ModeThreaded,
		Name:            "coopdemo",
		Processors:      1,
		PollInterval:    10 * time.Millisecond,
		HistoryCapacity: 100,
		LogLevel:        "info",
		FrameInterval:   16 * time.Millisecond,
	}
}

// Load reads path (if not empty) over the defaults, then applies
// environment overrides from the process environment.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, nil)
}

// LoadWithEnv is Load with an explicit environment. A nil environ means the
// process environment.
func LoadWithEnv(path string, environ map[string]string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if err := decodeYAML(f, &cfg); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML data over the defaults without consulting the
// environment.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := decodeYAML(bytes.NewReader(data), &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeThreaded, ModeCooperative:
	default:
		return fmt.Errorf("mode %q: want %q or %q", c.Mode, ModeThreaded, ModeCooperative)
	}
	if c.Processors < 1 {
		return fmt.Errorf("processors must be at least 1, got %d", c.Processors)
	}
	if c.Mode == ModeCooperative && c.Processors > 1 {
		return errors.New("cooperative mode runs a single processor")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.FrameInterval <= 0 {
		return fmt.Errorf("frame_interval must be positive, got %s", c.FrameInterval)
	}
	if c.LogLevel != LogOff {
		if _, err := core.ParseLevel(c.LogLevel); err != nil {
			return err
		}
	}
	return nil
}

// Logger builds the logger selected by LogLevel.
func (c Config) Logger() core.Logger {
	if c.LogLevel == LogOff {
		return core.NewNoOpLogger()
	}
	level, err := core.ParseLevel(c.LogLevel)
	if err != nil {
		level = core.LevelInfo
	}
	return core.NewLeveledLogger(level)
}

// Platform builds the platform selected by Mode. idle is only used by the
// cooperative platform.
func (c Config) Platform(clk clock.Clock, idle func()) core.Platform {
	if c.Mode == ModeCooperative {
		return core.NewCooperativePlatform(clk, idle)
	}
	return core.NewThreadedPlatform(clk)
}

// ProcessorConfig translates c into a core.ProcessorConfig named name.
// Handlers not covered by Config are left for the caller to fill.
func (c Config) ProcessorConfig(name string, platform core.Platform) *core.ProcessorConfig {
	return &core.ProcessorConfig{
		Name:            name,
		Platform:        platform,
		PollInterval:    c.PollInterval,
		HistoryCapacity: c.HistoryCapacity,
		Logger:          c.Logger(),
	}
}
