// Package config handles engine configuration loading using viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"firestige.xyz/strix/internal/log"
)

// Config is the top-level configuration.
type Config struct {
	Engine  EngineConfig  `mapstructure:"engine" yaml:"engine"`
	Source  SourceConfig  `mapstructure:"source" yaml:"source"`
	Log     *log.Config   `mapstructure:"log" yaml:"log,omitempty"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// EngineConfig tunes the packet channel. The session tracker's TTL and
// table size are fixed in the tcp module and are not configurable.
type EngineConfig struct {
	ChannelCapacity int `mapstructure:"channel_capacity" yaml:"channel_capacity"`
}

// SourceConfig selects the capture producer. Options are decoded by
// the source factory matching Type.
type SourceConfig struct {
	Type    string         `mapstructure:"type" yaml:"type"`
	Options map[string]any `mapstructure:"options" yaml:"options,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen,omitempty"`
}

// Load reads a YAML config file and applies defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("STRIX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("engine.channel_capacity", 64)
	v.SetDefault("source.type", "file")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", ":9465")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Engine.ChannelCapacity < 2 {
		return fmt.Errorf("engine.channel_capacity must be at least 2, got %d",
			c.Engine.ChannelCapacity)
	}
	if c.Source.Type == "" {
		return fmt.Errorf("source.type is required")
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen is required when metrics are enabled")
	}
	return nil
}

// Dump renders the effective configuration as YAML.
func (c *Config) Dump() ([]byte, error) {
	return yaml.Marshal(c)
}
