// Package config provides YAML-based configuration loading for researchdesk.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level researchdesk configuration, loaded from
// researchdesk.yaml.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Research ResearchConfig `yaml:"research"`
	Notify   NotifyConfig   `yaml:"notify"`
}

// DatabaseConfig selects and parameterizes the storage engine.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite (default) or mysql
	Path   string `yaml:"path"`   // sqlite database file
	Host   string `yaml:"host"`   // mysql only
	Port   int    `yaml:"port"`   // mysql only
	Name   string `yaml:"name"`   // mysql database name
}

// ServerConfig holds settings for the command server.
type ServerConfig struct {
	Port          int    `yaml:"port"`
	SweepSchedule string `yaml:"sweep_schedule"` // 5-field cron; empty disables the sweep
	StaleMinutes  int    `yaml:"stale_minutes"`  // progress rows older than this are timed out
}

// ResearchConfig holds defaults applied when opening research requests.
type ResearchConfig struct {
	DefaultService   string `yaml:"default_service"`
	EstimatedSeconds int    `yaml:"estimated_seconds"`
}

// NotifyConfig configures completion notifications. Both platforms are
// optional; leaving a token empty disables that platform.
type NotifyConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
}

// SlackConfig holds Slack API credentials and the target channel.
type SlackConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// DiscordConfig holds Discord bot credentials and the target channel.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no config file exists: a
// local sqlite database next to the working directory.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = "researchdesk.db"
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.Name == "" {
		c.Database.Name = "researchdesk"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.StaleMinutes == 0 {
		c.Server.StaleMinutes = 30
	}
	if c.Research.DefaultService == "" {
		c.Research.DefaultService = "web"
	}
	if c.Research.EstimatedSeconds == 0 {
		c.Research.EstimatedSeconds = 300
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported (sqlite, mysql)", c.Database.Driver))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}
	if c.Server.StaleMinutes < 0 {
		errs = append(errs, "server.stale_minutes must not be negative")
	}
	if c.Research.EstimatedSeconds < 0 {
		errs = append(errs, "research.estimated_seconds must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
