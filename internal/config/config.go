// Package config loads swarmctl's operator-facing settings the way
// cmd/cliaimonitor/main.go composes flag-sourced paths with a YAML file:
// a struct unmarshalled from YAML, then the listen address overridable by
// the serve subcommand's -addr flag. Grounded on
// _examples/ODSapper-CLIAIMONITOR/cmd/cliaimonitor/main.go's path
// resolution and the reference's use of gopkg.in/yaml.v3 for its team/
// project config files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/brandista/swarm/internal/runcontext"
)

// RunLimitsConfig mirrors runcontext.Limits in YAML-friendly form.
type RunLimitsConfig struct {
	MaxConcurrentLLMCalls    int   `yaml:"max_concurrent_llm_calls"`
	MaxConcurrentScrapeCalls int   `yaml:"max_concurrent_scrape_calls"`
	DefaultAgentTimeoutSec   int   `yaml:"default_agent_timeout_seconds"`
	TotalRunTimeoutSec       int   `yaml:"total_run_timeout_seconds"`
}

// ServerConfig configures the Transport HTTP/WS binding.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// SQLiteConfig configures the Persistence run store.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// NatsConfig configures the optional NATS bridge: set URL to dial an
// external deployment, or leave it empty and set EmbeddedPort >= 0 to run
// one in-process (0 picks an ephemeral port).
type NatsConfig struct {
	URL          string `yaml:"url"`
	EmbeddedPort int    `yaml:"embedded_port"`
	Enabled      bool   `yaml:"enabled"`
}

// NotifyConfig configures the optional external notification channels.
type NotifyConfig struct {
	Enabled        bool   `yaml:"enabled"`
	DiscordWebhook string `yaml:"discord_webhook"`
	SlackWebhook   string `yaml:"slack_webhook"`
}

// Config is swarmctl's top-level settings file.
type Config struct {
	RunLimits RunLimitsConfig `yaml:"run_limits"`
	Server    ServerConfig    `yaml:"server"`
	SQLite    SQLiteConfig    `yaml:"sqlite"`
	Nats      NatsConfig      `yaml:"nats"`
	Notify    NotifyConfig    `yaml:"notify"`
}

// Default returns the built-in settings used when no config file is given.
func Default() Config {
	return Config{
		RunLimits: RunLimitsConfig{
			MaxConcurrentLLMCalls:    5,
			MaxConcurrentScrapeCalls: 3,
			DefaultAgentTimeoutSec:   30,
			TotalRunTimeoutSec:       120,
		},
		Server: ServerConfig{Addr: ":8088"},
		SQLite: SQLiteConfig{Path: "data/swarm.db"},
		Nats:   NatsConfig{Enabled: false, EmbeddedPort: 0},
		Notify: NotifyConfig{Enabled: false},
	}
}

// Load reads and parses a YAML config file, falling back to Default for
// any zero-valued section the file omits entirely.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Limits converts RunLimitsConfig to a runcontext.Limits.
func (c Config) Limits() runcontext.Limits {
	lim := runcontext.DefaultLimits()
	if c.RunLimits.MaxConcurrentLLMCalls > 0 {
		lim.LLMConcurrency = c.RunLimits.MaxConcurrentLLMCalls
	}
	if c.RunLimits.MaxConcurrentScrapeCalls > 0 {
		lim.ScrapeConcurrency = c.RunLimits.MaxConcurrentScrapeCalls
	}
	if c.RunLimits.DefaultAgentTimeoutSec > 0 {
		lim.AgentTimeout = time.Duration(c.RunLimits.DefaultAgentTimeoutSec) * time.Second
	}
	if c.RunLimits.TotalRunTimeoutSec > 0 {
		lim.TotalTimeout = time.Duration(c.RunLimits.TotalRunTimeoutSec) * time.Second
	}
	return lim
}
