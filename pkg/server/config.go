package server

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dcoutinho/chatrelay/pkg/logging"
)

// Config holds server configuration.
type Config struct {
	ListenAddr  string `yaml:"listen_addr"`  // TCP bind address (e.g. ":9500")
	WSAddr      string `yaml:"ws_addr"`      // HTTP bind address for the WebSocket transport (empty = disabled)
	MetricsAddr string `yaml:"metrics_addr"` // HTTP bind address for /metrics (empty = disabled)

	MaxLineLen int `yaml:"max_line_len"` // maximum input line length in bytes
	SendBuffer int `yaml:"send_buffer"`  // outbound lines buffered per session before dropping

	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // text or json
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr: ":9500",
		MaxLineLen: 16384,
		SendBuffer: 64,
		LogLevel:   "info",
		LogFormat:  "text",
	}
}

// LoadConfig reads a YAML config file on top of the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path) //nolint:gosec // path from user-provided CLI config
	if err != nil {
		return cfg, fmt.Errorf("server: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("server: parse config: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("server: listen_addr must not be empty")
	}
	if c.MaxLineLen <= 0 {
		return fmt.Errorf("server: max_line_len must be positive")
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("server: send_buffer must be positive")
	}
	if err := (logging.Options{Level: c.LogLevel, Format: c.LogFormat}).Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
