// Package config provides configuration loading for the aicacia client.
//
// Values come from hardcoded defaults, an optional YAML file, an optional
// .env file and AICACIA_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// DefaultBaseURL is the backend address used when nothing overrides it.
const DefaultBaseURL = "http://localhost:8000"

// Config holds the complete client configuration.
type Config struct {
	API       APIConfig       `koanf:"api"`
	Token     TokenConfig     `koanf:"token"`
	Chat      ChatConfig      `koanf:"chat"`
	History   HistoryConfig   `koanf:"history"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// APIConfig configures the backend HTTP client.
type APIConfig struct {
	BaseURL string `koanf:"base_url"`
	// Timeout of zero leaves the transport defaults in charge.
	Timeout Duration `koanf:"timeout"`
}

// TokenConfig configures where the bearer token is persisted.
type TokenConfig struct {
	Path string `koanf:"path"`
}

// ChatConfig tunes the new-thread listing refresh.
type ChatConfig struct {
	ThreadRefreshDelay    Duration `koanf:"thread_refresh_delay"`
	ThreadRefreshAttempts int      `koanf:"thread_refresh_attempts"`
}

// HistoryConfig configures query history pagination.
type HistoryConfig struct {
	PageSize int `koanf:"page_size"`
}

// LoggingConfig is the file-level view of logging settings.
// The logging package converts it into its own Config.
type LoggingConfig struct {
	Level      string `koanf:"level"`
	Format     string `koanf:"format"`
	File       string `koanf:"file"`
	Stderr     bool   `koanf:"stderr"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
}

// TelemetryConfig is the file-level view of OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled        bool     `koanf:"enabled"`
	Endpoint       string   `koanf:"endpoint"`
	Insecure       bool     `koanf:"insecure"`
	ServiceName    string   `koanf:"service_name"`
	ServiceVersion string   `koanf:"service_version"`
	SamplingRate   float64  `koanf:"sampling_rate"`
	ExportInterval Duration `koanf:"export_interval"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	dir := Dir()
	return &Config{
		API: APIConfig{
			BaseURL: DefaultBaseURL,
		},
		Token: TokenConfig{
			Path: filepath.Join(dir, "token.json"),
		},
		Chat: ChatConfig{
			ThreadRefreshDelay:    Duration(500 * time.Millisecond),
			ThreadRefreshAttempts: 3,
		},
		History: HistoryConfig{
			PageSize: 20,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			File:       filepath.Join(dir, "logs", "aicacia.log"),
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Telemetry: TelemetryConfig{
			Enabled:        false,
			Endpoint:       "localhost:4318",
			Insecure:       true,
			ServiceName:    "aicacia",
			ServiceVersion: "0.1.0",
			SamplingRate:   1.0,
			ExportInterval: Duration(15 * time.Second),
		},
	}
}

// Dir returns the aicacia configuration directory (~/.config/aicacia).
// Falls back to a relative directory when the home directory is unknown.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".aicacia"
	}
	return filepath.Join(home, ".config", "aicacia")
}

// Validate validates the configuration.
//
// Returns an error if:
//   - the API base URL is not an absolute http(s) URL
//   - the token path is empty
//   - the history page size is not positive
//   - the thread refresh attempt bound is not positive
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid api.base_url %q: %w", c.API.BaseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute http(s) URL, got %q", c.API.BaseURL)
	}

	if c.Token.Path == "" {
		return errors.New("token.path is required")
	}

	if c.History.PageSize <= 0 {
		return fmt.Errorf("history.page_size must be positive, got %d", c.History.PageSize)
	}

	if c.Chat.ThreadRefreshAttempts <= 0 {
		return fmt.Errorf("chat.thread_refresh_attempts must be positive, got %d", c.Chat.ThreadRefreshAttempts)
	}

	return nil
}
