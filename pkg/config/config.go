// Package config loads the chatsync client configuration from a TOML file
// with CHATSYNC_ environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment override, e.g. CHATSYNC_SERVER_BASE_URL
const EnvPrefix = "CHATSYNC_"

// Config represents the structure of the client config file
type Config struct {
	Server ServerSection `toml:"server" envPrefix:"SERVER_"`
	Timing TimingSection `toml:"timing" envPrefix:"TIMING_"`
	Client ClientSection `toml:"client" envPrefix:"CLIENT_"`
}

type ServerSection struct {
	BaseURL string `toml:"base_url" env:"BASE_URL"`
	// WSPath is the websocket path; {id} is replaced with the escaped identity
	WSPath        string `toml:"ws_path" env:"WS_PATH"`
	SessionCookie string `toml:"session_cookie" env:"SESSION_COOKIE"`
}

type TimingSection struct {
	ReconnectDelayMS     int `toml:"reconnect_delay_ms" env:"RECONNECT_DELAY_MS"`
	TypingPingIntervalMS int `toml:"typing_ping_interval_ms" env:"TYPING_PING_INTERVAL_MS"`
	TypingIdleMS         int `toml:"typing_idle_ms" env:"TYPING_IDLE_MS"`
	TypingExpiryMS       int `toml:"typing_expiry_ms" env:"TYPING_EXPIRY_MS"`
	RequestTimeoutMS     int `toml:"request_timeout_ms" env:"REQUEST_TIMEOUT_MS"`
}

type ClientSection struct {
	StatePath     string `toml:"state_path" env:"STATE_PATH"`
	LogPath       string `toml:"log_path" env:"LOG_PATH"`
	Notifications bool   `toml:"notifications" env:"NOTIFICATIONS"`
	MetricsAddr   string `toml:"metrics_addr" env:"METRICS_ADDR"`
}

// Default returns the default configuration
func Default() Config {
	return Config{
		Server: ServerSection{
			BaseURL: "http://127.0.0.1:8000",
			WSPath:  "/ws/{id}",
		},
		Timing: TimingSection{
			ReconnectDelayMS:     5000,
			TypingPingIntervalMS: 1000,
			TypingIdleMS:         2000,
			TypingExpiryMS:       3000,
			RequestTimeoutMS:     15000,
		},
		Client: ClientSection{
			StatePath:     "~/.chatsync/state.db",
			LogPath:       "~/.chatsync/debug.log",
			Notifications: true,
		},
	}
}

// Load reads the config at path, writing a documented default file first if
// none exists, then applies environment overrides.
func Load(path string) (Config, error) {
	path, err := ExpandPath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// an unwritable location still runs on defaults
		_ = writeDefault(path)
	} else if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	if cfg.Client.StatePath, err = ExpandPath(cfg.Client.StatePath); err != nil {
		return Config{}, err
	}
	if cfg.Client.LogPath, err = ExpandPath(cfg.Client.LogPath); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate rejects values the client cannot run with
func (c Config) Validate() error {
	if strings.TrimSpace(c.Server.BaseURL) == "" {
		return fmt.Errorf("server.base_url is required")
	}
	if !strings.Contains(c.Server.WSPath, "{id}") {
		return fmt.Errorf("server.ws_path %q must contain {id}", c.Server.WSPath)
	}
	for name, ms := range map[string]int{
		"timing.reconnect_delay_ms":      c.Timing.ReconnectDelayMS,
		"timing.typing_ping_interval_ms": c.Timing.TypingPingIntervalMS,
		"timing.typing_idle_ms":          c.Timing.TypingIdleMS,
		"timing.typing_expiry_ms":        c.Timing.TypingExpiryMS,
		"timing.request_timeout_ms":      c.Timing.RequestTimeoutMS,
	} {
		if ms <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, ms)
		}
	}
	return nil
}

// ReconnectDelay and friends convert the millisecond settings
func (t TimingSection) ReconnectDelay() time.Duration {
	return time.Duration(t.ReconnectDelayMS) * time.Millisecond
}

func (t TimingSection) TypingPingInterval() time.Duration {
	return time.Duration(t.TypingPingIntervalMS) * time.Millisecond
}

func (t TimingSection) TypingIdle() time.Duration {
	return time.Duration(t.TypingIdleMS) * time.Millisecond
}

func (t TimingSection) TypingExpiry() time.Duration {
	return time.Duration(t.TypingExpiryMS) * time.Millisecond
}

func (t TimingSection) RequestTimeout() time.Duration {
	return time.Duration(t.RequestTimeoutMS) * time.Millisecond
}

// ExpandPath replaces a leading ~/ with the home directory
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}

// writeDefault writes the default config with every option documented
func writeDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultFile), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

const defaultFile = `# chatsync client configuration
# This file was auto-generated with default values.
#
# Environment variables override these settings:
# CHATSYNC_SECTION_KEY (e.g. CHATSYNC_SERVER_BASE_URL=https://chat.example.com)

[server]
# HTTP base of the chat server; the websocket URL is derived from it
base_url = "http://127.0.0.1:8000"

# Websocket path, {id} is replaced with your user id
ws_path = "/ws/{id}"

# Session token sent as the access_token cookie
# Uncomment or set CHATSYNC_SERVER_SESSION_COOKIE:
# session_cookie = ""

[timing]
# Delay before reconnecting after an unexpected disconnect
reconnect_delay_ms = 5000

# Minimum spacing between outgoing typing notifications
typing_ping_interval_ms = 1000

# Local typing ends after this much keyboard silence
typing_idle_ms = 2000

# A remote typing indicator disappears after this long without a refresh
typing_expiry_ms = 3000

# Timeout for REST requests
request_timeout_ms = 15000

[client]
# Local state database (contacts, unread flags, connection history)
state_path = "~/.chatsync/state.db"

# Debug log
log_path = "~/.chatsync/debug.log"

# Desktop notifications for unread private messages
notifications = true

# Address for the prometheus /metrics listener, empty disables it
# metrics_addr = "127.0.0.1:9464"
`
