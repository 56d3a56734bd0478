// Package config handles configuration file loading and parsing.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Duration is a time.Duration that can be unmarshaled from human-readable strings.
// Supports formats like "5s", "10s", "1m", "1h30m", or integer milliseconds for backwards compatibility.
// A value of "0" or 0 means disabled.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML parsing.
func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)

	// Try parsing as integer (milliseconds) for backwards compatibility
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}

	// Parse as duration string (e.g., "5s", "1m", "1h30m")
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: must be like '5s', '1m', '1h30m' or milliseconds: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalText implements encoding.TextMarshaler for TOML output.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// LogConfig contains logging settings shared by both daemons.
type LogConfig struct {
	Level string `toml:"level"` // "debug", "info", "warn", "error"
}

// ValidLogLevels returns all valid log level values.
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

func validateLogLevel(level string) error {
	for _, l := range ValidLogLevels() {
		if level == l {
			return nil
		}
	}
	return fmt.Errorf("invalid log level %q, must be one of: %v", level, ValidLogLevels())
}

// SlogLevel maps the configured level onto slog. Unknown values fall back
// to info.
func (c LogConfig) SlogLevel() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// AgentConfigPath returns the path to the guest agent config file.
func AgentConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "notibridge", "agent.toml"), nil
}

// RelayConfigPath returns the path to the host relay config file.
func RelayConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "notibridge", "relay.toml"), nil
}

// DataPath returns the path to the data directory.
// Uses XDG_DATA_HOME if set, otherwise ~/.local/share.
func DataPath() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "notibridge")
}

// JournalPath returns the path to the relay journal JSONL file.
func JournalPath() string {
	return filepath.Join(DataPath(), "journal.jsonl")
}

// RuntimeSocketPath returns the default relay listening socket. Uses
// XDG_RUNTIME_DIR if set, otherwise falls back under the data directory.
func RuntimeSocketPath() string {
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return filepath.Join(runtimeDir, "notibridge", "relay.sock")
	}
	return filepath.Join(DataPath(), "relay.sock")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	path := DataPath()
	if path == "" {
		return errors.New("unable to determine data directory")
	}
	return os.MkdirAll(path, 0700)
}
