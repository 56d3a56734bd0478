package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// RelayConfig is the configuration for nbrelayd.
// Loaded from ~/.config/notibridge/relay.toml
type RelayConfig struct {
	Listen  ListenConfig  `toml:"listen"`
	Policy  PolicyConfig  `toml:"policy"`
	Limits  LimitsConfig  `toml:"limits"`
	Journal JournalConfig `toml:"journal"`
	Log     LogConfig     `toml:"log"`
}

// ListenConfig selects how agents reach the relay.
type ListenConfig struct {
	// Socket is a unix socket path to listen on. Empty means serve a
	// single session on stdin/stdout, which is what qrexec invocation
	// expects.
	Socket string `toml:"socket"`
}

// PolicyConfig contains presentation settings for forwarded notifications.
type PolicyConfig struct {
	// AppName is reported to the daemon when forward_app_name is off or
	// the guest sent none.
	AppName string `toml:"app_name"`

	// SummaryPrefix is prepended to every summary. The {peer} placeholder
	// expands to the connecting peer's name.
	SummaryPrefix string `toml:"summary_prefix"`

	ForwardAppName bool `toml:"forward_app_name"`
	ForwardImages  bool `toml:"forward_images"`
}

// RenderPrefix substitutes the peer name into the summary prefix.
func (p PolicyConfig) RenderPrefix(peer string) string {
	return strings.ReplaceAll(p.SummaryPrefix, "{peer}", peer)
}

// LimitsConfig contains per-session throttling settings.
type LimitsConfig struct {
	Rate          float64  `toml:"rate"`           // Notifications per second
	Burst         int      `toml:"burst"`          // Burst allowance on top of rate
	InFlight      int      `toml:"in_flight"`      // Concurrent daemon calls
	NotifyTimeout Duration `toml:"notify_timeout"` // Deadline per daemon call
}

// JournalConfig contains event journal settings.
type JournalConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"` // Empty = default data directory
}

// DefaultRelayConfig returns a new RelayConfig with default values.
func DefaultRelayConfig() *RelayConfig {
	return &RelayConfig{
		Listen: ListenConfig{
			Socket: "",
		},
		Policy: PolicyConfig{
			AppName:        "notibridge",
			SummaryPrefix:  "[{peer}] ",
			ForwardAppName: false,
			ForwardImages:  false,
		},
		Limits: LimitsConfig{
			Rate:          20,
			Burst:         40,
			InFlight:      16,
			NotifyTimeout: Duration(25 * time.Second),
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    "",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadRelayConfig loads the relay configuration from the given path, or the
// default path when empty. A missing file yields the default configuration.
func LoadRelayConfig(path string) (*RelayConfig, error) {
	if path == "" {
		var err error
		path, err = RelayConfigPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get config path: %w", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultRelayConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Start with defaults, then overlay with file contents
	cfg := DefaultRelayConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Save writes the relay configuration to the given path.
func (c *RelayConfig) Save(path string) error {
	if path == "" {
		var err error
		path, err = RelayConfigPath()
		if err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write atomically via temp file
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return os.Rename(tmpPath, path)
}

// Validate checks if the configuration is valid.
func (c *RelayConfig) Validate() error {
	if c.Limits.Rate <= 0 {
		return fmt.Errorf("rate must be positive, got %v", c.Limits.Rate)
	}
	if c.Limits.Burst < 1 {
		return fmt.Errorf("burst must be at least 1, got %d", c.Limits.Burst)
	}
	if c.Limits.InFlight < 1 || c.Limits.InFlight > 256 {
		return fmt.Errorf("in_flight must be between 1 and 256, got %d", c.Limits.InFlight)
	}
	if c.Limits.NotifyTimeout <= 0 {
		return fmt.Errorf("notify_timeout must be positive, got %s", c.Limits.NotifyTimeout.Duration())
	}
	if c.Policy.AppName == "" {
		return fmt.Errorf("app_name must not be empty")
	}
	if err := validateLogLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// JournalFile returns the configured journal path, falling back to the
// default data directory.
func (c *RelayConfig) JournalFile() string {
	if c.Journal.Path != "" {
		return c.Journal.Path
	}
	return JournalPath()
}
