package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// AgentConfig is the configuration for nbagentd.
// Loaded from ~/.config/notibridge/agent.toml
type AgentConfig struct {
	Relay AgentRelayConfig `toml:"relay"`
	Log   LogConfig        `toml:"log"`
}

// AgentRelayConfig describes how the agent reaches the host relay.
// Exactly one of Command and Socket is used; Socket wins when both are set.
type AgentRelayConfig struct {
	// Command is the argv of a program whose stdin/stdout carry frames to
	// the relay. On Qubes this is the qrexec client.
	Command []string `toml:"command"`

	// Socket is a unix socket the relay listens on. Meant for running both
	// halves on one machine.
	Socket string `toml:"socket"`

	ConnectTimeout Duration `toml:"connect_timeout"` // Handshake deadline
	NotifyTimeout  Duration `toml:"notify_timeout"`  // Per-request reply deadline
	RetryMin       Duration `toml:"retry_min"`       // Initial reconnect backoff
	RetryMax       Duration `toml:"retry_max"`       // Backoff ceiling
}

// DefaultAgentConfig returns a new AgentConfig with default values.
func DefaultAgentConfig() *AgentConfig {
	return &AgentConfig{
		Relay: AgentRelayConfig{
			Command:        []string{"qrexec-client-vm", "dom0", "notibridge.Relay"},
			Socket:         "",
			ConnectTimeout: Duration(5 * time.Second),
			NotifyTimeout:  Duration(25 * time.Second),
			RetryMin:       Duration(1 * time.Second),
			RetryMax:       Duration(30 * time.Second),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadAgentConfig loads the agent configuration from the given path, or the
// default path when empty. A missing file yields the default configuration.
func LoadAgentConfig(path string) (*AgentConfig, error) {
	if path == "" {
		var err error
		path, err = AgentConfigPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get config path: %w", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultAgentConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Start with defaults, then overlay with file contents
	cfg := DefaultAgentConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Save writes the agent configuration to the given path.
func (c *AgentConfig) Save(path string) error {
	if path == "" {
		var err error
		path, err = AgentConfigPath()
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
func (c *AgentConfig) Validate() error {
	if len(c.Relay.Command) == 0 && c.Relay.Socket == "" {
		return fmt.Errorf("relay needs either a command or a socket")
	}
	if c.Relay.ConnectTimeout <= 0 {
		return fmt.Errorf("connect_timeout must be positive, got %s", c.Relay.ConnectTimeout.Duration())
	}
	if c.Relay.NotifyTimeout <= 0 {
		return fmt.Errorf("notify_timeout must be positive, got %s", c.Relay.NotifyTimeout.Duration())
	}
	if c.Relay.RetryMin <= 0 {
		return fmt.Errorf("retry_min must be positive, got %s", c.Relay.RetryMin.Duration())
	}
	if c.Relay.RetryMax < c.Relay.RetryMin {
		return fmt.Errorf("retry_max %s is below retry_min %s",
			c.Relay.RetryMax.Duration(), c.Relay.RetryMin.Duration())
	}
	if err := validateLogLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}
