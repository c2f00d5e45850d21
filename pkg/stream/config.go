package stream

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/DeBrosOfficial/seastream/pkg/phoenix"
)

// Config represents configuration for a stream client.
type Config struct {
	Network Network `json:"network" yaml:"network"`
	APIKey  string  `json:"api_key" yaml:"api_key"`

	HeartbeatInterval time.Duration `json:"heartbeat_interval" yaml:"heartbeat_interval"`
	JoinTimeout       time.Duration `json:"join_timeout" yaml:"join_timeout"`
	LeaveTimeout      time.Duration `json:"leave_timeout" yaml:"leave_timeout"`
	QueueSize         int           `json:"queue_size" yaml:"queue_size"`

	Reconnect phoenix.BackoffConfig `json:"reconnect" yaml:"reconnect"`

	// QuietMode suppresses debug/info logs.
	QuietMode bool `json:"quiet_mode" yaml:"quiet_mode"`
}

// DefaultConfig returns a default client configuration for the given API key.
func DefaultConfig(apiKey string) *Config {
	socket := phoenix.DefaultConfig()
	return &Config{
		Network:           NetworkMainnet,
		APIKey:            apiKey,
		HeartbeatInterval: socket.HeartbeatInterval,
		JoinTimeout:       socket.JoinTimeout,
		LeaveTimeout:      socket.LeaveTimeout,
		QueueSize:         socket.QueueSize,
		Reconnect:         socket.Backoff,
		QuietMode:         false,
	}
}

// LoadConfig reads a YAML configuration file, applying defaults for any
// field the file leaves unset.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig("")
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// ValidateConfig validates a client configuration.
func ValidateConfig(cfg *Config) error {
	if cfg.APIKey == "" {
		return fmt.Errorf("an API key is required")
	}
	if _, err := cfg.Network.EndpointURL(); err != nil {
		return err
	}
	return nil
}

// socketConfig translates the client configuration into the socket's.
func (c *Config) socketConfig() *phoenix.Config {
	socket := phoenix.DefaultConfig()
	if c.HeartbeatInterval > 0 {
		socket.HeartbeatInterval = c.HeartbeatInterval
	}
	if c.JoinTimeout > 0 {
		socket.JoinTimeout = c.JoinTimeout
	}
	if c.LeaveTimeout > 0 {
		socket.LeaveTimeout = c.LeaveTimeout
	}
	if c.QueueSize > 0 {
		socket.QueueSize = c.QueueSize
	}
	if c.Reconnect.InitialDelay > 0 {
		socket.Backoff = c.Reconnect
	}
	return socket
}
