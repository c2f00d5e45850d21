package phoenix

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
)

// Config represents configuration for a Socket.
type Config struct {
	// HeartbeatInterval is how often a heartbeat frame is sent.
	HeartbeatInterval time.Duration `json:"heartbeat_interval" yaml:"heartbeat_interval"`

	// HeartbeatTimeoutFactor is the number of heartbeat intervals without
	// any inbound traffic after which the connection is declared dead.
	HeartbeatTimeoutFactor int `json:"heartbeat_timeout_factor" yaml:"heartbeat_timeout_factor"`

	// JoinTimeout bounds how long a join (or rejoin) handshake may wait for
	// its acknowledgement.
	JoinTimeout time.Duration `json:"join_timeout" yaml:"join_timeout"`

	// LeaveTimeout bounds how long a leave handshake may wait for its
	// acknowledgement. On timeout the channel is still closed locally.
	LeaveTimeout time.Duration `json:"leave_timeout" yaml:"leave_timeout"`

	// QueueSize is the per-channel delivery queue capacity. Frames arriving
	// while the queue is full are dropped and counted.
	QueueSize int `json:"queue_size" yaml:"queue_size"`

	// Backoff is the reconnect retry policy.
	Backoff BackoffConfig `json:"backoff" yaml:"backoff"`

	// Clock drives heartbeats, timeouts and backoff sleeps. Nil means the
	// wall clock; tests inject a mock.
	Clock clock.Clock `json:"-" yaml:"-"`
}

// DefaultConfig returns a default socket configuration.
func DefaultConfig() *Config {
	return &Config{
		HeartbeatInterval:      30 * time.Second,
		HeartbeatTimeoutFactor: 3,
		JoinTimeout:            10 * time.Second,
		LeaveTimeout:           5 * time.Second,
		QueueSize:              128,
		Backoff:                DefaultBackoffConfig(),
	}
}

// ValidateConfig validates a socket configuration.
func ValidateConfig(cfg *Config) error {
	if cfg.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive")
	}
	if cfg.HeartbeatTimeoutFactor < 1 {
		return fmt.Errorf("heartbeat timeout factor must be at least 1")
	}
	if cfg.JoinTimeout <= 0 || cfg.LeaveTimeout <= 0 {
		return fmt.Errorf("join and leave timeouts must be positive")
	}
	if cfg.QueueSize < 1 {
		return fmt.Errorf("queue size must be at least 1")
	}
	if cfg.Backoff.InitialDelay <= 0 {
		return fmt.Errorf("backoff initial delay must be positive")
	}
	if cfg.Backoff.Multiplier < 1 {
		return fmt.Errorf("backoff multiplier must be at least 1")
	}
	if cfg.Backoff.MaxDelay < cfg.Backoff.InitialDelay {
		return fmt.Errorf("backoff max delay must not be below the initial delay")
	}
	return nil
}

func (c *Config) clock() clock.Clock {
	if c.Clock != nil {
		return c.Clock
	}
	return clock.New()
}
