package phoenix

import "time"

// BackoffConfig describes the reconnect retry policy: exponential delays
// starting at InitialDelay, multiplied by Multiplier per attempt and capped
// at MaxDelay. MaxAttempts of zero retries forever.
type BackoffConfig struct {
	InitialDelay time.Duration `json:"initial_delay" yaml:"initial_delay"`
	Multiplier   float64       `json:"multiplier" yaml:"multiplier"`
	MaxDelay     time.Duration `json:"max_delay" yaml:"max_delay"`
	MaxAttempts  int           `json:"max_attempts" yaml:"max_attempts"`
}

// DefaultBackoffConfig returns the default reconnect policy.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 1 * time.Second,
		Multiplier:   2.0,
		MaxDelay:     30 * time.Second,
		MaxAttempts:  0,
	}
}

// Delay returns the delay before the given attempt (starting at 0).
func (b BackoffConfig) Delay(attempt int) time.Duration {
	d := float64(b.InitialDelay)
	for i := 0; i < attempt; i++ {
		d *= b.Multiplier
		if time.Duration(d) >= b.MaxDelay {
			return b.MaxDelay
		}
	}
	if time.Duration(d) > b.MaxDelay {
		return b.MaxDelay
	}
	return time.Duration(d)
}

// Exhausted reports whether the given attempt (starting at 0) exceeds the
// configured attempt budget.
func (b BackoffConfig) Exhausted(attempt int) bool {
	return b.MaxAttempts > 0 && attempt >= b.MaxAttempts
}
