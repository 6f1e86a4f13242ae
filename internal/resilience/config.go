package resilience

import (
	"time"
)

// FromRetryConfig converts config values to a RetryConfig.
func FromRetryConfig(maxAttempts, initialBackoffMs, maxBackoffMs int, multiplier, jitterFraction float64) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if initialBackoffMs > 0 {
		cfg.InitialBackoff = time.Duration(initialBackoffMs) * time.Millisecond
	}
	if maxBackoffMs > 0 {
		cfg.MaxBackoff = time.Duration(maxBackoffMs) * time.Millisecond
	}
	if multiplier > 0 {
		cfg.Multiplier = multiplier
	}
	if jitterFraction >= 0 {
		cfg.JitterFraction = jitterFraction
	}
	return cfg
}

// FromCooldownConfig converts config values to a CooldownConfig.
func FromCooldownConfig(periodSecs, maxPeriodSecs int) CooldownConfig {
	cfg := DefaultCooldownConfig()
	if periodSecs > 0 {
		cfg.Period = time.Duration(periodSecs) * time.Second
	}
	if maxPeriodSecs > 0 {
		cfg.MaxPeriod = time.Duration(maxPeriodSecs) * time.Second
	}
	return cfg
}
