// Package resilience provides retry and rate-limit cooldown patterns for
// external service calls.
package resilience

import (
	"context"
	"sync"
	"time"
)

// CooldownConfig controls how long a lane pauses after a rate-limit refusal.
type CooldownConfig struct {
	// Period is the pause after the first refusal. Default: 60s.
	Period time.Duration

	// MaxPeriod caps the pause when refusals repeat without an intervening
	// success. Each consecutive refusal doubles the pause. Default: 10m.
	MaxPeriod time.Duration

	// OnTrip is called whenever a lane is paused.
	OnTrip func(lane string, pause time.Duration)
}

// DefaultCooldownConfig returns sensible defaults.
func DefaultCooldownConfig() CooldownConfig {
	return CooldownConfig{
		Period:    60 * time.Second,
		MaxPeriod: 10 * time.Minute,
	}
}

// Cooldown pauses one lane of work after a dependency reports a rate limit.
// Work consults Wait before calling the dependency again.
type Cooldown struct {
	name string
	cfg  CooldownConfig

	mu          sync.Mutex
	until       time.Time
	consecutive int
	trips       int

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewCooldown creates a cooldown lane with the given config.
func NewCooldown(name string, cfg CooldownConfig) *Cooldown {
	if cfg.Period <= 0 {
		cfg.Period = 60 * time.Second
	}
	if cfg.MaxPeriod < cfg.Period {
		cfg.MaxPeriod = cfg.Period
	}
	return &Cooldown{
		name:    name,
		cfg:     cfg,
		nowFunc: time.Now,
	}
}

// Name returns the lane name.
func (c *Cooldown) Name() string { return c.name }

// Trip pauses the lane. Repeated trips without a Success double the pause up
// to MaxPeriod. A trip never shortens a pause already in effect.
func (c *Cooldown) Trip() time.Duration {
	c.mu.Lock()
	c.consecutive++
	c.trips++
	pause := c.cfg.Period
	for i := 1; i < c.consecutive && pause < c.cfg.MaxPeriod; i++ {
		pause *= 2
	}
	if pause > c.cfg.MaxPeriod {
		pause = c.cfg.MaxPeriod
	}
	until := c.nowFunc().Add(pause)
	if until.After(c.until) {
		c.until = until
	}
	c.mu.Unlock()

	if c.cfg.OnTrip != nil {
		c.cfg.OnTrip(c.name, pause)
	}
	return pause
}

// Success resets the escalation counter. It does not end a pause in effect.
func (c *Cooldown) Success() {
	c.mu.Lock()
	c.consecutive = 0
	c.mu.Unlock()
}

// Remaining returns how long the lane stays paused.
func (c *Cooldown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.until.Sub(c.nowFunc())
	if d < 0 {
		return 0
	}
	return d
}

// Active reports whether the lane is paused.
func (c *Cooldown) Active() bool {
	return c.Remaining() > 0
}

// Trips returns how many times the lane was paused.
func (c *Cooldown) Trips() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trips
}

// Wait blocks until the lane is open or ctx is done. A trip that happens
// while waiting extends the wait.
func (c *Cooldown) Wait(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		d := c.Remaining()
		if d <= 0 {
			return nil
		}
		if !sleep(ctx, d) {
			return ctx.Err()
		}
	}
}

// Lanes manages cooldowns for multiple lanes.
type Lanes struct {
	mu    sync.RWMutex
	lanes map[string]*Cooldown
	cfg   CooldownConfig
}

// NewLanes creates a registry of per-lane cooldowns.
func NewLanes(cfg CooldownConfig) *Lanes {
	return &Lanes{
		lanes: make(map[string]*Cooldown),
		cfg:   cfg,
	}
}

// Get returns the cooldown for the named lane, creating one if needed.
func (l *Lanes) Get(lane string) *Cooldown {
	l.mu.RLock()
	c, ok := l.lanes[lane]
	l.mu.RUnlock()
	if ok {
		return c
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok = l.lanes[lane]; ok {
		return c
	}
	c = NewCooldown(lane, l.cfg)
	l.lanes[lane] = c
	return c
}

// Remaining returns the pause left on every known lane.
func (l *Lanes) Remaining() map[string]time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]time.Duration, len(l.lanes))
	for name, c := range l.lanes {
		out[name] = c.Remaining()
	}
	return out
}
