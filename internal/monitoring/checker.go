package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/nonprofit-cli/internal/model"
)

// Snapshotter exposes the current run statistics.
type Snapshotter interface {
	Snapshot() model.StatsSnapshot
}

// Checker runs periodic alert checks while a run is in progress. Each alert
// type is sent at most once per run.
type Checker struct {
	stats    Snapshotter
	alerter  *Alerter
	interval time.Duration

	fired map[AlertType]bool
}

// NewChecker creates a background alert checker. interval <= 0 means 30s.
func NewChecker(stats Snapshotter, alerter *Alerter, interval time.Duration) *Checker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Checker{
		stats:    stats,
		alerter:  alerter,
		interval: interval,
		fired:    make(map[AlertType]bool),
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Debug("starting alert checker", zap.Duration("interval", c.interval))

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("alert checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

// check evaluates the current snapshot and returns how many alerts were
// newly triggered.
func (c *Checker) check(ctx context.Context, log *zap.Logger) int {
	var fresh []Alert
	for _, a := range c.alerter.Evaluate(c.stats.Snapshot()) {
		if c.fired[a.Type] {
			continue
		}
		c.fired[a.Type] = true
		fresh = append(fresh, a)
	}
	if len(fresh) == 0 {
		return 0
	}

	for _, a := range fresh {
		log.Warn("monitoring: threshold breached",
			zap.String("type", string(a.Type)),
			zap.String("message", a.Message),
		)
	}
	sent := c.alerter.SendAlerts(ctx, fresh)
	log.Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(fresh)),
		zap.Int("alerts_sent", sent),
	)
	return len(fresh)
}
