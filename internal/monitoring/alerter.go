package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/nonprofit-cli/internal/config"
	"github.com/sells-group/nonprofit-cli/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertErrorRate     AlertType = "error_rate"
	AlertRateLimitRate AlertType = "rate_limit_rate"
	AlertCostOverrun   AlertType = "cost_overrun"
)

// minProcessedForRates keeps ratios from firing on the first few outcomes.
const minProcessedForRates = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	RunID     string         `json:"run_id"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates run statistics against configured thresholds and posts
// alerts to a webhook.
type Alerter struct {
	cfg    config.MonitorConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitor config.
func NewAlerter(cfg config.MonitorConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap model.StatsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if snap.Processed >= minProcessedForRates {
		errRate := float64(snap.Errors) / float64(snap.Processed)
		if a.cfg.ErrorRateThreshold > 0 && errRate > a.cfg.ErrorRateThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertErrorRate,
				Severity: "high",
				Message: fmt.Sprintf(
					"%s: error rate %.1f%% exceeds threshold %.1f%% (%d of %d processed)",
					snap.State, errRate*100, a.cfg.ErrorRateThreshold*100, snap.Errors, snap.Processed,
				),
				RunID: snap.RunID,
				Details: map[string]any{
					"error_rate": errRate,
					"threshold":  a.cfg.ErrorRateThreshold,
					"errors":     snap.Errors,
					"processed":  snap.Processed,
				},
				Timestamp: now,
			})
		}

		rlRate := float64(snap.RateLimited) / float64(snap.Processed)
		if a.cfg.RateLimitThreshold > 0 && rlRate > a.cfg.RateLimitThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertRateLimitRate,
				Severity: "medium",
				Message: fmt.Sprintf(
					"%s: %d of %d organizations rate limited (%.1f%%)",
					snap.State, snap.RateLimited, snap.Processed, rlRate*100,
				),
				RunID: snap.RunID,
				Details: map[string]any{
					"rate_limited": snap.RateLimited,
					"threshold":    a.cfg.RateLimitThreshold,
				},
				Timestamp: now,
			})
		}
	}

	if a.cfg.CostThresholdUSD > 0 && snap.AICostUSD > a.cfg.CostThresholdUSD {
		alerts = append(alerts, Alert{
			Type:     AlertCostOverrun,
			Severity: "high",
			Message: fmt.Sprintf(
				"%s: AI extraction cost $%.2f exceeds threshold $%.2f",
				snap.State, snap.AICostUSD, a.cfg.CostThresholdUSD,
			),
			RunID: snap.RunID,
			Details: map[string]any{
				"cost_usd":      snap.AICostUSD,
				"threshold_usd": a.cfg.CostThresholdUSD,
				"ai_count":      snap.AISuccess,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
