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

	"github.com/isuku/isuku-dispatch/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertStalePickups AlertType = "stale_pickups"
	AlertNoCollectors AlertType = "no_collectors"
)

// Alert is a single alert delivered to the webhook.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates snapshots against thresholds and posts alerts to a
// webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates an Alerter.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate returns the alerts snap triggers.
func (a *Alerter) Evaluate(snap *BacklogSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	threshold := a.cfg.StaleThreshold
	if threshold <= 0 {
		threshold = 1
	}
	if snap.StalePickups >= threshold {
		alerts = append(alerts, Alert{
			Type:     AlertStalePickups,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d pickup(s) unassigned for more than %s (threshold %d)",
				snap.StalePickups, snap.StaleAfter, threshold,
			),
			Details: map[string]any{
				"stale":      snap.StalePickups,
				"unassigned": snap.UnassignedPickups,
				"unlocated":  snap.UnlocatedPickups,
				"threshold":  threshold,
			},
			Timestamp: now,
		})
	}

	if snap.AvailableCollectors == 0 && snap.UnassignedPickups > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertNoCollectors,
			Severity: "critical",
			Message: fmt.Sprintf(
				"no located collector is available for %d unassigned pickup(s)",
				snap.UnassignedPickups,
			),
			Details: map[string]any{
				"unassigned": snap.UnassignedPickups,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts posts alerts to the webhook and returns how many were
// delivered. Without a webhook URL nothing is sent.
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
