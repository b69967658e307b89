// Package monitoring flags pipeline runs whose output quality looks wrong
// and reports them to a webhook.
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

	"github.com/sells-group/listings-cli/internal/config"
	"github.com/sells-group/listings-cli/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRejectionRate   AlertType = "rejection_rate"
	AlertCoordinateShare AlertType = "coordinate_share"
	AlertNothingAccepted AlertType = "nothing_accepted"
)

const defaultMinRecords = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Source    string         `json:"source,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates run stats against configured thresholds and sends
// alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	if cfg.MinRecords <= 0 {
		cfg.MinRecords = defaultMinRecords
	}
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the stats of one run and returns any alerts. Runs smaller
// than MinRecords only raise the nothing-accepted alert.
func (a *Alerter) Evaluate(source string, s model.RunStats) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if s.Raw > 0 && s.Accepted == 0 {
		return []Alert{{
			Type:      AlertNothingAccepted,
			Severity:  "high",
			Message:   fmt.Sprintf("No listing accepted out of %d raw records", s.Raw),
			Source:    source,
			Details:   map[string]any{"raw": s.Raw, "rejected": s.Rejected},
			Timestamp: now,
		}}
	}

	if s.Raw >= a.cfg.MinRecords && a.cfg.MaxRejectionRate > 0 {
		rejected := 0
		for _, n := range s.Rejected {
			rejected += n
		}
		rate := float64(rejected) / float64(s.Raw)
		if rate > a.cfg.MaxRejectionRate {
			alerts = append(alerts, Alert{
				Type:     AlertRejectionRate,
				Severity: "medium",
				Message: fmt.Sprintf(
					"Rejection rate %.1f%% exceeds threshold %.1f%% (%d rejected / %d raw)",
					rate*100, a.cfg.MaxRejectionRate*100, rejected, s.Raw,
				),
				Source: source,
				Details: map[string]any{
					"rejection_rate": rate,
					"threshold":      a.cfg.MaxRejectionRate,
					"rejected":       s.Rejected,
				},
				Timestamp: now,
			})
		}
	}

	kept := s.Accepted
	if kept >= a.cfg.MinRecords && a.cfg.MinCoordinateShare > 0 {
		share := float64(s.WithCoordinates) / float64(kept)
		if share < a.cfg.MinCoordinateShare {
			alerts = append(alerts, Alert{
				Type:     AlertCoordinateShare,
				Severity: "medium",
				Message: fmt.Sprintf(
					"Only %.1f%% of listings can be mapped, below %.1f%% (%d of %d)",
					share*100, a.cfg.MinCoordinateShare*100, s.WithCoordinates, kept,
				),
				Source: source,
				Details: map[string]any{
					"coordinate_share": share,
					"threshold":        a.cfg.MinCoordinateShare,
					"geocoded":         s.Geocoded,
					"out_of_region":    s.OutOfRegion,
				},
				Timestamp: now,
			})
		}
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL. Without a URL
// the alerts are only logged. Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	for _, alert := range alerts {
		zap.L().Warn("monitoring: run quality alert",
			zap.String("type", string(alert.Type)),
			zap.String("message", alert.Message),
		)
	}
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

// sendWebhook posts a single alert to the webhook URL.
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
