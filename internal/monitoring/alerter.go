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

	"github.com/sells-group/labexam-cli/internal/config"
)

// minDocumentsForRate avoids alerting on a handful of documents.
const minDocumentsForRate = 5

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertFailureRate    AlertType = "extraction_failure_rate"
	AlertLabFailureRate AlertType = "laboratory_failure_rate"
	AlertReviewBacklog  AlertType = "review_backlog"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	finished := snap.DocumentsOK + snap.DocumentsFailed
	if finished >= minDocumentsForRate && snap.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Extraction failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d documents in last %dh)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100,
				snap.DocumentsFailed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.FailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.DocumentsFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	for _, lab := range snap.ByLaboratory {
		if lab.Documents < minDocumentsForRate {
			continue
		}
		rate := float64(lab.Failed) / float64(lab.Documents)
		if rate <= a.cfg.FailureRateThreshold {
			continue
		}
		alerts = append(alerts, Alert{
			Type:     AlertLabFailureRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Laboratory %s failure rate %.1f%% (%d / %d documents in last %dh)",
				lab.Laboratory, rate*100, lab.Failed, lab.Documents, snap.LookbackHours,
			),
			Details: map[string]any{
				"laboratory":   lab.Laboratory,
				"failure_rate": rate,
				"failed":       lab.Failed,
				"documents":    lab.Documents,
			},
			Timestamp: now,
		})
	}

	if a.cfg.PendingThreshold > 0 && snap.PendingCorrections > a.cfg.PendingThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertReviewBacklog,
			Severity: "low",
			Message: fmt.Sprintf(
				"%d corrections awaiting promotion (threshold %d)",
				snap.PendingCorrections, a.cfg.PendingThreshold,
			),
			Details: map[string]any{
				"pending":   snap.PendingCorrections,
				"threshold": a.cfg.PendingThreshold,
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
