package monitoring

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/catfim/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertUnmappedRate AlertType = "unmapped_rate"
	AlertHUCFailure   AlertType = "huc_failure"
	AlertEmptyLibrary AlertType = "empty_library"
)

// Alert is one threshold breach of a run.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a Snapshot against the configured thresholds.
type Alerter struct {
	cfg config.MetricsConfig
	now func() time.Time
}

// NewAlerter creates an Alerter.
func NewAlerter(cfg config.MetricsConfig) *Alerter {
	return &Alerter{cfg: cfg, now: time.Now}
}

// Evaluate returns the alerts raised by snap.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := a.now().UTC()

	if snap.Total > 0 && snap.Mapped == 0 {
		alerts = append(alerts, Alert{
			Type:      AlertEmptyLibrary,
			Severity:  "high",
			Message:   fmt.Sprintf("no gauge was mapped out of %d", snap.Total),
			Details:   map[string]any{"total": snap.Total},
			Timestamp: now,
		})
	}

	if snap.Total >= a.cfg.MinGauges && a.cfg.UnmappedRateThreshold > 0 &&
		snap.UnmappedRate > a.cfg.UnmappedRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertUnmappedRate,
			Severity: "medium",
			Message: fmt.Sprintf("unmapped rate %.1f%% exceeds threshold %.1f%% (%d of %d gauges)",
				snap.UnmappedRate*100, a.cfg.UnmappedRateThreshold*100, snap.Unmapped, snap.Total),
			Details: map[string]any{
				"unmapped_rate": snap.UnmappedRate,
				"threshold":     a.cfg.UnmappedRateThreshold,
				"by_kind":       snap.ByKind,
			},
			Timestamp: now,
		})
	}

	if snap.HUCFailures > 0 {
		alerts = append(alerts, Alert{
			Type:      AlertHUCFailure,
			Severity:  "high",
			Message:   fmt.Sprintf("%d of %d HUC(s) failed", snap.HUCFailures, snap.HUCs),
			Details:   map[string]any{"failed": snap.HUCFailures},
			Timestamp: now,
		})
	}
	return alerts
}

// Log writes alerts to the run log and returns how many were logged.
func (a *Alerter) Log(alerts []Alert) int {
	log := zap.L().With(zap.String("component", "monitoring"))
	for _, alert := range alerts {
		log.Warn(alert.Message,
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
			zap.Any("details", alert.Details),
		)
	}
	return len(alerts)
}
