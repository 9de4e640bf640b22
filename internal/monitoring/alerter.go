package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertFailureRate AlertType = "submission_failure_rate"
	AlertCaptchaRate AlertType = "captcha_unsolved_rate"
)

// Alert is one webhook payload.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// rule turns a snapshot into at most one alert.
type rule struct {
	typ       AlertType
	severity  string
	threshold func(config.MonitorConfig) float64
	rate      func(*MetricsSnapshot) float64
	message   func(*MetricsSnapshot) string
	details   func(*MetricsSnapshot) map[string]any
}

var rules = []rule{
	{
		typ:       AlertFailureRate,
		severity:  "high",
		threshold: func(c config.MonitorConfig) float64 { return c.FailureRateThreshold },
		rate:      func(s *MetricsSnapshot) float64 { return s.FailRate },
		message: func(s *MetricsSnapshot) string {
			return fmt.Sprintf("Submission failure rate %.1f%% (%d failed / %d attempts in last %dh)",
				s.FailRate*100, s.Failed, s.Total, s.LookbackHours)
		},
		details: func(s *MetricsSnapshot) map[string]any {
			return map[string]any{"failed": s.Failed, "total": s.Total, "by_reason": s.ByReason}
		},
	},
	{
		typ:       AlertCaptchaRate,
		severity:  "medium",
		threshold: func(c config.MonitorConfig) float64 { return c.CaptchaRateThreshold },
		rate:      func(s *MetricsSnapshot) float64 { return s.CaptchaRate },
		message: func(s *MetricsSnapshot) string {
			return fmt.Sprintf("%d of %d attempts stopped at an unsolved captcha in last %dh",
				s.CaptchaUnsolved, s.Total, s.LookbackHours)
		},
		details: func(s *MetricsSnapshot) map[string]any {
			return map[string]any{"captcha_unsolved": s.CaptchaUnsolved, "total": s.Total}
		},
	},
}

// Alerter evaluates snapshots against the configured thresholds and posts
// breaches to a webhook. An alert type is not re-sent within repeatAfter.
type Alerter struct {
	cfg         config.MonitorConfig
	client      *http.Client
	retry       resilience.RetryConfig
	repeatAfter time.Duration
	now         func() time.Time

	mu       sync.Mutex
	lastSent map[AlertType]time.Time
}

// NewAlerter creates an Alerter. Repeats are suppressed for one lookback window.
func NewAlerter(cfg config.MonitorConfig) *Alerter {
	repeat := time.Duration(cfg.LookbackWindowHours) * time.Hour
	if repeat <= 0 {
		repeat = time.Hour
	}
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: 200 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
			OnRetry:        resilience.RetryLogger("alert-webhook", "post"),
		},
		repeatAfter: repeat,
		now:         time.Now,
		lastSent:    make(map[AlertType]time.Time),
	}
}

// Evaluate returns an alert for each rule whose rate exceeds its threshold.
// A zero threshold disables a rule, and windows with fewer than MinAttempts
// attempts never alert.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	if snap.Total == 0 || snap.Total < a.cfg.MinAttempts {
		return nil
	}
	now := a.now().UTC()

	var alerts []Alert
	for _, r := range rules {
		limit := r.threshold(a.cfg)
		rate := r.rate(snap)
		if limit <= 0 || rate <= limit {
			continue
		}
		details := r.details(snap)
		details["rate"] = rate
		details["threshold"] = limit
		alerts = append(alerts, Alert{
			Type:      r.typ,
			Severity:  r.severity,
			Message:   fmt.Sprintf("%s exceeds threshold %.1f%%", r.message(snap), limit*100),
			Details:   details,
			Timestamp: now,
		})
	}
	return alerts
}

// SendAlerts posts alerts to the webhook and returns how many were delivered.
// Types delivered within the repeat window are skipped.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if a.recentlySent(alert.Type) {
			zap.L().Debug("monitoring: alert suppressed", zap.String("type", string(alert.Type)))
			continue
		}
		err := resilience.Do(ctx, a.retry, func(ctx context.Context) error {
			return a.post(ctx, alert)
		})
		if err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		a.markSent(alert.Type)
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) recentlySent(t AlertType) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	last, ok := a.lastSent[t]
	return ok && a.now().Sub(last) < a.repeatAfter
}

func (a *Alerter) markSent(t AlertType) {
	a.mu.Lock()
	a.lastSent[t] = a.now()
	a.mu.Unlock()
}

func (a *Alerter) post(ctx context.Context, alert Alert) error {
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

	return resilience.StatusError(resp)
}
