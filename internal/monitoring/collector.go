package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of submission outcomes.
type MetricsSnapshot struct {
	Total         int     `json:"total"`
	Succeeded     int     `json:"succeeded"`
	Failed        int     `json:"failed"`
	Indeterminate int     `json:"indeterminate"`
	SuccessRate   float64 `json:"success_rate"`
	FailRate      float64 `json:"fail_rate"`

	// CaptchaUnsolved counts attempts that stopped at an unsolved challenge.
	CaptchaUnsolved int     `json:"captcha_unsolved"`
	CaptchaRate     float64 `json:"captcha_rate"`

	ByReason map[model.FailureReason]int `json:"by_reason,omitempty"`
	ByMethod map[model.Method]int        `json:"by_method,omitempty"`

	AvgElapsedMs int64 `json:"avg_elapsed_ms"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// AttemptLister is the store capability the collector needs.
type AttemptLister interface {
	ListAttempts(ctx context.Context, filter store.AttemptFilter) ([]model.SubmissionAttempt, error)
}

// Collector gathers outcome metrics from persisted attempts.
type Collector struct {
	store AttemptLister
}

// NewCollector creates a new metrics collector.
func NewCollector(st AttemptLister) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot of attempt outcomes over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := time.Now().UTC()
	snap := &MetricsSnapshot{
		ByReason:      map[model.FailureReason]int{},
		ByMethod:      map[model.Method]int{},
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	attempts, err := c.store.ListAttempts(ctx, store.AttemptFilter{
		Since: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit: 10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list attempts")
	}

	var elapsed time.Duration
	for _, a := range attempts {
		snap.Total++
		elapsed += a.Elapsed
		switch a.Outcome {
		case model.OutcomeSuccess:
			snap.Succeeded++
		case model.OutcomeFailed:
			snap.Failed++
		case model.OutcomeIndeterminate:
			snap.Indeterminate++
		}
		if a.Reason != "" {
			snap.ByReason[a.Reason]++
		}
		if a.MethodUsed != "" {
			snap.ByMethod[a.MethodUsed]++
		}
		if a.Reason == model.ReasonCaptchaUnsolved {
			snap.CaptchaUnsolved++
		}
	}

	if snap.Total > 0 {
		snap.SuccessRate = float64(snap.Succeeded) / float64(snap.Total)
		snap.FailRate = float64(snap.Failed) / float64(snap.Total)
		snap.CaptchaRate = float64(snap.CaptchaUnsolved) / float64(snap.Total)
		snap.AvgElapsedMs = elapsed.Milliseconds() / int64(snap.Total)
	}
	return snap, nil
}
