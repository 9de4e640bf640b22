package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Metrics holds the Prometheus instruments updated by the engine.
type Metrics struct {
	AttemptsTotal *prometheus.CounterVec
	FailuresTotal *prometheus.CounterVec
	CaptchaTotal  *prometheus.CounterVec
	Duration      *prometheus.HistogramVec
	InFlight      prometheus.Gauge
}

// NewMetrics registers the engine metrics with reg, or the default registerer when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		AttemptsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "outreach_attempts_total",
			Help: "Submission attempts by outcome and method.",
		}, []string{"outcome", "method"}),
		FailuresTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "outreach_failures_total",
			Help: "Failed or indeterminate attempts by reason.",
		}, []string{"reason"}),
		CaptchaTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "outreach_captcha_total",
			Help: "Captcha challenges encountered by type and result.",
		}, []string{"type", "result"}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "outreach_attempt_duration_seconds",
			Help:    "Wall time of a site attempt.",
			Buckets: []float64{1, 2.5, 5, 10, 20, 40, 60, 120, 240},
		}, []string{"outcome"}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "outreach_attempts_in_flight",
			Help: "Site attempts currently running.",
		}),
	}
}

// Observe records a finished attempt. A nil receiver is a no-op.
func (m *Metrics) Observe(a model.SubmissionAttempt) {
	if m == nil {
		return
	}
	method := string(a.MethodUsed)
	if method == "" {
		method = "none"
	}
	m.AttemptsTotal.WithLabelValues(string(a.Outcome), method).Inc()
	if a.Reason != "" {
		m.FailuresTotal.WithLabelValues(string(a.Reason)).Inc()
	}
	if a.Captcha != nil && a.Captcha.Type != "" {
		result := "unsolved"
		if a.Captcha.Solved {
			result = "solved"
		}
		m.CaptchaTotal.WithLabelValues(a.Captcha.Type, result).Inc()
	}
	m.Duration.WithLabelValues(string(a.Outcome)).Observe(a.Elapsed.Seconds())
}

// Start marks an attempt as running and returns the matching completion func.
func (m *Metrics) Start() func() {
	if m == nil {
		return func() {}
	}
	m.InFlight.Inc()
	return m.InFlight.Dec
}
