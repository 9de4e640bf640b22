package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/config"
)

func testMonitorConfig() config.MonitorConfig {
	return config.MonitorConfig{
		FailureRateThreshold: 0.5,
		CaptchaRateThreshold: 0.3,
		MinAttempts:          5,
	}
}

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(testMonitorConfig())

	alerts := a.Evaluate(&MetricsSnapshot{Total: 20, Failed: 4, FailRate: 0.2, LookbackHours: 24})
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_FailureRate(t *testing.T) {
	a := NewAlerter(testMonitorConfig())

	alerts := a.Evaluate(&MetricsSnapshot{Total: 10, Failed: 7, FailRate: 0.7, LookbackHours: 24})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "70.0%")
}

func TestAlerter_Evaluate_CaptchaRate(t *testing.T) {
	a := NewAlerter(testMonitorConfig())

	alerts := a.Evaluate(&MetricsSnapshot{Total: 10, Failed: 4, FailRate: 0.4, CaptchaUnsolved: 4, CaptchaRate: 0.4, LookbackHours: 6})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertCaptchaRate, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "4 of 10")
}

func TestAlerter_Evaluate_MinimumAttemptsRequired(t *testing.T) {
	a := NewAlerter(testMonitorConfig())

	alerts := a.Evaluate(&MetricsSnapshot{Total: 3, Failed: 3, FailRate: 1, CaptchaUnsolved: 3, CaptchaRate: 1})
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_ZeroThresholdDisables(t *testing.T) {
	a := NewAlerter(config.MonitorConfig{MinAttempts: 1})

	alerts := a.Evaluate(&MetricsSnapshot{Total: 10, Failed: 10, FailRate: 1, CaptchaUnsolved: 10, CaptchaRate: 1})
	assert.Empty(t, alerts)
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var alert Alert
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		assert.Equal(t, AlertFailureRate, alert.Type)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testMonitorConfig()
	cfg.WebhookURL = srv.URL
	a := NewAlerter(cfg)

	alerts := a.Evaluate(&MetricsSnapshot{Total: 10, Failed: 9, FailRate: 0.9})
	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 1, sent)
	assert.Equal(t, int32(1), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(testMonitorConfig())
	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertFailureRate}})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testMonitorConfig()
	cfg.WebhookURL = srv.URL
	a := NewAlerter(cfg)

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertCaptchaRate}})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testMonitorConfig()
	cfg.WebhookURL = srv.URL
	a := NewAlerter(cfg)

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertFailureRate}})
	assert.Equal(t, 1, sent)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAlerter_SendAlerts_SuppressesRepeats(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testMonitorConfig()
	cfg.WebhookURL = srv.URL
	cfg.LookbackWindowHours = 1
	a := NewAlerter(cfg)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	alerts := []Alert{{Type: AlertFailureRate}, {Type: AlertCaptchaRate}}
	assert.Equal(t, 2, a.SendAlerts(context.Background(), alerts))
	assert.Equal(t, 0, a.SendAlerts(context.Background(), alerts))

	now = now.Add(61 * time.Minute)
	assert.Equal(t, 1, a.SendAlerts(context.Background(), alerts[:1]))
	assert.Equal(t, int32(3), calls.Load())
}

func TestAlerter_Evaluate_Details(t *testing.T) {
	a := NewAlerter(testMonitorConfig())

	alerts := a.Evaluate(&MetricsSnapshot{Total: 10, Failed: 8, FailRate: 0.8, CaptchaUnsolved: 5, CaptchaRate: 0.5})
	require.Len(t, alerts, 2)
	assert.Equal(t, AlertFailureRate, alerts[0].Type)
	assert.InDelta(t, 0.8, alerts[0].Details["rate"], 1e-9)
	assert.InDelta(t, 0.5, alerts[0].Details["threshold"], 1e-9)
	assert.Equal(t, AlertCaptchaRate, alerts[1].Type)
	assert.Equal(t, 5, alerts[1].Details["captcha_unsolved"])
}
