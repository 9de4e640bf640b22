package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/config"
)

// Checker periodically collects a snapshot and sends any alerts it raises.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitorConfig
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitorConfig) *Checker {
	return &Checker{collector: collector, alerter: alerter, cfg: cfg}
}

func (c *Checker) interval() time.Duration {
	if c.cfg.CheckIntervalSecs <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.cfg.CheckIntervalSecs) * time.Second
}

// Run checks once per interval until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().Named("monitoring.checker")
	every := c.interval()
	log.Info("monitoring: checker started",
		zap.Duration("interval", every),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("monitoring: checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

// check runs one collect, evaluate and send cycle. It returns the number of
// alerts raised, sent or not.
func (c *Checker) check(ctx context.Context, log *zap.Logger) int {
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		log.Error("monitoring: collect failed", zap.Error(err))
		return 0
	}

	alerts := c.alerter.Evaluate(snap)
	log.Debug("monitoring: snapshot",
		zap.Int("total", snap.Total),
		zap.Float64("success_rate", snap.SuccessRate),
		zap.Float64("captcha_rate", snap.CaptchaRate),
		zap.Int("alerts", len(alerts)),
	)
	if len(alerts) > 0 {
		sent := c.alerter.SendAlerts(ctx, alerts)
		log.Info("monitoring: alerts raised", zap.Int("raised", len(alerts)), zap.Int("sent", sent))
	}
	return len(alerts)
}
