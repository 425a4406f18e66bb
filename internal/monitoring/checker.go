package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/isuku/isuku-dispatch/internal/config"
)

const (
	defaultCheckInterval = 5 * time.Minute
	defaultStaleAfter    = 2 * time.Hour
)

// Checker runs backlog checks in the background.
type Checker struct {
	collector  *Collector
	alerter    *Alerter
	interval   time.Duration
	staleAfter time.Duration
}

// NewChecker creates a background backlog checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	c := &Checker{
		collector:  collector,
		alerter:    alerter,
		interval:   time.Duration(cfg.CheckIntervalSecs) * time.Second,
		staleAfter: time.Duration(cfg.StaleAfterMins) * time.Minute,
	}
	if c.interval <= 0 {
		c.interval = defaultCheckInterval
	}
	if c.staleAfter <= 0 {
		c.staleAfter = defaultStaleAfter
	}
	return c
}

// Run checks on every interval until ctx is cancelled. It always returns nil
// so it can run inside an errgroup next to the server.
func (c *Checker) Run(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting backlog checker",
		zap.Duration("interval", c.interval),
		zap.Duration("stale_after", c.staleAfter),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("backlog checker stopped")
			return nil
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

func (c *Checker) check(ctx context.Context, log *zap.Logger) []Alert {
	snap, err := c.collector.Collect(ctx, c.staleAfter)
	if err != nil {
		log.Error("monitoring: failed to collect backlog", zap.Error(err))
		return nil
	}

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		log.Debug("monitoring: no alerts triggered", zap.Int("unassigned", snap.UnassignedPickups))
		return nil
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Info("monitoring: backlog check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
	)
	return alerts
}
