package macro

import (
	"context"
	"log/slog"
	"time"

	"Retrace/clock"
)

// Scheduler polls trigger sources on a fixed coarse interval and forwards
// what it sees to the Session.
type Scheduler struct {
	session  *Session
	clock    clock.Clock
	interval time.Duration
	triggers []Trigger
	logger   *slog.Logger
}

// NewScheduler returns a Scheduler ticking session every interval.
func NewScheduler(session *Session, clk clock.Clock, interval time.Duration, triggers []Trigger, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		session:  session,
		clock:    clk,
		interval: interval,
		triggers: triggers,
		logger:   logger,
	}
}

// Run ticks until ctx is cancelled.
func (sc *Scheduler) Run(ctx context.Context) {
	ticker := sc.clock.NewTicker(sc.interval)
	defer ticker.Stop()

	sc.logger.Debug("trigger scheduler started", "interval", sc.interval, "triggers", len(sc.triggers))
	for {
		select {
		case <-ctx.Done():
			sc.logger.Debug("trigger scheduler stopped")
			return
		case <-ticker.C:
			sc.session.Tick(sc.poll())
		}
	}
}

func (sc *Scheduler) poll() Triggers {
	var observed Triggers
	for _, t := range sc.triggers {
		observed = observed.Merge(t.Poll())
	}
	return observed
}
