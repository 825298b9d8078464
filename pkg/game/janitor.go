package game

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Janitor sweeps the manager's registry on a cron schedule and evicts
// abandoned rooms. Nothing else removes sessions from memory, so without a
// sweep an instance retains every room it ever touched until restart.
type Janitor struct {
	manager  *Manager
	schedule cron.Schedule
	maxIdle  time.Duration
	log      *zap.Logger
}

// NewJanitor parses the cron expression (standard five-field form) and
// returns a janitor that evicts sessions idle longer than maxIdle.
func NewJanitor(m *Manager, scheduleExpr string, maxIdle time.Duration, log *zap.Logger) (*Janitor, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(scheduleExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid eviction schedule %q: %w", scheduleExpr, err)
	}
	return &Janitor{
		manager:  m,
		schedule: schedule,
		maxIdle:  maxIdle,
		log:      log,
	}, nil
}

// Run blocks until ctx is cancelled, sweeping at each scheduled tick.
func (j *Janitor) Run(ctx context.Context) {
	for {
		next := j.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if n := j.manager.EvictIdle(ctx, j.maxIdle); n > 0 {
			j.log.Info("evicted idle sessions", zap.Int("count", n))
		}
	}
}
