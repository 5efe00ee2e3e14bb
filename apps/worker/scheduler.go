package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/kat-co/vala"

	"github.com/sgacop30/sga/core"
	"github.com/sgacop30/sga/core/notification"
)

// Jobs are the periodic notification chores.
type Jobs interface {
	SendEventReminders(ctx context.Context) (notification.ReminderResult, error)
	Cleanup(ctx context.Context, dryRun bool) (notification.CleanupResult, error)
}

// Scheduler sends event reminders and cleans notifications up on a fixed interval.
type Scheduler struct {
	jobs     Jobs
	logger   core.Logger
	clock    clockwork.Clock
	interval time.Duration
}

func NewScheduler(jobs Jobs, logger core.Logger, clock clockwork.Clock, interval time.Duration) *Scheduler {
	vala.BeginValidation().Validate(
		vala.IsNotNil(jobs, "jobs"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(clock, "clock"),
		vala.GreaterThan(int(interval), 0, "interval"),
	).CheckAndPanic()

	return &Scheduler{jobs: jobs, logger: logger, clock: clock, interval: interval}
}

// Run runs the jobs right away and then on every tick. It blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if res, err := s.jobs.SendEventReminders(ctx); err != nil {
		s.logger.Error(fmt.Sprintf("sending event reminders: %v", err), err)
	} else if res.Created > 0 {
		s.logger.Info("event reminders sent", map[string]interface{}{
			"created": res.Created, "skipped": res.Skipped, "pushed": res.Pushed,
		})
	}

	if res, err := s.jobs.Cleanup(ctx, false); err != nil {
		s.logger.Error(fmt.Sprintf("cleaning notifications up: %v", err), err)
	} else if res.Total() > 0 {
		s.logger.Info("notifications cleaned up", map[string]interface{}{
			"read_old": res.ReadOld, "unread_old": res.UnreadOld, "expired": res.Expired,
		})
	}
}
