package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DefaultSchedule runs the sweep daily at 03:00.
const DefaultSchedule = "0 3 * * *"

// Runner is what the scheduler triggers.
type Runner interface {
	Run(ctx context.Context) (Report, error)
}

// Scheduler runs a sweep on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	timeout time.Duration
	log     logrus.FieldLogger
}

// NewScheduler validates spec, a standard five-field cron expression,
// and binds it to runner. Each run is bounded by timeout.
func NewScheduler(spec string, loc *time.Location, runner Runner, timeout time.Duration, log logrus.FieldLogger) (*Scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", spec, err)
	}
	if loc == nil {
		loc = time.Local
	}

	s := &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		runner:  runner,
		timeout: timeout,
		log:     log,
	}
	if _, err := s.cron.AddFunc(spec, s.runOnce); err != nil {
		return nil, fmt.Errorf("failed to schedule retention: %w", err)
	}
	return s, nil
}

func (s *Scheduler) runOnce() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if _, err := s.runner.Run(ctx); err != nil {
		s.log.WithError(err).Error("[RETENTION] Scheduled cleanup failed")
	}
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Next returns the next scheduled run.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Stop stops scheduling and waits for a running sweep, or ctx, to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
