package sched

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"x402-subscriptions/internal/infra/metrics"
)

// Job is one scheduled unit of work. Run reports how many records it touched.
type Job interface {
	Name() string
	Run(ctx context.Context) (int, error)
}

// Scheduler runs jobs on cron expressions. A job still running when its next
// tick arrives is skipped for that tick.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
	base    context.Context
	log     *zerolog.Logger
}

func New(timeout time.Duration, logger *zerolog.Logger) *Scheduler {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	l := logger.With().Str("component", "Scheduler").Logger()
	cl := cronLogger{log: &l}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		timeout: timeout,
		base:    context.Background(),
		log:     &l,
	}
}

// Add registers job under spec (standard five-field or @every/@hourly forms).
func (s *Scheduler) Add(spec string, job Job) error {
	if _, err := s.cron.AddFunc(spec, func() { _, _ = s.RunNow(s.base, job) }); err != nil {
		return fmt.Errorf("schedule %s %q: %w", job.Name(), spec, err)
	}
	s.log.Info().Str("job", job.Name()).Str("spec", spec).Msg("job scheduled")
	return nil
}

// Start begins firing jobs; ctx bounds every run started afterwards.
func (s *Scheduler) Start(ctx context.Context) {
	s.base = ctx
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.cron.Entries())).Msg("scheduler started")
}

// Stop prevents new runs and waits for the running ones to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

// RunNow executes job once with the scheduler's timeout and bookkeeping.
func (s *Scheduler) RunNow(ctx context.Context, job Job) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	n, err := job.Run(ctx)
	if err != nil {
		metrics.IncJobRun(job.Name(), "error")
		s.log.Error().Err(err).Str("job", job.Name()).Int("affected", n).Msg("job failed")
	} else {
		metrics.IncJobRun(job.Name(), "ok")
	}
	metrics.AddJobAffected(job.Name(), n)
	if n > 0 {
		s.log.Info().Str("job", job.Name()).Int("affected", n).Dur("took", time.Since(start)).Msg("job finished")
	}
	return n, err
}

// cronLogger routes cron's own messages through zerolog.
type cronLogger struct {
	log *zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
