package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/xavierca1/quiz-mailer/internal/infra/logging"
)

// Schedule holds cron specs, e.g. "@every 30s". An empty spec disables the job.
type Schedule struct {
	ReconcileOrphans string
	ResolvePending   string
	Deliver          string
}

// Scheduler runs the pipeline jobs in-process. A job whose previous run is
// still going is skipped, so one process never overlaps itself; overlap
// across processes is handled by the claim queries.
type Scheduler struct {
	cron       *cron.Cron
	jobs       *Jobs
	logger     *zap.Logger
	runTimeout time.Duration
	ctx        context.Context
}

func NewScheduler(jobs *Jobs, schedule Schedule, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := logging.CronLogger(logger)
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		jobs:       jobs,
		logger:     logger,
		runTimeout: 2 * time.Minute,
		ctx:        context.Background(),
	}

	entries := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{JobReconcileOrphans, schedule.ReconcileOrphans, func(ctx context.Context) error {
			_, err := jobs.ReconcileOrphans(ctx)
			return err
		}},
		{JobResolvePending, schedule.ResolvePending, func(ctx context.Context) error {
			_, err := jobs.ResolvePending(ctx)
			return err
		}},
		{JobDeliver, schedule.Deliver, func(ctx context.Context) error {
			_, err := jobs.DeliverQueued(ctx)
			return err
		}},
	}

	for _, e := range entries {
		if e.spec == "" {
			logger.Info("job not scheduled", zap.String("job", e.name))
			continue
		}
		run := e.run
		if _, err := s.cron.AddFunc(e.spec, func() { s.invoke(run) }); err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", e.name, e.spec, err)
		}
		logger.Info("job scheduled", zap.String("job", e.name), zap.String("spec", e.spec))
	}
	return s, nil
}

// Errors are already logged and counted by Jobs.
func (s *Scheduler) invoke(run func(context.Context) error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.runTimeout)
	defer cancel()
	_ = run(ctx)
}

// Start blocks until ctx is cancelled, then waits for running jobs.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx = ctx
	s.cron.Start()
	s.logger.Info("scheduler started")

	<-ctx.Done()
	stopped := s.cron.Stop()
	<-stopped.Done()
	s.logger.Info("scheduler stopped")
	return nil
}
