package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xavierca1/quiz-mailer/internal/infra/http/middleware"
	"github.com/xavierca1/quiz-mailer/internal/usecase"
)

const (
	JobReconcileOrphans = "reconcile-orphans"
	JobResolvePending   = "resolve-pending"
	JobDeliver          = "deliver"
)

var JobNames = []string{JobReconcileOrphans, JobResolvePending, JobDeliver}

type Reconciler interface {
	Execute(ctx context.Context) (usecase.ReconcileSummary, error)
}

type BatchJob interface {
	Execute(ctx context.Context) (usecase.JobSummary, error)
}

// Jobs is the single entry point for the three pipeline jobs. HTTP triggers,
// CLI commands and the scheduler all go through it so every run is timed,
// counted and logged the same way.
type Jobs struct {
	Reconcile Reconciler
	Resolve   BatchJob
	Deliver   BatchJob
	Logger    *zap.Logger
}

func NewJobs(reconcile Reconciler, resolve, deliver BatchJob, logger *zap.Logger) *Jobs {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Jobs{Reconcile: reconcile, Resolve: resolve, Deliver: deliver, Logger: logger}
}

func (j *Jobs) ReconcileOrphans(ctx context.Context) (usecase.ReconcileSummary, error) {
	start := time.Now()
	summary, err := j.Reconcile.Execute(ctx)
	j.finish(JobReconcileOrphans, start, err)
	middleware.RecordOrphansRegistered(summary.Registered)
	return summary, err
}

func (j *Jobs) ResolvePending(ctx context.Context) (usecase.JobSummary, error) {
	start := time.Now()
	summary, err := j.Resolve.Execute(ctx)
	j.finish(JobResolvePending, start, err)
	middleware.RecordPendingNotifications("queued", summary.Sent)
	middleware.RecordPendingNotifications("failed", summary.Failed)
	return summary, err
}

func (j *Jobs) DeliverQueued(ctx context.Context) (usecase.JobSummary, error) {
	start := time.Now()
	summary, err := j.Deliver.Execute(ctx)
	j.finish(JobDeliver, start, err)
	middleware.RecordMessages("sent", summary.Sent)
	middleware.RecordMessages("retried", summary.Retried)
	middleware.RecordMessages("failed", summary.Failed-summary.Retried)
	middleware.RecordMessages("duplicate", summary.Skipped)
	middleware.RecordMessages("reclaimed", int(summary.Reclaimed))
	return summary, err
}

// Run dispatches by job name and returns the job's summary.
func (j *Jobs) Run(ctx context.Context, name string) (any, error) {
	switch name {
	case JobReconcileOrphans:
		return j.ReconcileOrphans(ctx)
	case JobResolvePending:
		return j.ResolvePending(ctx)
	case JobDeliver:
		return j.DeliverQueued(ctx)
	default:
		return nil, fmt.Errorf("unknown job %q, want one of %s", name, strings.Join(JobNames, ", "))
	}
}

func (j *Jobs) finish(job string, start time.Time, err error) {
	elapsed := time.Since(start)
	middleware.RecordJobRun(job, err, elapsed)
	if err != nil {
		j.Logger.Error("job failed", zap.String("job", job), zap.Duration("elapsed", elapsed), zap.Error(err))
		return
	}
	j.Logger.Debug("job finished", zap.String("job", job), zap.Duration("elapsed", elapsed))
}
