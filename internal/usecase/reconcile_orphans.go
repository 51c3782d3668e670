package usecase

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/xavierca1/quiz-mailer/internal/entity"
)

const (
	DefaultOrphanGrace = 30 * time.Second
	DefaultOrphanBatch = 20
)

// ReconcileOrphansUseCase closes the detection gap: any lead past the grace
// window with no queue, audit or registry row gets a pending notification.
// It only inserts.
type ReconcileOrphansUseCase struct {
	Leads    LeadRepositoryInterface
	Register *RegisterNotificationUseCase
	Logger   *zap.Logger
	Now      func() time.Time

	Grace time.Duration
	// Lookback caps how far back the scan reaches. Zero scans every lead.
	Lookback  time.Duration
	BatchSize int
}

func NewReconcileOrphansUseCase(leads LeadRepositoryInterface, register *RegisterNotificationUseCase, logger *zap.Logger) *ReconcileOrphansUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconcileOrphansUseCase{
		Leads:     leads,
		Register:  register,
		Logger:    logger,
		Now:       time.Now,
		Grace:     DefaultOrphanGrace,
		BatchSize: DefaultOrphanBatch,
	}
}

func (uc *ReconcileOrphansUseCase) Execute(ctx context.Context) (ReconcileSummary, error) {
	var summary ReconcileSummary
	now := uc.Now().UTC()
	before := now.Add(-uc.Grace)
	var after time.Time
	if uc.Lookback > 0 {
		after = now.Add(-uc.Lookback)
	}

	var errs *multierror.Error
	scanFailures := 0
	for _, leadType := range entity.LeadTypes {
		orphans, err := uc.Leads.FindOrphans(ctx, leadType, before, after, uc.BatchSize)
		if err != nil {
			// a failing scan of one lead table does not stop the other
			scanFailures++
			errs = multierror.Append(errs, err)
			uc.Logger.Error("orphan scan failed", zap.String("lead_type", string(leadType)), zap.Error(err))
			continue
		}

		for i := range orphans {
			summary.OrphansChecked++
			ref := orphans[i].Ref()
			created, err := uc.Register.Execute(ctx, ref)
			if err != nil {
				errs = multierror.Append(errs, err)
				uc.Logger.Error("orphan registration failed", zap.Stringer("lead", ref), zap.Error(err))
				continue
			}
			if created {
				summary.Registered++
				uc.Logger.Warn("orphan lead detected", zap.Stringer("lead", ref),
					zap.Duration("age", now.Sub(orphans[i].CreatedAt)))
			}
		}
	}

	if scanFailures == len(entity.LeadTypes) {
		return summary, &TechnicalError{Code: CodeStorage, Message: "orphan scan failed", Err: errs.ErrorOrNil()}
	}
	if err := errs.ErrorOrNil(); err != nil {
		uc.Logger.Warn("orphan reconciliation finished with errors", zap.Error(err))
	}

	uc.Logger.Info("orphan reconciliation finished",
		zap.Int("orphans_checked", summary.OrphansChecked), zap.Int("registered", summary.Registered))
	return summary, nil
}
