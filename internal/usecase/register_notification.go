package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xavierca1/quiz-mailer/internal/entity"
)

// RegisterNotificationUseCase files a "this lead needs an email" intent.
// Uniqueness is a lookup before insert; concurrent callers may both insert
// and the resolver treats the extra row as a no-op.
type RegisterNotificationUseCase struct {
	Notifications PendingNotificationRepositoryInterface
	Logger        *zap.Logger
	Now           func() time.Time
}

func NewRegisterNotificationUseCase(repo PendingNotificationRepositoryInterface, logger *zap.Logger) *RegisterNotificationUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegisterNotificationUseCase{
		Notifications: repo,
		Logger:        logger,
		Now:           time.Now,
	}
}

// Execute returns true when a new row was inserted.
func (uc *RegisterNotificationUseCase) Execute(ctx context.Context, ref entity.LeadRef) (bool, error) {
	if err := ref.Validate(); err != nil {
		return false, &DomainError{Code: CodeInvalidInput, Message: "invalid lead reference", Err: err}
	}

	existing, err := uc.Notifications.FindActive(ctx, ref)
	if err != nil {
		return false, fmt.Errorf("lookup active notification for %s: %w", ref, err)
	}
	if existing != nil {
		uc.Logger.Debug("notification already active",
			zap.Stringer("lead", ref), zap.String("notification_id", existing.ID))
		return false, nil
	}

	n := entity.NewPendingNotification(ref, uc.Now().UTC())
	if err := uc.Notifications.Create(ctx, n); err != nil {
		return false, fmt.Errorf("create notification for %s: %w", ref, err)
	}

	uc.Logger.Info("notification registered",
		zap.Stringer("lead", ref), zap.String("notification_id", n.ID))
	return true, nil
}
