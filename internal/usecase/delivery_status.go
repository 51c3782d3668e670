package usecase

import (
	"context"

	"github.com/xavierca1/quiz-mailer/internal/entity"
)

const DefaultFailureListLimit = 100

type LeadEmailStatus struct {
	Lead          entity.LeadRef                `json:"lead"`
	Audit         []*entity.AuditLogEntry       `json:"audit"`
	Queue         []*entity.QueuedMessage       `json:"queue"`
	Notifications []*entity.PendingNotification `json:"notifications"`
}

type DeliveryFailures struct {
	Messages      []*entity.QueuedMessage       `json:"messages"`
	Notifications []*entity.PendingNotification `json:"notifications"`
}

// DeliveryStatusUseCase is the poll-based read side for the admin UI.
type DeliveryStatusUseCase struct {
	Notifications PendingNotificationRepositoryInterface
	Queue         QueueRepositoryInterface
	Audit         AuditLogInterface
}

func NewDeliveryStatusUseCase(
	notifications PendingNotificationRepositoryInterface,
	queue QueueRepositoryInterface,
	audit AuditLogInterface,
) *DeliveryStatusUseCase {
	return &DeliveryStatusUseCase{Notifications: notifications, Queue: queue, Audit: audit}
}

func (uc *DeliveryStatusUseCase) ForLead(ctx context.Context, ref entity.LeadRef) (*LeadEmailStatus, error) {
	if err := ref.Validate(); err != nil {
		return nil, &DomainError{Code: CodeInvalidInput, Message: "invalid lead reference", Err: err}
	}

	audit, err := uc.Audit.ListByLead(ctx, ref)
	if err != nil {
		return nil, &TechnicalError{Code: CodeStorage, Message: "list audit log", Err: err}
	}
	queue, err := uc.Queue.ListByLead(ctx, ref)
	if err != nil {
		return nil, &TechnicalError{Code: CodeStorage, Message: "list queue", Err: err}
	}
	notifications, err := uc.Notifications.ListByLead(ctx, ref)
	if err != nil {
		return nil, &TechnicalError{Code: CodeStorage, Message: "list notifications", Err: err}
	}

	return &LeadEmailStatus{Lead: ref, Audit: audit, Queue: queue, Notifications: notifications}, nil
}

// Failures lists terminal failures that need an operator.
func (uc *DeliveryStatusUseCase) Failures(ctx context.Context, limit int) (*DeliveryFailures, error) {
	if limit <= 0 {
		limit = DefaultFailureListLimit
	}
	msgs, err := uc.Queue.ListFailed(ctx, limit)
	if err != nil {
		return nil, &TechnicalError{Code: CodeStorage, Message: "list failed messages", Err: err}
	}
	notifications, err := uc.Notifications.ListExhausted(ctx, limit)
	if err != nil {
		return nil, &TechnicalError{Code: CodeStorage, Message: "list exhausted notifications", Err: err}
	}
	return &DeliveryFailures{Messages: msgs, Notifications: notifications}, nil
}
