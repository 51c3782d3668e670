package usecase

import (
	"context"
	"time"

	"github.com/xavierca1/quiz-mailer/internal/entity"
	"github.com/xavierca1/quiz-mailer/internal/infra/mail"
)

type LeadRepositoryInterface interface {
	// FindOrphans returns leads created in (createdAfter, createdBefore) with
	// no row in the audit log, the queue or the registry.
	FindOrphans(ctx context.Context, leadType entity.LeadType, createdBefore, createdAfter time.Time, limit int) ([]entity.Lead, error)
	FindByRef(ctx context.Context, ref entity.LeadRef) (*entity.Lead, error)
}

type PendingNotificationRepositoryInterface interface {
	// FindActive returns the pending/processing row for ref, or nil.
	FindActive(ctx context.Context, ref entity.LeadRef) (*entity.PendingNotification, error)
	Create(ctx context.Context, n *entity.PendingNotification) error
	// ClaimDue flips due rows to processing and bumps attempts in one statement.
	ClaimDue(ctx context.Context, now time.Time, grace time.Duration, limit int) ([]*entity.PendingNotification, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, errMsg string, at time.Time) error
	ListExhausted(ctx context.Context, limit int) ([]*entity.PendingNotification, error)
	ListByLead(ctx context.Context, ref entity.LeadRef) ([]*entity.PendingNotification, error)
}

type QueueRepositoryInterface interface {
	Enqueue(ctx context.Context, m *entity.QueuedMessage) error
	// Exists reports any queue row for (ref, emailType), whatever its status.
	Exists(ctx context.Context, ref entity.LeadRef, emailType entity.EmailType) (bool, error)
	ReclaimStuck(ctx context.Context, startedBefore time.Time) (int64, error)
	// ClaimDue flips due pending rows to processing before any send happens.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*entity.QueuedMessage, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	ScheduleRetry(ctx context.Context, id string, retryCount int, next time.Time, errMsg string) error
	MarkFailed(ctx context.Context, id string, retryCount int, errMsg string) error
	ListFailed(ctx context.Context, limit int) ([]*entity.QueuedMessage, error)
	ListByLead(ctx context.Context, ref entity.LeadRef) ([]*entity.QueuedMessage, error)
}

type AuditLogInterface interface {
	Append(ctx context.Context, e *entity.AuditLogEntry) error
	HasSent(ctx context.Context, ref entity.LeadRef, emailType entity.EmailType) (bool, error)
	HasQueued(ctx context.Context, ref entity.LeadRef, emailType entity.EmailType) (bool, error)
	ListByLead(ctx context.Context, ref entity.LeadRef) ([]*entity.AuditLogEntry, error)
}

// Renderer builds the subject and HTML body for one email of a lead. It is
// supplied by the templating subsystem and may fail.
type Renderer interface {
	Render(ctx context.Context, lead *entity.Lead, emailType entity.EmailType) (entity.Rendered, error)
}

// ProviderConfigLoader is called at the start of every invocation.
type ProviderConfigLoader interface {
	Load(ctx context.Context) (entity.ProviderConfig, error)
}

// TransportFactory picks and builds the transport for one run.
type TransportFactory func(cfg entity.ProviderConfig) (mail.Transport, error)
