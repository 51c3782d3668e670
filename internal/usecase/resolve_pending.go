package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/xavierca1/quiz-mailer/internal/entity"
)

const (
	DefaultResolveGrace = 10 * time.Second
	DefaultResolveBatch = 10
)

// ResolvePendingUseCase turns pending notifications into queued messages.
// "sent" on a notification means handed off to the queue, not delivered.
type ResolvePendingUseCase struct {
	Notifications PendingNotificationRepositoryInterface
	Leads         LeadRepositoryInterface
	Queue         QueueRepositoryInterface
	Audit         AuditLogInterface
	Renderer      Renderer
	Config        ProviderConfigLoader
	Logger        *zap.Logger
	Now           func() time.Time

	Grace     time.Duration
	BatchSize int
}

func NewResolvePendingUseCase(
	notifications PendingNotificationRepositoryInterface,
	leads LeadRepositoryInterface,
	queue QueueRepositoryInterface,
	audit AuditLogInterface,
	renderer Renderer,
	config ProviderConfigLoader,
	logger *zap.Logger,
) *ResolvePendingUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResolvePendingUseCase{
		Notifications: notifications,
		Leads:         leads,
		Queue:         queue,
		Audit:         audit,
		Renderer:      renderer,
		Config:        config,
		Logger:        logger,
		Now:           time.Now,
		Grace:         DefaultResolveGrace,
		BatchSize:     DefaultResolveBatch,
	}
}

func (uc *ResolvePendingUseCase) Execute(ctx context.Context) (JobSummary, error) {
	var summary JobSummary

	cfg, err := uc.Config.Load(ctx)
	if err != nil {
		return summary, &TechnicalError{Code: CodeConfigLoad, Message: "load provider config", Err: err}
	}
	if cfg.SenderEmail == "" {
		return summary, &DomainError{Code: CodeNoSender, Message: "no sender email configured"}
	}

	claimed, err := uc.Notifications.ClaimDue(ctx, uc.Now().UTC(), uc.Grace, uc.BatchSize)
	if err != nil {
		return summary, &TechnicalError{Code: CodeStorage, Message: "claim pending notifications", Err: err}
	}

	var errs *multierror.Error
	for _, n := range claimed {
		summary.Processed++
		log := uc.Logger.With(zap.String("notification_id", n.ID), zap.Stringer("lead", n.Ref()),
			zap.Int("attempt", n.Attempts))

		if err := uc.resolveOne(ctx, n, cfg); err != nil {
			summary.Failed++
			errs = multierror.Append(errs, fmt.Errorf("notification %s: %w", n.ID, err))

			if markErr := uc.Notifications.MarkFailed(ctx, n.ID, errorText(err), uc.Now().UTC()); markErr != nil {
				log.Error("could not mark notification failed", zap.Error(markErr))
			}
			if n.Exhausted() {
				log.Error("notification exhausted its attempts", zap.Error(err))
			} else {
				log.Warn("notification failed, will retry", zap.Error(err))
			}
			continue
		}
		summary.Sent++
	}

	if err := errs.ErrorOrNil(); err != nil {
		uc.Logger.Warn("resolve batch finished with failures", zap.Int("failed", summary.Failed), zap.Error(err))
	}
	uc.Logger.Info("resolve batch finished",
		zap.Int("processed", summary.Processed), zap.Int("sent", summary.Sent), zap.Int("failed", summary.Failed))
	return summary, nil
}

// resolveOne never lets a panic escape; it becomes this item's error.
func (uc *ResolvePendingUseCase) resolveOne(ctx context.Context, n *entity.PendingNotification, cfg entity.ProviderConfig) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while resolving: %v", r)
		}
	}()

	ref := n.Ref()
	lead, err := uc.Leads.FindByRef(ctx, ref)
	if err != nil {
		return fmt.Errorf("load lead: %w", err)
	}
	if lead.NotifyEmail == "" {
		lead.NotifyEmail = cfg.AdminNotifyEmail
	}

	var missing []entity.EmailType
	for _, emailType := range lead.EmailTypes() {
		handled, err := uc.alreadyHandled(ctx, ref, emailType)
		if err != nil {
			return err
		}
		if !handled {
			missing = append(missing, emailType)
		}
	}

	if len(missing) == 0 {
		uc.Logger.Info("lead already has its emails, skipping", zap.Stringer("lead", ref))
		return uc.Notifications.MarkSent(ctx, n.ID, uc.Now().UTC())
	}

	for _, emailType := range missing {
		content, err := uc.Renderer.Render(ctx, lead, emailType)
		if err != nil {
			return fmt.Errorf("render %s: %w", emailType, err)
		}

		now := uc.Now().UTC()
		msg, err := entity.NewQueuedMessage(lead, emailType, cfg.Sender(), content, now)
		if err != nil {
			return fmt.Errorf("build %s message: %w", emailType, err)
		}
		if err := uc.Queue.Enqueue(ctx, msg); err != nil {
			return fmt.Errorf("enqueue %s: %w", emailType, err)
		}

		// the queue row already makes this idempotent, the audit row is for operators
		if err := uc.Audit.Append(ctx, entity.NewAuditEntry(msg, entity.AuditQueued, now)); err != nil {
			uc.Logger.Warn("could not append queued audit entry", zap.String("message_id", msg.ID), zap.Error(err))
		}
		uc.Logger.Info("message queued", zap.String("message_id", msg.ID),
			zap.String("email_type", string(emailType)), zap.Stringer("lead", ref))
	}

	return uc.Notifications.MarkSent(ctx, n.ID, uc.Now().UTC())
}

// alreadyHandled is true when any trace of (lead, emailType) exists: a sent or
// queued audit row, or a queue row in any status.
func (uc *ResolvePendingUseCase) alreadyHandled(ctx context.Context, ref entity.LeadRef, emailType entity.EmailType) (bool, error) {
	sent, err := uc.Audit.HasSent(ctx, ref, emailType)
	if err != nil {
		return false, fmt.Errorf("check sent audit: %w", err)
	}
	if sent {
		return true, nil
	}

	queued, err := uc.Audit.HasQueued(ctx, ref, emailType)
	if err != nil {
		return false, fmt.Errorf("check queued audit: %w", err)
	}
	if queued {
		return true, nil
	}

	exists, err := uc.Queue.Exists(ctx, ref, emailType)
	if err != nil {
		return false, fmt.Errorf("check queue: %w", err)
	}
	return exists, nil
}
