package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/xavierca1/quiz-mailer/internal/entity"
	"github.com/xavierca1/quiz-mailer/internal/infra/mail"
)

const (
	DefaultDeliverBatch = 10
	// BookkeepingTimeout bounds the queue and audit writes that follow a
	// send. They outlive the caller's context.
	BookkeepingTimeout = 10 * time.Second
)

type deliveryOutcome int

const (
	outcomeSent deliveryOutcome = iota
	outcomeDuplicate
	outcomeRetry
	outcomeFailed
	// the provider accepted the message but the row could not be closed
	outcomeUnconfirmed
)

// DeliverQueuedUseCase drains the queue: reclaim stuck rows, claim a due
// batch, send each message one at a time.
type DeliverQueuedUseCase struct {
	Queue        QueueRepositoryInterface
	Audit        AuditLogInterface
	Config       ProviderConfigLoader
	NewTransport TransportFactory
	Logger       *zap.Logger
	Now          func() time.Time

	BatchSize    int
	StuckTimeout time.Duration
}

func NewDeliverQueuedUseCase(
	queue QueueRepositoryInterface,
	audit AuditLogInterface,
	config ProviderConfigLoader,
	newTransport TransportFactory,
	logger *zap.Logger,
) *DeliverQueuedUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeliverQueuedUseCase{
		Queue:        queue,
		Audit:        audit,
		Config:       config,
		NewTransport: newTransport,
		Logger:       logger,
		Now:          time.Now,
		BatchSize:    DefaultDeliverBatch,
		StuckTimeout: entity.StuckTimeout,
	}
}

func (uc *DeliverQueuedUseCase) Execute(ctx context.Context) (JobSummary, error) {
	var summary JobSummary

	// configuration problems abort before any row is touched
	cfg, err := uc.Config.Load(ctx)
	if err != nil {
		return summary, &TechnicalError{Code: CodeConfigLoad, Message: "load provider config", Err: err}
	}
	transport, err := uc.NewTransport(cfg)
	if err != nil {
		code := CodeNoTransport
		if errors.Is(err, mail.ErrInvalidCredentials) {
			code = CodeInvalidCredentials
		}
		return summary, &DomainError{Code: code, Message: "transport unavailable", Err: err}
	}

	now := uc.Now().UTC()
	reclaimed, err := uc.Queue.ReclaimStuck(ctx, now.Add(-uc.StuckTimeout))
	if err != nil {
		return summary, &TechnicalError{Code: CodeStorage, Message: "reclaim stuck messages", Err: err}
	}
	summary.Reclaimed = reclaimed
	if reclaimed > 0 {
		uc.Logger.Warn("reclaimed stuck messages", zap.Int64("count", reclaimed))
	}

	batch, err := uc.Queue.ClaimDue(ctx, now, uc.BatchSize)
	if err != nil {
		return summary, &TechnicalError{Code: CodeStorage, Message: "claim queued messages", Err: err}
	}
	sort.SliceStable(batch, func(i, j int) bool {
		if !batch[i].ScheduledFor.Equal(batch[j].ScheduledFor) {
			return batch[i].ScheduledFor.Before(batch[j].ScheduledFor)
		}
		return batch[i].CreatedAt.Before(batch[j].CreatedAt)
	})

	var errs *multierror.Error
	for i, m := range batch {
		if ctx.Err() != nil {
			uc.release(ctx, batch[i:])
			errs = multierror.Append(errs, fmt.Errorf("run cancelled with %d messages unsent: %w", len(batch)-i, ctx.Err()))
			break
		}
		summary.Processed++
		outcome, err := uc.deliverOne(ctx, transport, m)
		switch outcome {
		case outcomeSent:
			summary.Sent++
		case outcomeDuplicate:
			summary.Skipped++
		case outcomeRetry:
			summary.Failed++
			summary.Retried++
		case outcomeFailed:
			summary.Failed++
		case outcomeUnconfirmed:
			// counted nowhere; the sent audit row suppresses the reclaimed copy
		}
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("message %s: %w", m.ID, err))
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		uc.Logger.Warn("delivery batch finished with failures", zap.Error(err))
	}
	uc.Logger.Info("delivery batch finished",
		zap.String("transport", transport.Name()),
		zap.Int("processed", summary.Processed), zap.Int("sent", summary.Sent),
		zap.Int("failed", summary.Failed), zap.Int("retried", summary.Retried))
	return summary, nil
}

func (uc *DeliverQueuedUseCase) deliverOne(ctx context.Context, transport mail.Transport, m *entity.QueuedMessage) (deliveryOutcome, error) {
	log := uc.Logger.With(zap.String("message_id", m.ID), zap.Stringer("lead", m.Lead),
		zap.String("email_type", string(m.EmailType)))

	// an overlapping run may already have delivered this email
	dup, err := uc.Audit.HasSent(ctx, m.Lead, m.EmailType)
	if err != nil {
		log.Warn("duplicate check failed, sending anyway", zap.Error(err))
	} else if dup {
		bctx, cancel := uc.bookkeeping(ctx)
		defer cancel()
		if err := uc.Queue.MarkSent(bctx, m.ID, uc.Now().UTC()); err != nil {
			log.Error("could not close duplicate message", zap.Error(err))
			return outcomeDuplicate, err
		}
		log.Info("duplicate suppressed, lead already received this email")
		return outcomeDuplicate, nil
	}

	result, sendErr := safeSend(ctx, transport, m)
	now := uc.Now().UTC()

	// once the provider has answered, the outcome must be recorded even if
	// the caller went away mid-send
	bctx, cancel := uc.bookkeeping(ctx)
	defer cancel()

	if sendErr == nil {
		entry := entity.NewAuditEntry(m, entity.AuditSent, now)
		entry.ProviderMessageID = result.ProviderMessageID
		// audit first: if the row update below is lost, the reclaimed copy is
		// suppressed by the duplicate check instead of being sent again
		if err := uc.Audit.Append(bctx, entry); err != nil {
			log.Error("could not append sent audit entry", zap.Error(err))
		}
		if err := uc.Queue.MarkSent(bctx, m.ID, now); err != nil {
			log.Error("email sent but message could not be marked sent",
				zap.String("provider_message_id", result.ProviderMessageID), zap.Error(err))
			return outcomeUnconfirmed, err
		}
		log.Info("email sent", zap.String("provider_message_id", result.ProviderMessageID))
		return outcomeSent, nil
	}

	m.RetryCount++
	errMsg := errorText(sendErr)

	if m.RetriesExhausted() || mail.IsPermanent(sendErr) {
		if err := uc.Queue.MarkFailed(bctx, m.ID, m.RetryCount, errMsg); err != nil {
			log.Error("could not mark message failed", zap.Error(err))
		}
		entry := entity.NewAuditEntry(m, entity.AuditFailed, now)
		entry.ErrorMessage = errMsg
		if err := uc.Audit.Append(bctx, entry); err != nil {
			log.Error("could not append failed audit entry", zap.Error(err))
		}
		log.Error("email failed permanently", zap.Int("retry_count", m.RetryCount),
			zap.Bool("permanent", mail.IsPermanent(sendErr)), zap.Error(sendErr))
		return outcomeFailed, sendErr
	}

	next := m.NextAttemptAt(now)
	if err := uc.Queue.ScheduleRetry(bctx, m.ID, m.RetryCount, next, errMsg); err != nil {
		log.Error("could not schedule retry", zap.Error(err))
	}
	log.Warn("email send failed, retry scheduled", zap.Int("retry_count", m.RetryCount),
		zap.Time("scheduled_for", next), zap.Error(sendErr))
	return outcomeRetry, sendErr
}

func (uc *DeliverQueuedUseCase) bookkeeping(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), BookkeepingTimeout)
}

// release hands claimed but unattempted messages back to pending without
// spending a retry.
func (uc *DeliverQueuedUseCase) release(ctx context.Context, msgs []*entity.QueuedMessage) {
	bctx, cancel := uc.bookkeeping(ctx)
	defer cancel()
	for _, m := range msgs {
		if err := uc.Queue.ScheduleRetry(bctx, m.ID, m.RetryCount, m.ScheduledFor, "released: delivery run cancelled"); err != nil {
			uc.Logger.Error("could not release claimed message", zap.String("message_id", m.ID), zap.Error(err))
		}
	}
	uc.Logger.Warn("delivery run cancelled, released claimed messages", zap.Int("count", len(msgs)))
}

// safeSend turns a panicking transport into an ordinary send error.
func safeSend(ctx context.Context, transport mail.Transport, m *entity.QueuedMessage) (result mail.SendResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transport panic: %v", r)
		}
	}()
	return transport.Send(ctx, m)
}
