package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xavierca1/quiz-mailer/internal/entity"
	"github.com/xavierca1/quiz-mailer/internal/infra/mail"
)

var smtpConfig = entity.ProviderConfig{SMTPHost: "smtp.example.com", SenderEmail: "results@quiz.example"}

type deliverFixture struct {
	queue     *MockQueueRepository
	audit     *MockAuditLog
	config    *MockConfigLoader
	transport *MockTransport
	uc        *DeliverQueuedUseCase
}

func newDeliverFixture() *deliverFixture {
	f := &deliverFixture{
		queue:     new(MockQueueRepository),
		audit:     new(MockAuditLog),
		config:    new(MockConfigLoader),
		transport: new(MockTransport),
	}
	f.config.On("Load", mock.Anything).Return(smtpConfig, nil)
	f.uc = NewDeliverQueuedUseCase(f.queue, f.audit, f.config,
		func(entity.ProviderConfig) (mail.Transport, error) { return f.transport, nil }, nil)
	f.uc.Now = clock
	return f
}

func (f *deliverFixture) claim(msgs ...*entity.QueuedMessage) {
	f.queue.On("ReclaimStuck", mock.Anything, fixedNow.Add(-entity.StuckTimeout)).Return(int64(0), nil)
	f.queue.On("ClaimDue", mock.Anything, fixedNow, DefaultDeliverBatch).Return(msgs, nil)
}

// TestDeliverSendsAndAuditsBeforeMarkingSent - audit row first, then the queue row
func TestDeliverSendsAndAuditsBeforeMarkingSent(t *testing.T) {
	f := newDeliverFixture()
	ref := standardRef("lead-1")
	m := queuedMessage("msg-1", ref)
	f.claim(m)

	var order []string
	f.audit.On("HasSent", mock.Anything, ref, entity.EmailTypeQuizResult).Return(false, nil)
	f.transport.On("Send", mock.Anything, byID("msg-1")).Return(mail.SendResult{ProviderMessageID: "<abc@quiz.example>"}, nil)
	f.audit.On("Append", mock.Anything, mock.MatchedBy(func(e *entity.AuditLogEntry) bool {
		return e.Status == entity.AuditSent && e.ProviderMessageID == "<abc@quiz.example>" && e.Lead == ref
	})).Run(func(mock.Arguments) { order = append(order, "audit") }).Return(nil)
	f.queue.On("MarkSent", mock.Anything, "msg-1", fixedNow).
		Run(func(mock.Arguments) { order = append(order, "mark") }).Return(nil)

	summary, err := f.uc.Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, JobSummary{Processed: 1, Sent: 1}, summary)
	assert.Equal(t, []string{"audit", "mark"}, order)
	f.queue.AssertNotCalled(t, "ScheduleRetry", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.transport.AssertExpectations(t)
	f.audit.AssertExpectations(t)
}

// TestDeliverTransientFailureSchedulesBackoff - first failure waits 2 minutes
func TestDeliverTransientFailureSchedulesBackoff(t *testing.T) {
	f := newDeliverFixture()
	ref := standardRef("lead-1")
	m := queuedMessage("msg-1", ref)
	f.claim(m)

	f.audit.On("HasSent", mock.Anything, ref, entity.EmailTypeQuizResult).Return(false, nil)
	f.transport.On("Send", mock.Anything, byID("msg-1")).Return(mail.SendResult{}, errors.New("connection reset"))
	f.queue.On("ScheduleRetry", mock.Anything, "msg-1", 1, fixedNow.Add(2*time.Minute), "connection reset").Return(nil)

	summary, err := f.uc.Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Retried)
	assert.Equal(t, 0, summary.Sent)
	f.queue.AssertExpectations(t)
	f.queue.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.audit.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

// TestDeliverLastRetryFailsTerminally - retry_count=2, max_retries=3, send fails
func TestDeliverLastRetryFailsTerminally(t *testing.T) {
	f := newDeliverFixture()
	ref := standardRef("lead-1")
	m := queuedMessage("msg-1", ref)
	m.RetryCount = 2
	f.claim(m)

	f.audit.On("HasSent", mock.Anything, ref, entity.EmailTypeQuizResult).Return(false, nil)
	f.transport.On("Send", mock.Anything, byID("msg-1")).Return(mail.SendResult{}, errors.New("timeout"))
	f.queue.On("MarkFailed", mock.Anything, "msg-1", 3, "timeout").Return(nil)
	f.audit.On("Append", mock.Anything, mock.MatchedBy(func(e *entity.AuditLogEntry) bool {
		return e.Status == entity.AuditFailed && e.ErrorMessage == "timeout" && e.ResendAttempts == 3
	})).Return(nil)

	summary, err := f.uc.Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, JobSummary{Processed: 1, Failed: 1}, summary)
	f.queue.AssertExpectations(t)
	f.audit.AssertExpectations(t)
	f.queue.AssertNotCalled(t, "ScheduleRetry", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// TestDeliverPermanentErrorSkipsRetries - a rejected recipient is not retried
func TestDeliverPermanentErrorSkipsRetries(t *testing.T) {
	f := newDeliverFixture()
	ref := standardRef("lead-1")
	m := queuedMessage("msg-1", ref)
	f.claim(m)

	permanent := &mail.SendError{Transport: "smtp", Permanent: true, Err: errors.New("550 mailbox unavailable")}
	f.audit.On("HasSent", mock.Anything, ref, entity.EmailTypeQuizResult).Return(false, nil)
	f.transport.On("Send", mock.Anything, byID("msg-1")).Return(mail.SendResult{}, permanent)
	f.queue.On("MarkFailed", mock.Anything, "msg-1", 1, permanent.Error()).Return(nil)
	f.audit.On("Append", mock.Anything, mock.Anything).Return(nil)

	summary, err := f.uc.Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Retried)
	f.queue.AssertExpectations(t)
}

// TestDeliverBatchIsolation - one panicking send does not stop the others
func TestDeliverBatchIsolation(t *testing.T) {
	f := newDeliverFixture()
	a := queuedMessage("msg-a", standardRef("lead-a"))
	b := queuedMessage("msg-b", standardRef("lead-b"))
	c := queuedMessage("msg-c", standardRef("lead-c"))
	f.claim(a, b, c)

	f.audit.On("HasSent", mock.Anything, mock.Anything, entity.EmailTypeQuizResult).Return(false, nil)
	f.transport.On("Send", mock.Anything, byID("msg-a")).Return(mail.SendResult{ProviderMessageID: "a"}, nil)
	f.transport.On("Send", mock.Anything, byID("msg-b")).Panic("provider client exploded")
	f.transport.On("Send", mock.Anything, byID("msg-c")).Return(mail.SendResult{ProviderMessageID: "c"}, nil)
	f.audit.On("Append", mock.Anything, mock.Anything).Return(nil)
	f.queue.On("MarkSent", mock.Anything, "msg-a", fixedNow).Return(nil)
	f.queue.On("MarkSent", mock.Anything, "msg-c", fixedNow).Return(nil)
	f.queue.On("ScheduleRetry", mock.Anything, "msg-b", 1, fixedNow.Add(2*time.Minute), "transport panic: provider client exploded").Return(nil)

	summary, err := f.uc.Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 2, summary.Sent)
	assert.Equal(t, 1, summary.Failed)
	f.queue.AssertExpectations(t)
}

// TestDeliverSuppressesDuplicate - a lead that already got the email is closed without sending
func TestDeliverSuppressesDuplicate(t *testing.T) {
	f := newDeliverFixture()
	ref := standardRef("lead-1")
	m := queuedMessage("msg-1", ref)
	f.claim(m)

	f.audit.On("HasSent", mock.Anything, ref, entity.EmailTypeQuizResult).Return(true, nil)
	f.queue.On("MarkSent", mock.Anything, "msg-1", fixedNow).Return(nil)

	summary, err := f.uc.Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, JobSummary{Processed: 1, Skipped: 1}, summary)
	f.transport.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	f.audit.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

// TestDeliverNoTransportLeavesQueueUntouched - configuration error, zero mutations
func TestDeliverNoTransportLeavesQueueUntouched(t *testing.T) {
	queue := new(MockQueueRepository)
	audit := new(MockAuditLog)
	config := new(MockConfigLoader)
	config.On("Load", mock.Anything).Return(entity.ProviderConfig{SenderEmail: "results@quiz.example"}, nil)

	uc := NewDeliverQueuedUseCase(queue, audit, config, mail.NewTransport, nil)

	summary, err := uc.Execute(context.Background())

	require.Error(t, err)
	var domainErr *DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, CodeNoTransport, domainErr.Code)
	assert.ErrorIs(t, err, mail.ErrNoTransportConfigured)
	assert.Equal(t, JobSummary{}, summary)
	assert.Empty(t, queue.Calls)
	assert.Empty(t, audit.Calls)
}

// TestDeliverInvalidCredentialsCode - credentials outside Latin-1 abort the run
func TestDeliverInvalidCredentialsCode(t *testing.T) {
	queue := new(MockQueueRepository)
	config := new(MockConfigLoader)
	config.On("Load", mock.Anything).Return(entity.ProviderConfig{
		SMTPHost: "smtp.example.com", SMTPUsername: "user", SMTPPassword: "pässwörd✓",
	}, nil)

	uc := NewDeliverQueuedUseCase(queue, new(MockAuditLog), config, mail.NewTransport, nil)

	_, err := uc.Execute(context.Background())

	var domainErr *DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, CodeInvalidCredentials, domainErr.Code)
	assert.Empty(t, queue.Calls)
}

// TestDeliverConfigLoadFailure - storage error while loading config
func TestDeliverConfigLoadFailure(t *testing.T) {
	queue := new(MockQueueRepository)
	config := new(MockConfigLoader)
	config.On("Load", mock.Anything).Return(entity.ProviderConfig{}, errors.New("db down"))

	uc := NewDeliverQueuedUseCase(queue, new(MockAuditLog), config, mail.NewTransport, nil)

	_, err := uc.Execute(context.Background())

	assert.True(t, IsTechnicalError(err))
	assert.Empty(t, queue.Calls)
}

// TestDeliverProcessesInScheduleOrder - earliest scheduled_for first, created_at breaks ties
func TestDeliverProcessesInScheduleOrder(t *testing.T) {
	f := newDeliverFixture()
	late := queuedMessage("late", standardRef("l1"))
	late.ScheduledFor = fixedNow.Add(-time.Minute)
	early := queuedMessage("early", standardRef("l2"))
	early.ScheduledFor = fixedNow.Add(-time.Hour)
	tieOld := queuedMessage("tie-old", standardRef("l3"))
	tieOld.ScheduledFor = fixedNow.Add(-30 * time.Minute)
	tieOld.CreatedAt = fixedNow.Add(-2 * time.Hour)
	tieNew := queuedMessage("tie-new", standardRef("l4"))
	tieNew.ScheduledFor = tieOld.ScheduledFor
	tieNew.CreatedAt = fixedNow.Add(-time.Hour)
	f.claim(late, tieNew, early, tieOld)

	var sent []string
	f.audit.On("HasSent", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	f.transport.On("Send", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = append(sent, args.Get(1).(*entity.QueuedMessage).ID) }).
		Return(mail.SendResult{}, nil)
	f.audit.On("Append", mock.Anything, mock.Anything).Return(nil)
	f.queue.On("MarkSent", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	_, err := f.uc.Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"early", "tie-old", "tie-new", "late"}, sent)
}

// TestDeliverReportsReclaimed - stuck rows are reset before claiming
func TestDeliverReportsReclaimed(t *testing.T) {
	f := newDeliverFixture()
	f.queue.On("ReclaimStuck", mock.Anything, fixedNow.Add(-entity.StuckTimeout)).Return(int64(2), nil)
	f.queue.On("ClaimDue", mock.Anything, fixedNow, DefaultDeliverBatch).Return([]*entity.QueuedMessage{}, nil)

	summary, err := f.uc.Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.Reclaimed)
	assert.Equal(t, 0, summary.Processed)
}

func liveContext() interface{} {
	return mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil })
}

// TestDeliverRecordsSendAfterCallerCancels - shutdown or a dropped HTTP client mid-send
func TestDeliverRecordsSendAfterCallerCancels(t *testing.T) {
	f := newDeliverFixture()
	ref := standardRef("lead-1")
	first := queuedMessage("msg-1", ref)
	second := queuedMessage("msg-2", standardRef("lead-2"))
	second.ScheduledFor = fixedNow.Add(time.Minute)
	f.claim(first, second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.audit.On("HasSent", mock.Anything, ref, entity.EmailTypeQuizResult).Return(false, nil)
	f.transport.On("Send", mock.Anything, byID("msg-1")).
		Run(func(mock.Arguments) { cancel() }).
		Return(mail.SendResult{ProviderMessageID: "<abc@quiz.example>"}, nil)
	f.audit.On("Append", liveContext(), mock.MatchedBy(func(e *entity.AuditLogEntry) bool {
		return e.Status == entity.AuditSent
	})).Return(nil)
	f.queue.On("MarkSent", liveContext(), "msg-1", fixedNow).Return(nil)
	f.queue.On("ScheduleRetry", liveContext(), "msg-2", 0, second.ScheduledFor, "released: delivery run cancelled").Return(nil)

	summary, err := f.uc.Execute(ctx)

	require.NoError(t, err)
	assert.Equal(t, JobSummary{Processed: 1, Sent: 1}, summary)
	f.audit.AssertExpectations(t)
	f.queue.AssertExpectations(t)
	f.transport.AssertNotCalled(t, "Send", mock.Anything, byID("msg-2"))
}

// TestDeliverNotCountedSentWhenRowStaysOpen - the provider accepted it but MarkSent failed
func TestDeliverNotCountedSentWhenRowStaysOpen(t *testing.T) {
	f := newDeliverFixture()
	ref := standardRef("lead-1")
	f.claim(queuedMessage("msg-1", ref))

	f.audit.On("HasSent", mock.Anything, ref, entity.EmailTypeQuizResult).Return(false, nil)
	f.transport.On("Send", mock.Anything, byID("msg-1")).Return(mail.SendResult{ProviderMessageID: "<abc@quiz.example>"}, nil)
	f.audit.On("Append", mock.Anything, mock.Anything).Return(nil)
	f.queue.On("MarkSent", mock.Anything, "msg-1", fixedNow).Return(errors.New("mark message sent: row not found"))

	summary, err := f.uc.Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, JobSummary{Processed: 1}, summary)
	f.audit.AssertNumberOfCalls(t, "Append", 1)
	f.queue.AssertNotCalled(t, "ScheduleRetry", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// TestDeliverRetryBookkeepingSurvivesCancel
func TestDeliverRetryBookkeepingSurvivesCancel(t *testing.T) {
	f := newDeliverFixture()
	ref := standardRef("lead-1")
	f.claim(queuedMessage("msg-1", ref))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.audit.On("HasSent", mock.Anything, ref, entity.EmailTypeQuizResult).Return(false, nil)
	f.transport.On("Send", mock.Anything, byID("msg-1")).
		Run(func(mock.Arguments) { cancel() }).
		Return(mail.SendResult{}, errors.New("connection reset"))
	f.queue.On("ScheduleRetry", liveContext(), "msg-1", 1, fixedNow.Add(2*time.Minute), "connection reset").Return(nil)

	summary, err := f.uc.Execute(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Retried)
	f.queue.AssertExpectations(t)
}
