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
)

type resolveFixture struct {
	notifications *MockNotificationRepository
	leads         *MockLeadRepository
	queue         *MockQueueRepository
	audit         *MockAuditLog
	renderer      *MockRenderer
	config        *MockConfigLoader
	uc            *ResolvePendingUseCase
}

func newResolveFixture(cfg entity.ProviderConfig) *resolveFixture {
	f := &resolveFixture{
		notifications: new(MockNotificationRepository),
		leads:         new(MockLeadRepository),
		queue:         new(MockQueueRepository),
		audit:         new(MockAuditLog),
		renderer:      new(MockRenderer),
		config:        new(MockConfigLoader),
	}
	f.config.On("Load", mock.Anything).Return(cfg, nil)
	f.uc = NewResolvePendingUseCase(f.notifications, f.leads, f.queue, f.audit, f.renderer, f.config, nil)
	f.uc.Now = clock
	return f
}

func (f *resolveFixture) claim(ns ...*entity.PendingNotification) {
	f.notifications.On("ClaimDue", mock.Anything, fixedNow, DefaultResolveGrace, DefaultResolveBatch).Return(ns, nil)
}

func (f *resolveFixture) nothingHandled(ref entity.LeadRef, emailType entity.EmailType) {
	f.audit.On("HasSent", mock.Anything, ref, emailType).Return(false, nil)
	f.audit.On("HasQueued", mock.Anything, ref, emailType).Return(false, nil)
	f.queue.On("Exists", mock.Anything, ref, emailType).Return(false, nil)
}

func claimedNotification(id string, ref entity.LeadRef) *entity.PendingNotification {
	n := entity.NewPendingNotification(ref, fixedNow.Add(-5 * time.Minute))
	n.ID = id
	n.Status = entity.StatusProcessing
	n.Attempts = 1
	return n
}

func leadFor(ref entity.LeadRef) *entity.Lead {
	return &entity.Lead{ID: ref.ID, Type: ref.Type, QuizTitle: "Sleep quiz", Email: "ana@example.com", Language: "en", Score: 7, MaxScore: 10}
}

var senderConfig = entity.ProviderConfig{SMTPHost: "smtp.example.com", SenderEmail: "results@quiz.example", SenderName: "Quiz"}

// TestResolveSkipsLeadAlreadySent - orphan registered after the email went out
func TestResolveSkipsLeadAlreadySent(t *testing.T) {
	f := newResolveFixture(senderConfig)
	ref := standardRef("lead-1")
	f.claim(claimedNotification("n-1", ref))

	f.leads.On("FindByRef", mock.Anything, ref).Return(leadFor(ref), nil)
	f.audit.On("HasSent", mock.Anything, ref, entity.EmailTypeQuizResult).Return(true, nil)
	f.notifications.On("MarkSent", mock.Anything, "n-1", fixedNow).Return(nil)

	summary, err := f.uc.Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, JobSummary{Processed: 1, Sent: 1}, summary)
	f.queue.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
	f.renderer.AssertNotCalled(t, "Render", mock.Anything, mock.Anything, mock.Anything)
	f.notifications.AssertExpectations(t)
}

// TestResolveSkipsLeadWithQueuedMessage - an existing queue row counts as handled
func TestResolveSkipsLeadWithQueuedMessage(t *testing.T) {
	f := newResolveFixture(senderConfig)
	ref := standardRef("lead-1")
	f.claim(claimedNotification("n-1", ref))

	f.leads.On("FindByRef", mock.Anything, ref).Return(leadFor(ref), nil)
	f.audit.On("HasSent", mock.Anything, ref, entity.EmailTypeQuizResult).Return(false, nil)
	f.audit.On("HasQueued", mock.Anything, ref, entity.EmailTypeQuizResult).Return(false, nil)
	f.queue.On("Exists", mock.Anything, ref, entity.EmailTypeQuizResult).Return(true, nil)
	f.notifications.On("MarkSent", mock.Anything, "n-1", fixedNow).Return(nil)

	_, err := f.uc.Execute(context.Background())

	require.NoError(t, err)
	f.queue.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

// TestResolveEnqueuesResultAndAdminCopy - quiz owner gets a copy
func TestResolveEnqueuesResultAndAdminCopy(t *testing.T) {
	f := newResolveFixture(senderConfig)
	ref := entity.LeadRef{Type: entity.LeadTypeHypothesis, ID: "lead-h"}
	f.claim(claimedNotification("n-1", ref))

	lead := leadFor(ref)
	lead.NotifyEmail = "owner@example.com"
	f.leads.On("FindByRef", mock.Anything, ref).Return(lead, nil)
	f.nothingHandled(ref, entity.EmailTypeHypothesisResult)
	f.nothingHandled(ref, entity.EmailTypeAdminLeadNotification)
	f.renderer.On("Render", mock.Anything, lead, entity.EmailTypeHypothesisResult).
		Return(entity.Rendered{Subject: "Your hypothesis check", HTML: "<p>h</p>"}, nil)
	f.renderer.On("Render", mock.Anything, lead, entity.EmailTypeAdminLeadNotification).
		Return(entity.Rendered{Subject: "New lead", HTML: "<p>a</p>"}, nil)

	var queued []*entity.QueuedMessage
	f.queue.On("Enqueue", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { queued = append(queued, args.Get(1).(*entity.QueuedMessage)) }).
		Return(nil)
	f.audit.On("Append", mock.Anything, mock.MatchedBy(func(e *entity.AuditLogEntry) bool {
		return e.Status == entity.AuditQueued
	})).Return(nil).Twice()
	f.notifications.On("MarkSent", mock.Anything, "n-1", fixedNow).Return(nil)

	summary, err := f.uc.Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sent)
	require.Len(t, queued, 2)
	assert.Equal(t, "ana@example.com", queued[0].RecipientEmail)
	assert.Equal(t, entity.EmailTypeHypothesisResult, queued[0].EmailType)
	assert.Equal(t, "owner@example.com", queued[1].RecipientEmail)
	for _, m := range queued {
		assert.Equal(t, entity.StatusPending, m.Status)
		assert.Equal(t, "results@quiz.example", m.SenderEmail)
		assert.Equal(t, ref, m.Lead)
		assert.Equal(t, fixedNow, m.ScheduledFor)
	}
	f.audit.AssertExpectations(t)
}

// TestResolveFallsBackToConfiguredAdmin - no quiz address, global admin address set
func TestResolveFallsBackToConfiguredAdmin(t *testing.T) {
	cfg := senderConfig
	cfg.AdminNotifyEmail = "admin@quiz.example"
	f := newResolveFixture(cfg)
	ref := standardRef("lead-1")
	f.claim(claimedNotification("n-1", ref))

	f.leads.On("FindByRef", mock.Anything, ref).Return(leadFor(ref), nil)
	f.nothingHandled(ref, entity.EmailTypeQuizResult)
	f.nothingHandled(ref, entity.EmailTypeAdminLeadNotification)
	f.renderer.On("Render", mock.Anything, mock.Anything, mock.Anything).Return(entity.Rendered{Subject: "s", HTML: "h"}, nil)
	f.queue.On("Enqueue", mock.Anything, mock.MatchedBy(func(m *entity.QueuedMessage) bool {
		return m.EmailType == entity.EmailTypeAdminLeadNotification && m.RecipientEmail == "admin@quiz.example"
	})).Return(nil).Once()
	f.queue.On("Enqueue", mock.Anything, mock.Anything).Return(nil).Once()
	f.audit.On("Append", mock.Anything, mock.Anything).Return(nil)
	f.notifications.On("MarkSent", mock.Anything, "n-1", fixedNow).Return(nil)

	_, err := f.uc.Execute(context.Background())

	require.NoError(t, err)
	f.queue.AssertExpectations(t)
}

// TestResolveRenderFailureIsIsolated - one bad lead does not block the next
func TestResolveRenderFailureIsIsolated(t *testing.T) {
	f := newResolveFixture(senderConfig)
	bad := standardRef("lead-bad")
	good := standardRef("lead-good")
	f.claim(claimedNotification("n-bad", bad), claimedNotification("n-good", good))

	badLead, goodLead := leadFor(bad), leadFor(good)
	f.leads.On("FindByRef", mock.Anything, bad).Return(badLead, nil)
	f.leads.On("FindByRef", mock.Anything, good).Return(goodLead, nil)
	f.nothingHandled(bad, entity.EmailTypeQuizResult)
	f.nothingHandled(good, entity.EmailTypeQuizResult)
	f.renderer.On("Render", mock.Anything, badLead, entity.EmailTypeQuizResult).
		Return(entity.Rendered{}, errors.New("template missing"))
	f.renderer.On("Render", mock.Anything, goodLead, entity.EmailTypeQuizResult).
		Return(entity.Rendered{Subject: "s", HTML: "h"}, nil)
	f.queue.On("Enqueue", mock.Anything, mock.Anything).Return(nil).Once()
	f.audit.On("Append", mock.Anything, mock.Anything).Return(nil)
	f.notifications.On("MarkFailed", mock.Anything, "n-bad", "render quiz_result: template missing", fixedNow).Return(nil)
	f.notifications.On("MarkSent", mock.Anything, "n-good", fixedNow).Return(nil)

	summary, err := f.uc.Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, JobSummary{Processed: 2, Sent: 1, Failed: 1}, summary)
	f.notifications.AssertExpectations(t)
	f.queue.AssertExpectations(t)
}

// TestResolveMissingLeadMarksFailed - the lead row vanished
func TestResolveMissingLeadMarksFailed(t *testing.T) {
	f := newResolveFixture(senderConfig)
	ref := standardRef("lead-gone")
	f.claim(claimedNotification("n-1", ref))

	f.leads.On("FindByRef", mock.Anything, ref).Return(nil, entity.ErrLeadNotFound)
	f.notifications.On("MarkFailed", mock.Anything, "n-1", "load lead: lead not found", fixedNow).Return(nil)

	summary, err := f.uc.Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	f.notifications.AssertExpectations(t)
}

// TestResolveWithoutSenderAborts - nothing is claimed
func TestResolveWithoutSenderAborts(t *testing.T) {
	f := newResolveFixture(entity.ProviderConfig{SMTPHost: "smtp.example.com"})

	_, err := f.uc.Execute(context.Background())

	var domainErr *DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, CodeNoSender, domainErr.Code)
	assert.Empty(t, f.notifications.Calls)
}

// TestResolveClaimFailure - storage error is a technical error
func TestResolveClaimFailure(t *testing.T) {
	f := newResolveFixture(senderConfig)
	f.notifications.On("ClaimDue", mock.Anything, fixedNow, DefaultResolveGrace, DefaultResolveBatch).
		Return(nil, errors.New("connection refused"))

	_, err := f.uc.Execute(context.Background())

	assert.True(t, IsTechnicalError(err))
}
