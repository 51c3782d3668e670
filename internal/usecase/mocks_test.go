package usecase

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xavierca1/quiz-mailer/internal/entity"
	"github.com/xavierca1/quiz-mailer/internal/infra/mail"
)

// MockLeadRepository
type MockLeadRepository struct {
	mock.Mock
}

func (m *MockLeadRepository) FindOrphans(ctx context.Context, leadType entity.LeadType, createdBefore, createdAfter time.Time, limit int) ([]entity.Lead, error) {
	args := m.Called(ctx, leadType, createdBefore, createdAfter, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.Lead), args.Error(1)
}

func (m *MockLeadRepository) FindByRef(ctx context.Context, ref entity.LeadRef) (*entity.Lead, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Lead), args.Error(1)
}

// MockNotificationRepository
type MockNotificationRepository struct {
	mock.Mock
}

func (m *MockNotificationRepository) FindActive(ctx context.Context, ref entity.LeadRef) (*entity.PendingNotification, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.PendingNotification), args.Error(1)
}

func (m *MockNotificationRepository) Create(ctx context.Context, n *entity.PendingNotification) error {
	return m.Called(ctx, n).Error(0)
}

func (m *MockNotificationRepository) ClaimDue(ctx context.Context, now time.Time, grace time.Duration, limit int) ([]*entity.PendingNotification, error) {
	args := m.Called(ctx, now, grace, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.PendingNotification), args.Error(1)
}

func (m *MockNotificationRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *MockNotificationRepository) MarkFailed(ctx context.Context, id string, errMsg string, at time.Time) error {
	return m.Called(ctx, id, errMsg, at).Error(0)
}

func (m *MockNotificationRepository) ListExhausted(ctx context.Context, limit int) ([]*entity.PendingNotification, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.PendingNotification), args.Error(1)
}

func (m *MockNotificationRepository) ListByLead(ctx context.Context, ref entity.LeadRef) ([]*entity.PendingNotification, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.PendingNotification), args.Error(1)
}

// MockQueueRepository
type MockQueueRepository struct {
	mock.Mock
}

func (m *MockQueueRepository) Enqueue(ctx context.Context, msg *entity.QueuedMessage) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *MockQueueRepository) Exists(ctx context.Context, ref entity.LeadRef, emailType entity.EmailType) (bool, error) {
	args := m.Called(ctx, ref, emailType)
	return args.Bool(0), args.Error(1)
}

func (m *MockQueueRepository) ReclaimStuck(ctx context.Context, startedBefore time.Time) (int64, error) {
	args := m.Called(ctx, startedBefore)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockQueueRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*entity.QueuedMessage, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.QueuedMessage), args.Error(1)
}

func (m *MockQueueRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *MockQueueRepository) ScheduleRetry(ctx context.Context, id string, retryCount int, next time.Time, errMsg string) error {
	return m.Called(ctx, id, retryCount, next, errMsg).Error(0)
}

func (m *MockQueueRepository) MarkFailed(ctx context.Context, id string, retryCount int, errMsg string) error {
	return m.Called(ctx, id, retryCount, errMsg).Error(0)
}

func (m *MockQueueRepository) ListFailed(ctx context.Context, limit int) ([]*entity.QueuedMessage, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.QueuedMessage), args.Error(1)
}

func (m *MockQueueRepository) ListByLead(ctx context.Context, ref entity.LeadRef) ([]*entity.QueuedMessage, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.QueuedMessage), args.Error(1)
}

// MockAuditLog
type MockAuditLog struct {
	mock.Mock
}

func (m *MockAuditLog) Append(ctx context.Context, e *entity.AuditLogEntry) error {
	return m.Called(ctx, e).Error(0)
}

func (m *MockAuditLog) HasSent(ctx context.Context, ref entity.LeadRef, emailType entity.EmailType) (bool, error) {
	args := m.Called(ctx, ref, emailType)
	return args.Bool(0), args.Error(1)
}

func (m *MockAuditLog) HasQueued(ctx context.Context, ref entity.LeadRef, emailType entity.EmailType) (bool, error) {
	args := m.Called(ctx, ref, emailType)
	return args.Bool(0), args.Error(1)
}

func (m *MockAuditLog) ListByLead(ctx context.Context, ref entity.LeadRef) ([]*entity.AuditLogEntry, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.AuditLogEntry), args.Error(1)
}

// MockRenderer
type MockRenderer struct {
	mock.Mock
}

func (m *MockRenderer) Render(ctx context.Context, lead *entity.Lead, emailType entity.EmailType) (entity.Rendered, error) {
	args := m.Called(ctx, lead, emailType)
	return args.Get(0).(entity.Rendered), args.Error(1)
}

// MockConfigLoader
type MockConfigLoader struct {
	mock.Mock
}

func (m *MockConfigLoader) Load(ctx context.Context) (entity.ProviderConfig, error) {
	args := m.Called(ctx)
	return args.Get(0).(entity.ProviderConfig), args.Error(1)
}

// MockTransport
type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Send(ctx context.Context, msg *entity.QueuedMessage) (mail.SendResult, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(mail.SendResult), args.Error(1)
}

func (m *MockTransport) Name() string { return "mock" }

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func byID(id string) interface{} {
	return mock.MatchedBy(func(m *entity.QueuedMessage) bool { return m.ID == id })
}

func queuedMessage(id string, lead entity.LeadRef) *entity.QueuedMessage {
	return &entity.QueuedMessage{
		ID:             id,
		RecipientEmail: "ana@example.com",
		SenderEmail:    "results@quiz.example",
		SenderName:     "Quiz",
		Subject:        "Your result",
		HTMLBody:       "<p>result</p>",
		EmailType:      entity.EmailTypeQuizResult,
		Language:       "en",
		Lead:           lead,
		Status:         entity.StatusProcessing,
		MaxRetries:     entity.DefaultMaxRetries,
		ScheduledFor:   fixedNow.Add(-time.Minute),
		CreatedAt:      fixedNow.Add(-time.Minute),
	}
}

func standardRef(id string) entity.LeadRef {
	return entity.LeadRef{Type: entity.LeadTypeStandard, ID: id}
}
