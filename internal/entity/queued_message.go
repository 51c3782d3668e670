package entity

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultMaxRetries = 3
	// StuckTimeout is how long a message may sit in processing before it is
	// considered abandoned by a crashed worker.
	StuckTimeout = 5 * time.Minute
)

// QueuedMessage is a fully rendered email awaiting dispatch.
type QueuedMessage struct {
	ID                  string     `json:"id"`
	RecipientEmail      string     `json:"recipient_email"`
	SenderEmail         string     `json:"sender_email"`
	SenderName          string     `json:"sender_name"`
	ReplyToEmail        string     `json:"reply_to_email,omitempty"`
	Subject             string     `json:"subject"`
	HTMLBody            string     `json:"html_body"`
	EmailType           EmailType  `json:"email_type"`
	Language            string     `json:"language"`
	Lead                LeadRef    `json:"lead"`
	Status              Status     `json:"status"`
	RetryCount          int        `json:"retry_count"`
	MaxRetries          int        `json:"max_retries"`
	ErrorMessage        string     `json:"error_message,omitempty"`
	ScheduledFor        time.Time  `json:"scheduled_for"`
	ProcessingStartedAt *time.Time `json:"processing_started_at,omitempty"`
	SentAt              *time.Time `json:"sent_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// Sender identity stamped on every message at enqueue time.
type Sender struct {
	Email   string
	Name    string
	ReplyTo string
}

func NewQueuedMessage(lead *Lead, emailType EmailType, sender Sender, content Rendered, now time.Time) (*QueuedMessage, error) {
	msg := &QueuedMessage{
		ID:             uuid.New().String(),
		RecipientEmail: lead.RecipientFor(emailType),
		SenderEmail:    sender.Email,
		SenderName:     sender.Name,
		ReplyToEmail:   sender.ReplyTo,
		Subject:        content.Subject,
		HTMLBody:       content.HTML,
		EmailType:      emailType,
		Language:       lead.Language,
		Lead:           lead.Ref(),
		Status:         StatusPending,
		MaxRetries:     DefaultMaxRetries,
		ScheduledFor:   now,
		CreatedAt:      now,
	}

	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return msg, nil
}

func (m *QueuedMessage) Validate() error {
	if m.RecipientEmail == "" {
		return ErrLeadWithoutAddress
	}
	if m.SenderEmail == "" {
		return errors.New("sender email is required")
	}
	if m.Subject == "" {
		return errors.New("subject is required")
	}
	if m.HTMLBody == "" {
		return errors.New("html body is required")
	}
	return m.Lead.Validate()
}

// Backoff returns the delay before the retry that follows the given attempt
// count: 2^retryCount minutes.
func Backoff(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	// cap the exponent so the duration cannot overflow
	if retryCount > 20 {
		retryCount = 20
	}
	return time.Duration(math.Pow(2, float64(retryCount))) * time.Minute
}

// NextAttemptAt schedules the retry after a failed send. The result never
// precedes the current schedule.
func (m *QueuedMessage) NextAttemptAt(now time.Time) time.Time {
	next := now.Add(Backoff(m.RetryCount))
	if !next.After(m.ScheduledFor) {
		next = m.ScheduledFor.Add(Backoff(m.RetryCount))
	}
	return next
}

// RetriesExhausted is evaluated after RetryCount has been incremented.
func (m *QueuedMessage) RetriesExhausted() bool {
	return m.RetryCount >= m.MaxRetries
}
