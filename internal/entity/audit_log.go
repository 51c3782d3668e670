package entity

import (
	"time"

	"github.com/google/uuid"
)

// AuditLogEntry is an immutable record of a send outcome.
type AuditLogEntry struct {
	ID                string      `json:"id"`
	EmailType         EmailType   `json:"email_type"`
	RecipientEmail    string      `json:"recipient_email"`
	SenderEmail       string      `json:"sender_email"`
	SenderName        string      `json:"sender_name"`
	Subject           string      `json:"subject"`
	Status            AuditStatus `json:"status"`
	ProviderMessageID string      `json:"provider_message_id,omitempty"`
	ErrorMessage      string      `json:"error_message,omitempty"`
	Language          string      `json:"language"`
	Lead              LeadRef     `json:"lead"`
	HTMLBody          string      `json:"html_body,omitempty"`
	ResendAttempts    int         `json:"resend_attempts"`
	CreatedAt         time.Time   `json:"created_at"`
}

// NewAuditEntry copies the message fields every audit row carries.
func NewAuditEntry(m *QueuedMessage, status AuditStatus, now time.Time) *AuditLogEntry {
	return &AuditLogEntry{
		ID:             uuid.New().String(),
		EmailType:      m.EmailType,
		RecipientEmail: m.RecipientEmail,
		SenderEmail:    m.SenderEmail,
		SenderName:     m.SenderName,
		Subject:        m.Subject,
		Status:         status,
		Language:       m.Language,
		Lead:           m.Lead,
		HTMLBody:       m.HTMLBody,
		ResendAttempts: m.RetryCount,
		CreatedAt:      now,
	}
}
