package entity

import (
	"time"

	"github.com/google/uuid"
)

const DefaultMaxAttempts = 3

// PendingNotification records that a lead needs an email that has not been
// confirmed queued yet.
type PendingNotification struct {
	ID           string     `json:"id"`
	LeadType     LeadType   `json:"lead_type"`
	LeadID       string     `json:"lead_id"`
	Status       Status     `json:"status"`
	Attempts     int        `json:"attempts"`
	MaxAttempts  int        `json:"max_attempts"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
}

func NewPendingNotification(ref LeadRef, now time.Time) *PendingNotification {
	return &PendingNotification{
		ID:          uuid.New().String(),
		LeadType:    ref.Type,
		LeadID:      ref.ID,
		Status:      StatusPending,
		MaxAttempts: DefaultMaxAttempts,
		CreatedAt:   now,
	}
}

func (n *PendingNotification) Ref() LeadRef {
	return LeadRef{Type: n.LeadType, ID: n.LeadID}
}

// Exhausted reports whether a failed row will never be picked up again.
func (n *PendingNotification) Exhausted() bool {
	return n.Attempts >= n.MaxAttempts
}
