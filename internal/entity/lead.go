package entity

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrLeadNotFound       = errors.New("lead not found")
	ErrInvalidLeadType    = errors.New("invalid lead type")
	ErrLeadWithoutAddress = errors.New("lead has no email address")
)

// LeadType selects which quiz flow produced a lead, and therefore which
// result email it gets.
type LeadType string

const (
	LeadTypeStandard   LeadType = "standard"
	LeadTypeHypothesis LeadType = "hypothesis"
)

// LeadTypes lists every variant in the order jobs iterate over them.
var LeadTypes = []LeadType{LeadTypeStandard, LeadTypeHypothesis}

func ParseLeadType(s string) (LeadType, error) {
	switch LeadType(s) {
	case LeadTypeStandard, LeadTypeHypothesis:
		return LeadType(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidLeadType, s)
}

// ResultEmailType is the user-facing email a lead of this type receives.
func (t LeadType) ResultEmailType() EmailType {
	if t == LeadTypeHypothesis {
		return EmailTypeHypothesisResult
	}
	return EmailTypeQuizResult
}

// LeadRef points at exactly one lead variant. Storage maps it to one of the
// typed lead columns.
type LeadRef struct {
	Type LeadType `json:"lead_type"`
	ID   string   `json:"lead_id"`
}

func (r LeadRef) String() string {
	return string(r.Type) + ":" + r.ID
}

func (r LeadRef) Validate() error {
	if _, err := ParseLeadType(string(r.Type)); err != nil {
		return err
	}
	if r.ID == "" {
		return errors.New("lead id is required")
	}
	return nil
}

// ResultContent is the score band a lead landed in.
type ResultContent struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Lead is a completed quiz submission. Read-only for the pipeline.
type Lead struct {
	ID          string         `json:"id"`
	Type        LeadType       `json:"lead_type"`
	QuizID      string         `json:"quiz_id"`
	QuizTitle   string         `json:"quiz_title"`
	Email       string         `json:"email"`
	Name        string         `json:"name,omitempty"`
	Score       int            `json:"score"`
	MaxScore    int            `json:"max_score"`
	Language    string         `json:"language"`
	NotifyEmail string         `json:"notify_email,omitempty"` // quiz owner copy
	Result      *ResultContent `json:"result,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

func (l *Lead) Ref() LeadRef {
	return LeadRef{Type: l.Type, ID: l.ID}
}

// EmailTypes returns the emails this lead should produce.
func (l *Lead) EmailTypes() []EmailType {
	types := []EmailType{l.Type.ResultEmailType()}
	if l.NotifyEmail != "" {
		types = append(types, EmailTypeAdminLeadNotification)
	}
	return types
}

// RecipientFor resolves who gets an email of the given type.
func (l *Lead) RecipientFor(t EmailType) string {
	if t == EmailTypeAdminLeadNotification {
		return l.NotifyEmail
	}
	return l.Email
}
