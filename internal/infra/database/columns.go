package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/xavierca1/quiz-mailer/internal/entity"
)

const (
	columnStandardLead   = "lead_id"
	columnHypothesisLead = "hypothesis_lead_id"
)

type scanner interface {
	Scan(dest ...any) error
}

// leadColumn maps a lead variant to its typed foreign key column. Only
// these two constants ever reach query text.
func leadColumn(t entity.LeadType) (string, error) {
	switch t {
	case entity.LeadTypeStandard:
		return columnStandardLead, nil
	case entity.LeadTypeHypothesis:
		return columnHypothesisLead, nil
	}
	return "", fmt.Errorf("%w: %q", entity.ErrInvalidLeadType, t)
}

func leadTable(t entity.LeadType) (string, error) {
	switch t {
	case entity.LeadTypeStandard:
		return "leads", nil
	case entity.LeadTypeHypothesis:
		return "hypothesis_leads", nil
	}
	return "", fmt.Errorf("%w: %q", entity.ErrInvalidLeadType, t)
}

// leadArgs splits a ref into the (lead_id, hypothesis_lead_id) pair.
func leadArgs(ref entity.LeadRef) (any, any) {
	if ref.Type == entity.LeadTypeHypothesis {
		return nil, ref.ID
	}
	return ref.ID, nil
}

func refFromColumns(standard, hypothesis sql.NullString) entity.LeadRef {
	if hypothesis.Valid {
		return entity.LeadRef{Type: entity.LeadTypeHypothesis, ID: hypothesis.String}
	}
	return entity.LeadRef{Type: entity.LeadTypeStandard, ID: standard.String}
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
