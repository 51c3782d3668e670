package usecase

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/xavierca1/quiz-mailer/internal/entity"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func ValidateLeadCreatedInput(input LeadCreatedInput) []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(input.LeadType) == "" {
		errors = append(errors, ValidationError{"lead_type", "is required"})
	} else if _, err := entity.ParseLeadType(input.LeadType); err != nil {
		errors = append(errors, ValidationError{"lead_type", "must be standard or hypothesis"})
	}

	if strings.TrimSpace(input.LeadID) == "" {
		errors = append(errors, ValidationError{"lead_id", "is required"})
	} else if _, err := uuid.Parse(input.LeadID); err != nil {
		errors = append(errors, ValidationError{"lead_id", "must be a uuid"})
	}

	return errors
}

// ToLeadRef validates input and converts it.
func (input LeadCreatedInput) ToLeadRef() (entity.LeadRef, error) {
	if errs := ValidateLeadCreatedInput(input); len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, e.Error())
		}
		return entity.LeadRef{}, &DomainError{Code: CodeInvalidInput, Message: strings.Join(msgs, "; ")}
	}
	return entity.LeadRef{Type: entity.LeadType(input.LeadType), ID: input.LeadID}, nil
}
