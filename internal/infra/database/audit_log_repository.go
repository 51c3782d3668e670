package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/xavierca1/quiz-mailer/internal/entity"
)

// AuditLogRepository is append-only: no update or delete lives here.
type AuditLogRepository struct {
	DB *sql.DB
}

func NewAuditLogRepository(db *sql.DB) *AuditLogRepository {
	return &AuditLogRepository{DB: db}
}

func (r *AuditLogRepository) Append(ctx context.Context, e *entity.AuditLogEntry) error {
	standardID, hypothesisID := leadArgs(e.Lead)
	query := `
		INSERT INTO email_logs (
			id, email_type, recipient_email, sender_email, sender_name, subject, status,
			provider_message_id, error_message, language, lead_id, hypothesis_lead_id,
			html_body, resend_attempts, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := r.DB.ExecContext(ctx, query,
		e.ID, string(e.EmailType), e.RecipientEmail, e.SenderEmail, e.SenderName, e.Subject, string(e.Status),
		nullString(e.ProviderMessageID), nullString(e.ErrorMessage), e.Language, standardID, hypothesisID,
		e.HTMLBody, e.ResendAttempts, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (r *AuditLogRepository) HasSent(ctx context.Context, ref entity.LeadRef, emailType entity.EmailType) (bool, error) {
	return r.has(ctx, ref, emailType, entity.AuditSent)
}

func (r *AuditLogRepository) HasQueued(ctx context.Context, ref entity.LeadRef, emailType entity.EmailType) (bool, error) {
	return r.has(ctx, ref, emailType, entity.AuditQueued)
}

func (r *AuditLogRepository) has(ctx context.Context, ref entity.LeadRef, emailType entity.EmailType, status entity.AuditStatus) (bool, error) {
	column, err := leadColumn(ref.Type)
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf(`
		SELECT EXISTS (
			SELECT 1 FROM email_logs WHERE %s = $1 AND email_type = $2 AND status = $3
		)
	`, column)

	var exists bool
	if err := r.DB.QueryRowContext(ctx, query, ref.ID, string(emailType), string(status)).Scan(&exists); err != nil {
		return false, fmt.Errorf("check %s audit for %s: %w", status, ref, err)
	}
	return exists, nil
}

func (r *AuditLogRepository) ListByLead(ctx context.Context, ref entity.LeadRef) ([]*entity.AuditLogEntry, error) {
	column, err := leadColumn(ref.Type)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT id, email_type, recipient_email, sender_email, sender_name, subject, status,
			COALESCE(provider_message_id, ''), COALESCE(error_message, ''), COALESCE(language, ''),
			lead_id, hypothesis_lead_id, resend_attempts, created_at
		FROM email_logs
		WHERE %s = $1
		ORDER BY created_at DESC
	`, column)

	rows, err := r.DB.QueryContext(ctx, query, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("list audit by lead: %w", err)
	}
	defer rows.Close()

	var out []*entity.AuditLogEntry
	for rows.Next() {
		var (
			e                      entity.AuditLogEntry
			emailType, status      string
			standardID, hypothesis sql.NullString
		)
		if err := rows.Scan(
			&e.ID, &emailType, &e.RecipientEmail, &e.SenderEmail, &e.SenderName, &e.Subject, &status,
			&e.ProviderMessageID, &e.ErrorMessage, &e.Language, &standardID, &hypothesis,
			&e.ResendAttempts, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.EmailType = entity.EmailType(emailType)
		e.Status = entity.AuditStatus(status)
		e.Lead = refFromColumns(standardID, hypothesis)
		out = append(out, &e)
	}
	return out, rows.Err()
}
