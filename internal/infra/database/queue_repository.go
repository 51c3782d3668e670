package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/xavierca1/quiz-mailer/internal/entity"
)

const queueColumns = `id, recipient_email, sender_email, sender_name, COALESCE(reply_to_email, ''),
	subject, html_body, email_type, COALESCE(language, ''), lead_id, hypothesis_lead_id,
	status, retry_count, max_retries, COALESCE(error_message, ''), scheduled_for,
	processing_started_at, sent_at, created_at`

// QueueRepository owns email_queue. Every transition is a single statement.
type QueueRepository struct {
	DB *sql.DB
}

func NewQueueRepository(db *sql.DB) *QueueRepository {
	return &QueueRepository{DB: db}
}

func (r *QueueRepository) Enqueue(ctx context.Context, m *entity.QueuedMessage) error {
	standardID, hypothesisID := leadArgs(m.Lead)
	query := `
		INSERT INTO email_queue (
			id, recipient_email, sender_email, sender_name, reply_to_email, subject, html_body,
			email_type, language, lead_id, hypothesis_lead_id, status, retry_count, max_retries,
			scheduled_for, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := r.DB.ExecContext(ctx, query,
		m.ID, m.RecipientEmail, m.SenderEmail, m.SenderName, nullString(m.ReplyToEmail), m.Subject, m.HTMLBody,
		string(m.EmailType), m.Language, standardID, hypothesisID, string(m.Status), m.RetryCount, m.MaxRetries,
		m.ScheduledFor, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert queued message: %w", err)
	}
	return nil
}

func (r *QueueRepository) Exists(ctx context.Context, ref entity.LeadRef, emailType entity.EmailType) (bool, error) {
	column, err := leadColumn(ref.Type)
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM email_queue WHERE %s = $1 AND email_type = $2)`, column)

	var exists bool
	if err := r.DB.QueryRowContext(ctx, query, ref.ID, string(emailType)).Scan(&exists); err != nil {
		return false, fmt.Errorf("check queue for %s: %w", ref, err)
	}
	return exists, nil
}

// ReclaimStuck resets rows a crashed worker left in processing.
func (r *QueueRepository) ReclaimStuck(ctx context.Context, startedBefore time.Time) (int64, error) {
	query := `
		UPDATE email_queue
		SET status = 'pending', processing_started_at = NULL
		WHERE status = 'processing' AND processing_started_at < $1
	`
	res, err := r.DB.ExecContext(ctx, query, startedBefore)
	if err != nil {
		return 0, fmt.Errorf("reclaim stuck messages: %w", err)
	}
	return res.RowsAffected()
}

// ClaimDue selects and flips a due batch to processing in one statement;
// rows locked by a concurrent claim are skipped.
func (r *QueueRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*entity.QueuedMessage, error) {
	query := `
		UPDATE email_queue
		SET status = 'processing', processing_started_at = $1
		WHERE id IN (
			SELECT id FROM email_queue
			WHERE status = 'pending' AND scheduled_for <= $1
			ORDER BY scheduled_for ASC, created_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		) AND status = 'pending'
		RETURNING ` + queueColumns

	rows, err := r.DB.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim queued messages: %w", err)
	}
	defer rows.Close()

	claimed, err := collectQueued(rows)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(claimed, func(i, j int) bool {
		if !claimed[i].ScheduledFor.Equal(claimed[j].ScheduledFor) {
			return claimed[i].ScheduledFor.Before(claimed[j].ScheduledFor)
		}
		return claimed[i].CreatedAt.Before(claimed[j].CreatedAt)
	})
	return claimed, nil
}

// The status transitions below only apply to a row this run still holds.
// A row reclaimed and re-claimed by another run returns ErrClaimLost.

func (r *QueueRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE email_queue
		SET status = 'sent', sent_at = $2, error_message = NULL, processing_started_at = NULL
		WHERE id = $1 AND status = 'processing'
	`
	return r.exec(ctx, "mark message sent", query, id, at)
}

// ScheduleRetry puts the row back to pending. GREATEST keeps scheduled_for
// from ever moving backwards.
func (r *QueueRepository) ScheduleRetry(ctx context.Context, id string, retryCount int, next time.Time, errMsg string) error {
	query := `
		UPDATE email_queue
		SET status = 'pending', retry_count = $2, scheduled_for = GREATEST(scheduled_for, $3),
			error_message = $4, processing_started_at = NULL
		WHERE id = $1 AND status = 'processing'
	`
	return r.exec(ctx, "schedule retry", query, id, retryCount, next, errMsg)
}

// MarkFailed is terminal; scheduled_for is left as it was.
func (r *QueueRepository) MarkFailed(ctx context.Context, id string, retryCount int, errMsg string) error {
	query := `
		UPDATE email_queue
		SET status = 'failed', retry_count = $2, error_message = $3, processing_started_at = NULL
		WHERE id = $1 AND status = 'processing'
	`
	return r.exec(ctx, "mark message failed", query, id, retryCount, errMsg)
}

func (r *QueueRepository) ListFailed(ctx context.Context, limit int) ([]*entity.QueuedMessage, error) {
	query := `
		SELECT ` + queueColumns + `
		FROM email_queue
		WHERE status = 'failed'
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list failed messages: %w", err)
	}
	defer rows.Close()
	return collectQueued(rows)
}

func (r *QueueRepository) ListByLead(ctx context.Context, ref entity.LeadRef) ([]*entity.QueuedMessage, error) {
	column, err := leadColumn(ref.Type)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT %s
		FROM email_queue
		WHERE %s = $1
		ORDER BY created_at DESC
	`, queueColumns, column)

	rows, err := r.DB.QueryContext(ctx, query, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("list queue by lead: %w", err)
	}
	defer rows.Close()
	return collectQueued(rows)
}

func (r *QueueRepository) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, ErrClaimLost)
	}
	return nil
}

func collectQueued(rows *sql.Rows) ([]*entity.QueuedMessage, error) {
	var out []*entity.QueuedMessage
	for rows.Next() {
		m, err := scanQueued(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queued message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanQueued(row scanner) (*entity.QueuedMessage, error) {
	var (
		m                      entity.QueuedMessage
		emailType, status      string
		standardID, hypothesis sql.NullString
		startedAt, sentAt      sql.NullTime
	)
	if err := row.Scan(
		&m.ID, &m.RecipientEmail, &m.SenderEmail, &m.SenderName, &m.ReplyToEmail,
		&m.Subject, &m.HTMLBody, &emailType, &m.Language, &standardID, &hypothesis,
		&status, &m.RetryCount, &m.MaxRetries, &m.ErrorMessage, &m.ScheduledFor,
		&startedAt, &sentAt, &m.CreatedAt,
	); err != nil {
		return nil, err
	}
	m.EmailType = entity.EmailType(emailType)
	m.Status = entity.Status(status)
	m.Lead = refFromColumns(standardID, hypothesis)
	m.ProcessingStartedAt = timePtr(startedAt)
	m.SentAt = timePtr(sentAt)
	return &m, nil
}
