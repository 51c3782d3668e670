package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/xavierca1/quiz-mailer/internal/entity"
)

const pendingColumns = `id, lead_type, lead_id, status, attempts, max_attempts,
	COALESCE(error_message, ''), created_at, processed_at`

// PendingNotificationRepository owns pending_email_notifications.
type PendingNotificationRepository struct {
	DB *sql.DB
}

func NewPendingNotificationRepository(db *sql.DB) *PendingNotificationRepository {
	return &PendingNotificationRepository{DB: db}
}

func (r *PendingNotificationRepository) FindActive(ctx context.Context, ref entity.LeadRef) (*entity.PendingNotification, error) {
	query := `
		SELECT ` + pendingColumns + `
		FROM pending_email_notifications
		WHERE lead_type = $1 AND lead_id = $2 AND status IN ('pending', 'processing')
		ORDER BY created_at ASC
		LIMIT 1
	`
	n, err := scanPending(r.DB.QueryRowContext(ctx, query, string(ref.Type), ref.ID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active notification: %w", err)
	}
	return n, nil
}

func (r *PendingNotificationRepository) Create(ctx context.Context, n *entity.PendingNotification) error {
	query := `
		INSERT INTO pending_email_notifications (id, lead_type, lead_id, status, attempts, max_attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.DB.ExecContext(ctx, query,
		n.ID, string(n.LeadType), n.LeadID, string(n.Status), n.Attempts, n.MaxAttempts, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ClaimDue picks pending rows older than grace, failed rows with attempts
// left, and processing rows abandoned for longer than the stuck timeout.
// processed_at doubles as the claim timestamp while a row is processing.
func (r *PendingNotificationRepository) ClaimDue(ctx context.Context, now time.Time, grace time.Duration, limit int) ([]*entity.PendingNotification, error) {
	query := `
		UPDATE pending_email_notifications p
		SET status = 'processing', attempts = p.attempts + 1, processed_at = $1
		WHERE p.id IN (
			SELECT id FROM pending_email_notifications
			WHERE (status = 'pending' AND created_at < $2)
				OR (status = 'failed' AND attempts < max_attempts)
				OR (status = 'processing' AND processed_at < $3)
			ORDER BY created_at ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + pendingColumns

	rows, err := r.DB.QueryContext(ctx, query, now, now.Add(-grace), now.Add(-entity.StuckTimeout), limit)
	if err != nil {
		return nil, fmt.Errorf("claim notifications: %w", err)
	}
	defer rows.Close()

	claimed, err := collectPending(rows)
	if err != nil {
		return nil, err
	}
	// RETURNING carries no order
	sort.SliceStable(claimed, func(i, j int) bool { return claimed[i].CreatedAt.Before(claimed[j].CreatedAt) })
	return claimed, nil
}

func (r *PendingNotificationRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE pending_email_notifications
		SET status = 'sent', processed_at = $2, error_message = NULL
		WHERE id = $1
	`
	return r.exec(ctx, "mark notification sent", query, id, at)
}

func (r *PendingNotificationRepository) MarkFailed(ctx context.Context, id string, errMsg string, at time.Time) error {
	query := `
		UPDATE pending_email_notifications
		SET status = 'failed', error_message = $2, processed_at = $3
		WHERE id = $1
	`
	return r.exec(ctx, "mark notification failed", query, id, errMsg, at)
}

func (r *PendingNotificationRepository) ListExhausted(ctx context.Context, limit int) ([]*entity.PendingNotification, error) {
	query := `
		SELECT ` + pendingColumns + `
		FROM pending_email_notifications
		WHERE status = 'failed' AND attempts >= max_attempts
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list exhausted notifications: %w", err)
	}
	defer rows.Close()
	return collectPending(rows)
}

func (r *PendingNotificationRepository) ListByLead(ctx context.Context, ref entity.LeadRef) ([]*entity.PendingNotification, error) {
	query := `
		SELECT ` + pendingColumns + `
		FROM pending_email_notifications
		WHERE lead_type = $1 AND lead_id = $2
		ORDER BY created_at DESC
	`
	rows, err := r.DB.QueryContext(ctx, query, string(ref.Type), ref.ID)
	if err != nil {
		return nil, fmt.Errorf("list notifications by lead: %w", err)
	}
	defer rows.Close()
	return collectPending(rows)
}

func (r *PendingNotificationRepository) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

func collectPending(rows *sql.Rows) ([]*entity.PendingNotification, error) {
	var out []*entity.PendingNotification
	for rows.Next() {
		n, err := scanPending(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func scanPending(row scanner) (*entity.PendingNotification, error) {
	var (
		n           entity.PendingNotification
		leadType    string
		status      string
		processedAt sql.NullTime
	)
	if err := row.Scan(
		&n.ID, &leadType, &n.LeadID, &status, &n.Attempts, &n.MaxAttempts,
		&n.ErrorMessage, &n.CreatedAt, &processedAt,
	); err != nil {
		return nil, err
	}
	n.LeadType = entity.LeadType(leadType)
	n.Status = entity.Status(status)
	n.ProcessedAt = timePtr(processedAt)
	return &n, nil
}
