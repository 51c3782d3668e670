package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xavierca1/quiz-mailer/internal/entity"
)

// LeadRepository reads the lead tables owned by the submission flow.
type LeadRepository struct {
	DB *sql.DB
}

func NewLeadRepository(db *sql.DB) *LeadRepository {
	return &LeadRepository{DB: db}
}

func (r *LeadRepository) FindOrphans(ctx context.Context, leadType entity.LeadType, createdBefore, createdAfter time.Time, limit int) ([]entity.Lead, error) {
	table, err := leadTable(leadType)
	if err != nil {
		return nil, err
	}
	column, err := leadColumn(leadType)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT l.id, l.email, l.created_at
		FROM %[1]s l
		WHERE l.created_at < $1
			AND ($2::timestamptz IS NULL OR l.created_at > $2)
			AND COALESCE(l.email, '') <> ''
			AND NOT EXISTS (SELECT 1 FROM email_logs e WHERE e.%[2]s = l.id)
			AND NOT EXISTS (SELECT 1 FROM email_queue q WHERE q.%[2]s = l.id)
			AND NOT EXISTS (
				SELECT 1 FROM pending_email_notifications p
				WHERE p.lead_type = $3 AND p.lead_id = l.id
			)
		ORDER BY l.created_at ASC
		LIMIT $4
	`, table, column)

	// a zero createdAfter leaves the scan unbounded
	var after any
	if !createdAfter.IsZero() {
		after = createdAfter
	}
	rows, err := r.DB.QueryContext(ctx, query, createdBefore, after, string(leadType), limit)
	if err != nil {
		return nil, fmt.Errorf("find orphan %s leads: %w", leadType, err)
	}
	defer rows.Close()

	var leads []entity.Lead
	for rows.Next() {
		lead := entity.Lead{Type: leadType}
		if err := rows.Scan(&lead.ID, &lead.Email, &lead.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan orphan lead: %w", err)
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}

// FindByRef loads a lead with its quiz and the result band its score falls in.
func (r *LeadRepository) FindByRef(ctx context.Context, ref entity.LeadRef) (*entity.Lead, error) {
	table, err := leadTable(ref.Type)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT l.id, COALESCE(l.email, ''), COALESCE(l.name, ''), l.score, COALESCE(l.max_score, 0),
			COALESCE(l.language, 'en'), l.created_at, COALESCE(l.quiz_id::text, ''),
			COALESCE(q.title, ''), COALESCE(q.notification_email, ''),
			res.title, res.description
		FROM %s l
		LEFT JOIN quizzes q ON q.id = l.quiz_id
		LEFT JOIN LATERAL (
			SELECT qr.title, qr.description
			FROM quiz_results qr
			WHERE qr.quiz_id = l.quiz_id AND l.score BETWEEN qr.min_score AND qr.max_score
			ORDER BY qr.min_score DESC
			LIMIT 1
		) res ON TRUE
		WHERE l.id = $1
	`, table)

	lead := entity.Lead{Type: ref.Type}
	var resultTitle, resultDescription sql.NullString

	err = r.DB.QueryRowContext(ctx, query, ref.ID).Scan(
		&lead.ID,
		&lead.Email,
		&lead.Name,
		&lead.Score,
		&lead.MaxScore,
		&lead.Language,
		&lead.CreatedAt,
		&lead.QuizID,
		&lead.QuizTitle,
		&lead.NotifyEmail,
		&resultTitle,
		&resultDescription,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", entity.ErrLeadNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("find lead %s: %w", ref, err)
	}

	if resultTitle.Valid {
		lead.Result = &entity.ResultContent{Title: resultTitle.String, Description: resultDescription.String}
	}
	return &lead, nil
}
