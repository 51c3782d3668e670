package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/xavierca1/quiz-mailer/internal/entity"
)

// SettingsRepository reads the operator-editable email_settings row.
type SettingsRepository struct {
	DB *sql.DB
}

func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{DB: db}
}

// Load returns the newest settings row, or a zero config when none exists.
func (r *SettingsRepository) Load(ctx context.Context) (entity.ProviderConfig, error) {
	query := `
		SELECT COALESCE(resend_api_key, ''), COALESCE(smtp_host, ''), COALESCE(smtp_port, 0),
			COALESCE(smtp_username, ''), COALESCE(smtp_password, ''), COALESCE(smtp_use_tls, FALSE),
			COALESCE(sender_email, ''), COALESCE(sender_name, ''), COALESCE(reply_to_email, ''),
			COALESCE(admin_notify_email, '')
		FROM email_settings
		ORDER BY updated_at DESC
		LIMIT 1
	`
	var cfg entity.ProviderConfig
	err := r.DB.QueryRowContext(ctx, query).Scan(
		&cfg.ResendAPIKey,
		&cfg.SMTPHost,
		&cfg.SMTPPort,
		&cfg.SMTPUsername,
		&cfg.SMTPPassword,
		&cfg.SMTPUseTLS,
		&cfg.SenderEmail,
		&cfg.SenderName,
		&cfg.ReplyToEmail,
		&cfg.AdminNotifyEmail,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.ProviderConfig{}, nil
	}
	if err != nil {
		return entity.ProviderConfig{}, fmt.Errorf("load email settings: %w", err)
	}
	return cfg, nil
}
