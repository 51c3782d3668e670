package mail

import (
	"fmt"
	"net/mail"

	"github.com/xavierca1/quiz-mailer/internal/entity"
)

// NewTransport builds the single transport selected by cfg. The API
// transport wins when both are configured.
func NewTransport(cfg entity.ProviderConfig) (Transport, error) {
	switch cfg.Transport() {
	case entity.TransportResend:
		return NewResendSender(cfg.ResendAPIKey), nil
	case entity.TransportSMTP:
		sender, err := NewEmailSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPUseTLS)
		if err != nil {
			return nil, err
		}
		return sender, nil
	default:
		return nil, ErrNoTransportConfigured
	}
}

func validateRecipient(transport, addr string) error {
	if _, err := mail.ParseAddress(addr); err != nil {
		return &SendError{
			Transport: transport,
			Permanent: true,
			Err:       fmt.Errorf("invalid recipient %q: %w", addr, err),
		}
	}
	return nil
}

func formatAddress(email, name string) string {
	if name == "" {
		return email
	}
	return (&mail.Address{Name: name, Address: email}).String()
}
