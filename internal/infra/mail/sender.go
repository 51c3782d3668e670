package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/textproto"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"github.com/xavierca1/quiz-mailer/internal/entity"
)

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailSender delivers over SMTP.
type EmailSender struct {
	Host     string
	Port     int
	User     string
	Password string
	UseTLS   bool

	dialer dialer
}

// gomail flattens per-message errors with %v, so the reply code is recovered
// from the text.
var smtpReplyCode = regexp.MustCompile(`could not send email \d+: (\d{3}) `)

// NewEmailSender fails fast when the credentials cannot be encoded.
func NewEmailSender(host string, port int, user, password string, useTLS bool) (*EmailSender, error) {
	if err := validateLatin1("smtp username", user); err != nil {
		return nil, err
	}
	if err := validateLatin1("smtp password", password); err != nil {
		return nil, err
	}
	if port == 0 {
		port = 587
	}

	useTLS = implicitTLS(port, useTLS)
	d := gomail.NewDialer(host, port, user, password)
	d.SSL = useTLS
	d.TLSConfig = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}

	return &EmailSender{
		Host:     host,
		Port:     port,
		User:     user,
		Password: password,
		UseTLS:   useTLS,
		dialer:   d,
	}, nil
}

// implicitTLS decides between a TLS handshake on connect and plain SMTP
// upgraded with STARTTLS, which gomail does whenever the server offers it.
// The submission ports are fixed by convention; the flag only decides for
// any other port.
func implicitTLS(port int, useTLS bool) bool {
	switch port {
	case 465:
		return true
	case 25, 587:
		return false
	default:
		return useTLS
	}
}

func (s *EmailSender) Name() string { return entity.TransportSMTP }

func (s *EmailSender) Send(ctx context.Context, m *entity.QueuedMessage) (SendResult, error) {
	if err := ctx.Err(); err != nil {
		return SendResult{}, &SendError{Transport: s.Name(), Err: err}
	}
	if err := validateRecipient(s.Name(), m.RecipientEmail); err != nil {
		return SendResult{}, err
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.New().String(), domainOf(m.SenderEmail, s.Host))

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.SenderEmail, m.SenderName)
	msg.SetHeader("To", m.RecipientEmail)
	if m.ReplyToEmail != "" {
		msg.SetHeader("Reply-To", m.ReplyToEmail)
	}
	msg.SetHeader("Subject", m.Subject)
	msg.SetHeader("Message-ID", messageID)
	if m.Language != "" {
		msg.SetHeader("Content-Language", m.Language)
	}
	msg.SetBody("text/html", m.HTMLBody)

	if err := s.dialer.DialAndSend(msg); err != nil {
		return SendResult{}, &SendError{
			Transport: s.Name(),
			Permanent: isPermanentSMTP(err),
			Err:       fmt.Errorf("smtp send: %w", err),
		}
	}

	return SendResult{ProviderMessageID: messageID}, nil
}

// isPermanentSMTP is true for 5xx replies to the message itself. Errors
// from the dial/auth phase stay transient so a credential fix recovers the
// queue without burning every message.
func isPermanentSMTP(err error) bool {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return false
	}
	match := smtpReplyCode.FindStringSubmatch(err.Error())
	if match == nil {
		return false
	}
	code, convErr := strconv.Atoi(match[1])
	return convErr == nil && code >= 500 && code < 600
}

func domainOf(email, fallback string) string {
	if at := strings.LastIndex(email, "@"); at >= 0 && at < len(email)-1 {
		return email[at+1:]
	}
	return fallback
}
