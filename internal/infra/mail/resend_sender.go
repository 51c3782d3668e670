package mail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"

	"github.com/xavierca1/quiz-mailer/internal/entity"
)

type emailsAPI interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendSender delivers through the Resend HTTP API.
type ResendSender struct {
	emails emailsAPI
}

func NewResendSender(apiKey string) *ResendSender {
	client := resend.NewCustomClient(newResendHTTPClient(http.DefaultTransport), strings.TrimSpace(apiKey))
	return &ResendSender{emails: client.Emails}
}

func newResendHTTPClient(next http.RoundTripper) *http.Client {
	return &http.Client{Timeout: time.Minute, Transport: statusRecorder{next: next}}
}

type statusKey struct{}

// statusRecorder keeps the API response status for the request's caller.
// resend-go reports failures as plain strings, so this is the only way to
// tell a rejected message from an outage.
type statusRecorder struct {
	next http.RoundTripper
}

func (r statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := r.next.RoundTrip(req)
	if resp != nil {
		if status, ok := req.Context().Value(statusKey{}).(*int); ok {
			*status = resp.StatusCode
		}
	}
	return resp, err
}

// isPermanentAPIStatus is true for 4xx answers about the message itself:
// validation errors, an unverified sender domain. A bad API key, a timeout
// and rate limiting stay transient.
func isPermanentAPIStatus(status int) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return status >= 400 && status < 500
}

func (s *ResendSender) Name() string { return entity.TransportResend }

func (s *ResendSender) Send(ctx context.Context, m *entity.QueuedMessage) (SendResult, error) {
	if err := validateRecipient(s.Name(), m.RecipientEmail); err != nil {
		return SendResult{}, err
	}

	params := &resend.SendEmailRequest{
		From:    formatAddress(m.SenderEmail, m.SenderName),
		To:      []string{m.RecipientEmail},
		Subject: m.Subject,
		Html:    m.HTMLBody,
		ReplyTo: m.ReplyToEmail,
		Tags: []resend.Tag{
			{Name: "email_type", Value: string(m.EmailType)},
		},
	}

	var status int
	resp, err := s.emails.SendWithContext(context.WithValue(ctx, statusKey{}, &status), params)
	if err != nil {
		return SendResult{}, &SendError{
			Transport: s.Name(),
			Permanent: isPermanentAPIStatus(status) && !errors.Is(err, resend.ErrRateLimit),
			Err:       fmt.Errorf("failed to send email via Resend (status %d): %w", status, err),
		}
	}

	var id string
	if resp != nil {
		id = resp.Id
	}
	return SendResult{ProviderMessageID: id}, nil
}
