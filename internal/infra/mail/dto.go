package mail

import (
	"context"
	"errors"

	"github.com/xavierca1/quiz-mailer/internal/entity"
)

var (
	ErrNoTransportConfigured = errors.New("no email transport configured: set a Resend API key or an SMTP host")
	ErrInvalidCredentials    = errors.New("smtp credentials are not representable in ISO-8859-1")
)

// Transport hands one rendered message to a mail provider. Implementations
// never retry; retry policy belongs to the delivery worker.
type Transport interface {
	Send(ctx context.Context, m *entity.QueuedMessage) (SendResult, error)
	Name() string
}

type SendResult struct {
	ProviderMessageID string
}

// SendError classifies a provider failure. Permanent errors are not worth
// retrying (malformed or rejected recipient).
type SendError struct {
	Transport string
	Permanent bool
	Err       error
}

func (e *SendError) Error() string {
	return e.Transport + ": " + e.Err.Error()
}

func (e *SendError) Unwrap() error { return e.Err }

func IsPermanent(err error) bool {
	var se *SendError
	return errors.As(err, &se) && se.Permanent
}

type TemplateData struct {
	Lead      *entity.Lead
	Language  string
	Percent   int
	EmailType entity.EmailType
}
