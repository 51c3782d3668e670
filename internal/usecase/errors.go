package usecase

import (
	"errors"
	"unicode/utf8"
)

// Error codes surfaced to operators and HTTP callers.
const (
	CodeNoTransport        = "NO_TRANSPORT"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeNoSender           = "NO_SENDER"
	CodeConfigLoad         = "CONFIG_LOAD"
	CodeStorage            = "STORAGE"
	CodeInvalidInput       = "INVALID_INPUT"
)

// DomainError is a setup problem the caller can fix (missing transport,
// bad input). It aborts the whole invocation.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *DomainError) Unwrap() error { return e.Err }

func IsDomainError(err error) bool {
	var de *DomainError
	return errors.As(err, &de)
}

// TechnicalError wraps infrastructure failures (database, config store).
type TechnicalError struct {
	Code    string
	Message string
	Err     error
}

func (e *TechnicalError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *TechnicalError) Unwrap() error { return e.Err }

func IsTechnicalError(err error) bool {
	var te *TechnicalError
	return errors.As(err, &te)
}

const maxErrorLen = 1024

// errorText renders err for persistence, capped at maxErrorLen runes.
func errorText(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if utf8.RuneCountInString(msg) <= maxErrorLen {
		return msg
	}
	return string([]rune(msg)[:maxErrorLen])
}
