package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrExternalService        = errors.New("external service failure")
	ErrTemporary              = errors.New("temporary failure")
	ErrMalformedResponse      = errors.New("malformed response")
	ErrGeneratorNotConfigured = errors.New("generator not configured")
	ErrDeadlineExceeded       = errors.New("retrieval deadline exceeded")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ErrorKindName returns a stable label for the most specific known kind in err.
func ErrorKindName(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrDeadlineExceeded):
		return "deadline_exceeded"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, ErrGeneratorNotConfigured):
		return "not_configured"
	case errors.Is(err, ErrTemporary):
		return "temporary"
	case errors.Is(err, ErrExternalService):
		return "external_service"
	default:
		return "internal"
	}
}
