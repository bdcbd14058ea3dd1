package service

import "errors"

// Business-rule failures, returned typed so the HTTP layer can map them to
// user-facing responses. Anything else coming out of the service is a
// transient storage failure and should be treated as retryable.
var (
	ErrInvalidURL          = errors.New("invalid URL")
	ErrInvalidCode         = errors.New("invalid custom code")
	ErrCodeTaken           = errors.New("custom code already taken")
	ErrNotFound            = errors.New("link not found")
	ErrQuotaExceeded       = errors.New("anonymous creation quota exceeded")
	ErrGenerationExhausted = errors.New("short code generation retry budget exhausted")
)

// IsUserError reports whether err should be blamed on the request rather than
// surfaced as an operational failure.
func IsUserError(err error) bool {
	return errors.Is(err, ErrInvalidURL) ||
		errors.Is(err, ErrInvalidCode) ||
		errors.Is(err, ErrCodeTaken) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrQuotaExceeded)
}
