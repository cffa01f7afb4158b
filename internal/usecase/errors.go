package usecase

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials covers both an unknown email and a wrong
	// password. The two causes are never distinguished to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNoPendingChallenge indicates no live challenge exists for the
	// email and flow, whether never issued, already consumed, or expired.
	ErrNoPendingChallenge = errors.New("no pending verification code")
	// ErrInvalidOTP indicates the supplied code did not match. An attempt
	// was consumed.
	ErrInvalidOTP = errors.New("invalid verification code")
	// ErrTooManyAttempts indicates the attempt ceiling was reached and the
	// challenge has been purged. The caller must request a fresh code.
	ErrTooManyAttempts = errors.New("too many verification attempts")
	// ErrEmailTaken indicates a durable account already exists for the
	// email, detected either at request time or at commit time.
	ErrEmailTaken = errors.New("email already registered")
	// ErrDivisionNotFound indicates the staged division could not be
	// resolved during the registration commit.
	ErrDivisionNotFound = errors.New("division not found")
)

// ValidationError reports malformed or missing input, caught before any
// side effect.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// RateLimitExceededError reports a tripped sliding-window limiter. RetryAfter
// is zero when the window boundary could not be determined.
type RateLimitExceededError struct {
	Scope      string
	RetryAfter time.Duration
}

func (e *RateLimitExceededError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Scope, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded for %s", e.Scope)
}
