package outbox

import (
	"errors"
	"time"
)

// SendError marks delivery failures with retry classification metadata.
type SendError struct {
	err        error
	permanent  bool
	retryAfter time.Duration
}

func (e *SendError) Error() string {
	if e == nil || e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e *SendError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// NewPermanentError wraps a send failure that should be dead-lettered immediately.
func NewPermanentError(err error) error {
	if err == nil {
		return nil
	}
	return &SendError{err: err, permanent: true}
}

// NewRetryAfterError wraps a throttled send that must not be retried
// before the given delay.
func NewRetryAfterError(err error, retryAfter time.Duration) error {
	if err == nil {
		return nil
	}
	return &SendError{err: err, retryAfter: retryAfter}
}

// IsPermanentError reports whether err represents a non-retryable send failure.
func IsPermanentError(err error) bool {
	var sendErr *SendError
	if !errors.As(err, &sendErr) {
		return false
	}
	return sendErr.permanent
}

// RetryAfterHint returns the provider requested delay carried by err.
func RetryAfterHint(err error) (time.Duration, bool) {
	var sendErr *SendError
	if !errors.As(err, &sendErr) || sendErr.retryAfter <= 0 {
		return 0, false
	}
	return sendErr.retryAfter, true
}
