package worker

import "errors"

// RetryableError marks a processing failure the queue should redeliver, such
// as a rate-limited source whose reset time has not passed yet.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }

func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable reports whether err carries redelivery semantics.
func Retryable(err error) bool {
	var r *RetryableError
	return errors.As(err, &r)
}
