// Package errs defines the error taxonomy shared by the chat backend.
//
// Components wrap these sentinels with context (fmt.Errorf("pkg: op: %w", ...))
// and callers branch on them with errors.Is.
package errs

import "errors"

var (
	// ErrValidation marks missing or malformed request fields. Never retried.
	ErrValidation = errors.New("validation error")

	// ErrStoreUnavailable marks a transport failure or non-2xx answer from the message store.
	ErrStoreUnavailable = errors.New("message store unavailable")

	// ErrWebhookUnavailable marks a failed forward to the workflow engine.
	ErrWebhookUnavailable = errors.New("webhook unavailable")

	// ErrTimeoutExceeded is returned when no agent reply arrived before the deadline.
	ErrTimeoutExceeded = errors.New("timeout exceeded waiting for agent reply")

	// ErrNotFound marks a missing catalogue item.
	ErrNotFound = errors.New("not found")
)

// IsTimeout reports whether err is (or wraps) ErrTimeoutExceeded.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeoutExceeded)
}
