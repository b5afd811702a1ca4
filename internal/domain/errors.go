package domain

import "errors"

// Error taxonomy shared by the source, normalizer and sinks.
var (
	// ErrAuth is fatal: the API rejected the key.
	ErrAuth = errors.New("authentication failed")

	// ErrTransientNetwork may be retried with backoff.
	ErrTransientNetwork = errors.New("transient network error")

	// ErrMalformedResponse is fatal: the API contract drifted.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrValidation rejects a single record.
	ErrValidation = errors.New("validation failed")

	// ErrStorage fails a single record write.
	ErrStorage = errors.New("storage error")
)
