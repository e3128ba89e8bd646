package marketplace

import "github.com/pkg/errors"

var (
	// ErrAuth means the upstream rejected our credentials even after a
	// fresh token. Never retried.
	ErrAuth = errors.New("marketplace: authorization failed after refresh")

	// ErrNotFound means the requested resource or selector is gone.
	ErrNotFound = errors.New("marketplace: resource not found")

	// ErrTransient covers rate limiting, server errors, transport
	// failures and malformed payloads. Safe to retry with backoff.
	ErrTransient = errors.New("marketplace: transient upstream error")

	// ErrCursorUnsupported is returned when the upstream cannot serve a
	// cursor-style scan for the given selector.
	ErrCursorUnsupported = errors.New("marketplace: cursor paging unsupported for selector")
)
