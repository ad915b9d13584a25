// Package errs defines the typed sentinel errors shared across the ledger,
// transport, and p2p packages so callers can branch with errors.Is instead of
// string-matching log output.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport is returned when a frame cannot be written to or read from
	// a socket because the underlying connection is gone.
	ErrTransport = errors.New("transport: connection error")

	// ErrProtocol is returned when a frame's magic tag does not match.
	ErrProtocol = errors.New("transport: protocol error")

	// ErrFrameTooLarge is returned when a frame's declared length exceeds the
	// maximum allowed payload size.
	ErrFrameTooLarge = errors.New("transport: frame too large")

	// ErrConnectionClosed is returned when the peer closes the connection
	// mid-frame.
	ErrConnectionClosed = errors.New("transport: connection closed")

	// ErrMalformedPayload is returned when a frame payload is not valid
	// UTF-8 JSON.
	ErrMalformedPayload = errors.New("transport: malformed payload")

	// ErrValidation is returned when a block fails one of the ledger's
	// invariant checks.
	ErrValidation = errors.New("ledger: validation failed")

	// ErrKey is returned when a key file is missing or cannot be parsed.
	ErrKey = errors.New("signing: key error")
)

// Wrap adds context to err, matching the project's convention of prefixing
// the original error with an action description. It returns nil if err is
// nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
