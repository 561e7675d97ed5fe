package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the scan/publish pipeline. Handlers map
// them to HTTP status codes with errors.Is.
var (
	// ErrInvalidInput rejects malformed or empty uploads before any side effect.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound signals a missing session, scan or candidate.
	ErrNotFound = errors.New("not found")

	// ErrSessionClosed rejects writes against a session whose ClosedAt is set.
	ErrSessionClosed = errors.New("session closed")

	// ErrInvalidState rejects a transition the record's status forbids,
	// most importantly a second publish of an already-published scan.
	ErrInvalidState = errors.New("invalid state")
)

// MarketplaceError carries a marketplace validation failure verbatim so the
// operator can correct the payload and retry.
type MarketplaceError struct {
	StatusCode int                    `json:"status_code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

func (e *MarketplaceError) Error() string {
	return fmt.Sprintf("marketplace rejected request (%d): %s", e.StatusCode, e.Message)
}
