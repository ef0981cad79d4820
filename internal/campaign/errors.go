package campaign

import "errors"

var (
	// ErrNotFound means the campaign (or a referenced entity) does not exist.
	ErrNotFound = errors.New("campaign not found")

	// ErrValidation rejects a malformed campaign payload before any
	// record is created.
	ErrValidation = errors.New("invalid campaign")

	// ErrInvalidTransition rejects a lifecycle operation not valid from
	// the campaign's current status.
	ErrInvalidTransition = errors.New("invalid campaign status transition")
)
