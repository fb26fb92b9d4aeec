package audit

import "errors"

var (
	// ErrStorageNotAvailable indicates the storage backend rejected or
	// cannot accept events.
	ErrStorageNotAvailable = errors.New("audit storage is unavailable")

	// ErrEventValidation indicates an event is missing required fields.
	ErrEventValidation = errors.New("audit event validation failed")
)
