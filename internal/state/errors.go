package state

import "errors"

var (
	// ErrRollbackDepthExceeded is returned when a rollback reaches below the levels covered by the undo log.
	ErrRollbackDepthExceeded = errors.New("rollback depth exceeded")

	// ErrConfigHashMismatch is returned when a persisted index was created from a different configuration.
	ErrConfigHashMismatch = errors.New("index config hash mismatch")

	// ErrInvalidIdentifier is returned for table or column names that are not plain SQL identifiers.
	ErrInvalidIdentifier = errors.New("invalid SQL identifier")
)
