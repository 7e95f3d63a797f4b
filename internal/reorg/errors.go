package reorg

import "fmt"

// RollbackError is returned when a rollback could not be applied to an index.
type RollbackError struct {
	Index     string
	FromLevel uint64
	ToLevel   uint64
	Details   string
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("rollback of index %s from level %d to %d failed: %s", e.Index, e.FromLevel, e.ToLevel, e.Details)
}

// NewRollbackError creates a new RollbackError.
func NewRollbackError(index string, fromLevel, toLevel uint64, details string) error {
	return &RollbackError{
		Index:     index,
		FromLevel: fromLevel,
		ToLevel:   toLevel,
		Details:   details,
	}
}
