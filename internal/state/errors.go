package state

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("validator state not found")
	ErrCorrupt  = errors.New("validator state is corrupt")
)

// CorruptionError reports a persisted snapshot that exists but cannot be used.
type CorruptionError struct {
	Location string
	Err      error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("validator state at %s is corrupt: %v", e.Location, e.Err)
}

func (e *CorruptionError) Unwrap() error { return e.Err }

func (e *CorruptionError) Is(target error) bool { return target == ErrCorrupt }
