package activerace

import (
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied is returned when a mutation is attempted by a
	// caller who is neither admin nor the race's creator.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrDuplicateActiveRace is returned when the person already has a
	// race running in the cached view.
	ErrDuplicateActiveRace = errors.New("person already has an active race")

	// ErrRaceNotFound is returned when the race id is absent from the
	// cached view.
	ErrRaceNotFound = errors.New("active race not found")

	// ErrPersonNotFound is returned when a race is started for an unknown
	// person.
	ErrPersonNotFound = errors.New("person not found")
)

// SyncError reports a store or feed failure. It is non-fatal: the engine
// keeps serving its last-known-good cached snapshots.
type SyncError struct {
	Op  string
	Err error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync failure during %s: %v", e.Op, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }
