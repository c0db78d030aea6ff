package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidActivity indicates a rejected activity payload (bad distance,
	// duration, source, or missing external id).
	ErrInvalidActivity = errors.New("invalid activity")

	// ErrDuplicateActivity is raised internally when the dedup constraint
	// fires. Callers of Ingest never see it; they get the stored activity back.
	ErrDuplicateActivity = errors.New("activity already ingested")

	// ErrChallengeWindowInvalid indicates a challenge whose end precedes its
	// start or whose duration is not one of the allowed windows.
	ErrChallengeWindowInvalid = errors.New("invalid challenge window")

	// ErrInvalidChallenge indicates a rejected challenge payload outside the
	// window rules (missing name, unknown type or objective).
	ErrInvalidChallenge = errors.New("invalid challenge")

	// ErrChallengeNotFound is returned when a challenge cannot be located.
	ErrChallengeNotFound = errors.New("challenge not found")
)

// ProgressionError wraps any failure inside the progression unit of work.
// Nothing is partially committed when it is returned; the whole ingest,
// including the activity row, has been rolled back and is safe to retry.
type ProgressionError struct {
	Step  string
	Cause error
}

func (e *ProgressionError) Error() string {
	return fmt.Sprintf("progression failed at %s: %v", e.Step, e.Cause)
}

func (e *ProgressionError) Unwrap() error { return e.Cause }
