package cooldown

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDuration is returned for a duration token outside the d/h/m/s grammar.
	ErrInvalidDuration = errors.New("invalid duration")
	// ErrUnknownEntity means a report owner could not be resolved.
	ErrUnknownEntity = errors.New("unknown entity")
	// ErrStopped is returned by Ingest after Stop.
	ErrStopped = errors.New("cooldown supervisor stopped")
)

// LineError describes a report line that was skipped during extraction.
type LineError struct {
	Line  int // zero-based index in the report
	Text  string
	Cause error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d %q: %v", e.Line, e.Text, e.Cause)
}

func (e *LineError) Unwrap() error { return e.Cause }
