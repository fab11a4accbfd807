package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingKeyColumn is returned when an input table lacks a column the
	// pipeline keys on. It is a configuration problem, never retried.
	ErrMissingKeyColumn = errors.New("missing key column")

	// ErrTableNotFound is returned by warehouse adapters when the target table
	// does not exist yet.
	ErrTableNotFound = errors.New("table not found")

	ErrInvalidYear   = errors.New("invalid year")
	ErrInvalidRegion = errors.New("invalid region")
	ErrInvalidTarget = errors.New("invalid target")

	// ErrTargetOverride is returned when an admin request names a table other
	// than the configured one while API keys are not required.
	ErrTargetOverride = errors.New("target override not allowed")

	// ErrUpdateInProgress is returned when a load or update is requested while
	// another one is still running.
	ErrUpdateInProgress = errors.New("update already in progress")
)

// KeyColumnError names the table and column that made a join or aggregation
// impossible.
type KeyColumnError struct {
	Table  string
	Column string
}

func (e *KeyColumnError) Error() string {
	name := e.Table
	if name == "" {
		name = "table"
	}
	return fmt.Sprintf("%s: %s %q", name, ErrMissingKeyColumn, e.Column)
}

func (e *KeyColumnError) Unwrap() error {
	return ErrMissingKeyColumn
}

// PartialError reports the years that failed during an incremental update.
// Years that succeeded are not listed; the run continued past every failure.
type PartialError struct {
	Attempted int
	Years     []int
	Errs      []error
}

func (e *PartialError) add(year int, err error) {
	e.Years = append(e.Years, year)
	e.Errs = append(e.Errs, err)
}

func (e *PartialError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d years failed", len(e.Years), e.Attempted)
	for i, y := range e.Years {
		sep := ", "
		if i == 0 {
			sep = ": "
		}
		fmt.Fprintf(&b, "%s%d (%v)", sep, y, e.Errs[i])
	}
	return b.String()
}

// Unwrap exposes every per-year error to errors.Is and errors.As.
func (e *PartialError) Unwrap() []error {
	return e.Errs
}
