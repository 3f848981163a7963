package calculator

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidObligation is matched by every input validation failure.
	ErrInvalidObligation = errors.New("invalid obligation")

	// ErrInternalInconsistency is matched by every failed conservation or
	// round-trip check. It signals a bug, not bad input.
	ErrInternalInconsistency = errors.New("internal inconsistency")
)

// InvalidObligationError describes which obligation was rejected and why.
// Index is the position of the obligation in the submitted batch, or -1 when
// the obligation was checked on its own.
type InvalidObligationError struct {
	Index  int
	Field  string
	Reason string
}

func (e *InvalidObligationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %s: %s", ErrInvalidObligation, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s #%d: %s: %s", ErrInvalidObligation, e.Index, e.Field, e.Reason)
}

func (e *InvalidObligationError) Unwrap() error {
	return ErrInvalidObligation
}

// NewInvalidObligation returns an InvalidObligationError for the obligation
// at index.
func NewInvalidObligation(index int, field, reason string) error {
	return &InvalidObligationError{Index: index, Field: field, Reason: reason}
}

func invalidf(field, format string, args ...any) error {
	return &InvalidObligationError{Index: -1, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// withIndex stamps the batch position onto an InvalidObligationError.
func withIndex(err error, index int) error {
	var invalid *InvalidObligationError
	if errors.As(err, &invalid) {
		stamped := *invalid
		stamped.Index = index
		return &stamped
	}
	return err
}

// InconsistencyError reports which stage of a run broke an invariant.
type InconsistencyError struct {
	Stage  string
	Detail string
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("%s in %s: %s", ErrInternalInconsistency, e.Stage, e.Detail)
}

func (e *InconsistencyError) Unwrap() error {
	return ErrInternalInconsistency
}

func inconsistentf(stage, format string, args ...any) error {
	return &InconsistencyError{Stage: stage, Detail: fmt.Sprintf(format, args...)}
}
