package domain

import (
	"errors"
	"fmt"
)

// ErrNotBuilt is returned (wrapped in a ValidationError) when an index is
// queried before it was built or after it was reset.
var ErrNotBuilt = errors.New("index not built")

// ValidationError reports malformed caller input. It never implies that
// index state was touched.
type ValidationError struct {
	Op  string
	Msg string
	Err error
}

func (e *ValidationError) Error() string {
	switch {
	case e.Msg == "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(op, format string, args ...any) *ValidationError {
	return &ValidationError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// IndexError reports an internal failure while embedding or while building
// or searching the similarity structure.
type IndexError struct {
	Op  string
	Err error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsIndex reports whether err is (or wraps) an IndexError.
func IsIndex(err error) bool {
	var ie *IndexError
	return errors.As(err, &ie)
}
