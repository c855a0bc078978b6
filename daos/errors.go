package daos

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure conditions.
var (
	ErrNotConnected         = errors.New("no database connected")
	ErrDatabaseNotFound     = errors.New("database not found")
	ErrPathTraversal        = errors.New("path outside allowed directory")
	ErrInvalidExtension     = errors.New("invalid file extension")
	ErrNoParentDir          = errors.New("parent directory does not exist")
	ErrEmptyStatement       = errors.New("empty SQL statement")
	ErrMultipleStatements   = errors.New("multiple statements are not allowed")
	ErrCommandNotAllowed    = errors.New("SQL command is not allowed")
	ErrUnsupportedParameter = errors.New("unsupported parameter type")
	ErrRowShapeMismatch     = errors.New("row data length does not match column count")
	ErrNotReadQuery         = errors.New("query does not return rows")
	ErrReadonlyUnsupported  = errors.New("readonly mode is not supported by this driver")
)

// StepError reports which transaction step failed and why.
type StepError struct {
	Step int // zero-based index into the submitted step list
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("transaction step %d: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// CommandNotAllowedErr returns an error indicating a disallowed leading keyword.
func CommandNotAllowedErr(keyword string) error {
	return fmt.Errorf("%w: %s", ErrCommandNotAllowed, keyword)
}

// UnsupportedParameterErr returns an error for a parameter of an unusable shape.
func UnsupportedParameterErr(position int, value any) error {
	return fmt.Errorf("%w: parameter %d is %T", ErrUnsupportedParameter, position, value)
}

// RowShapeMismatchErr returns an error for a batch row of the wrong width.
func RowShapeMismatchErr(row, got, want int) error {
	return fmt.Errorf("%w: row %d has %d values, expected %d", ErrRowShapeMismatch, row, got, want)
}

// engineErr wraps a driver-level failure with the operation that produced it.
// The underlying message passes through untouched; this layer never
// interprets engine errors.
func engineErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}
