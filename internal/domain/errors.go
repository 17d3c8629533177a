package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyFile is returned by the loader for zero-length files
	ErrEmptyFile = errors.New("file is empty")

	// ErrLoadInProgress is returned when a load is requested while another one is in flight
	ErrLoadInProgress = errors.New("a file is already being loaded")

	// ErrNoPath is returned when an operation receives an empty path
	ErrNoPath = errors.New("file path is required")
)

// IOError wraps a file-system failure with the operation and path it happened on
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// NewIOError creates an IOError, returning nil for a nil cause
func NewIOError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Op: op, Path: path, Err: err}
}

// Error kinds reported to the collaborator
const (
	KindConcurrentStateConflict = "ConcurrentStateConflict"
	KindEmptyFile               = "EmptyFile"
	KindIOError                 = "IoError"
	KindInvalidRequest          = "InvalidRequest"
)

// ErrorKind maps an error onto the taxonomy name reported to the collaborator
func ErrorKind(err error) string {
	var ioErr *IOError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrLoadInProgress):
		return KindConcurrentStateConflict
	case errors.Is(err, ErrEmptyFile):
		return KindEmptyFile
	case errors.As(err, &ioErr):
		return KindIOError
	default:
		return KindInvalidRequest
	}
}
