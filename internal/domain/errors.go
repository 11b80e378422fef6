package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput indicates bad chunking parameters or malformed tool arguments.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrCollectionNotFound is returned when the vector collection has never been
	// ingested into. It wraps ErrNotFound.
	ErrCollectionNotFound = fmt.Errorf("collection %w", ErrNotFound)

	// ErrExternalService indicates an embedding, language-model or market-data call failed.
	ErrExternalService = errors.New("external service error")

	// ErrLoopExhausted marks a reasoning loop that hit its iteration ceiling.
	ErrLoopExhausted = errors.New("reasoning loop exhausted")

	// ErrConfig indicates a startup configuration problem such as a missing credential.
	ErrConfig = errors.New("configuration error")
)

// Error attaches the failing operation to one of the sentinel kinds above.
type Error struct {
	Op   string
	Kind error
	Err  error
}

// E builds an *Error. err may be nil.
func E(op string, kind error, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Kind)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Invalid is shorthand for an ErrInvalidInput with a formatted message.
func Invalid(op, format string, args ...any) error {
	return E(op, ErrInvalidInput, fmt.Errorf(format, args...))
}

// External wraps a failed call to an outside capability.
func External(op string, err error) error {
	return E(op, ErrExternalService, err)
}
