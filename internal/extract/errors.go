package extract

import (
	"errors"
	"fmt"
)

var (
	ErrMarkerNotFound   = errors.New("extract: no script carries the initial state marker")
	ErrDecodeFailed     = errors.New("extract: initial state is not valid JSON")
	ErrNoAssets         = errors.New("extract: initial state has no downloadable media")
	ErrRetriesExhausted = errors.New("extract: retries exhausted")
)

// ErrorKind classifies an ExtractionError.
type ErrorKind int

const (
	MarkerNotFound ErrorKind = iota
	DecodeFailed
	NoAssets
	RetriesExhausted
)

func (k ErrorKind) sentinel() error {
	switch k {
	case MarkerNotFound:
		return ErrMarkerNotFound
	case DecodeFailed:
		return ErrDecodeFailed
	case NoAssets:
		return ErrNoAssets
	default:
		return ErrRetriesExhausted
	}
}

// ExtractionError wraps a sentinel with the attempt count and the cause.
// A RetriesExhausted error matches both ErrRetriesExhausted and the
// sentinel of the last attempt's failure under errors.Is.
type ExtractionError struct {
	Kind     ErrorKind
	Attempts int
	Err      error
}

func (e *ExtractionError) Error() string {
	if e.Kind == RetriesExhausted {
		return fmt.Sprintf("%v after %d attempts: %v", ErrRetriesExhausted, e.Attempts, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%v: %v", e.Kind.sentinel(), e.Err)
	}
	return e.Kind.sentinel().Error()
}

func (e *ExtractionError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}
