package download

import (
	"errors"
	"fmt"
)

var (
	ErrRetriesExhausted = errors.New("download: retries exhausted")
	ErrTransfer         = errors.New("download: transfer failed")
)

// ErrorKind classifies a DownloadError.
type ErrorKind int

const (
	// RetriesExhausted: every attempt failed before a 200 response was read.
	RetriesExhausted ErrorKind = iota
	// Transfer: a 200 response arrived but the body could not be stored.
	Transfer
)

// DownloadError is returned by Download for anything but success.
type DownloadError struct {
	Kind     ErrorKind
	URL      string
	Attempts int
	Err      error
}

func (e *DownloadError) Error() string {
	switch e.Kind {
	case Transfer:
		return fmt.Sprintf("%v: %s: %v", ErrTransfer, e.URL, e.Err)
	default:
		return fmt.Sprintf("%v after %d attempts: %s: %v", ErrRetriesExhausted, e.Attempts, e.URL, e.Err)
	}
}

func (e *DownloadError) Unwrap() []error {
	sentinel := ErrRetriesExhausted
	if e.Kind == Transfer {
		sentinel = ErrTransfer
	}
	if e.Err == nil {
		return []error{sentinel}
	}
	return []error{sentinel, e.Err}
}

// statusError is an attempt-level failure for a non-200 response.
type statusError struct {
	Status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.Status)
}
