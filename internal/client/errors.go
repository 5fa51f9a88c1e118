package client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrNetwork    = errors.New("page fetch: transport failure")
	ErrHTTPStatus = errors.New("page fetch: unexpected HTTP status")
)

// FetchErrorKind distinguishes transport failures from non-200 responses.
type FetchErrorKind int

const (
	FetchNetwork FetchErrorKind = iota
	FetchHTTPStatus
)

// FetchError is returned by FetchPage for anything but a 200 response.
type FetchError struct {
	Kind   FetchErrorKind
	URL    string
	Status int   // set for FetchHTTPStatus
	Err    error // underlying transport error, if any
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case FetchHTTPStatus:
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.Status)
	default:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
}

func (e *FetchError) Unwrap() []error {
	sentinel := ErrNetwork
	if e.Kind == FetchHTTPStatus {
		sentinel = ErrHTTPStatus
	}
	if e.Err == nil {
		return []error{sentinel}
	}
	return []error{sentinel, e.Err}
}

// Temporary reports whether a later attempt may succeed: transport failures,
// 429 and 5xx responses.
func (e *FetchError) Temporary() bool {
	if e.Kind == FetchNetwork {
		return true
	}
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}
