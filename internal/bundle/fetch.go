package bundle

import (
	"errors"
	"fmt"
)

// FetchErrorKind classifies transport failures for one resource.
type FetchErrorKind string

// Fetch failure classes.
const (
	FetchTimeout FetchErrorKind = "timeout"
	FetchStatus  FetchErrorKind = "status"
	FetchNetwork FetchErrorKind = "network"
)

// FetchError carries enough detail to log a failed asset download. It
// never propagates beyond the coordinator; a failed asset is dropped
// from the archive, not retried.
type FetchError struct {
	Kind       FetchErrorKind
	URL        string
	StatusCode int
	Cause      error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case FetchStatus:
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	case FetchTimeout:
		return fmt.Sprintf("fetch %s: timed out", e.URL)
	default:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Cause)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// AsFetchError unwraps err into a *FetchError when possible.
func AsFetchError(err error) (*FetchError, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
