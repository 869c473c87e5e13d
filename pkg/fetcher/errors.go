package fetcher

import (
	"errors"
	"fmt"

	"github.com/pkgpin/pkgpin/pkg/versionrange"
)

var (
	ErrMissingFetcher   = errors.New("no fetcher specified")
	ErrBackendMismatch  = errors.New("locator does not belong to this fetcher")
	ErrPackageNotFound  = errors.New("package not found")
	ErrRevisionNotFound = errors.New("revision not found")
	ErrTransport        = errors.New("registry request failed")

	ErrMalformedInterval = versionrange.ErrMalformedInterval
)

// TransportError reports a failed registry query together with the URL or
// query that was attempted.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// Transport wraps err as a TransportError. A nil err stays nil.
func Transport(op, url string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, URL: url, Err: err}
}
