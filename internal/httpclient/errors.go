package httpclient

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport covers connection, TLS and other I/O failures
	ErrTransport = errors.New("transport failure")
	// ErrStatus is returned for any non-2xx response
	ErrStatus = errors.New("unexpected status")
	// ErrMalformedXML is returned when a response body is not well-formed XML
	ErrMalformedXML = errors.New("malformed XML response")
)

// Error describes a failed request. Kind is one of the sentinel errors above
// and can be matched with errors.Is.
type Error struct {
	Op         string
	URL        string
	StatusCode int
	Kind       error
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s %s: %v: %d", e.Op, e.URL, e.Kind, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.URL, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Kind)
	}
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
