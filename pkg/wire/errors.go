package wire

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotAcceptable = errors.New("unacceptable content type")
	ErrStatus        = errors.New("unexpected status")
	ErrEmptyList     = errors.New("no targets in list")
)

// FetchError is returned when a container could not be opened.
type FetchError struct {
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether trying again later could succeed.
func (e *FetchError) Retryable() bool {
	switch {
	case e.StatusCode == 0:
		return !errors.Is(e.Err, ErrNotAcceptable)
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode >= 500:
		return true
	default:
		return false
	}
}

// UpstreamError is a read failure in the middle of a container body.
type UpstreamError struct {
	Name   string
	Offset int64
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: upstream error at offset %d: %v", e.Name, e.Offset, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
