package provision

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingContentLength is returned when a response does not declare its size.
	ErrMissingContentLength = errors.New("missing content-length")
	// ErrInvalidContentLength is returned when the declared size is not a non-negative integer.
	ErrInvalidContentLength = errors.New("invalid content-length")
	// ErrUnexpectedStatus is returned for non-2xx responses.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrShortBody is returned when the body length differs from the declared size.
	ErrShortBody = errors.New("body length does not match content-length")
	// ErrNoFileName is returned for URLs without a final path segment.
	ErrNoFileName = errors.New("url has no file name")
)

// DownloadError reports a failed artifact transfer. Provisioning stops at the first one.
type DownloadError struct {
	URL  string
	Path string
	Op   string // resolve, request, create, copy, close
	Err  error
}

func (e *DownloadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("download %s: %s: %v", e.URL, e.Op, e.Err)
	}
	return fmt.Sprintf("download %s -> %s: %s: %v", e.URL, e.Path, e.Op, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }
