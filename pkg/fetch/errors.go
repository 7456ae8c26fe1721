package fetch

import (
	"errors"
	"fmt"
)

// Sentinel failure kinds. The dispatcher classifies failures with
// errors.Is against these, never by message.
var (
	ErrTimeout             = errors.New("fetch timed out")
	ErrSizeLimit           = errors.New("body size limit exceeded")
	ErrChunkLimit          = errors.New("body chunk limit exceeded")
	ErrNotGloballyRoutable = errors.New("destination not globally routable")
	ErrTooManyRedirects    = errors.New("too many redirects")
	ErrBadStatus           = errors.New("unexpected response status")
)

// Error wraps a failure with the URL and pipeline phase it occurred in.
type Error struct {
	URL   string
	Phase string // "request", "connect", "resolve", "read"
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Phase, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
