package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by the store when a post, target, or account
// does not exist.
var ErrNotFound = errors.New("not found")

// ErrAccountNotConnected marks the absence of stored credentials for a
// platform. It is recorded on the target and never escapes the
// orchestrator.
var ErrAccountNotConnected = errors.New("account not connected")

// PlatformAPIError is any failure surfaced by a platform's publishing API:
// auth, rate limit, network, or content rejection. The message is what
// gets stored on the target for diagnostic display.
type PlatformAPIError struct {
	Platform Platform
	Message  string
}

func (e *PlatformAPIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Platform, e.Message)
}

// PreconditionError is a caller mistake surfaced from schedule or retry,
// never stored on the post.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string { return e.Reason }
