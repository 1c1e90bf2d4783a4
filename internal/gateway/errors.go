package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthExchange marks a failed authorization code exchange.
	ErrAuthExchange = errors.New("oauth code exchange failed")
	// ErrProfileFetch marks a failed userinfo request.
	ErrProfileFetch = errors.New("profile fetch failed")
	// ErrSubscriptionQuery marks a failed subscription list or subscribe call.
	ErrSubscriptionQuery = errors.New("subscription query failed")
	// ErrInsufficientScope marks a subscribe call rejected for missing write scope.
	ErrInsufficientScope = errors.New("insufficient oauth scope: youtube.force-ssl is required")
	// ErrChannelLookup marks a failed channel search request.
	ErrChannelLookup = errors.New("channel lookup failed")
	// ErrChannelNotFound means the search returned no channel.
	ErrChannelNotFound = errors.New("channel not found")
)

// APIError describes a non-success response from Google. It unwraps to one of
// the sentinel errors above so callers can classify it with errors.Is.
type APIError struct {
	Op      string
	Status  int
	Message string
	kind    error
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s returned %d: %s", e.kind, e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s returned %d", e.kind, e.Op, e.Status)
}

func (e *APIError) Unwrap() error {
	return e.kind
}

type wrappedError struct {
	op   string
	kind error
	err  error
}

func (e *wrappedError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.kind, e.op, e.err)
}

// Unwrap exposes both the sentinel and the transport cause.
func (e *wrappedError) Unwrap() []error {
	return []error{e.kind, e.err}
}

func wrap(op string, kind, err error) error {
	return &wrappedError{op: op, kind: kind, err: err}
}
