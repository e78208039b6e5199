// Package api is the authenticated HTTP client for the workforce backend.
package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Failure classes. Callers branch with errors.Is; see StatusError for the
// HTTP detail behind ErrTransient/ErrRejected.
var (
	// ErrNotAuthenticated means no session exists, or the backend rejected
	// the session even after a token refresh. The operation is aborted and
	// not retried.
	ErrNotAuthenticated = errors.New("api: not authenticated")
	// ErrTransient marks timeouts, connection failures, and 5xx responses.
	// The work should be retried on a later cycle.
	ErrTransient = errors.New("api: transient backend failure")
	// ErrRejected marks non-401 4xx responses: the payload will never be
	// accepted, so retrying it forever would be a poison pill.
	ErrRejected = errors.New("api: request rejected")
)

// StatusError carries the HTTP status and a body snippet behind a
// classified failure.
type StatusError struct {
	Status int
	Body   string
	class  error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Body)
}

func (e *StatusError) Unwrap() error { return e.class }

// classify maps a non-2xx status to its failure class. 401 is handled by the
// caller before classification (it drives the refresh-and-retry path).
func classify(status int, body string) error {
	e := &StatusError{Status: status, Body: body}
	switch {
	case status >= 500, status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		e.class = ErrTransient
	case status >= 400:
		e.class = ErrRejected
	default:
		e.class = ErrTransient
	}
	return e
}
