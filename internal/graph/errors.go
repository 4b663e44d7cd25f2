// Package graph provides stateless HTTP operations against the Microsoft Graph
// drive API and the Azure AD token endpoint: authorization URL construction,
// code and refresh-token exchange, small uploads and chunked upload sessions.
// It performs no retries; callers own retry policy.
package graph

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, graph.ErrUnauthorized) to check.
var (
	ErrBadRequest   = errors.New("graph: bad request")
	ErrUnauthorized = errors.New("graph: unauthorized")
	ErrForbidden    = errors.New("graph: forbidden")
	ErrNotFound     = errors.New("graph: not found")
	ErrConflict     = errors.New("graph: conflict")
	ErrThrottled    = errors.New("graph: throttled")
	ErrLocked       = errors.New("graph: resource locked")
	ErrServerError  = errors.New("graph: server error")

	// ErrInvalidGrant is returned by the token endpoint when the refresh
	// token or authorization code has expired or been revoked.
	ErrInvalidGrant = errors.New("graph: invalid grant")
)

// StatusError is a non-2xx response. It carries the status code, the raw
// response body and the request ID for diagnostics.
type StatusError struct {
	StatusCode int
	RequestID  string
	Body       string
	Err        error // sentinel, for errors.Is()
}

func (e *StatusError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("graph: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Body)
	}

	return fmt.Sprintf("graph: HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// IsAuthFailure reports whether err means the presented credential was
// rejected: 401, 403, or an invalid_grant from the token endpoint.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrInvalidGrant)
}

// StatusOf returns the HTTP status carried by err, or 0 if err is not a
// StatusError.
func StatusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}

	return 0
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for codes with no dedicated sentinel.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	case http.StatusLocked:
		return ErrLocked
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// classifyTokenStatus is classifyStatus for the token endpoint, which reports
// expired or revoked grants as 400 invalid_grant.
func classifyTokenStatus(code int, body string) error {
	if code == http.StatusBadRequest && strings.Contains(body, "invalid_grant") {
		return ErrInvalidGrant
	}

	return classifyStatus(code)
}

func newStatusError(resp *http.Response, body []byte, sentinel error) *StatusError {
	return &StatusError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("request-id"),
		Body:       string(body),
		Err:        sentinel,
	}
}

func isSuccess(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}
