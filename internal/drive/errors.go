// Package drive provides the request proxy for the Google Drive v3 REST
// API: generic verbs with uniform result shapes, URL construction,
// timestamp normalization, and streaming transfers. The proxy is
// stateless — every call carries its own access token.
package drive

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, drive.ErrUnauthorized) to check.
var (
	ErrBadRequest   = errors.New("drive: bad request")
	ErrUnauthorized = errors.New("drive: unauthorized")
	ErrForbidden    = errors.New("drive: forbidden")
	ErrNotFound     = errors.New("drive: not found")
	ErrConflict     = errors.New("drive: conflict")
	ErrThrottled    = errors.New("drive: rate limited")
	ErrServerError  = errors.New("drive: server error")
)

// APIError wraps a sentinel error with the upstream HTTP status, the
// extracted API message, and the raw response body. The raw body is kept
// because the disconnection check scans it for auth-failure signatures.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	return fmt.Sprintf("drive: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for codes with no dedicated sentinel below 500.
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
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// errorMessage extracts a human-readable message from a Drive error
// body. Google nests it under "error.message"; plain bodies with a
// top-level "message" are honored too; anything else comes back raw.
func errorMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
		Error   struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Error.Message != "" {
			return parsed.Error.Message
		}

		if parsed.Message != "" {
			return parsed.Message
		}
	}

	return string(body)
}

// newAPIError builds an APIError from an upstream error response.
func newAPIError(statusCode int, body []byte) *APIError {
	return &APIError{
		StatusCode: statusCode,
		Message:    errorMessage(body),
		Body:       string(body),
		Err:        classifyStatus(statusCode),
	}
}
