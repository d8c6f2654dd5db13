package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorKind classifies every failure this client can surface. Classification
// happens once, at the transport boundary; the breaker and the cache observe
// only the resulting kind.
type ErrorKind string

const (
	// KindTimeout means the transport deadline was exceeded. Retryable.
	KindTimeout ErrorKind = "timeout"
	// KindConnectionFailed means the endpoint was unreachable. Retryable.
	KindConnectionFailed ErrorKind = "connection_failed"
	// KindModelNotLoaded means the endpoint answered but the model/engine
	// is not ready. The caller must act; retrying does not help.
	KindModelNotLoaded ErrorKind = "model_not_loaded"
	// KindBadRequest is a 400 other than model-not-loaded.
	KindBadRequest ErrorKind = "bad_request"
	// KindAuthFailed is a 401.
	KindAuthFailed ErrorKind = "authentication_failed"
	// KindEndpointNotFound is a 404.
	KindEndpointNotFound ErrorKind = "endpoint_not_found"
	// KindHTTPError is any other non-2xx status.
	KindHTTPError ErrorKind = "http_error"
	// KindInvalidResponse means the body did not parse or lacked expected
	// fields.
	KindInvalidResponse ErrorKind = "invalid_response"
	// KindCircuitOpen is a fast-fail before any transport attempt.
	KindCircuitOpen ErrorKind = "circuit_open"
)

// APIError is the single error type surfaced by the client.
type APIError struct {
	Kind       ErrorKind
	StatusCode int // non-zero only for HTTP-status classifications
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// Retryable reports whether this layer considers the failure transient.
// Only timeouts and connection failures qualify; everything else needs a
// change on the caller's or operator's side.
func (e *APIError) Retryable() bool {
	return e.Kind == KindTimeout || e.Kind == KindConnectionFailed
}

// IsRetryable is the retry-policy predicate for client errors.
func IsRetryable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Retryable()
}

// IsCircuitOpen reports whether err is the breaker fast-fail, letting
// callers distinguish "give up now" from "upstream is unwell".
func IsCircuitOpen(err error) bool {
	return KindOf(err) == KindCircuitOpen
}

// KindOf extracts the error kind, or "" for foreign errors.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// errCircuitOpen builds the fast-fail error.
func errCircuitOpen() *APIError {
	return &APIError{Kind: KindCircuitOpen, Message: "circuit breaker open"}
}

// classifyTransport maps a failed round trip (no HTTP status available) to
// an error kind.
func classifyTransport(err error) *APIError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &APIError{Kind: KindTimeout, Message: "request timed out", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &APIError{Kind: KindTimeout, Message: "request timed out", Err: err}
	}
	return &APIError{
		Kind:    KindConnectionFailed,
		Message: "could not connect to API server",
		Err:     err,
	}
}

// classifyStatus maps a non-2xx response to an error kind. The 400 carrying
// an "Engine is not loaded" detail is the model-runtime way of saying the
// endpoint is up but no model is serving, and gets its own kind.
func classifyStatus(status int, body []byte) *APIError {
	var env errorEnvelope
	detail := ""
	if err := json.Unmarshal(body, &env); err == nil {
		detail = env.detail()
	}

	switch status {
	case 400:
		if strings.Contains(detail, "Engine is not loaded") ||
			strings.Contains(strings.ToLower(detail), "model is not loaded") {
			return &APIError{
				Kind:       KindModelNotLoaded,
				StatusCode: status,
				Message:    "model is not loaded on the server, start it first",
			}
		}
		if detail == "" {
			detail = strings.TrimSpace(string(body))
		}
		return &APIError{Kind: KindBadRequest, StatusCode: status, Message: detail}
	case 401:
		return &APIError{
			Kind:       KindAuthFailed,
			StatusCode: status,
			Message:    "authentication failed, check your API key",
		}
	case 404:
		return &APIError{
			Kind:       KindEndpointNotFound,
			StatusCode: status,
			Message:    "API endpoint not found, check your base URL",
		}
	default:
		if detail == "" {
			detail = strings.TrimSpace(string(body))
		}
		return &APIError{Kind: KindHTTPError, StatusCode: status, Message: detail}
	}
}
