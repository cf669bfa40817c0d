package network

import (
	"errors"
	"fmt"
)

// Sentinel errors for endpoint validation failures.
//
// The two classes matter to callers: ErrProtocolNotSupported means the
// request can never succeed and must not be retried, while
// ErrInvalidOperation means the input is malformed or oversized and may be
// retried after the caller fixes it.
var (
	// ErrProtocolNotSupported marks endpoints using a scheme other than
	// http or https.
	ErrProtocolNotSupported = errors.New("protocol not supported")

	// ErrInvalidOperation marks malformed endpoints and oversized payloads.
	ErrInvalidOperation = errors.New("invalid operation")
)

// EndpointError describes a rejected endpoint or payload with the failure
// class attached. Matches errors.Is against the sentinel of its class.
type EndpointError struct {
	Endpoint string // Offending endpoint (may be truncated for logging)
	Reason   string // Human-readable reason for rejection
	Class    error  // ErrProtocolNotSupported or ErrInvalidOperation
}

// Error implements the error interface.
func (e *EndpointError) Error() string {
	if e.Endpoint == "" {
		return fmt.Sprintf("%v: %s", e.Class, e.Reason)
	}
	return fmt.Sprintf("%v: %s (endpoint: %s)", e.Class, e.Reason, e.Endpoint)
}

// Unwrap exposes the failure class for errors.Is.
func (e *EndpointError) Unwrap() error {
	return e.Class
}

// notSupported builds an EndpointError in the non-retryable class.
func notSupported(endpoint, reason string) *EndpointError {
	return &EndpointError{Endpoint: truncate(endpoint), Reason: reason, Class: ErrProtocolNotSupported}
}

// invalidOp builds an EndpointError in the malformed/oversized class.
func invalidOp(endpoint, reason string) *EndpointError {
	return &EndpointError{Endpoint: truncate(endpoint), Reason: reason, Class: ErrInvalidOperation}
}

// truncate keeps hostile endpoint strings from flooding logs.
func truncate(s string) string {
	const maxLogged = 200
	if len(s) <= maxLogged {
		return s
	}
	return s[:maxLogged] + "..."
}
