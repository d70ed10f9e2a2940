package core

import (
	"errors"
	"fmt"
)

// ErrNotFound is a sentinel error for "not found" cases
var ErrNotFound = errors.New("not found")

// Gateway error taxonomy. Transport-level failures (socket errors, broker
// unavailability) are translated into one of these at the component boundary -
// callers never see raw I/O errors.
var (
	// ErrAgentNotConnected is returned when a command targets an agent with
	// no live WebSocket session. Returned immediately, never after a wait.
	ErrAgentNotConnected = errors.New("agent not connected")

	// ErrRequestTimeout is returned when a correlated call receives no reply
	// before its deadline. Distinct from "answered with an error".
	ErrRequestTimeout = errors.New("request timed out")

	// ErrAgentDisconnected is returned for calls that were in flight when the
	// agent's session was torn down. Retryable by the caller.
	ErrAgentDisconnected = errors.New("agent disconnected mid-flight")

	// ErrDuplicateCredential is returned when an onboarding call carries an
	// identity proof that conflicts with an existing non-matching agent.
	ErrDuplicateCredential = errors.New("credential conflicts with an existing agent")

	// ErrInvalidMetadata is returned when onboarding metadata fails validation.
	ErrInvalidMetadata = errors.New("invalid onboarding metadata")

	// ErrClusterConflict is returned when a cluster bind would silently
	// overwrite an already-bound cluster_id.
	ErrClusterConflict = errors.New("agent already bound to a different cluster")

	// ErrProtocolError indicates a malformed frame on the wire.
	ErrProtocolError = errors.New("malformed protocol frame")
)

// AuthReason distinguishes an explicit rejection by the identity service from
// the identity service never answering at all.
type AuthReason string

const (
	AuthDenied      AuthReason = "denied"
	AuthUnavailable AuthReason = "unavailable"
)

// AuthError is returned by the auth relay. Both reasons mean "not authorized"
// to callers; they differ only for logging and alerting.
type AuthError struct {
	Reason AuthReason
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication %s", e.Reason)
}

// NewAuthError creates an AuthError with the given reason
func NewAuthError(reason AuthReason) *AuthError {
	return &AuthError{Reason: reason}
}

// IsAuthDenied checks if an error is an explicit rejection by the identity service
func IsAuthDenied(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) && authErr.Reason == AuthDenied
}

// IsAuthUnavailable checks if an error means the identity service never answered
func IsAuthUnavailable(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) && authErr.Reason == AuthUnavailable
}

// IsRetryable reports whether the caller may safely retry the operation.
// Retries are always a caller decision - nothing inside the gateway retries
// automatically, since a blind retry could double-execute a mutating command
// on the agent side.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRequestTimeout) || errors.Is(err, ErrAgentDisconnected)
}

// IsNotFoundError checks if an error is a "not found" error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
