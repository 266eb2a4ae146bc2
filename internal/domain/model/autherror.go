package model

import (
	"errors"
	"fmt"
)

// AuthErrorKind classifies failures of identity-service operations so callers
// can translate each failure mode into a distinct user-facing message.
type AuthErrorKind string

const (
	// AuthErrUnreachable means the pre-flight reachability probe failed;
	// no login attempt was made.
	AuthErrUnreachable AuthErrorKind = "unreachable"

	// AuthErrNetwork means the request itself failed at the transport level
	// (connection refused, timeout, DNS failure).
	AuthErrNetwork AuthErrorKind = "network"

	// AuthErrServerRejected means the service answered with a well-formed
	// response carrying success=false, typically wrong credentials.
	AuthErrServerRejected AuthErrorKind = "server_rejected"

	// AuthErrProtocolMismatch means the service returned something other
	// than JSON where JSON was expected, usually an HTML error page from a
	// misconfigured reverse proxy.
	AuthErrProtocolMismatch AuthErrorKind = "protocol_mismatch"

	// AuthErrMalformedResponse means the response was valid JSON but is
	// missing required identity fields.
	AuthErrMalformedResponse AuthErrorKind = "malformed_response"
)

// AuthError is the typed error returned by identity-service operations.
// Message carries the server-supplied or local diagnostic text; Err holds
// the underlying transport error when one exists.
type AuthError struct {
	Kind    AuthErrorKind
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// AuthKindOf returns the AuthErrorKind of err, or "" when err is not an
// AuthError anywhere in its chain.
func AuthKindOf(err error) AuthErrorKind {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}
