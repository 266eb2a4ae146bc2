package driven

import (
	"context"
	"errors"
)

// ErrPresenceCheckFailed is returned when the user-presence proof was
// supplied but did not verify.
var ErrPresenceCheckFailed = errors.New("presence check failed")

// ErrPresenceUnavailable is returned when no presence verification method is
// provisioned on this device; secret reveal must be refused in that case.
var ErrPresenceUnavailable = errors.New("presence verification not available")

// PresenceVerifier defines the driven port for the local user-presence check
// that gates revealing the stored password.
type PresenceVerifier interface {
	// Verify checks the supplied proof of presence. It returns nil on
	// success, ErrPresenceCheckFailed on a wrong proof and
	// ErrPresenceUnavailable when no verification method is configured.
	Verify(ctx context.Context, code string) error
}
