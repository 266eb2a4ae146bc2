// Package presence implements the user-presence check that gates revealing
// the stored password. The device biometric prompt of the mobile platforms
// is reframed as TOTP proof-of-presence: the agent is provisioned with a
// shared secret at install time and the user must supply the current code.
package presence

import (
	"context"

	"github.com/pquerna/otp/totp"

	"github.com/mkahmann/schulhub/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PresenceVerifier = (*TOTPVerifier)(nil)

// TOTPVerifier validates six-digit TOTP codes against a provisioned shared
// secret. An empty secret means no verification method is available and all
// reveals are refused.
type TOTPVerifier struct {
	secret string
}

// NewTOTPVerifier creates a verifier for the given base32-encoded secret.
func NewTOTPVerifier(secret string) *TOTPVerifier {
	return &TOTPVerifier{secret: secret}
}

// Verify checks the supplied code against the current time window.
func (v *TOTPVerifier) Verify(_ context.Context, code string) error {
	if v.secret == "" {
		return driven.ErrPresenceUnavailable
	}
	if !totp.Validate(code, v.secret) {
		return driven.ErrPresenceCheckFailed
	}
	return nil
}
