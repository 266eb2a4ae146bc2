package model

import (
	"time"

	"github.com/google/uuid"
)

// Session wraps the current Identity with token and expiry metadata. At most
// one session exists at any time; creating a new one replaces the old record.
//
// The tokens are opaque placeholder strings generated locally at login. The
// remote protocol re-submits the stored password for refresh and never
// validates them as bearer credentials, so no OAuth semantics apply.
type Session struct {
	ID           uuid.UUID
	Identity     Identity
	AccessToken  string
	RefreshToken string
	TokenExpiry  time.Time
}

// ValidAt reports whether the session is valid at t: the expiry must be
// strictly in the future and the access token non-empty. An expiry equal to
// t counts as expired.
func (s Session) ValidAt(t time.Time) bool {
	return s.AccessToken != "" && s.TokenExpiry.After(t)
}
