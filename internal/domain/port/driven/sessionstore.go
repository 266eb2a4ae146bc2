package driven

import (
	"context"
	"time"

	"github.com/mkahmann/schulhub/internal/domain/model"
)

// SessionStore defines the driven port for the durable single-slot session
// record. The store is passive storage: only the session manager creates or
// destroys records, and at most one record exists at any time.
type SessionStore interface {
	// Save replaces the current session record with a new one built from the
	// given identity and token metadata. Any pre-existing record, including
	// one for a different user, is discarded.
	Save(ctx context.Context, identity model.Identity, accessToken, refreshToken string, expiry time.Time) error

	// Current returns the current session record, or (nil, nil) when no
	// session exists.
	Current(ctx context.Context) (*model.Session, error)

	// UpdateTokens replaces the token metadata of the current record while
	// leaving the identity untouched. When no record exists there is nothing
	// to update and the call is a no-op, not an error.
	UpdateTokens(ctx context.Context, accessToken, refreshToken string, expiry time.Time) error

	// Delete removes the current record. No-op when none exists.
	Delete(ctx context.Context) error

	// IsValid reports whether a record exists and its expiry is strictly in
	// the future with a non-empty access token.
	IsValid(ctx context.Context) (bool, error)
}
