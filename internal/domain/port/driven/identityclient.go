package driven

import (
	"context"

	"github.com/mkahmann/schulhub/internal/domain/model"
)

// IdentityClient defines the driven port for the remote school identity
// service. All methods perform network round-trips; errors from Login and
// Refresh are *model.AuthError values classifying the failure mode.
type IdentityClient interface {
	// CheckReachability performs a lightweight health probe. It returns
	// true when the service answered 200; otherwise false together with a
	// human-readable reason (response body or transport error).
	CheckReachability(ctx context.Context) (bool, string)

	// Login exchanges username and password for a validated identity.
	Login(ctx context.Context, username, password string) (*model.Identity, error)

	// Refresh re-fetches the identity attributes for a known
	// username+password pair. Same response contract as Login, issued
	// against a different endpoint; used for silent re-validation only.
	Refresh(ctx context.Context, username, password string) (*model.Identity, error)
}
