package driven

import (
	"context"
	"errors"
)

// ErrVaultKeyNotSet is returned by SecretVault operations when
// SCHULHUB_VAULT_PASSPHRASE has not been configured.
var ErrVaultKeyNotSet = errors.New("vault key not configured: set SCHULHUB_VAULT_PASSPHRASE")

// SecretVault defines the driven port for the protected per-identity password
// store. The adapter layer is responsible for encryption at rest; this
// interface operates on plaintext values at the domain boundary.
//
// The vault itself does not gate reads. The presence-check requirement for
// user-facing reveals is enforced by the session manager, which is the only
// component allowed to touch the vault.
type SecretVault interface {
	// Set stores or replaces the password for the given username.
	// Returns ErrVaultKeyNotSet if the adapter was constructed without a key.
	Set(ctx context.Context, username, password string) error

	// Get retrieves the password for the given username.
	// Returns ("", nil) if no entry exists for that username.
	// Returns ErrVaultKeyNotSet if the adapter was constructed without a key.
	Get(ctx context.Context, username string) (string, error)

	// Delete removes the entry for the given username. No-op when absent.
	Delete(ctx context.Context, username string) error
}
