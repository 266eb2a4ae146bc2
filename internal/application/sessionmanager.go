package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mkahmann/schulhub/internal/domain/model"
	"github.com/mkahmann/schulhub/internal/domain/port/driven"
)

// SessionState is the externally visible state of the session machine.
type SessionState string

const (
	StateSignedOut      SessionState = "signed_out"
	StateAuthenticating SessionState = "authenticating"
	StateSignedIn       SessionState = "signed_in"
	StateRefreshing     SessionState = "refreshing"
)

// ErrSuperseded is returned when a login or refresh completed after a logout
// had already moved the machine on; the late result is discarded, never
// applied.
var ErrSuperseded = errors.New("operation superseded by a concurrent state change")

// ErrNotSignedIn is returned by operations that require a current session.
var ErrNotSignedIn = errors.New("not signed in")

// SessionManager drives the login, silent-refresh, logout and gated
// secret-reveal protocols. It is the only component that talks to the
// session store, the vault and the identity service; all state transitions
// are serialized through it.
//
// Two locks split the serialization concern: opMu ensures no two
// login/refresh operations run concurrently against the session record,
// while mu guards state plus every store/vault mutation. Logout takes only
// mu, so it never waits on an in-flight network call; it bumps the
// generation counter instead, and the in-flight operation discards its
// result when it observes the bump.
type SessionManager struct {
	identity driven.IdentityClient
	store    driven.SessionStore
	vault    driven.SecretVault
	presence driven.PresenceVerifier
	logger   *slog.Logger

	sessionTTL time.Duration
	now        func() time.Time
	newToken   func() string

	opMu sync.Mutex

	mu         sync.Mutex
	state      SessionState
	generation uint64
}

// NewSessionManager creates a SessionManager with the given collaborators.
// sessionTTL is the fixed validity window granted on login and refresh.
func NewSessionManager(
	identity driven.IdentityClient,
	store driven.SessionStore,
	vault driven.SecretVault,
	presence driven.PresenceVerifier,
	sessionTTL time.Duration,
	logger *slog.Logger,
) *SessionManager {
	return &SessionManager{
		identity:   identity,
		store:      store,
		vault:      vault,
		presence:   presence,
		logger:     logger,
		sessionTTL: sessionTTL,
		now:        time.Now,
		newToken:   func() string { return "schulhub-" + uuid.NewString() },
		state:      StateSignedOut,
	}
}

// State returns the current machine state.
func (m *SessionManager) State() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CurrentIdentity returns the identity of the current session, or nil when
// signed out. The durable store is the source of truth, so this survives
// process restarts.
func (m *SessionManager) CurrentIdentity(ctx context.Context) (*model.Identity, error) {
	s, err := m.store.Current(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, nil
	}
	identity := s.Identity
	return &identity, nil
}

// IsSessionValid reports whether the stored session is currently valid,
// without triggering a refresh.
func (m *SessionManager) IsSessionValid(ctx context.Context) (bool, error) {
	return m.store.IsValid(ctx)
}

// Login authenticates against the identity service. The reachability probe
// runs strictly before the login request; when the service is unreachable
// the login is refused locally without a doomed round trip. On success the
// session record and the vault entry are written and the machine is
// signed in.
func (m *SessionManager) Login(ctx context.Context, username, password string) (*model.Identity, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	gen := m.setState(StateAuthenticating)

	reachable, reason := m.identity.CheckReachability(ctx)
	if !reachable {
		m.revertState(gen, StateSignedOut)
		return nil, &model.AuthError{Kind: model.AuthErrUnreachable, Message: reason}
	}

	identity, err := m.identity.Login(ctx, username, password)
	if err != nil {
		m.revertState(gen, StateSignedOut)
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.generation != gen {
		return nil, ErrSuperseded
	}

	expiry := m.now().Add(m.sessionTTL)
	if err := m.store.Save(ctx, *identity, m.newToken(), m.newToken(), expiry); err != nil {
		m.state = StateSignedOut
		return nil, fmt.Errorf("persist session: %w", err)
	}

	// A failed vault write costs the silent-refresh path, not the login
	// itself; the session is already established.
	if err := m.vault.Set(ctx, username, password); err != nil {
		m.logger.Warn("vault write failed, silent refresh will not work", "username", username, "error", err)
	}

	m.state = StateSignedIn
	m.logger.Info("signed in", "username", identity.Username)
	return identity, nil
}

// RestoreOnLaunch re-establishes the session on app launch. A stored, still
// valid record signs in directly; an invalid one triggers one silent refresh
// attempt before falling back to signed out. The (nil, nil) return means
// signed out without an error worth surfacing.
func (m *SessionManager) RestoreOnLaunch(ctx context.Context) (*model.Identity, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	s, err := m.store.Current(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		m.setStateValue(StateSignedOut)
		return nil, nil
	}

	if s.ValidAt(m.now()) {
		m.setStateValue(StateSignedIn)
		identity := s.Identity
		return &identity, nil
	}

	if ok, _ := m.refreshLocked(ctx, s); ok {
		return m.CurrentIdentity(ctx)
	}
	return nil, nil
}

// RefreshIfNeeded checks the session and silently refreshes it when the
// validity window has lapsed. It reports whether a valid session exists
// afterwards. A failed refresh is terminal: the stale session record is
// destroyed and the machine returns to signed out.
func (m *SessionManager) RefreshIfNeeded(ctx context.Context) (bool, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	valid, err := m.store.IsValid(ctx)
	if err != nil {
		return false, err
	}
	if valid {
		return true, nil
	}

	s, err := m.store.Current(ctx)
	if err != nil {
		return false, err
	}
	if s == nil {
		return false, nil
	}

	return m.refreshLocked(ctx, s)
}

// refreshLocked performs one silent refresh round trip. Callers hold opMu.
func (m *SessionManager) refreshLocked(ctx context.Context, s *model.Session) (bool, error) {
	gen := m.setState(StateRefreshing)

	// Internal, non-user-facing read: the refresh path uses the vault
	// directly, unlike the user-facing reveal path.
	password, err := m.vault.Get(ctx, s.Identity.Username)
	if err != nil || password == "" {
		if err != nil {
			m.logger.Warn("vault read failed during refresh", "error", err)
		}
		m.destroySession(ctx, gen)
		return false, err
	}

	identity, err := m.identity.Refresh(ctx, s.Identity.Username, password)
	if err != nil {
		m.logger.Info("silent refresh failed, signing out", "username", s.Identity.Username, "error", err)
		m.destroySession(ctx, gen)
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.generation != gen {
		return false, ErrSuperseded
	}

	expiry := m.now().Add(m.sessionTTL)
	if err := m.store.Save(ctx, *identity, m.newToken(), m.newToken(), expiry); err != nil {
		m.state = StateSignedOut
		return false, fmt.Errorf("persist refreshed session: %w", err)
	}

	m.state = StateSignedIn
	return true, nil
}

// RevealSecret returns the stored password for the current user after a
// successful presence check. The vault is never read before the check
// passes. An empty result with nil error means no secret is stored.
func (m *SessionManager) RevealSecret(ctx context.Context, code string) (string, error) {
	s, err := m.store.Current(ctx)
	if err != nil {
		return "", err
	}
	if s == nil {
		return "", ErrNotSignedIn
	}

	if err := m.presence.Verify(ctx, code); err != nil {
		return "", err
	}

	return m.vault.Get(ctx, s.Identity.Username)
}

// Logout deletes the vault entry and the session record and returns the
// machine to signed out. It is unconditional and idempotent: storage
// failures are logged, never allowed to block signing out, and a second
// logout is a clean no-op. Any in-flight login or refresh is superseded.
func (m *SessionManager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.generation++
	m.state = StateSignedOut

	s, err := m.store.Current(ctx)
	if err != nil {
		m.logger.Warn("reading session during logout failed", "error", err)
	}
	if s != nil {
		if err := m.vault.Delete(ctx, s.Identity.Username); err != nil {
			m.logger.Warn("vault delete during logout failed", "username", s.Identity.Username, "error", err)
		}
	}
	if err := m.store.Delete(ctx); err != nil {
		m.logger.Warn("session delete during logout failed", "error", err)
	}

	m.logger.Info("signed out")
	return nil
}

// setState moves the machine into state and returns the generation observed
// at that moment, for later stale-result detection.
func (m *SessionManager) setState(state SessionState) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	return m.generation
}

func (m *SessionManager) setStateValue(state SessionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
}

// revertState sets state only when no logout superseded the operation.
func (m *SessionManager) revertState(gen uint64, state SessionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation == gen {
		m.state = state
	}
}

// destroySession removes the stale session record after a failed refresh,
// unless a logout already did.
func (m *SessionManager) destroySession(ctx context.Context, gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen {
		return
	}
	if err := m.store.Delete(ctx); err != nil {
		m.logger.Warn("deleting stale session failed", "error", err)
	}
	m.state = StateSignedOut
}
