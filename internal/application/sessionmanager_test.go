package application_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkahmann/schulhub/internal/application"
	"github.com/mkahmann/schulhub/internal/domain/model"
	"github.com/mkahmann/schulhub/internal/domain/port/driven"
)

// --- Mock implementations ---

type fakeIdentityClient struct {
	reachable  bool
	reason     string
	loginFn    func(ctx context.Context, username, password string) (*model.Identity, error)
	refreshFn  func(ctx context.Context, username, password string) (*model.Identity, error)
	loginCalls int
	probeCalls int
}

func (f *fakeIdentityClient) CheckReachability(_ context.Context) (bool, string) {
	f.probeCalls++
	return f.reachable, f.reason
}

func (f *fakeIdentityClient) Login(ctx context.Context, username, password string) (*model.Identity, error) {
	f.loginCalls++
	return f.loginFn(ctx, username, password)
}

func (f *fakeIdentityClient) Refresh(ctx context.Context, username, password string) (*model.Identity, error) {
	return f.refreshFn(ctx, username, password)
}

type fakeSessionStore struct {
	mu      sync.Mutex
	session *model.Session
	saveErr error
}

func (f *fakeSessionStore) Save(_ context.Context, identity model.Identity, accessToken, refreshToken string, expiry time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.session = &model.Session{
		ID:           uuid.New(),
		Identity:     identity,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenExpiry:  expiry,
	}
	return nil
}

func (f *fakeSessionStore) Current(_ context.Context) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return nil, nil
	}
	s := *f.session
	return &s, nil
}

func (f *fakeSessionStore) UpdateTokens(_ context.Context, accessToken, refreshToken string, expiry time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return nil
	}
	f.session.AccessToken = accessToken
	f.session.RefreshToken = refreshToken
	f.session.TokenExpiry = expiry
	return nil
}

func (f *fakeSessionStore) Delete(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session = nil
	return nil
}

func (f *fakeSessionStore) IsValid(_ context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return false, nil
	}
	return f.session.ValidAt(time.Now()), nil
}

type fakeVault struct {
	mu       sync.Mutex
	secrets  map[string]string
	getCalls int
	setErr   error
}

func newFakeVault() *fakeVault {
	return &fakeVault{secrets: map[string]string{}}
}

func (f *fakeVault) Set(_ context.Context, username, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.secrets[username] = password
	return nil
}

func (f *fakeVault) Get(_ context.Context, username string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	return f.secrets[username], nil
}

func (f *fakeVault) Delete(_ context.Context, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.secrets, username)
	return nil
}

type fakePresence struct {
	err error
}

func (f *fakePresence) Verify(_ context.Context, _ string) error {
	return f.err
}

// --- Helpers ---

func maxIdentity() *model.Identity {
	return &model.Identity{
		UserID:    42,
		Username:  "mmustermann",
		FirstName: "Max",
		LastName:  "Mustermann",
		Email:     "max@example.com",
	}
}

func newManager(client *fakeIdentityClient, store *fakeSessionStore, vault *fakeVault, presence *fakePresence) *application.SessionManager {
	return application.NewSessionManager(
		client, store, vault, presence,
		time.Hour,
		slog.New(slog.DiscardHandler),
	)
}

func signedInManager(t *testing.T, client *fakeIdentityClient, store *fakeSessionStore, vault *fakeVault, presence *fakePresence) *application.SessionManager {
	t.Helper()

	client.reachable = true
	client.loginFn = func(_ context.Context, _, _ string) (*model.Identity, error) {
		return maxIdentity(), nil
	}

	m := newManager(client, store, vault, presence)
	_, err := m.Login(context.Background(), "mmustermann", "test123")
	require.NoError(t, err)
	return m
}

// --- Login ---

func TestSessionManager_LoginSuccess(t *testing.T) {
	client := &fakeIdentityClient{reachable: true}
	client.loginFn = func(_ context.Context, username, password string) (*model.Identity, error) {
		assert.Equal(t, "mmustermann", username)
		assert.Equal(t, "test123", password)
		return maxIdentity(), nil
	}
	store := &fakeSessionStore{}
	vault := newFakeVault()

	m := newManager(client, store, vault, &fakePresence{})

	identity, err := m.Login(context.Background(), "mmustermann", "test123")
	require.NoError(t, err)
	assert.Equal(t, "Max", identity.FirstName)
	assert.Equal(t, application.StateSignedIn, m.State())

	valid, err := store.IsValid(context.Background())
	require.NoError(t, err)
	assert.True(t, valid, "session must be valid immediately after login")

	assert.Equal(t, "test123", vault.secrets["mmustermann"],
		"vault must hold exactly the password supplied to login")
}

func TestSessionManager_LoginUnreachable(t *testing.T) {
	client := &fakeIdentityClient{reachable: false, reason: "connection refused"}
	store := &fakeSessionStore{}
	vault := newFakeVault()

	m := newManager(client, store, vault, &fakePresence{})

	_, err := m.Login(context.Background(), "mmustermann", "test123")
	require.Error(t, err)
	assert.Equal(t, model.AuthErrUnreachable, model.AuthKindOf(err))
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, 0, client.loginCalls, "unreachable service must refuse login without a round trip")
	assert.Equal(t, application.StateSignedOut, m.State())
}

func TestSessionManager_LoginRejected(t *testing.T) {
	client := &fakeIdentityClient{reachable: true}
	client.loginFn = func(_ context.Context, _, _ string) (*model.Identity, error) {
		return nil, &model.AuthError{Kind: model.AuthErrServerRejected, Message: "wrong credentials"}
	}
	store := &fakeSessionStore{}
	vault := newFakeVault()

	m := newManager(client, store, vault, &fakePresence{})

	_, err := m.Login(context.Background(), "mmustermann", "wrong")
	require.Error(t, err)
	assert.Equal(t, model.AuthErrServerRejected, model.AuthKindOf(err))
	assert.Equal(t, application.StateSignedOut, m.State())

	s, err := store.Current(context.Background())
	require.NoError(t, err)
	assert.Nil(t, s, "a failed login must not persist anything")
	assert.Empty(t, vault.secrets)
}

func TestSessionManager_LoginVaultWriteFailureIsNonFatal(t *testing.T) {
	client := &fakeIdentityClient{reachable: true}
	client.loginFn = func(_ context.Context, _, _ string) (*model.Identity, error) {
		return maxIdentity(), nil
	}
	store := &fakeSessionStore{}
	vault := newFakeVault()
	vault.setErr = errors.New("disk full")

	m := newManager(client, store, vault, &fakePresence{})

	_, err := m.Login(context.Background(), "mmustermann", "test123")
	require.NoError(t, err, "a vault write failure must not block the login")
	assert.Equal(t, application.StateSignedIn, m.State())
}

// --- Logout ---

func TestSessionManager_Logout(t *testing.T) {
	client := &fakeIdentityClient{}
	store := &fakeSessionStore{}
	vault := newFakeVault()
	m := signedInManager(t, client, store, vault, &fakePresence{})

	require.NoError(t, m.Logout(context.Background()))
	assert.Equal(t, application.StateSignedOut, m.State())

	s, err := store.Current(context.Background())
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.NotContains(t, vault.secrets, "mmustermann")
}

func TestSessionManager_LogoutTwice(t *testing.T) {
	client := &fakeIdentityClient{}
	store := &fakeSessionStore{}
	vault := newFakeVault()
	m := signedInManager(t, client, store, vault, &fakePresence{})

	require.NoError(t, m.Logout(context.Background()))
	require.NoError(t, m.Logout(context.Background()), "second logout must be a clean no-op")
	assert.Equal(t, application.StateSignedOut, m.State())
}

// --- RefreshIfNeeded ---

func TestSessionManager_RefreshNotNeeded(t *testing.T) {
	client := &fakeIdentityClient{}
	store := &fakeSessionStore{}
	vault := newFakeVault()
	m := signedInManager(t, client, store, vault, &fakePresence{})

	client.refreshFn = func(_ context.Context, _, _ string) (*model.Identity, error) {
		t.Fatal("refresh must not hit the network while the session is valid")
		return nil, nil
	}

	valid, err := m.RefreshIfNeeded(context.Background())
	require.NoError(t, err)
	assert.True(t, valid)
	assert.Equal(t, application.StateSignedIn, m.State())
}

func TestSessionManager_RefreshRoundTrip(t *testing.T) {
	client := &fakeIdentityClient{}
	store := &fakeSessionStore{}
	vault := newFakeVault()
	m := signedInManager(t, client, store, vault, &fakePresence{})

	// Expire the stored session.
	require.NoError(t, store.UpdateTokens(context.Background(), "stale", "stale", time.Now().Add(-time.Minute)))

	client.refreshFn = func(_ context.Context, username, password string) (*model.Identity, error) {
		assert.Equal(t, "mmustermann", username)
		assert.Equal(t, "test123", password, "refresh must re-submit the stored password")
		updated := maxIdentity()
		updated.Email = "new@example.com"
		return updated, nil
	}

	valid, err := m.RefreshIfNeeded(context.Background())
	require.NoError(t, err)
	assert.True(t, valid)

	s, err := store.Current(context.Background())
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "new@example.com", s.Identity.Email)
	assert.Equal(t, "mmustermann", s.Identity.Username, "username must never change on refresh")
	assert.NotEqual(t, "stale", s.AccessToken)
	assert.True(t, s.TokenExpiry.After(time.Now()), "validity window must be reset")
}

func TestSessionManager_RefreshFailureDestroysSession(t *testing.T) {
	client := &fakeIdentityClient{}
	store := &fakeSessionStore{}
	vault := newFakeVault()
	m := signedInManager(t, client, store, vault, &fakePresence{})

	require.NoError(t, store.UpdateTokens(context.Background(), "stale", "stale", time.Now().Add(-time.Minute)))

	client.refreshFn = func(_ context.Context, _, _ string) (*model.Identity, error) {
		return nil, &model.AuthError{Kind: model.AuthErrServerRejected, Message: "password changed"}
	}

	valid, err := m.RefreshIfNeeded(context.Background())
	assert.Error(t, err)
	assert.False(t, valid)
	assert.Equal(t, application.StateSignedOut, m.State())

	s, err := store.Current(context.Background())
	require.NoError(t, err)
	assert.Nil(t, s, "a failed refresh is terminal for the session")
}

func TestSessionManager_RefreshWithoutStoredPassword(t *testing.T) {
	client := &fakeIdentityClient{}
	store := &fakeSessionStore{}
	vault := newFakeVault()
	m := signedInManager(t, client, store, vault, &fakePresence{})

	require.NoError(t, store.UpdateTokens(context.Background(), "stale", "stale", time.Now().Add(-time.Minute)))
	require.NoError(t, vault.Delete(context.Background(), "mmustermann"))

	client.refreshFn = func(_ context.Context, _, _ string) (*model.Identity, error) {
		t.Fatal("refresh must not be attempted without a stored password")
		return nil, nil
	}

	valid, err := m.RefreshIfNeeded(context.Background())
	require.NoError(t, err)
	assert.False(t, valid)
	assert.Equal(t, application.StateSignedOut, m.State())
}

func TestSessionManager_RefreshWhenSignedOut(t *testing.T) {
	m := newManager(&fakeIdentityClient{}, &fakeSessionStore{}, newFakeVault(), &fakePresence{})

	valid, err := m.RefreshIfNeeded(context.Background())
	require.NoError(t, err)
	assert.False(t, valid)
}

// --- RestoreOnLaunch ---

func TestSessionManager_RestoreValidSession(t *testing.T) {
	store := &fakeSessionStore{}
	require.NoError(t, store.Save(context.Background(), *maxIdentity(), "tok", "ref", time.Now().Add(time.Hour)))

	m := newManager(&fakeIdentityClient{}, store, newFakeVault(), &fakePresence{})

	identity, err := m.RestoreOnLaunch(context.Background())
	require.NoError(t, err)
	require.NotNil(t, identity)
	assert.Equal(t, "mmustermann", identity.Username)
	assert.Equal(t, application.StateSignedIn, m.State())
}

func TestSessionManager_RestoreWithoutSession(t *testing.T) {
	m := newManager(&fakeIdentityClient{}, &fakeSessionStore{}, newFakeVault(), &fakePresence{})

	identity, err := m.RestoreOnLaunch(context.Background())
	require.NoError(t, err)
	assert.Nil(t, identity)
	assert.Equal(t, application.StateSignedOut, m.State())
}

func TestSessionManager_RestoreExpiredSessionRefreshes(t *testing.T) {
	store := &fakeSessionStore{}
	require.NoError(t, store.Save(context.Background(), *maxIdentity(), "tok", "ref", time.Now().Add(-time.Minute)))

	vault := newFakeVault()
	require.NoError(t, vault.Set(context.Background(), "mmustermann", "test123"))

	client := &fakeIdentityClient{}
	client.refreshFn = func(_ context.Context, _, _ string) (*model.Identity, error) {
		return maxIdentity(), nil
	}

	m := newManager(client, store, vault, &fakePresence{})

	identity, err := m.RestoreOnLaunch(context.Background())
	require.NoError(t, err)
	require.NotNil(t, identity)
	assert.Equal(t, application.StateSignedIn, m.State())
}

func TestSessionManager_RestoreExpiredSessionRefreshFails(t *testing.T) {
	store := &fakeSessionStore{}
	require.NoError(t, store.Save(context.Background(), *maxIdentity(), "tok", "ref", time.Now().Add(-time.Minute)))

	vault := newFakeVault()
	require.NoError(t, vault.Set(context.Background(), "mmustermann", "test123"))

	client := &fakeIdentityClient{}
	client.refreshFn = func(_ context.Context, _, _ string) (*model.Identity, error) {
		return nil, &model.AuthError{Kind: model.AuthErrNetwork, Err: errors.New("timeout")}
	}

	m := newManager(client, store, vault, &fakePresence{})

	identity, err := m.RestoreOnLaunch(context.Background())
	require.NoError(t, err, "a failed silent restore is not surfaced as an error")
	assert.Nil(t, identity)
	assert.Equal(t, application.StateSignedOut, m.State())
}

// --- RevealSecret ---

func TestSessionManager_RevealSecret(t *testing.T) {
	client := &fakeIdentityClient{}
	store := &fakeSessionStore{}
	vault := newFakeVault()
	m := signedInManager(t, client, store, vault, &fakePresence{})

	password, err := m.RevealSecret(context.Background(), "123456")
	require.NoError(t, err)
	assert.Equal(t, "test123", password)
}

func TestSessionManager_RevealSecretPresenceFails(t *testing.T) {
	client := &fakeIdentityClient{}
	store := &fakeSessionStore{}
	vault := newFakeVault()
	m := signedInManager(t, client, store, vault, &fakePresence{err: driven.ErrPresenceCheckFailed})

	vaultReadsBefore := vault.getCalls

	_, err := m.RevealSecret(context.Background(), "000000")
	assert.ErrorIs(t, err, driven.ErrPresenceCheckFailed)
	assert.Equal(t, vaultReadsBefore, vault.getCalls,
		"a failed presence check must never touch the vault read path")
}

func TestSessionManager_RevealSecretSignedOut(t *testing.T) {
	m := newManager(&fakeIdentityClient{}, &fakeSessionStore{}, newFakeVault(), &fakePresence{})

	_, err := m.RevealSecret(context.Background(), "123456")
	assert.ErrorIs(t, err, application.ErrNotSignedIn)
}

// --- Concurrency ---

// A refresh that completes after a logout must discard its result instead of
// resurrecting the deleted session.
func TestSessionManager_StaleRefreshAfterLogoutIsDiscarded(t *testing.T) {
	client := &fakeIdentityClient{}
	store := &fakeSessionStore{}
	vault := newFakeVault()
	m := signedInManager(t, client, store, vault, &fakePresence{})

	require.NoError(t, store.UpdateTokens(context.Background(), "stale", "stale", time.Now().Add(-time.Minute)))

	refreshStarted := make(chan struct{})
	logoutDone := make(chan struct{})

	client.refreshFn = func(_ context.Context, _, _ string) (*model.Identity, error) {
		close(refreshStarted)
		<-logoutDone
		return maxIdentity(), nil
	}

	refreshResult := make(chan error, 1)
	go func() {
		_, err := m.RefreshIfNeeded(context.Background())
		refreshResult <- err
	}()

	<-refreshStarted
	require.NoError(t, m.Logout(context.Background()))
	close(logoutDone)

	err := <-refreshResult
	assert.ErrorIs(t, err, application.ErrSuperseded)
	assert.Equal(t, application.StateSignedOut, m.State())

	s, err := store.Current(context.Background())
	require.NoError(t, err)
	assert.Nil(t, s, "the stale refresh result must not resurrect the session")
	assert.Empty(t, vault.secrets)
}
