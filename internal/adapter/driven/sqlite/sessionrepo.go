package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mkahmann/schulhub/internal/domain/model"
	"github.com/mkahmann/schulhub/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SessionStore = (*SessionRepo)(nil)

// SessionRepo is the SQLite implementation of the SessionStore port. The
// session table is constrained to a single row, so Save enforces the
// "at most one session" invariant by construction.
type SessionRepo struct {
	db  *DB
	now func() time.Time
}

// NewSessionRepo creates a new SessionRepo.
func NewSessionRepo(db *DB) *SessionRepo {
	return &SessionRepo{db: db, now: time.Now}
}

// Save replaces the current session record. Any pre-existing record,
// including one for a different user, is discarded.
func (r *SessionRepo) Save(ctx context.Context, identity model.Identity, accessToken, refreshToken string, expiry time.Time) error {
	const query = `
		INSERT OR REPLACE INTO session
			(slot, id, user_id, username, first_name, last_name, email, school_class, webdav_url,
			 access_token, refresh_token, token_expiry, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`

	_, err := r.db.Writer.ExecContext(ctx, query,
		uuid.NewString(),
		identity.UserID,
		identity.Username,
		identity.FirstName,
		identity.LastName,
		identity.Email,
		identity.SchoolClass,
		identity.WebdavURL,
		accessToken,
		refreshToken,
		expiry.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save session for %q: %w", identity.Username, err)
	}
	return nil
}

// Current returns the current session record, or (nil, nil) when none exists.
func (r *SessionRepo) Current(ctx context.Context) (*model.Session, error) {
	const query = `
		SELECT id, user_id, username, first_name, last_name, email, school_class, webdav_url,
		       access_token, refresh_token, token_expiry
		FROM session WHERE slot = 1`

	var (
		s      model.Session
		rawID  string
		expiry string
	)
	err := r.db.Reader.QueryRowContext(ctx, query).Scan(
		&rawID,
		&s.Identity.UserID,
		&s.Identity.Username,
		&s.Identity.FirstName,
		&s.Identity.LastName,
		&s.Identity.Email,
		&s.Identity.SchoolClass,
		&s.Identity.WebdavURL,
		&s.AccessToken,
		&s.RefreshToken,
		&expiry,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get current session: %w", err)
	}

	s.ID, err = uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse session id: %w", err)
	}
	s.TokenExpiry, err = time.Parse(time.RFC3339Nano, expiry)
	if err != nil {
		return nil, fmt.Errorf("parse token expiry: %w", err)
	}

	return &s, nil
}

// UpdateTokens replaces the token metadata of the current record. When no
// record exists there is nothing to update and the call is a no-op.
func (r *SessionRepo) UpdateTokens(ctx context.Context, accessToken, refreshToken string, expiry time.Time) error {
	const query = `
		UPDATE session
		SET access_token = ?, refresh_token = ?, token_expiry = ?, updated_at = CURRENT_TIMESTAMP
		WHERE slot = 1`

	_, err := r.db.Writer.ExecContext(ctx, query,
		accessToken, refreshToken, expiry.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("update session tokens: %w", err)
	}
	return nil
}

// Delete removes the current record. No-op when none exists.
func (r *SessionRepo) Delete(ctx context.Context) error {
	if _, err := r.db.Writer.ExecContext(ctx, `DELETE FROM session WHERE slot = 1`); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// IsValid reports whether a record exists and is valid right now. The expiry
// comparison is strictly "in the future": a session expiring at this instant
// is already invalid.
func (r *SessionRepo) IsValid(ctx context.Context) (bool, error) {
	s, err := r.Current(ctx)
	if err != nil {
		return false, err
	}
	if s == nil {
		return false, nil
	}
	return s.ValidAt(r.now()), nil
}
