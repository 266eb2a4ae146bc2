package sqlite

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/mkahmann/schulhub/internal/domain/port/driven"
)

// vaultKDFIterations is the PBKDF2-SHA256 iteration count for deriving the
// vault key from the configured passphrase.
const vaultKDFIterations = 210_000

// vaultKDFSalt is a fixed application salt. The passphrase is per-install and
// never leaves the device, so a fixed salt is sufficient here; it only guards
// against trivially precomputed tables.
var vaultKDFSalt = []byte("schulhub.vault.v1")

// Compile-time interface satisfaction check.
var _ driven.SecretVault = (*VaultRepo)(nil)

// VaultRepo is the SQLite implementation of the SecretVault port. Passwords
// are encrypted with AES-256-GCM before write and decrypted after read; the
// key is derived once from the configured passphrase.
type VaultRepo struct {
	db  *DB
	key []byte // 32-byte AES-256 key; nil when no passphrase is configured.
}

// NewVaultRepo creates a new VaultRepo. An empty passphrase disables the
// vault: all operations return driven.ErrVaultKeyNotSet.
func NewVaultRepo(db *DB, passphrase string) *VaultRepo {
	var key []byte
	if passphrase != "" {
		key = pbkdf2.Key([]byte(passphrase), vaultKDFSalt, vaultKDFIterations, 32, sha256.New)
	}
	return &VaultRepo{db: db, key: key}
}

// Set stores or replaces the password for the given username.
func (r *VaultRepo) Set(ctx context.Context, username, password string) error {
	encrypted, err := r.encrypt(password)
	if err != nil {
		return err
	}

	const query = `INSERT OR REPLACE INTO vault (username, secret, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)`
	if _, err := r.db.Writer.ExecContext(ctx, query, username, encrypted); err != nil {
		return fmt.Errorf("set vault entry for %q: %w", username, err)
	}
	return nil
}

// Get retrieves the password for the given username.
// Returns ("", nil) if no entry exists.
func (r *VaultRepo) Get(ctx context.Context, username string) (string, error) {
	if r.key == nil {
		return "", driven.ErrVaultKeyNotSet
	}

	const query = `SELECT secret FROM vault WHERE username = ?`
	var encrypted string
	err := r.db.Reader.QueryRowContext(ctx, query, username).Scan(&encrypted)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get vault entry for %q: %w", username, err)
	}

	password, err := r.decrypt(encrypted)
	if err != nil {
		return "", fmt.Errorf("decrypt vault entry for %q: %w", username, err)
	}
	return password, nil
}

// Delete removes the entry for the given username. No-op when absent.
func (r *VaultRepo) Delete(ctx context.Context, username string) error {
	if _, err := r.db.Writer.ExecContext(ctx, `DELETE FROM vault WHERE username = ?`, username); err != nil {
		return fmt.Errorf("delete vault entry for %q: %w", username, err)
	}
	return nil
}

// encrypt encrypts plaintext using AES-256-GCM and returns a base64-encoded
// string containing the nonce (12 bytes) prepended to the ciphertext.
func (r *VaultRepo) encrypt(plaintext string) (string, error) {
	if r.key == nil {
		return "", driven.ErrVaultKeyNotSet
	}

	block, err := aes.NewCipher(r.key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cipher.NewGCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	// Seal appends the ciphertext to nonce, producing: nonce || ciphertext || tag.
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts a base64-encoded AES-256-GCM ciphertext.
func (r *VaultRepo) decrypt(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}

	block, err := aes.NewCipher(r.key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cipher.NewGCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("gcm.Open: %w", err)
	}

	return string(plaintext), nil
}
