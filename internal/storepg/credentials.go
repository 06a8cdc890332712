package storepg

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vibble/vibble/internal/authkit"
)

const uniqueViolationCode = "23505"

// PgxCredentialStore persists identities with raw SQL over a pgx pool.
type PgxCredentialStore struct {
	pool *pgxpool.Pool
}

// NewPgxCredentialStore constructs a Postgres-backed credential store.
func NewPgxCredentialStore(pool *pgxpool.Pool) *PgxCredentialStore {
	return &PgxCredentialStore{pool: pool}
}

// CreateCredential inserts a new identity, lowercasing username and email.
func (store *PgxCredentialStore) CreateCredential(ctx context.Context, credential *authkit.Credential) error {
	if credential.ID == "" {
		credential.ID = uuid.NewString()
	}
	credential.Username = strings.ToLower(strings.TrimSpace(credential.Username))
	credential.Email = strings.ToLower(strings.TrimSpace(credential.Email))
	now := time.Now().UTC()
	credential.CreatedAt = now
	credential.UpdatedAt = now

	_, execErr := store.pool.Exec(ctx, `
INSERT INTO users (id, username, email, full_name, avatar_url, cover_image_url, password_hash, current_refresh_token, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`, credential.ID, credential.Username, credential.Email, credential.FullName,
		credential.AvatarURL, credential.CoverImageURL, credential.PasswordHash,
		credential.CurrentRefreshToken, credential.CreatedAt, credential.UpdatedAt)
	if execErr != nil {
		var pgError *pgconn.PgError
		if errors.As(execErr, &pgError) && pgError.Code == uniqueViolationCode {
			return fmt.Errorf("storepg.create_credential: %w", authkit.ErrDuplicateIdentity)
		}
		return fmt.Errorf("storepg.create_credential: %w", execErr)
	}
	return nil
}

// FindCredentialByLogin matches username or email case-insensitively.
func (store *PgxCredentialStore) FindCredentialByLogin(ctx context.Context, identifier string) (*authkit.Credential, error) {
	normalized := strings.ToLower(strings.TrimSpace(identifier))
	row := store.pool.QueryRow(ctx, `
SELECT id, username, email, full_name, avatar_url, cover_image_url, password_hash, current_refresh_token, created_at, updated_at
FROM users
WHERE username = $1 OR email = $1
`, normalized)
	return scanCredential(row, "find_by_login")
}

// FindCredentialByID resolves an identity by its id.
func (store *PgxCredentialStore) FindCredentialByID(ctx context.Context, id string) (*authkit.Credential, error) {
	row := store.pool.QueryRow(ctx, `
SELECT id, username, email, full_name, avatar_url, cover_image_url, password_hash, current_refresh_token, created_at, updated_at
FROM users
WHERE id = $1
`, id)
	return scanCredential(row, "find_by_id")
}

// SetRefreshToken unconditionally overwrites the refresh slot.
func (store *PgxCredentialStore) SetRefreshToken(ctx context.Context, id string, token string) error {
	tag, execErr := store.pool.Exec(ctx, `
UPDATE users SET current_refresh_token = $1, updated_at = now() WHERE id = $2
`, token, id)
	if execErr != nil {
		return fmt.Errorf("storepg.set_refresh: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storepg.set_refresh: %w", authkit.ErrCredentialNotFound)
	}
	return nil
}

// SwapRefreshToken replaces the slot only when it still equals the
// presented value.
func (store *PgxCredentialStore) SwapRefreshToken(ctx context.Context, id string, presented string, next string) error {
	tag, execErr := store.pool.Exec(ctx, `
UPDATE users SET current_refresh_token = $1, updated_at = now()
WHERE id = $2 AND current_refresh_token = $3
`, next, id, presented)
	if execErr != nil {
		return fmt.Errorf("storepg.swap_refresh: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		checkErr := store.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
		if checkErr != nil {
			return fmt.Errorf("storepg.swap_refresh: %w", checkErr)
		}
		if !exists {
			return fmt.Errorf("storepg.swap_refresh: %w", authkit.ErrCredentialNotFound)
		}
		return fmt.Errorf("storepg.swap_refresh: %w", authkit.ErrRefreshTokenMismatch)
	}
	return nil
}

// ClearRefreshToken empties the slot. Idempotent.
func (store *PgxCredentialStore) ClearRefreshToken(ctx context.Context, id string) error {
	tag, execErr := store.pool.Exec(ctx, `
UPDATE users SET current_refresh_token = '', updated_at = now() WHERE id = $1
`, id)
	if execErr != nil {
		return fmt.Errorf("storepg.clear_refresh: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storepg.clear_refresh: %w", authkit.ErrCredentialNotFound)
	}
	return nil
}

// UpdatePasswordHash replaces the stored password hash.
func (store *PgxCredentialStore) UpdatePasswordHash(ctx context.Context, id string, passwordHash string) error {
	tag, execErr := store.pool.Exec(ctx, `
UPDATE users SET password_hash = $1, updated_at = now() WHERE id = $2
`, passwordHash, id)
	if execErr != nil {
		return fmt.Errorf("storepg.update_password: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storepg.update_password: %w", authkit.ErrCredentialNotFound)
	}
	return nil
}

func scanCredential(row pgx.Row, operation string) (*authkit.Credential, error) {
	var credential authkit.Credential
	scanErr := row.Scan(
		&credential.ID,
		&credential.Username,
		&credential.Email,
		&credential.FullName,
		&credential.AvatarURL,
		&credential.CoverImageURL,
		&credential.PasswordHash,
		&credential.CurrentRefreshToken,
		&credential.CreatedAt,
		&credential.UpdatedAt,
	)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, fmt.Errorf("storepg.%s: %w", operation, authkit.ErrCredentialNotFound)
		}
		return nil, fmt.Errorf("storepg.%s: %w", operation, scanErr)
	}
	return &credential, nil
}
