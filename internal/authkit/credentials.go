package authkit

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCredentialNotFound indicates no identity matched the identifier.
	ErrCredentialNotFound = errors.New("credential_store.not_found")
	// ErrDuplicateIdentity indicates the username or email is already taken.
	ErrDuplicateIdentity = errors.New("credential_store.duplicate_identity")
	// ErrRefreshTokenMismatch indicates the stored refresh slot no longer
	// equals the presented token; the token has been superseded or cleared.
	ErrRefreshTokenMismatch = errors.New("credential_store.refresh_token_mismatch")
)

// Credential is the identity record owned by the credential store. The
// refresh slot holds at most one live refresh token per identity.
type Credential struct {
	ID                  string
	Username            string
	Email               string
	FullName            string
	AvatarURL           string
	CoverImageURL       string
	PasswordHash        string
	CurrentRefreshToken string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Profile is the public view of a credential. Never carries the password
// hash or the refresh slot.
type Profile struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	FullName      string    `json:"fullName"`
	AvatarURL     string    `json:"avatar"`
	CoverImageURL string    `json:"coverImage"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Profile projects the public fields of the credential.
func (credential *Credential) Profile() Profile {
	return Profile{
		ID:            credential.ID,
		Username:      credential.Username,
		Email:         credential.Email,
		FullName:      credential.FullName,
		AvatarURL:     credential.AvatarURL,
		CoverImageURL: credential.CoverImageURL,
		CreatedAt:     credential.CreatedAt,
	}
}

// CredentialStore persists identity records. The session manager is the
// only writer of the refresh slot; SwapRefreshToken must be an atomic
// compare-and-set so concurrent rotations with the same stale token cannot
// both succeed.
type CredentialStore interface {
	CreateCredential(ctx context.Context, credential *Credential) error
	FindCredentialByLogin(ctx context.Context, identifier string) (*Credential, error)
	FindCredentialByID(ctx context.Context, id string) (*Credential, error)
	SetRefreshToken(ctx context.Context, id string, token string) error
	SwapRefreshToken(ctx context.Context, id string, presented string, next string) error
	ClearRefreshToken(ctx context.Context, id string) error
	UpdatePasswordHash(ctx context.Context, id string, passwordHash string) error
}
