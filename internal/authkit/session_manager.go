package authkit

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vibble/vibble/internal/apperr"
)

// TokenPair is an access/refresh pair minted together on login or refresh.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// SessionManager orchestrates login, refresh, logout, and password changes.
// It is the only component that writes the refresh slot on the credential
// store and the only one that decides when to mint new tokens.
type SessionManager struct {
	credentials CredentialStore
	codec       *TokenCodec
	logger      *zap.Logger
	metrics     MetricsRecorder
}

// NewSessionManager wires the session manager over its collaborators.
func NewSessionManager(credentials CredentialStore, codec *TokenCodec, logger *zap.Logger, metrics MetricsRecorder) *SessionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewCounterMetrics()
	}
	return &SessionManager{
		credentials: credentials,
		codec:       codec,
		logger:      logger,
		metrics:     metrics,
	}
}

// Login authenticates by username or email, mints a fresh token pair, and
// overwrites the refresh slot, invalidating any previously issued refresh
// token for the identity.
func (manager *SessionManager) Login(ctx context.Context, identifier string, password string) (*TokenPair, Profile, error) {
	if strings.TrimSpace(identifier) == "" {
		return nil, Profile{}, apperr.BadRequest("Username or email is required")
	}
	if password == "" {
		return nil, Profile{}, apperr.BadRequest("Password is required")
	}

	credential, findErr := manager.credentials.FindCredentialByLogin(ctx, identifier)
	if findErr != nil {
		if errors.Is(findErr, ErrCredentialNotFound) {
			return nil, Profile{}, apperr.NotFound("User does not exist")
		}
		manager.logger.Error("credential lookup failed", zap.String("code", "auth.login.lookup"), zap.Error(findErr))
		return nil, Profile{}, apperr.Internal()
	}

	if !CheckPassword(credential.PasswordHash, password) {
		manager.metrics.Increment(EventLoginFailure)
		return nil, Profile{}, apperr.Unauthorized("Invalid credentials")
	}

	pair, mintErr := manager.mintPair(credential.ID)
	if mintErr != nil {
		manager.logger.Error("token mint failed", zap.String("code", "auth.login.mint"), zap.Error(mintErr))
		return nil, Profile{}, apperr.Internal()
	}

	if setErr := manager.credentials.SetRefreshToken(ctx, credential.ID, pair.RefreshToken); setErr != nil {
		manager.logger.Error("refresh slot write failed", zap.String("code", "auth.login.persist"), zap.Error(setErr))
		return nil, Profile{}, apperr.Internal()
	}

	manager.metrics.Increment(EventLogin)
	return pair, credential.Profile(), nil
}

// Refresh rotates the token pair. The presented token must verify
// cryptographically and exactly equal the stored refresh slot; the swap is
// a compare-and-set so a concurrent rotation with the same stale token
// cannot also succeed.
func (manager *SessionManager) Refresh(ctx context.Context, presentedToken string) (*TokenPair, error) {
	if strings.TrimSpace(presentedToken) == "" {
		return nil, apperr.Unauthorized("Unauthorized request")
	}

	subjectID, verifyErr := manager.codec.Verify(TokenKindRefresh, presentedToken)
	if verifyErr != nil {
		manager.metrics.Increment(EventRefreshInvalid)
		return nil, apperr.Unauthorized("Invalid refresh token")
	}

	credential, findErr := manager.credentials.FindCredentialByID(ctx, subjectID)
	if findErr != nil {
		if errors.Is(findErr, ErrCredentialNotFound) {
			return nil, apperr.NotFound("User not found")
		}
		manager.logger.Error("credential lookup failed", zap.String("code", "auth.refresh.lookup"), zap.Error(findErr))
		return nil, apperr.Internal()
	}

	if credential.CurrentRefreshToken == "" || credential.CurrentRefreshToken != presentedToken {
		manager.metrics.Increment(EventRefreshReuseRejected)
		return nil, apperr.Unauthorized("Invalid refresh token")
	}

	pair, mintErr := manager.mintPair(credential.ID)
	if mintErr != nil {
		manager.logger.Error("token mint failed", zap.String("code", "auth.refresh.mint"), zap.Error(mintErr))
		return nil, apperr.Internal()
	}

	if swapErr := manager.credentials.SwapRefreshToken(ctx, credential.ID, presentedToken, pair.RefreshToken); swapErr != nil {
		if errors.Is(swapErr, ErrRefreshTokenMismatch) {
			manager.metrics.Increment(EventRefreshReuseRejected)
			return nil, apperr.Unauthorized("Invalid refresh token")
		}
		manager.logger.Error("refresh slot swap failed", zap.String("code", "auth.refresh.persist"), zap.Error(swapErr))
		return nil, apperr.Internal()
	}

	manager.metrics.Increment(EventRefresh)
	return pair, nil
}

// Logout clears the refresh slot, invalidating any outstanding refresh
// token for the identity. Clearing an already-empty slot is not an error.
func (manager *SessionManager) Logout(ctx context.Context, identityID string) error {
	if clearErr := manager.credentials.ClearRefreshToken(ctx, identityID); clearErr != nil {
		manager.logger.Error("refresh slot clear failed", zap.String("code", "auth.logout.persist"), zap.Error(clearErr))
		return apperr.Internal()
	}
	manager.metrics.Increment(EventLogout)
	return nil
}

// ChangePassword verifies the old password and persists a new hash. The
// refresh slot is untouched, so existing sessions remain valid.
func (manager *SessionManager) ChangePassword(ctx context.Context, identityID string, oldPassword string, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return apperr.BadRequest("Old and new passwords are required")
	}

	credential, findErr := manager.credentials.FindCredentialByID(ctx, identityID)
	if findErr != nil {
		if errors.Is(findErr, ErrCredentialNotFound) {
			return apperr.NotFound("User not found")
		}
		manager.logger.Error("credential lookup failed", zap.String("code", "auth.change_password.lookup"), zap.Error(findErr))
		return apperr.Internal()
	}

	if !CheckPassword(credential.PasswordHash, oldPassword) {
		return apperr.BadRequest("Incorrect old password")
	}

	newHash, hashErr := HashPassword(newPassword)
	if hashErr != nil {
		manager.logger.Error("password hash failed", zap.String("code", "auth.change_password.hash"), zap.Error(hashErr))
		return apperr.Internal()
	}

	if updateErr := manager.credentials.UpdatePasswordHash(ctx, identityID, newHash); updateErr != nil {
		manager.logger.Error("password update failed", zap.String("code", "auth.change_password.persist"), zap.Error(updateErr))
		return apperr.Internal()
	}

	manager.metrics.Increment(EventPasswordChange)
	return nil
}

func (manager *SessionManager) mintPair(subjectID string) (*TokenPair, error) {
	accessToken, accessExpiresAt, accessErr := manager.codec.Mint(TokenKindAccess, subjectID)
	if accessErr != nil {
		return nil, accessErr
	}
	refreshToken, refreshExpiresAt, refreshErr := manager.codec.Mint(TokenKindRefresh, subjectID)
	if refreshErr != nil {
		return nil, refreshErr
	}
	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExpiresAt,
		RefreshExpiresAt: refreshExpiresAt,
	}, nil
}
