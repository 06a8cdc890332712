package authkit

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/api/idtoken"

	"github.com/vibble/vibble/internal/apperr"
)

// GoogleTokenValidator verifies Google ID tokens against an audience.
type GoogleTokenValidator interface {
	Validate(ctx context.Context, token string, audience string) (*idtoken.Payload, error)
}

type googleTokenValidator struct {
	validator *idtoken.Validator
}

// NewGoogleTokenValidator builds the production validator backed by
// Google's public keys.
func NewGoogleTokenValidator(ctx context.Context) (GoogleTokenValidator, error) {
	validator, err := idtoken.NewValidator(ctx)
	if err != nil {
		return nil, err
	}
	return &googleTokenValidator{validator: validator}, nil
}

func (wrapper *googleTokenValidator) Validate(ctx context.Context, token string, audience string) (*idtoken.Payload, error) {
	return wrapper.validator.Validate(ctx, token, audience)
}

// GoogleSignIn exchanges a verified Google ID token for a Vibble session,
// creating the identity on first sign-in. No password is involved; the
// refresh slot is overwritten exactly as in Login.
type GoogleSignIn struct {
	validator   GoogleTokenValidator
	clientID    string
	credentials CredentialStore
	sessions    *SessionManager
	logger      *zap.Logger
}

// NewGoogleSignIn wires the Google sign-in flow.
func NewGoogleSignIn(validator GoogleTokenValidator, clientID string, credentials CredentialStore, sessions *SessionManager, logger *zap.Logger) *GoogleSignIn {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GoogleSignIn{
		validator:   validator,
		clientID:    clientID,
		credentials: credentials,
		sessions:    sessions,
		logger:      logger,
	}
}

// SignIn validates the ID token, upserts the identity by email, and mints a
// token pair.
func (flow *GoogleSignIn) SignIn(ctx context.Context, googleIDToken string) (*TokenPair, Profile, error) {
	if strings.TrimSpace(googleIDToken) == "" {
		return nil, Profile{}, apperr.BadRequest("Google ID token is required")
	}

	payload, validateErr := flow.validator.Validate(ctx, googleIDToken, flow.clientID)
	if validateErr != nil {
		return nil, Profile{}, apperr.Unauthorized("Invalid Google token")
	}
	issuer, _ := payload.Claims["iss"].(string)
	if issuer != "https://accounts.google.com" && issuer != "accounts.google.com" {
		return nil, Profile{}, apperr.Unauthorized("Invalid Google token")
	}
	email, _ := payload.Claims["email"].(string)
	emailVerified, _ := payload.Claims["email_verified"].(bool)
	fullName, _ := payload.Claims["name"].(string)
	avatarURL, _ := payload.Claims["picture"].(string)
	if email == "" || !emailVerified {
		return nil, Profile{}, apperr.Unauthorized("Unverified Google identity")
	}

	credential, upsertErr := flow.upsertByEmail(ctx, email, fullName, avatarURL)
	if upsertErr != nil {
		flow.logger.Error("google credential upsert failed", zap.String("code", "auth.google.upsert"), zap.Error(upsertErr))
		return nil, Profile{}, apperr.Internal()
	}

	pair, mintErr := flow.sessions.mintPair(credential.ID)
	if mintErr != nil {
		flow.logger.Error("token mint failed", zap.String("code", "auth.google.mint"), zap.Error(mintErr))
		return nil, Profile{}, apperr.Internal()
	}
	if setErr := flow.credentials.SetRefreshToken(ctx, credential.ID, pair.RefreshToken); setErr != nil {
		flow.logger.Error("refresh slot write failed", zap.String("code", "auth.google.persist"), zap.Error(setErr))
		return nil, Profile{}, apperr.Internal()
	}
	return pair, credential.Profile(), nil
}

func (flow *GoogleSignIn) upsertByEmail(ctx context.Context, email string, fullName string, avatarURL string) (*Credential, error) {
	existing, findErr := flow.credentials.FindCredentialByLogin(ctx, email)
	if findErr == nil {
		return existing, nil
	}
	if !errors.Is(findErr, ErrCredentialNotFound) {
		return nil, findErr
	}

	username := strings.ToLower(strings.SplitN(email, "@", 2)[0])
	credential := &Credential{
		Username:  username,
		Email:     strings.ToLower(email),
		FullName:  fullName,
		AvatarURL: avatarURL,
	}
	createErr := flow.credentials.CreateCredential(ctx, credential)
	if createErr == nil {
		return credential, nil
	}
	if !errors.Is(createErr, ErrDuplicateIdentity) {
		return nil, createErr
	}
	// Username collision with a different email: retry once with a suffix.
	credential.Username = username + "-" + uuid.NewString()[:8]
	if retryErr := flow.credentials.CreateCredential(ctx, credential); retryErr != nil {
		return nil, retryErr
	}
	return credential, nil
}
