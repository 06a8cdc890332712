package authkit

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenKind selects which signing secret and lifetime a token uses.
type TokenKind string

const (
	// TokenKindAccess is the short-lived per-request credential.
	TokenKindAccess TokenKind = "access"
	// TokenKindRefresh is the long-lived credential used only to rotate pairs.
	TokenKindRefresh TokenKind = "refresh"
)

var (
	// ErrEmptySubject indicates a mint attempt without a subject identifier.
	ErrEmptySubject = errors.New("token.empty_subject")
	// ErrInvalidToken indicates a malformed token or a signature that does not
	// match the expected secret for the kind.
	ErrInvalidToken = errors.New("token.invalid")
	// ErrTokenExpired indicates the embedded expiry has passed.
	ErrTokenExpired = errors.New("token.expired")
)

// TokenClaims are embedded in both access and refresh tokens.
type TokenClaims struct {
	Kind string `json:"kind"`
	jwt.RegisteredClaims
}

// TokenCodec mints and verifies signed HS256 tokens. Pure with respect to
// process state aside from the injected clock.
type TokenCodec struct {
	configuration Config
	clock         Clock
}

// NewTokenCodec constructs a codec over the immutable auth configuration.
func NewTokenCodec(configuration Config, clock Clock) *TokenCodec {
	if clock == nil {
		clock = NewSystemClock()
	}
	return &TokenCodec{configuration: configuration, clock: clock}
}

// Mint produces a signed token embedding the subject, issuance time, and an
// expiry computed from the per-kind configured lifetime.
func (codec *TokenCodec) Mint(kind TokenKind, subjectID string) (string, time.Time, error) {
	if strings.TrimSpace(subjectID) == "" {
		return "", time.Time{}, fmt.Errorf("token.mint: %w", ErrEmptySubject)
	}
	issuedAt := codec.clock.Now()
	expiresAt := issuedAt.Add(codec.configuration.ttlFor(kind))
	// A unique jti keeps tokens minted within the same second distinct, so
	// rotation always produces a new refresh token value.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, TokenClaims{
		Kind: string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    codec.configuration.Issuer,
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt.Add(-30 * time.Second)),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, signErr := token.SignedString(codec.configuration.secretFor(kind))
	if signErr != nil {
		return "", time.Time{}, fmt.Errorf("token.mint: %w", signErr)
	}
	return signed, expiresAt, nil
}

// Verify checks the signature and expiry for the given kind and returns the
// embedded subject identifier.
func (codec *TokenCodec) Verify(kind TokenKind, tokenString string) (string, error) {
	if strings.TrimSpace(tokenString) == "" {
		return "", fmt.Errorf("token.verify: %w", ErrInvalidToken)
	}
	parsedToken, parseErr := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(parsed *jwt.Token) (interface{}, error) {
		return codec.configuration.secretFor(kind), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(func() time.Time {
		return codec.clock.Now()
	}))
	if parseErr != nil {
		if errors.Is(parseErr, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("token.verify: %w", ErrTokenExpired)
		}
		return "", fmt.Errorf("token.verify: %w", ErrInvalidToken)
	}
	if parsedToken == nil || !parsedToken.Valid {
		return "", fmt.Errorf("token.verify: %w", ErrInvalidToken)
	}
	claims, ok := parsedToken.Claims.(*TokenClaims)
	if !ok || claims.Kind != string(kind) {
		return "", fmt.Errorf("token.verify: %w", ErrInvalidToken)
	}
	if claims.Issuer != codec.configuration.Issuer {
		return "", fmt.Errorf("token.verify: %w", ErrInvalidToken)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("token.verify: %w", ErrInvalidToken)
	}
	return claims.Subject, nil
}
