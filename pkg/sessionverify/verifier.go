// Package sessionverify lets sibling services verify Vibble access tokens
// without importing the server internals. It checks the signature, the
// token kind, and the issuer, and hands back the token's subject.
package sessionverify

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// Now returns the current UTC timestamp.
func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// Config configures the Verifier.
type Config struct {
	SigningKey []byte
	Issuer     string
	CookieName string
	Clock      Clock
}

// DefaultContextKey is used by GinMiddleware when no explicit key is provided.
const DefaultContextKey = "session_claims"

// DefaultCookieName is used when Config.CookieName is empty.
const DefaultCookieName = "accessToken"

const accessTokenKind = "access"

// Sentinel errors exposed by the verifier.
var (
	ErrMissingSigningKey = errors.New("session.verifier.missing_signing_key")
	ErrMissingIssuer     = errors.New("session.verifier.missing_issuer")
	ErrMissingToken      = errors.New("session.verifier.missing_token")
	ErrInvalidToken      = errors.New("session.verifier.invalid_token")
	ErrInvalidIssuer     = errors.New("session.verifier.invalid_issuer")
	ErrWrongTokenKind    = errors.New("session.verifier.wrong_token_kind")
	ErrTokenExpired      = errors.New("session.verifier.expired")
)

// Verifier verifies Vibble access tokens.
type Verifier struct {
	signingKey []byte
	issuer     string
	cookieName string
	clock      Clock
}

// Claims is the session payload embedded inside Vibble access tokens.
type Claims struct {
	Kind string `json:"kind"`
	jwt.RegisteredClaims
}

// UserID returns the token's subject.
func (claims *Claims) UserID() string {
	if claims == nil {
		return ""
	}
	return claims.Subject
}

// ExpiresAtTime returns the expiry timestamp.
func (claims *Claims) ExpiresAtTime() time.Time {
	if claims == nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

// New constructs a Verifier after validating the supplied configuration.
func New(configuration Config) (*Verifier, error) {
	if len(configuration.SigningKey) == 0 {
		return nil, fmt.Errorf("session.verifier.new: %w", ErrMissingSigningKey)
	}
	if strings.TrimSpace(configuration.Issuer) == "" {
		return nil, fmt.Errorf("session.verifier.new: %w", ErrMissingIssuer)
	}
	cookieName := configuration.CookieName
	if strings.TrimSpace(cookieName) == "" {
		cookieName = DefaultCookieName
	}
	clock := configuration.Clock
	if clock == nil {
		clock = systemClock{}
	}
	return &Verifier{
		signingKey: configuration.SigningKey,
		issuer:     configuration.Issuer,
		cookieName: cookieName,
		clock:      clock,
	}, nil
}

// VerifyToken validates the provided JWT string and returns the parsed claims.
func (verifier *Verifier) VerifyToken(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("session.verifier.verify_token: %w", ErrMissingToken)
	}
	parsedToken, parseErr := jwt.ParseWithClaims(tokenString, &Claims{}, func(parsed *jwt.Token) (interface{}, error) {
		return verifier.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(func() time.Time {
		return verifier.clock.Now()
	}))
	if parseErr != nil {
		if errors.Is(parseErr, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("session.verifier.verify_token: %w", ErrTokenExpired)
		}
		return nil, fmt.Errorf("session.verifier.verify_token: %w", ErrInvalidToken)
	}
	if parsedToken == nil || !parsedToken.Valid {
		return nil, fmt.Errorf("session.verifier.verify_token: %w", ErrInvalidToken)
	}
	claims, ok := parsedToken.Claims.(*Claims)
	if !ok {
		return nil, fmt.Errorf("session.verifier.verify_token: %w", ErrInvalidToken)
	}
	if claims.Kind != accessTokenKind {
		return nil, fmt.Errorf("session.verifier.verify_token: %w", ErrWrongTokenKind)
	}
	if claims.Issuer != verifier.issuer {
		return nil, fmt.Errorf("session.verifier.verify_token: %w", ErrInvalidIssuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("session.verifier.verify_token: %w", ErrInvalidToken)
	}
	return claims, nil
}

// VerifyRequest reads the bearer header or the configured cookie from the
// request and validates it.
func (verifier *Verifier) VerifyRequest(request *http.Request) (*Claims, error) {
	if request == nil {
		return nil, fmt.Errorf("session.verifier.verify_request: %w", ErrMissingToken)
	}
	if authorizationHeader := request.Header.Get("Authorization"); authorizationHeader != "" {
		parts := strings.SplitN(authorizationHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return verifier.VerifyToken(strings.TrimSpace(parts[1]))
		}
	}
	cookie, cookieErr := request.Cookie(verifier.cookieName)
	if cookieErr != nil || cookie == nil || strings.TrimSpace(cookie.Value) == "" {
		return nil, fmt.Errorf("session.verifier.verify_request: %w", ErrMissingToken)
	}
	return verifier.VerifyToken(cookie.Value)
}

// GinMiddleware returns a Gin middleware that validates the session and
// injects claims under the context key.
func (verifier *Verifier) GinMiddleware(contextKey string) gin.HandlerFunc {
	if strings.TrimSpace(contextKey) == "" {
		contextKey = DefaultContextKey
	}
	return func(contextGin *gin.Context) {
		claims, err := verifier.VerifyRequest(contextGin.Request)
		if err != nil {
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		contextGin.Set(contextKey, claims)
		contextGin.Next()
	}
}
