package authkit

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const currentUserContextKey = "current_user"

// Gate is the request-time authorization checkpoint. It verifies the access
// token and resolves the caller's public profile before any handler runs.
type Gate struct {
	codec       *TokenCodec
	credentials CredentialStore
	config      Config
}

// NewGate constructs the authorization gate.
func NewGate(codec *TokenCodec, credentials CredentialStore, config Config) *Gate {
	return &Gate{codec: codec, credentials: credentials, config: config}
}

// RequireUser rejects the request with 401 unless a valid access token is
// presented as a bearer header or cookie and its subject still resolves.
func (gate *Gate) RequireUser() gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		profile, resolveErr := gate.resolve(contextGin)
		if resolveErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"data":    gin.H{},
				"message": "Unauthorized request",
			})
			return
		}
		contextGin.Set(currentUserContextKey, profile)
		contextGin.Next()
	}
}

// OptionalUser resolves the caller when a valid token is present but never
// rejects the request. Used by public routes that personalize responses.
func (gate *Gate) OptionalUser() gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		if profile, resolveErr := gate.resolve(contextGin); resolveErr == nil {
			contextGin.Set(currentUserContextKey, profile)
		}
		contextGin.Next()
	}
}

func (gate *Gate) resolve(contextGin *gin.Context) (Profile, error) {
	tokenString := extractAccessToken(contextGin.Request, gate.config.AccessCookieName)
	if tokenString == "" {
		return Profile{}, ErrInvalidToken
	}
	subjectID, verifyErr := gate.codec.Verify(TokenKindAccess, tokenString)
	if verifyErr != nil {
		return Profile{}, verifyErr
	}
	credential, findErr := gate.credentials.FindCredentialByID(contextGin.Request.Context(), subjectID)
	if findErr != nil {
		if errors.Is(findErr, ErrCredentialNotFound) {
			return Profile{}, ErrCredentialNotFound
		}
		return Profile{}, findErr
	}
	return credential.Profile(), nil
}

// CurrentUser returns the profile attached by RequireUser or OptionalUser.
func CurrentUser(contextGin *gin.Context) (Profile, bool) {
	value, found := contextGin.Get(currentUserContextKey)
	if !found {
		return Profile{}, false
	}
	profile, ok := value.(Profile)
	return profile, ok
}

func extractAccessToken(request *http.Request, cookieName string) string {
	authorizationHeader := request.Header.Get("Authorization")
	if authorizationHeader != "" {
		parts := strings.SplitN(authorizationHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	cookie, cookieErr := request.Cookie(cookieName)
	if cookieErr != nil || cookie == nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}
