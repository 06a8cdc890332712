package authkit

import (
	"net/http"
	"time"
)

// Config carries the signing secrets, token lifetimes, and cookie settings
// for the auth subsystem. Loaded once at startup and treated as immutable.
type Config struct {
	AccessTokenSecret  []byte
	RefreshTokenSecret []byte
	Issuer             string
	CookieDomain       string
	AccessCookieName   string
	RefreshCookieName  string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	SameSiteMode       http.SameSite
	AllowInsecureHTTP  bool
}

func (configuration Config) secretFor(kind TokenKind) []byte {
	if kind == TokenKindRefresh {
		return configuration.RefreshTokenSecret
	}
	return configuration.AccessTokenSecret
}

func (configuration Config) ttlFor(kind TokenKind) time.Duration {
	if kind == TokenKindRefresh {
		return configuration.RefreshTokenTTL
	}
	return configuration.AccessTokenTTL
}
