package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vibble/vibble/internal/authkit"
	"github.com/vibble/vibble/internal/mediastore"
	"github.com/vibble/vibble/internal/store"
)

// ServerOptions wires the server's collaborators.
type ServerOptions struct {
	Data           *store.Store
	Credentials    authkit.CredentialStore
	Sessions       *authkit.SessionManager
	Gate           *authkit.Gate
	Google         *authkit.GoogleSignIn
	Media          mediastore.Uploader
	AuthConfig     authkit.Config
	Logger         *zap.Logger
	ViewDedupeTTL  time.Duration
	EnableCORS     bool
	AllowedOrigins []string
}

// Server holds the REST handlers and their collaborators.
type Server struct {
	data           *store.Store
	credentials    authkit.CredentialStore
	sessions       *authkit.SessionManager
	gate           *authkit.Gate
	google         *authkit.GoogleSignIn
	media          mediastore.Uploader
	views          *ViewDeduper
	authConfig     authkit.Config
	logger         *zap.Logger
	enableCORS     bool
	allowedOrigins []string
}

// NewServer constructs the REST server.
func NewServer(options ServerOptions) *Server {
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dedupeTTL := options.ViewDedupeTTL
	if dedupeTTL <= 0 {
		dedupeTTL = time.Hour
	}
	return &Server{
		data:           options.Data,
		credentials:    options.Credentials,
		sessions:       options.Sessions,
		gate:           options.Gate,
		google:         options.Google,
		media:          options.Media,
		views:          NewViewDeduper(dedupeTTL),
		authConfig:     options.AuthConfig,
		logger:         logger,
		enableCORS:     options.EnableCORS,
		allowedOrigins: options.AllowedOrigins,
	}
}

// Router builds the gin engine with all routes mounted under /api/v1.
func (server *Server) Router() (*gin.Engine, error) {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(server.logger))

	if server.enableCORS {
		corsMiddleware, corsErr := ConfigureCORS(server.logger, server.allowedOrigins)
		if corsErr != nil {
			return nil, corsErr
		}
		router.Use(corsMiddleware)
	}

	api := router.Group("/api/v1")

	users := api.Group("/users")
	users.POST("/register", server.handleRegister)
	users.POST("/login", server.handleLogin)
	users.POST("/login/google", server.handleGoogleLogin)
	users.POST("/refresh", server.handleRefresh)
	users.POST("/logout", server.gate.RequireUser(), server.handleLogout)
	users.PATCH("/change-password", server.gate.RequireUser(), server.handleChangePassword)
	users.GET("/me", server.gate.RequireUser(), server.handleCurrentUser)
	users.PATCH("/me", server.gate.RequireUser(), server.handleUpdateProfile)
	users.GET("/channel/:username", server.gate.OptionalUser(), server.handleChannelProfile)
	users.POST("/channel/:username/subscribe", server.gate.RequireUser(), server.handleToggleSubscription)
	users.GET("/history", server.gate.RequireUser(), server.handleWatchHistory)

	videos := api.Group("/videos")
	videos.GET("", server.handleListVideos)
	videos.GET("/search", server.handleSearchVideos)
	videos.GET("/trending", server.handleTrendingVideos)
	videos.GET("/recommended/feed", server.gate.RequireUser(), server.handleRecommendedFeed)
	videos.GET("/channel/:userId", server.handleChannelVideos)
	videos.POST("/upload", server.gate.RequireUser(), server.handleUploadVideo)
	videos.GET("/:videoId", server.gate.OptionalUser(), server.handleVideoDetail)
	videos.POST("/:videoId/view", server.gate.OptionalUser(), server.handleRecordView)
	videos.PATCH("/:videoId", server.gate.RequireUser(), server.handleUpdateVideo)
	videos.DELETE("/:videoId", server.gate.RequireUser(), server.handleDeleteVideo)
	videos.PATCH("/:videoId/toggle-publish", server.gate.RequireUser(), server.handleTogglePublish)
	videos.POST("/:videoId/like", server.gate.RequireUser(), server.handleToggleLike)

	return router, nil
}

func (server *Server) setAuthCookies(contextGin *gin.Context, pair *authkit.TokenPair) {
	server.writeCookie(contextGin, server.authConfig.AccessCookieName, pair.AccessToken, pair.AccessExpiresAt, 0)
	server.writeCookie(contextGin, server.authConfig.RefreshCookieName, pair.RefreshToken, pair.RefreshExpiresAt, 0)
}

func (server *Server) clearAuthCookies(contextGin *gin.Context) {
	server.writeCookie(contextGin, server.authConfig.AccessCookieName, "", time.Unix(0, 0).UTC(), -1)
	server.writeCookie(contextGin, server.authConfig.RefreshCookieName, "", time.Unix(0, 0).UTC(), -1)
}

func (server *Server) writeCookie(contextGin *gin.Context, name string, value string, expires time.Time, maxAge int) {
	http.SetCookie(contextGin.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   server.authConfig.CookieDomain,
		Expires:  expires,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   !server.authConfig.AllowInsecureHTTP,
		SameSite: server.authConfig.SameSiteMode,
	})
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", time.Since(startTime)),
		)
	}
}
