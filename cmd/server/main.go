package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/vibble/vibble/internal/authkit"
	"github.com/vibble/vibble/internal/httpapi"
	"github.com/vibble/vibble/internal/mediastore"
	"github.com/vibble/vibble/internal/store"
	"github.com/vibble/vibble/internal/storepg"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "vibble",
		Short: "Video sharing backend with JWT sessions, rotating refresh tokens, and S3 media storage",
		RunE:  runServer,
	}

	rootCmd.Flags().String("listen_addr", ":8080", "HTTP listen address")
	rootCmd.Flags().String("database_url", "sqlite://vibble.db", "Database URL (postgres:// or sqlite://)")
	rootCmd.Flags().String("auth_store", "gorm", "Credential store backend: gorm or pgx")
	rootCmd.Flags().String("access_token_secret", "", "HS256 signing secret for access tokens")
	rootCmd.Flags().String("refresh_token_secret", "", "HS256 signing secret for refresh tokens")
	rootCmd.Flags().Duration("access_token_ttl", 15*time.Minute, "Access token TTL")
	rootCmd.Flags().Duration("refresh_token_ttl", 10*24*time.Hour, "Refresh token TTL")
	rootCmd.Flags().String("cookie_domain", "", "Cookie domain; empty for host-only")
	rootCmd.Flags().Bool("dev_insecure_http", false, "Allow insecure HTTP for local dev")
	rootCmd.Flags().Bool("enable_cors", false, "Enable CORS for cross-origin clients (required to set SameSite=None cookies)")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled")
	rootCmd.Flags().String("google_web_client_id", "", "Google Web OAuth Client ID; empty disables Google sign-in")
	rootCmd.Flags().Duration("view_dedupe_ttl", time.Hour, "Window in which repeat views from the same viewer are not counted")
	rootCmd.Flags().String("s3_bucket", "", "S3 bucket for media uploads; empty uses the in-memory store")
	rootCmd.Flags().String("s3_region", "us-east-1", "S3 region")
	rootCmd.Flags().String("s3_endpoint", "", "S3 endpoint override for MinIO-style deployments")
	rootCmd.Flags().String("s3_public_base_url", "", "Public base URL for uploaded media")
	rootCmd.Flags().String("s3_access_key_id", "", "Static S3 access key; empty uses the ambient chain")
	rootCmd.Flags().String("s3_secret_access_key", "", "Static S3 secret key")

	for _, name := range []string{
		"listen_addr", "database_url", "auth_store",
		"access_token_secret", "refresh_token_secret",
		"access_token_ttl", "refresh_token_ttl",
		"cookie_domain", "dev_insecure_http",
		"enable_cors", "cors_allowed_origins",
		"google_web_client_id", "view_dedupe_ttl",
		"s3_bucket", "s3_region", "s3_endpoint",
		"s3_public_base_url", "s3_access_key_id", "s3_secret_access_key",
	} {
		_ = viper.BindPFlag(name, rootCmd.Flags().Lookup(name))
	}

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	return rootCmd
}

const (
	accessCookieName  = "accessToken"
	refreshCookieName = "refreshToken"
	tokenIssuer       = "vibble"

	configCodeMissingAccessSecret  = "config.missing_access_token_secret"
	configCodeMissingRefreshSecret = "config.missing_refresh_token_secret"
	configCodeInvalidAccessTTL     = "config.invalid_access_token_ttl"
	configCodeInvalidRefreshTTL    = "config.invalid_refresh_token_ttl"
	configCodeUnknownAuthStore     = "config.unknown_auth_store"
)

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

func loadAuthConfig() (authkit.Config, error) {
	accessSecret := viper.GetString("access_token_secret")
	if accessSecret == "" {
		return authkit.Config{}, configError(configCodeMissingAccessSecret, "access_token_secret must be provided")
	}
	refreshSecret := viper.GetString("refresh_token_secret")
	if refreshSecret == "" {
		return authkit.Config{}, configError(configCodeMissingRefreshSecret, "refresh_token_secret must be provided")
	}
	accessTTL := viper.GetDuration("access_token_ttl")
	if accessTTL <= 0 {
		return authkit.Config{}, configError(configCodeInvalidAccessTTL, "access_token_ttl must be greater than zero")
	}
	refreshTTL := viper.GetDuration("refresh_token_ttl")
	if refreshTTL <= 0 {
		return authkit.Config{}, configError(configCodeInvalidRefreshTTL, "refresh_token_ttl must be greater than zero")
	}

	sameSiteMode := http.SameSiteStrictMode
	if viper.GetBool("enable_cors") {
		sameSiteMode = http.SameSiteNoneMode
	}

	return authkit.Config{
		AccessTokenSecret:  []byte(accessSecret),
		RefreshTokenSecret: []byte(refreshSecret),
		Issuer:             tokenIssuer,
		CookieDomain:       viper.GetString("cookie_domain"),
		AccessCookieName:   accessCookieName,
		RefreshCookieName:  refreshCookieName,
		AccessTokenTTL:     accessTTL,
		RefreshTokenTTL:    refreshTTL,
		SameSiteMode:       sameSiteMode,
		AllowInsecureHTTP:  viper.GetBool("dev_insecure_http"),
	}, nil
}

func buildMediaStore(ctx context.Context, logger *zap.Logger) (mediastore.Uploader, error) {
	bucket := viper.GetString("s3_bucket")
	if bucket == "" {
		logger.Info("using in-memory media store")
		return mediastore.NewMemoryStore(), nil
	}
	s3Store, s3Err := mediastore.NewS3Store(ctx, mediastore.S3Config{
		Region:          viper.GetString("s3_region"),
		Bucket:          bucket,
		Endpoint:        viper.GetString("s3_endpoint"),
		PublicBaseURL:   viper.GetString("s3_public_base_url"),
		AccessKeyID:     viper.GetString("s3_access_key_id"),
		SecretAccessKey: viper.GetString("s3_secret_access_key"),
	})
	if s3Err != nil {
		return nil, s3Err
	}
	logger.Info("using S3 media store", zap.String("bucket", bucket))
	return s3Store, nil
}

func buildCredentialStore(ctx context.Context, data *store.Store, logger *zap.Logger) (authkit.CredentialStore, error) {
	switch strings.ToLower(viper.GetString("auth_store")) {
	case "", "gorm":
		return data, nil
	case "pgx":
		pool, poolErr := storepg.BuildPool(ctx, viper.GetString("database_url"))
		if poolErr != nil {
			return nil, poolErr
		}
		if schemaErr := storepg.EnsureSchema(ctx, pool); schemaErr != nil {
			return nil, schemaErr
		}
		logger.Info("using pgx credential store")
		return storepg.NewPgxCredentialStore(pool), nil
	default:
		return nil, configError(configCodeUnknownAuthStore, "auth_store must be gorm or pgx")
	}
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	authConfig, configErr := loadAuthConfig()
	if configErr != nil {
		return configErr
	}

	startupCtx := command.Context()
	if startupCtx == nil {
		startupCtx = context.Background()
	}

	data, openErr := store.Open(startupCtx, viper.GetString("database_url"))
	if openErr != nil {
		return openErr
	}
	logger.Info("database ready", zap.String("driver", data.Driver()))

	credentials, credentialsErr := buildCredentialStore(startupCtx, data, logger)
	if credentialsErr != nil {
		return credentialsErr
	}

	media, mediaErr := buildMediaStore(startupCtx, logger)
	if mediaErr != nil {
		return mediaErr
	}

	codec := authkit.NewTokenCodec(authConfig, authkit.NewSystemClock())
	metrics := authkit.NewCounterMetrics()
	sessions := authkit.NewSessionManager(credentials, codec, logger, metrics)
	gate := authkit.NewGate(codec, credentials, authConfig)

	var google *authkit.GoogleSignIn
	if clientID := viper.GetString("google_web_client_id"); clientID != "" {
		validator, validatorErr := authkit.NewGoogleTokenValidator(startupCtx)
		if validatorErr != nil {
			return fmt.Errorf("config.google_validator_init: %w", validatorErr)
		}
		google = authkit.NewGoogleSignIn(validator, clientID, credentials, sessions, logger)
		logger.Info("google sign-in enabled")
	}

	gin.SetMode(gin.ReleaseMode)
	apiServer := httpapi.NewServer(httpapi.ServerOptions{
		Data:           data,
		Credentials:    credentials,
		Sessions:       sessions,
		Gate:           gate,
		Google:         google,
		Media:          media,
		AuthConfig:     authConfig,
		Logger:         logger,
		ViewDedupeTTL:  viper.GetDuration("view_dedupe_ttl"),
		EnableCORS:     viper.GetBool("enable_cors"),
		AllowedOrigins: viper.GetStringSlice("cors_allowed_origins"),
	})
	router, routerErr := apiServer.Router()
	if routerErr != nil {
		return routerErr
	}

	listenAddr := viper.GetString("listen_addr")
	server := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		<-stopSignals
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", listenAddr))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}
