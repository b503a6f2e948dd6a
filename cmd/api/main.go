package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	_ "github.com/bharatgpt/identity-api/docs" // Swagger docs
	"github.com/bharatgpt/identity-api/internal/auth"
	"github.com/bharatgpt/identity-api/internal/config"
	"github.com/bharatgpt/identity-api/internal/database"
	"github.com/bharatgpt/identity-api/internal/email"
	httpServer "github.com/bharatgpt/identity-api/internal/http"
	"github.com/bharatgpt/identity-api/internal/logging"
	"github.com/bharatgpt/identity-api/internal/metrics"
	"github.com/bharatgpt/identity-api/internal/otp"
	"github.com/bharatgpt/identity-api/internal/ratelimit"
	"github.com/bharatgpt/identity-api/internal/user"
)

const refreshTokenCleanupInterval = time.Hour

// @title           BharatGPT Identity API
// @version         1.0
// @description     Email OTP, password and Google sign-in for BharatGPT.

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the access token.

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "application error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(cfg.Server.IsDevelopment())
	logger.Info("starting application",
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
		"token_format", cfg.Auth.TokenFormat,
		"refresh_store", cfg.Auth.RefreshTokenStore,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := initDB(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	if err := database.CreateSchema(ctx, db); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	redisClient, err := initRedis(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}
	defer redisClient.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	emailService := email.NewService(cfg.Email)
	if cfg.Email.SMTPHost == "" {
		logger.Warn("SMTP is not configured, code delivery will fail")
	}

	otpService := otp.NewService(
		otp.NewRedisStore(redisClient),
		emailService,
		otp.Config(cfg.OTP),
		logger,
		collector,
	)

	issuer, verifier, err := initTokens(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to initialize token service: %w", err)
	}

	refreshTokens := initRefreshStore(cfg.Auth, db, redisClient)
	if cleaner, ok := refreshTokens.(*auth.Repository); ok {
		go cleanupRefreshTokens(ctx, cleaner, logger)
	}

	authService := auth.NewService(
		user.NewRepository(db),
		refreshTokens,
		otpService,
		issuer,
		auth.NewPasswordHasher(cfg.Auth.BcryptCost),
		emailService,
		logger,
		collector,
		cfg.Auth.AccessTokenDuration,
		cfg.Auth.RefreshTokenDuration,
	)

	var oauthProvider auth.OAuthProvider
	if cfg.Google.Enabled() {
		oauthProvider = auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.Google.RedirectURL,
		})
		logger.Info("google sign-in enabled")
	}

	authHandler := auth.NewHandler(
		authService,
		ratelimit.NewLimiter(redisClient),
		oauthProvider,
		logger,
		!cfg.Server.IsDevelopment(),
		cfg.Auth.AccessTokenDuration,
		cfg.Auth.RefreshTokenDuration,
	)

	ipLimiter := httpServer.NewIPRateLimiter(cfg.Server.RequestsPerMin)
	defer ipLimiter.Stop()

	router := httpServer.NewRouter(cfg, httpServer.RouterDeps{
		AuthHandler:    authHandler,
		AuthMiddleware: auth.NewMiddleware(verifier),
		RateLimiter:    ipLimiter,
		Metrics:        metrics.Handler(registry),
		Logger:         logger,
	})

	server := httpServer.NewServer(
		":"+cfg.Server.Port,
		router,
		cfg.Server.ReadTimeout,
		cfg.Server.WriteTimeout,
		logger,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// initTokens picks the issuer for new tokens. The verifier also accepts
// tokens signed with any configured fallback JWT secret.
func initTokens(cfg config.AuthConfig) (auth.TokenIssuer, auth.TokenVerifier, error) {
	var primary auth.TokenService
	switch cfg.TokenFormat {
	case config.TokenFormatPaseto:
		svc, err := auth.NewPasetoService(cfg.PasetoKey)
		if err != nil {
			return nil, nil, err
		}
		primary = svc
	default:
		svc, err := auth.NewJWTService(cfg.JWTSecret)
		if err != nil {
			return nil, nil, err
		}
		primary = svc
	}

	verifiers := []auth.TokenVerifier{primary}
	for i, secret := range cfg.JWTFallbackSecrets {
		fallback, err := auth.NewJWTService(secret)
		if err != nil {
			return nil, nil, fmt.Errorf("fallback secret %d: %w", i, err)
		}
		verifiers = append(verifiers, fallback)
	}

	return primary, auth.NewChainVerifier(verifiers...), nil
}

func initRefreshStore(cfg config.AuthConfig, db *bun.DB, client redis.UniversalClient) auth.RefreshTokenRepository {
	if cfg.RefreshTokenStore == config.RefreshStorePostgres {
		return auth.NewRepository(db)
	}
	return auth.NewRedisRepository(client)
}

// cleanupRefreshTokens prunes expired rows; Redis expires its keys on its own
func cleanupRefreshTokens(ctx context.Context, repo *auth.Repository, logger *logging.Logger) {
	ticker := time.NewTicker(refreshTokenCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := repo.CleanupExpiredTokens(ctx); err != nil {
				logger.Error("refresh token cleanup failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// initDB opens the Postgres pool and wraps it with Bun
func initDB(ctx context.Context, cfg config.DatabaseConfig) (*bun.DB, error) {
	sqlDB, err := sql.Open("postgres", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	return database.NewBunDB(sqlDB), nil
}

func initRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return client, nil
}
