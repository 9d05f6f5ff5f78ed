package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	"github.com/redmonkez12/authflow/internal/auth"
	"github.com/redmonkez12/authflow/internal/config"
	"github.com/redmonkez12/authflow/internal/database"
	"github.com/redmonkez12/authflow/internal/email"
	httpServer "github.com/redmonkez12/authflow/internal/http"
	"github.com/redmonkez12/authflow/internal/logging"
	"github.com/redmonkez12/authflow/internal/ratelimit"
	"github.com/redmonkez12/authflow/internal/storage"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
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
		"store", cfg.Storage.Backend,
		"session_store", cfg.Storage.SessionStore,
		"otp_store", cfg.Storage.OtpStore,
		"token_strategy", cfg.Auth.TokenStrategy,
	)

	var sqlDB *sql.DB
	if cfg.Storage.Backend == config.BackendPostgres {
		sqlDB, err = database.Open(cfg.Database.ConnectionString())
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer sqlDB.Close()

		if err := database.Migrate(sqlDB); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	redisClient, err := initRedis(cfg.Redis)
	if err != nil {
		if storage.NeedsRedis(cfg.Storage) {
			return fmt.Errorf("failed to initialize Redis: %w", err)
		}
		logger.Warn("redis unavailable, rate limiting disabled", "error", err.Error())
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	var db *bun.DB
	if sqlDB != nil {
		db = database.NewBunDB(sqlDB)
	}
	st, err := storage.New(cfg.Storage, db, redisClient)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	tokenService, err := newTokenService(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to initialize token service: %w", err)
	}

	emailService := email.NewService(
		cfg.Email.SMTPHost,
		cfg.Email.SMTPPort,
		cfg.Email.SMTPUser,
		cfg.Email.SMTPPassword,
		cfg.Email.From,
		cfg.Auth.OtpDuration,
	)

	hasher := auth.NewArgon2Hasher()
	identity := auth.NewIdentityResolver(st.Users, hasher)
	otpService := auth.NewOTPService(st.Otps, emailService, cfg.Auth.OtpDuration, cfg.Email.Timeout)
	sessionManager := auth.NewSessionManager(st.Sessions, tokenService, cfg.Auth.RefreshTokenDuration, cfg.Auth.AccessTokenDuration)
	google := auth.NewGoogleProvider(cfg.OAuth.GoogleUserInfoURL, cfg.OAuth.Timeout)

	authService := auth.NewService(
		st.Users,
		st.Otps,
		identity,
		otpService,
		sessionManager,
		tokenService,
		hasher,
		google,
		logger,
		cfg.Auth.AccessTokenDuration,
		cfg.Auth.PurposeTokenDuration,
	)

	cookies := auth.CookieSettings{
		Secure:          !cfg.Server.IsDevelopment(),
		AccessDuration:  cfg.Auth.AccessTokenDuration,
		RefreshDuration: cfg.Auth.RefreshTokenDuration,
		ContextDuration: cfg.Auth.PurposeTokenDuration,
	}

	var rateLimiter auth.RateLimiter
	if redisClient != nil {
		rateLimiter = ratelimit.NewLimiter(redisClient,
			ratelimit.WithKeyPrefix(cfg.RateLimit.KeyPrefix),
			ratelimit.WithIPLimit(cfg.RateLimit.IPLimit, cfg.RateLimit.IPWindow),
			ratelimit.WithEmailCooldown(cfg.RateLimit.EmailCooldown),
			ratelimit.WithVerifyAttempts(cfg.RateLimit.MaxVerifyAttempts, cfg.Auth.OtpDuration),
		)
	}

	authHandler := auth.NewHandler(authService, rateLimiter, cookies)
	authMiddleware := auth.NewMiddleware(tokenService, sessionManager, cookies, cfg.Server.LoginPath)

	router := httpServer.NewRouter(cfg, authHandler, authMiddleware, logger)

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

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("received signal", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

func newTokenService(cfg config.AuthConfig) (auth.TokenService, error) {
	if cfg.TokenStrategy == config.TokenStrategyJWT {
		return auth.NewJWTService(cfg.JWTSecret)
	}
	return auth.NewPasetoService(cfg.PasetoKey)
}

// initRedis initializes the Redis connection and returns a Redis client
func initRedis(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return client, nil
}
