package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Email     EmailConfig
	OAuth     OAuthConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port            string
	Env             string // dev or prod
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	TrustedOrigins  []string // CORS allowed origins for cookie auth
	LoginPath       string   // where HTML navigations are sent when unauthenticated
	TrustedProxies  []string // CIDRs whose X-Forwarded-For is believed
}

// StorageConfig selects the backend for each store.
type StorageConfig struct {
	Backend      string // postgres | memory
	SessionStore string // postgres | redis
	OtpStore     string // postgres | redis
}

type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	ChannelBinding string // "require" for Neon DB, empty for local
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type AuthConfig struct {
	TokenStrategy string // paseto | jwt
	// PASETO symmetric key (must be 32 bytes for v4.local)
	PasetoKey []byte
	// HS256 secret, only used with the jwt strategy
	JWTSecret []byte

	AccessTokenDuration  time.Duration
	RefreshTokenDuration time.Duration
	OtpDuration          time.Duration
	PurposeTokenDuration time.Duration
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPassword string
	From         string
	Timeout      time.Duration
}

type OAuthConfig struct {
	GoogleUserInfoURL string
	Timeout           time.Duration
}

// RateLimitConfig tunes the Redis limiter. Budgets are per client IP and
// purpose; verify attempts are per email and purpose.
type RateLimitConfig struct {
	KeyPrefix         string
	IPLimit           int
	IPWindow          time.Duration
	EmailCooldown     time.Duration
	MaxVerifyAttempts int
}

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
	BackendRedis    = "redis"

	TokenStrategyPaseto = "paseto"
	TokenStrategyJWT    = "jwt"
)

// Load reads configuration from environment variables, loading a .env file
// first when one exists.
func Load() (*Config, error) {
	cfg := LoadUnvalidated()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadUnvalidated reads the environment without the cross-field checks of
// Validate. Admin commands use it when they need only the storage settings.
func LoadUnvalidated() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Env:             getEnv("APP_ENV", "dev"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
			TrustedOrigins:  getSliceEnv("TRUSTED_ORIGINS", []string{"http://localhost:3000"}),
			LoginPath:       getEnv("LOGIN_PATH", "/login"),
			TrustedProxies:  getSliceEnv("TRUSTED_PROXIES", nil),
		},
		Storage: StorageConfig{
			Backend:      getEnv("APP_STORE", BackendPostgres),
			SessionStore: getEnv("SESSION_STORE", BackendPostgres),
			OtpStore:     getEnv("OTP_STORE", BackendPostgres),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", "postgres"),
			DBName:         getEnv("DB_NAME", "authflow"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			ChannelBinding: getEnv("DB_CHANNEL_BINDING", ""),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			TokenStrategy:        getEnv("AUTH_TOKEN_STRATEGY", TokenStrategyPaseto),
			PasetoKey:            []byte(getEnv("PASETO_KEY", "")),
			JWTSecret:            []byte(getEnv("JWT_SECRET", "")),
			AccessTokenDuration:  getMinutesEnv("ACCESS_TOKEN_EXPIRY_IN_MINUTES", 120*time.Minute),
			RefreshTokenDuration: getMinutesEnv("REFRESH_TOKEN_EXPIRY_IN_MINUTES", 43200*time.Minute),
			OtpDuration:          getMinutesEnv("OTP_EXPIRATION_TIME_IN_MINUTES", 10*time.Minute),
			PurposeTokenDuration: getMinutesEnv("PURPOSE_TOKEN_EXPIRY_IN_MINUTES", 10*time.Minute),
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnv("SMTP_PORT", "587"),
			SMTPUser:     getEnv("SMTP_USER", ""),
			SMTPPassword: getEnv("SMTP_PASS", ""),
			From:         getEnv("MAIL_FROM", ""),
			Timeout:      getDurationEnv("MAIL_TIMEOUT", 10*time.Second),
		},
		OAuth: OAuthConfig{
			GoogleUserInfoURL: getEnv("GOOGLE_USERINFO_URL", "https://openidconnect.googleapis.com/v1/userinfo"),
			Timeout:           getDurationEnv("OAUTH_TIMEOUT", 10*time.Second),
		},
		RateLimit: RateLimitConfig{
			KeyPrefix:         getEnv("RATE_LIMIT_KEY_PREFIX", "ratelimit:"),
			IPLimit:           getIntEnv("RATE_LIMIT_IP_LIMIT", 10),
			IPWindow:          getDurationEnv("RATE_LIMIT_IP_WINDOW", 15*time.Minute),
			EmailCooldown:     getDurationEnv("RATE_LIMIT_EMAIL_COOLDOWN", 2*time.Minute),
			MaxVerifyAttempts: getIntEnv("RATE_LIMIT_MAX_VERIFY_ATTEMPTS", 5),
		},
	}

	if cfg.Email.From == "" {
		cfg.Email.From = cfg.Email.SMTPUser
	}
	return cfg
}

// Validate checks the combinations Load cannot default its way out of.
func (c *Config) Validate() error {
	switch c.Auth.TokenStrategy {
	case TokenStrategyPaseto:
		// Validate PASETO key length (must be 32 bytes for v4.local)
		if len(c.Auth.PasetoKey) != 32 {
			return fmt.Errorf("PASETO_KEY must be exactly 32 bytes, got %d", len(c.Auth.PasetoKey))
		}
	case TokenStrategyJWT:
		if len(c.Auth.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 bytes, got %d", len(c.Auth.JWTSecret))
		}
	default:
		return fmt.Errorf("unknown AUTH_TOKEN_STRATEGY %q", c.Auth.TokenStrategy)
	}

	if c.Storage.Backend != BackendPostgres && c.Storage.Backend != BackendMemory {
		return fmt.Errorf("unknown APP_STORE %q", c.Storage.Backend)
	}
	for name, v := range map[string]string{"SESSION_STORE": c.Storage.SessionStore, "OTP_STORE": c.Storage.OtpStore} {
		if v != BackendPostgres && v != BackendRedis {
			return fmt.Errorf("unknown %s %q", name, v)
		}
	}

	if c.Auth.AccessTokenDuration <= 0 || c.Auth.RefreshTokenDuration <= 0 ||
		c.Auth.OtpDuration <= 0 || c.Auth.PurposeTokenDuration <= 0 {
		return errors.New("token and OTP durations must be positive")
	}
	if c.Auth.AccessTokenDuration >= c.Auth.RefreshTokenDuration {
		return errors.New("access token must expire before the refresh token")
	}

	if c.RateLimit.IPLimit <= 0 || c.RateLimit.MaxVerifyAttempts <= 0 || c.RateLimit.IPWindow <= 0 {
		return errors.New("rate limits must be positive")
	}
	for _, cidr := range c.Server.TrustedProxies {
		if _, err := netip.ParsePrefix(cidr); err != nil {
			return fmt.Errorf("invalid TRUSTED_PROXIES entry %q: %w", cidr, err)
		}
	}
	return nil
}

func (c *DatabaseConfig) ConnectionString() string {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)

	// Add channel_binding if configured (required for Neon DB)
	if c.ChannelBinding != "" {
		connStr += fmt.Sprintf(" channel_binding=%s", c.ChannelBinding)
	}

	return connStr
}

// Address returns Redis connection address (host:port)
func (c *RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDevelopment returns true if the environment is set to dev
func (c *ServerConfig) IsDevelopment() bool {
	return c.Env == "dev"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}

// getDurationEnv reads a whole number of seconds.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	seconds, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return time.Duration(seconds) * time.Second
}

// getMinutesEnv reads a whole number of minutes.
func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	minutes := getIntEnv(key, -1)
	if minutes < 0 {
		return defaultValue
	}
	return time.Duration(minutes) * time.Minute
}

func getSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}

	return result
}
