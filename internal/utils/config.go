package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverRedis    = "redis"
	StoreDriverMemory   = "memory"
)

var (
	ErrMissingTokenSecret = errors.New("token signing secret is not configured")
	ErrUnknownStoreDriver = errors.New("unknown store driver")
)

type DatabaseConfig struct {
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
}

func (c *DatabaseConfig) DSN() string {
	return "host=" + c.PostgresHost +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" port=" + c.PostgresPort +
		" sslmode=disable TimeZone=UTC"
}

type ServerConfig struct {
	Port        string
	CORSOrigins []string
	// RateLimit is the number of requests per second allowed per client on /auth routes.
	RateLimit float64
}

type AdminConfig struct {
	Username string
	Password string
}

type TokenConfig struct {
	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
}

type StoreConfig struct {
	Driver        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

type CookieConfig struct {
	Secure bool
}

type Config struct {
	Database *DatabaseConfig
	Server   *ServerConfig
	Admin    *AdminConfig
	Token    *TokenConfig
	Store    *StoreConfig
	Cookie   *CookieConfig
}

// LoadConfig reads dotenvPath when it exists and builds the configuration from the
// process environment.
func LoadConfig(dotenvPath string) (*Config, error) {
	if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	accessExpiry, err := envDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	refreshExpiry, err := envDuration("REFRESH_TOKEN_EXPIRY", 365*24*time.Hour)
	if err != nil {
		return nil, err
	}
	rateLimit, err := strconv.ParseFloat(envOr("RATE_LIMIT", "10"), 64)
	if err != nil {
		return nil, fmt.Errorf("RATE_LIMIT: %w", err)
	}
	redisDB, err := strconv.Atoi(envOr("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("REDIS_DB: %w", err)
	}
	cookieSecure, err := strconv.ParseBool(envOr("COOKIE_SECURE", "true"))
	if err != nil {
		return nil, fmt.Errorf("COOKIE_SECURE: %w", err)
	}

	cfg := &Config{
		Database: &DatabaseConfig{
			PostgresHost:     envOr("POSTGRES_HOST", "localhost"),
			PostgresPort:     envOr("POSTGRES_PORT", "5432"),
			PostgresUser:     os.Getenv("POSTGRES_USER"),
			PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
			PostgresDB:       os.Getenv("POSTGRES_DB"),
		},
		Server: &ServerConfig{
			Port:        envOr("SERVER_PORT", "8080"),
			CORSOrigins: splitList(envOr("CORS_ORIGINS", "http://localhost:3000")),
			RateLimit:   rateLimit,
		},
		Admin: &AdminConfig{
			Username: os.Getenv("ADMIN_USERNAME"),
			Password: os.Getenv("ADMIN_PASSWORD"),
		},
		Token: &TokenConfig{
			AccessTokenSecret:  os.Getenv("ACCESS_TOKEN_SECRET"),
			RefreshTokenSecret: os.Getenv("REFRESH_TOKEN_SECRET"),
			AccessTokenExpiry:  accessExpiry,
			RefreshTokenExpiry: refreshExpiry,
		},
		Store: &StoreConfig{
			Driver:        envOr("STORE_DRIVER", StoreDriverPostgres),
			RedisAddr:     envOr("REDIS_ADDR", "localhost:6379"),
			RedisPassword: os.Getenv("REDIS_PASSWORD"),
			RedisDB:       redisDB,
		},
		Cookie: &CookieConfig{
			Secure: cookieSecure,
		},
	}
	return cfg, nil
}

// Validate reports configuration that would make the service unable to issue tokens.
func (c *Config) Validate() error {
	if c.Token.AccessTokenSecret == "" || c.Token.RefreshTokenSecret == "" {
		return ErrMissingTokenSecret
	}
	switch c.Store.Driver {
	case StoreDriverPostgres, StoreDriverRedis, StoreDriverMemory:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStoreDriver, c.Store.Driver)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
