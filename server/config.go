package server

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the HTTP server configuration, loaded from the
// environment. A .env file in the working directory is honored.
type Config struct {
	Addr      string
	JWTSecret string
	TokenTTL  time.Duration

	// StoreBackend selects the storage driver: "memory", "postgres"
	// or "mongo".
	StoreBackend  string
	PostgresDSN   string
	MongoURI      string
	MongoDatabase string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// RequestsPerMinute caps requests per client IP. Zero disables
	// the HTTP-level limiter (the send-path limits still apply).
	RequestsPerMinute int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BodyLimit    int
}

// LoadConfig reads configuration from the environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Addr:              getEnv("GAMEMAIL_ADDR", ":8080"),
		JWTSecret:         os.Getenv("GAMEMAIL_JWT_SECRET"),
		TokenTTL:          getEnvDuration("GAMEMAIL_TOKEN_TTL", 24*time.Hour),
		StoreBackend:      getEnv("GAMEMAIL_STORE", "memory"),
		PostgresDSN:       os.Getenv("GAMEMAIL_POSTGRES_DSN"),
		MongoURI:          os.Getenv("GAMEMAIL_MONGO_URI"),
		MongoDatabase:     getEnv("GAMEMAIL_MONGO_DATABASE", "gamemail"),
		RedisAddr:         os.Getenv("GAMEMAIL_REDIS_ADDR"),
		RedisPassword:     os.Getenv("GAMEMAIL_REDIS_PASSWORD"),
		RedisDB:           getEnvInt("GAMEMAIL_REDIS_DB", 0),
		RequestsPerMinute: getEnvInt("GAMEMAIL_REQUESTS_PER_MINUTE", 120),
		ReadTimeout:       getEnvDuration("GAMEMAIL_READ_TIMEOUT", 10*time.Second),
		WriteTimeout:      getEnvDuration("GAMEMAIL_WRITE_TIMEOUT", 10*time.Second),
		BodyLimit:         getEnvInt("GAMEMAIL_BODY_LIMIT", 1<<20),
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("GAMEMAIL_JWT_SECRET is required")
	}

	switch cfg.StoreBackend {
	case "memory":
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, errors.New("GAMEMAIL_POSTGRES_DSN is required for the postgres store")
		}
	case "mongo":
		if cfg.MongoURI == "" {
			return nil, errors.New("GAMEMAIL_MONGO_URI is required for the mongo store")
		}
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
