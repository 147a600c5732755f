// Package config loads runtime settings from the environment (optionally
// seeded from a .env file) and holds the tunable constants of the chat core.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultLogLevel applies when no level is configured.
const DefaultLogLevel = zerolog.InfoLevel

// Config is the client-side configuration.
type Config struct {
	APIURL    string // REST base, e.g. http://localhost:8080/api
	WSURL     string // real-time endpoint, e.g. ws://localhost:8080/ws
	Token     string // bearer token for both REST and ws
	RedisAddr string // optional identity cache; empty disables it
	Locale    string
	LogLevel  zerolog.Level
}

// ServerConfig is the devserver configuration.
type ServerConfig struct {
	Port      string
	DSN       string
	RedisAddr string
	JWTSecret string
	LogLevel  zerolog.Level
}

// LoadDotEnv loads .env if present. A missing file is not an error.
func LoadDotEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}
}

// Load reads the client configuration.
func Load() (*Config, error) {
	cfg := &Config{
		APIURL:    strings.TrimRight(getEnv("CHAT_API_URL", "http://localhost:8080/api"), "/"),
		WSURL:     getEnv("CHAT_WS_URL", "ws://localhost:8080/ws"),
		Token:     os.Getenv("CHAT_TOKEN"),
		RedisAddr: os.Getenv("CHAT_REDIS_ADDR"),
		Locale:    getEnv("CHAT_LOCALE", "en"),
		LogLevel:  parseLevel(getEnv("CHAT_LOG_LEVEL", "info")),
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("CHAT_TOKEN is not set")
	}
	return cfg, nil
}

// LoadServer reads the devserver configuration.
func LoadServer() (*ServerConfig, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
			getEnv("DB_HOST", "localhost"),
			getEnv("DB_USER", "user"),
			getEnv("DB_PASSWORD", "password"),
			getEnv("DB_NAME", "chatdb"),
			getEnv("DB_PORT", "5432"),
		)
	}
	cfg := &ServerConfig{
		Port:      getEnv("PORT", "8080"),
		DSN:       dsn,
		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),
		JWTSecret: os.Getenv("JWT_SECRET"),
		LogLevel:  parseLevel(getEnv("LOG_LEVEL", "info")),
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is not set")
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil || lvl == zerolog.NoLevel {
		return DefaultLogLevel
	}
	return lvl
}
