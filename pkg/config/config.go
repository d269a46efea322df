package config

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	RunAddress           string
	AuthAPIAddress       string
	AuthAPITimeout       time.Duration
	SessionBackend       string
	DatabaseURI          string
	RedisAddress         string
	RedisPassword        string
	RedisDB              int
	SecretKey            string
	LogLevel             string
	CookieName           string
	CookieSecure         bool
	SessionTTL           time.Duration
	SessionSweepInterval time.Duration
	RestoreTimeout       time.Duration
}

func defaults() Config {
	return Config{
		RunAddress:           "localhost:8080",
		AuthAPIAddress:       "http://localhost:5000",
		AuthAPITimeout:       10 * time.Second,
		SessionBackend:       BackendMemory,
		SecretKey:            "secret",
		LogLevel:             "debug",
		CookieName:           "authgate_session",
		SessionTTL:           7 * 24 * time.Hour,
		SessionSweepInterval: 10 * time.Minute,
		RestoreTimeout:       5 * time.Second,
	}
}

func Parse() *Config {
	// Values from .env never override variables already set in the environment.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: can't load .env file: %v", err)
	}
	cfg, err := parse(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return cfg
}

func parse(args []string) (*Config, error) {
	cfg := defaults()
	if err := cfg.updateFromFlags(args); err != nil {
		return nil, err
	}
	cfg.updateFromEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) validate() error {
	switch cfg.SessionBackend {
	case BackendMemory, BackendRedis:
	case BackendPostgres:
		if cfg.DatabaseURI == "" {
			return errors.New("postgres session backend needs DATABASE_URI")
		}
	default:
		return fmt.Errorf("unknown session backend %q, want %s, %s or %s",
			cfg.SessionBackend, BackendMemory, BackendPostgres, BackendRedis)
	}
	return nil
}

func (cfg *Config) updateFromFlags(args []string) error {
	fs := flag.NewFlagSet("authgate", flag.ContinueOnError)

	fs.StringVar(&cfg.RunAddress, "a", cfg.RunAddress, "Server address.")
	fs.StringVar(&cfg.AuthAPIAddress, "r", cfg.AuthAPIAddress, "Remote auth API address.")
	fs.StringVar(&cfg.SessionBackend, "s", cfg.SessionBackend, "Session backend: memory, postgres or redis.")
	fs.StringVar(&cfg.DatabaseURI, "d", cfg.DatabaseURI, "Postgres DSN.")
	fs.StringVar(&cfg.RedisAddress, "redis", cfg.RedisAddress, "Redis address.")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "Log level.")

	return fs.Parse(args)
}

func (cfg *Config) updateFromEnv() {
	if addr, ok := os.LookupEnv("RUN_ADDRESS"); ok {
		cfg.RunAddress = addr
	}
	if addr, ok := os.LookupEnv("AUTH_API_ADDRESS"); ok {
		cfg.AuthAPIAddress = addr
	}
	if backend, ok := os.LookupEnv("SESSION_BACKEND"); ok {
		cfg.SessionBackend = backend
	}
	if db, ok := os.LookupEnv("DATABASE_URI"); ok {
		cfg.DatabaseURI = db
	}
	if addr, ok := os.LookupEnv("REDIS_ADDRESS"); ok {
		cfg.RedisAddress = addr
	}
	if pass, ok := os.LookupEnv("REDIS_PASSWORD"); ok {
		cfg.RedisPassword = pass
	}
	if secret, ok := os.LookupEnv("SECRET_KEY"); ok {
		cfg.SecretKey = secret
	}
	if lvl, ok := os.LookupEnv("LOG_LEVEL"); ok {
		cfg.LogLevel = lvl
	}
	if name, ok := os.LookupEnv("COOKIE_NAME"); ok {
		cfg.CookieName = name
	}
	cfg.RedisDB = envInt("REDIS_DB", cfg.RedisDB)
	cfg.CookieSecure = envBool("COOKIE_SECURE", cfg.CookieSecure)
	cfg.AuthAPITimeout = envDuration("AUTH_API_TIMEOUT", cfg.AuthAPITimeout)
	cfg.SessionTTL = envDuration("SESSION_TTL", cfg.SessionTTL)
	cfg.SessionSweepInterval = envDuration("SESSION_SWEEP_INTERVAL", cfg.SessionSweepInterval)
	cfg.RestoreTimeout = envDuration("RESTORE_TIMEOUT", cfg.RestoreTimeout)
}

func envInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config: invalid value for %s: %v", key, err)
		return fallback
	}
	return v
}

func envBool(key string, fallback bool) bool {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("config: invalid value for %s: %v", key, err)
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("config: invalid value for %s: %v", key, err)
		return fallback
	}
	return v
}
