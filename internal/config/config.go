package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"

	RosterSourcePostgres = "postgres"
	RosterSourceHTTP     = "http"

	// money columns are NUMERIC(14,2)
	postgresAmountScale int32 = 2
)

type Config struct {
	Database  DatabaseConfig
	JWT       JWTConfig
	App       AppConfig
	Storage   StorageConfig
	HRBackend HRBackendConfig
	Redis     RedisConfig
	Lock      LockConfig
	Payroll   PayrollConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret           string
	AccessExpiration time.Duration
}

// AppConfig holds application configuration
type AppConfig struct {
	Port               int
	Env                string
	LogLevel           string
	CORSAllowedOrigins []string
}

type StorageConfig struct {
	Driver            string
	MigrationsAutoRun bool
	RosterSource      string
}

// HRBackendConfig points at the HR service that owns employees, attendance and the concept catalog.
type HRBackendConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

type LockConfig struct {
	TTL         time.Duration
	WaitTimeout time.Duration
}

type PayrollConfig struct {
	StandardDays          decimal.Decimal
	StandardHoursPerMonth decimal.Decimal
	AmountScale           int32
}

func Load() (*Config, error) {
	// .env is optional; the process environment wins over it
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	config := &Config{}
	var err error

	// Database configuration
	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}
	maxConns, err := strconv.ParseInt(getEnv("DB_MAX_CONNS", "25"), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}
	minConns, err := strconv.ParseInt(getEnv("DB_MIN_CONNS", "5"), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	config.Database = DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     dbPort,
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", "payroll"),
		SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		MaxConns: int32(maxConns),
		MinConns: int32(minConns),
	}

	// Application configuration
	appPort, err := strconv.Atoi(getEnv("APP_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid APP_PORT: %w", err)
	}

	config.App = AppConfig{
		Port:               appPort,
		Env:                getEnv("APP_ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
	}

	// JWT configuration
	accessExpiration, err := time.ParseDuration(getEnv("JWT_ACCESS_EXPIRATION_TIME", "1h"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_ACCESS_EXPIRATION_TIME: %w", err)
	}

	config.JWT = JWTConfig{
		Secret:           getEnv("JWT_SECRET_KEY", ""),
		AccessExpiration: accessExpiration,
	}

	// Storage and collaborators
	autoRun, err := strconv.ParseBool(getEnv("MIGRATIONS_AUTO_RUN", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid MIGRATIONS_AUTO_RUN: %w", err)
	}

	config.Storage = StorageConfig{
		Driver:            strings.ToLower(getEnv("STORAGE_DRIVER", StorageDriverPostgres)),
		MigrationsAutoRun: autoRun,
		RosterSource:      strings.ToLower(getEnv("ROSTER_SOURCE", RosterSourcePostgres)),
	}

	hrTimeout, err := time.ParseDuration(getEnv("HR_BACKEND_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid HR_BACKEND_TIMEOUT: %w", err)
	}

	config.HRBackend = HRBackendConfig{
		URL:     getEnv("HR_BACKEND_URL", ""),
		Token:   getEnv("HR_BACKEND_TOKEN", ""),
		Timeout: hrTimeout,
	}

	// Redis configuration
	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	config.Redis = RedisConfig{
		Address:  getEnv("REDIS_ADDRESS", ""),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       redisDB,
	}

	lockTTL, err := time.ParseDuration(getEnv("LOCK_TTL", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOCK_TTL: %w", err)
	}
	lockWait, err := time.ParseDuration(getEnv("LOCK_WAIT_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOCK_WAIT_TIMEOUT: %w", err)
	}

	config.Lock = LockConfig{
		TTL:         lockTTL,
		WaitTimeout: lockWait,
	}

	// Payroll engine
	standardDays, err := decimal.NewFromString(getEnv("PAYROLL_STANDARD_DAYS", "22"))
	if err != nil {
		return nil, fmt.Errorf("invalid PAYROLL_STANDARD_DAYS: %w", err)
	}
	standardHours, err := decimal.NewFromString(getEnv("PAYROLL_STANDARD_HOURS_PER_MONTH", "160"))
	if err != nil {
		return nil, fmt.Errorf("invalid PAYROLL_STANDARD_HOURS_PER_MONTH: %w", err)
	}
	scale, err := strconv.ParseInt(getEnv("PAYROLL_AMOUNT_SCALE", "2"), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid PAYROLL_AMOUNT_SCALE: %w", err)
	}

	config.Payroll = PayrollConfig{
		StandardDays:          standardDays,
		StandardHoursPerMonth: standardHours,
		AmountScale:           int32(scale),
	}

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}

	switch c.Storage.Driver {
	case StorageDriverPostgres:
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required")
		}
	case StorageDriverMemory:
	default:
		return fmt.Errorf("STORAGE_DRIVER must be '%s' or '%s'", StorageDriverPostgres, StorageDriverMemory)
	}

	switch c.Storage.RosterSource {
	case RosterSourcePostgres:
		if c.Storage.Driver != StorageDriverPostgres {
			return fmt.Errorf("ROSTER_SOURCE=%s requires STORAGE_DRIVER=%s", RosterSourcePostgres, StorageDriverPostgres)
		}
	case RosterSourceHTTP:
		if c.HRBackend.URL == "" {
			return fmt.Errorf("HR_BACKEND_URL is required")
		}
	default:
		return fmt.Errorf("ROSTER_SOURCE must be '%s' or '%s'", RosterSourcePostgres, RosterSourceHTTP)
	}

	if !c.Payroll.StandardDays.IsPositive() {
		return fmt.Errorf("PAYROLL_STANDARD_DAYS must be positive")
	}
	if !c.Payroll.StandardHoursPerMonth.IsPositive() {
		return fmt.Errorf("PAYROLL_STANDARD_HOURS_PER_MONTH must be positive")
	}
	if c.Payroll.AmountScale < 0 {
		return fmt.Errorf("PAYROLL_AMOUNT_SCALE must not be negative")
	}
	if c.Storage.Driver == StorageDriverPostgres && c.Payroll.AmountScale > postgresAmountScale {
		return fmt.Errorf("PAYROLL_AMOUNT_SCALE must be at most %d with STORAGE_DRIVER=%s", postgresAmountScale, StorageDriverPostgres)
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("DB_MIN_CONNS must not exceed DB_MAX_CONNS")
	}
	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// SlogLevel maps LOG_LEVEL to a slog level; unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.App.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvSlice(env, fallback string) []string {
	value := getEnv(env, fallback)
	if value == "" {
		return []string{}
	}
	var result []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			result = append(result, v)
		}
	}
	return result
}
