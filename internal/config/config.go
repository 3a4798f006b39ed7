package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// LoadEnv loads variables from a .env file if present.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file found: %v", err)
	}
}

// GetEnv returns an environment variable or a default value.
func GetEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return defaultVal
}

// GetIntEnv returns an int environment variable or a default value.
func GetIntEnv(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// GetDurationEnv returns a duration environment variable (e.g. "30s") or a default value.
func GetDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// GetBoolEnv returns a bool environment variable or a default value.
func GetBoolEnv(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// IsProduction checks if the app runs in production mode.
func IsProduction() bool {
	return GetEnv("ENV", "development") == "production"
}

// DatabaseConfig holds the postgres connection and pool settings.
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DSN builds the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return "host=" + d.Host +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.Name +
		" port=" + d.Port +
		" sslmode=" + d.SSLMode +
		" TimeZone=UTC"
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type ProcessorConfig struct {
	AccessToken string
	BaseURL     string
	WebhookURL  string
	Timeout     time.Duration
}

type DeviceConfig struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	BackoffUnit    time.Duration
}

type SchedulerConfig struct {
	Enabled        bool
	PollInterval   time.Duration
	ExpiryInterval time.Duration
}

// Config is the typed view of every setting the service reads.
type Config struct {
	Env         string
	Port        string
	LogLevel    string
	CORSOrigins string

	Database  DatabaseConfig
	Redis     RedisConfig
	Processor ProcessorConfig
	Device    DeviceConfig
	Scheduler SchedulerConfig

	RabbitMQURL     string
	PublicBaseURL   string
	JWTSecret       string
	SweepSecret     string
	PollWindow      time.Duration
	PresenceWindow  time.Duration
	AmountTolerance decimal.Decimal
}

// Load reads the configuration from the environment. Call LoadEnv first to
// pick up a local .env file.
func Load() Config {
	tolerance, err := decimal.NewFromString(GetEnv("AMOUNT_TOLERANCE", "0.01"))
	if err != nil {
		log.Printf("invalid AMOUNT_TOLERANCE, using 0.01: %v", err)
		tolerance = decimal.RequireFromString("0.01")
	}

	return Config{
		Env:         GetEnv("ENV", "development"),
		Port:        GetEnv("PORT", "3000"),
		LogLevel:    GetEnv("LOG_LEVEL", "info"),
		CORSOrigins: GetEnv("CORS_ORIGINS", "*"),
		Database: DatabaseConfig{
			Host:            GetEnv("DB_HOST", "localhost"),
			Port:            GetEnv("DB_PORT", "5432"),
			User:            GetEnv("DB_USER", "postgres"),
			Password:        GetEnv("DB_PASSWORD", "postgres"),
			Name:            GetEnv("DB_NAME", "poltrona"),
			SSLMode:         GetEnv("DB_SSLMODE", "disable"),
			MaxIdleConns:    GetIntEnv("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    GetIntEnv("DB_MAX_OPEN_CONNS", 50),
			ConnMaxLifetime: GetDurationEnv("DB_CONN_MAX_LIFETIME", time.Hour),
			ConnMaxIdleTime: GetDurationEnv("DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			Host:     GetEnv("REDIS_HOST", "localhost"),
			Port:     GetEnv("REDIS_PORT", "6379"),
			Password: GetEnv("REDIS_PASSWORD", ""),
			DB:       GetIntEnv("REDIS_DB", 0),
		},
		Processor: ProcessorConfig{
			AccessToken: GetEnv("PROCESSOR_ACCESS_TOKEN", ""),
			BaseURL:     GetEnv("PROCESSOR_BASE_URL", "https://api.mercadopago.com"),
			WebhookURL:  GetEnv("PROCESSOR_WEBHOOK_URL", ""),
			Timeout:     GetDurationEnv("PROCESSOR_TIMEOUT", 10*time.Second),
		},
		Device: DeviceConfig{
			MaxAttempts:    GetIntEnv("DEVICE_MAX_ATTEMPTS", 3),
			AttemptTimeout: GetDurationEnv("DEVICE_ATTEMPT_TIMEOUT", 5*time.Second),
			BackoffUnit:    GetDurationEnv("DEVICE_BACKOFF_UNIT", time.Second),
		},
		Scheduler: SchedulerConfig{
			Enabled:        GetBoolEnv("SCHEDULER_ENABLED", false),
			PollInterval:   GetDurationEnv("POLL_INTERVAL", 30*time.Second),
			ExpiryInterval: GetDurationEnv("EXPIRY_INTERVAL", time.Minute),
		},
		RabbitMQURL:     GetEnv("RABBITMQ_URL", ""),
		PublicBaseURL:   strings.TrimRight(GetEnv("PUBLIC_BASE_URL", "http://localhost:5173"), "/"),
		JWTSecret:       GetEnv("JWT_SECRET", ""),
		SweepSecret:     GetEnv("SWEEP_SECRET", ""),
		PollWindow:      GetDurationEnv("POLL_WINDOW", 30*time.Minute),
		PresenceWindow:  GetDurationEnv("PRESENCE_WINDOW", 2*time.Minute),
		AmountTolerance: tolerance,
	}
}

// MissingError lists the required settings that were not provided.
type MissingError struct {
	Keys []string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", strings.Join(e.Keys, ", "))
}

// Validate checks the secrets needed by the given surface ("server" or
// "sweeper"). It returns a *MissingError naming every absent key.
func (c Config) Validate(surface string) error {
	var missing []string
	if c.Processor.AccessToken == "" {
		missing = append(missing, "PROCESSOR_ACCESS_TOKEN")
	}
	if surface == "server" && c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return &MissingError{Keys: missing}
	}
	return nil
}
