package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/honeynil/LibraryAuthService/pkg/errors"
	"github.com/joho/godotenv"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type RateLimitRule struct {
	Limit  int
	Window time.Duration
}

type Config struct {
	HTTPAddr      string
	StorageDriver string
	PostgresDSN   string
	RedisAddr     string
	KafkaBrokers  []string
	KafkaGroupID  string
	AuthTopic     string
	AdminTopic    string
	JWTSecret     string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	CookieSecure  bool
	LogLevel      string
	OTLPEndpoint  string

	AdminUsername string
	AdminEmail    string
	AdminPassword string

	RateLimitEnabled bool
	GlobalRateLimit  RateLimitRule
	AuthRateLimit    RateLimitRule
}

// LoadDotEnv fills unset variables from .env, or from paths when given.
// Existing environment values win.
func LoadDotEnv(paths ...string) error {
	return godotenv.Load(paths...)
}

// Load reads the environment. Call LoadDotEnv first when a .env file is used.
func Load() *Config {
	cfg := &Config{
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		StorageDriver: getEnv("STORAGE_DRIVER", StorageDriverPostgres),
		PostgresDSN:   getEnv("POSTGRES_DSN", "host=localhost user=postgres password=postgres dbname=library sslmode=disable"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		KafkaBrokers:  splitList(os.Getenv("KAFKA_BROKER")),
		KafkaGroupID:  getEnv("KAFKA_GROUP_ID", "library-auth-service"),
		AuthTopic:     getEnv("KAFKA_AUTH_EVENTS_TOPIC", "auth-events"),
		AdminTopic:    getEnv("KAFKA_USER_ADMIN_TOPIC", "user-admin"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		AccessTTL:     getDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTTL:    getDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour),
		CookieSecure:  getBool("COOKIE_SECURE", false),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		OTLPEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),

		AdminUsername: os.Getenv("ADMIN_USERNAME"),
		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),

		RateLimitEnabled: getBool("RATE_LIMIT_ENABLED", true),
		GlobalRateLimit: RateLimitRule{
			Limit:  getInt("RATE_LIMIT_GLOBAL_LIMIT", 200),
			Window: getDuration("RATE_LIMIT_GLOBAL_WINDOW", time.Hour),
		},
		AuthRateLimit: RateLimitRule{
			Limit:  getInt("RATE_LIMIT_AUTH_LIMIT", 10),
			Window: getDuration("RATE_LIMIT_AUTH_WINDOW", time.Minute),
		},
	}

	slog.Info("config loaded",
		"http_addr", cfg.HTTPAddr,
		"storage_driver", cfg.StorageDriver,
		"redis_addr", cfg.RedisAddr,
		"kafka_brokers", cfg.KafkaBrokers,
		"access_ttl", cfg.AccessTTL,
		"refresh_ttl", cfg.RefreshTTL)
	return cfg
}

// Validate reports configuration the service must not start with.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return pkgerrors.ErrSigningKeyMissing
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return fmt.Errorf("%w: token TTLs must be positive", pkgerrors.ErrInvalidInput)
	}
	switch c.StorageDriver {
	case StorageDriverPostgres, StorageDriverMemory:
	default:
		return fmt.Errorf("%w: unknown storage driver %q", pkgerrors.ErrInvalidInput, c.StorageDriver)
	}
	if c.AdminUsername != "" && (c.AdminEmail == "" || c.AdminPassword == "") {
		return fmt.Errorf("%w: ADMIN_USERNAME needs ADMIN_EMAIL and ADMIN_PASSWORD", pkgerrors.ErrInvalidInput)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("invalid boolean, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return b
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
