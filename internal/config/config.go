package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	NodeID      int64

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBAutoMigrate     bool
	SeedDevUsers      bool

	Redis     RedisConfig
	RateLimit RateLimitConfig
	Quota QuotaConfig
	Auth  AuthConfig
	AI    AIConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	Enabled   bool
	Rate      float64
	Burst     int
	KeyPrefix string
}

type QuotaConfig struct {
	Store          string
	Timezone       string
	StoreTimeout   time.Duration
	LimitsFile     string
	RedisKeyPrefix string
	RedisRetention time.Duration
}

type AuthConfig struct {
	JWTSecret  string
	CookieName string
	Issuer     string
}

type AIConfig struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
}

const (
	QuotaStoreSQL   = "sql"
	QuotaStoreRedis = "redis"
)

const (
	AIProviderStatic = "static"
	AIProviderOpenAI = "openai"
	AIProviderGemini = "gemini"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "studyquota"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		NodeID:            int64(getenvInt("SNOWFLAKE_NODE_ID", 1)),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "studyquota"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBAutoMigrate:     getenvBool("DATABASE_AUTO_MIGRATE", true),
		SeedDevUsers:      getenvBool("SEED_DEV_USERS", false),
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			Enabled:   getenvBool("RATE_LIMIT_ENABLED", false),
			Rate:      getenvFloat("RATE_LIMIT_RATE", 0.2),
			Burst:     getenvInt("RATE_LIMIT_BURST", 5),
			KeyPrefix: getenv("RATE_LIMIT_PREFIX", "studyquota:ratelimit"),
		},
		Quota: QuotaConfig{
			Store:          normalizeStore(getenv("QUOTA_STORE", QuotaStoreSQL)),
			Timezone:       strings.TrimSpace(getenv("QUOTA_TIMEZONE", "UTC")),
			StoreTimeout:   getenvDuration("QUOTA_STORE_TIMEOUT", 2*time.Second),
			LimitsFile:     strings.TrimSpace(getenv("QUOTA_LIMITS_FILE", "")),
			RedisKeyPrefix: getenv("QUOTA_REDIS_PREFIX", "studyquota:usage"),
			RedisRetention: getenvDuration("QUOTA_REDIS_RETENTION", 7*24*time.Hour),
		},
		Auth: AuthConfig{
			JWTSecret:  strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
			CookieName: getenv("AUTH_COOKIE_NAME", "token"),
			Issuer:     strings.TrimSpace(getenv("AUTH_JWT_ISSUER", "")),
		},
		AI: AIConfig{
			Provider: normalizeProvider(getenv("AI_PROVIDER", AIProviderStatic)),
			APIKey:   strings.TrimSpace(getenv("AI_API_KEY", "")),
			Model:    strings.TrimSpace(getenv("AI_MODEL", "")),
			BaseURL:  strings.TrimSpace(getenv("AI_BASE_URL", "")),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func normalizeStore(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case QuotaStoreRedis:
		return QuotaStoreRedis
	default:
		return QuotaStoreSQL
	}
}

func normalizeProvider(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case AIProviderOpenAI, AIProviderGemini:
		return value
	default:
		return AIProviderStatic
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
