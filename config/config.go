package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"Gin_postgres_redis_lending_engine/policy"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Server   ServerConfig
	Logger   LoggerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Session  SessionConfig
	Policy   PolicyConfig
}

type ServerConfig struct {
	AppEnv     string
	Addr       string
	WebOrigins []string
}

type LoggerConfig struct {
	Level             string
	Encoding          string
	DisableCaller     bool
	DisableStacktrace bool
}

type PostgresConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	RetryAttempts   int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type SessionConfig struct {
	CookieName string
	TTL        time.Duration
}

type PolicyConfig struct {
	CacheTTL time.Duration
	Defaults policy.Policy
}

func (c ServerConfig) IsDevelopment() bool { return c.AppEnv == "dev" || c.AppEnv == "development" }

// SecureCookies is true when every browser origin is served over https.
func (c ServerConfig) SecureCookies() bool {
	if len(c.WebOrigins) == 0 {
		return false
	}
	for _, o := range c.WebOrigins {
		if !strings.HasPrefix(o, "https://") {
			return false
		}
	}
	return true
}

// LoadEnv reads .env when present, then the process environment.
func LoadEnv() *Config {
	_ = godotenv.Load()

	defaults := policy.Default()
	return &Config{
		Server: ServerConfig{
			AppEnv:     getEnv("APP_ENV", "dev"),
			Addr:       getEnv("HTTP_ADDR", ":8080"),
			WebOrigins: getEnvSlice("WEB_ORIGINS", []string{"http://localhost:5173"}),
		},
		Logger: LoggerConfig{
			Level:             getEnv("LOG_LEVEL", "info"),
			Encoding:          getEnv("LOG_ENCODING", "json"),
			DisableCaller:     getEnvBool("LOG_DISABLE_CALLER", false),
			DisableStacktrace: getEnvBool("LOG_DISABLE_STACKTRACE", true),
		},
		Postgres: PostgresConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			DBName:          getEnv("DB_NAME", "lending"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME_SECONDS", 300)) * time.Second,
			RetryAttempts:   getEnvInt("DB_TX_RETRY_ATTEMPTS", 4),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvSlice("KAFKA_BROKERS", nil),
			Topic:   getEnv("KAFKA_TOPIC_LENDING", "lending.events"),
		},
		Session: SessionConfig{
			CookieName: getEnv("SESSION_COOKIE", "app_session"),
			TTL:        time.Duration(getEnvInt("SESSION_TTL_SECONDS", 86400)) * time.Second,
		},
		Policy: PolicyConfig{
			CacheTTL: time.Duration(getEnvInt("POLICY_CACHE_TTL_SECONDS", 60)) * time.Second,
			Defaults: policy.Policy{
				LendingDurationDays:  getEnvInt("POLICY_LENDING_DURATION_DAYS", defaults.LendingDurationDays),
				MaxRenewals:          getEnvInt("POLICY_MAX_RENEWALS", defaults.MaxRenewals),
				LatePenaltyPerDay:    getEnvDecimal("POLICY_LATE_PENALTY_PER_DAY", defaults.LatePenaltyPerDay),
				LostItemFee:          getEnvDecimal("POLICY_LOST_ITEM_FEE", defaults.LostItemFee),
				DamagedItemFee:       getEnvDecimal("POLICY_DAMAGED_ITEM_FEE", defaults.DamagedItemFee),
				MaxItemsPerUser:      getEnvInt("POLICY_MAX_ITEMS_PER_USER", defaults.MaxItemsPerUser),
				RequireApproval:      getEnvBool("POLICY_REQUIRE_APPROVAL", defaults.RequireApproval),
				AutoBlacklistEnabled: getEnvBool("POLICY_AUTO_BLACKLIST", defaults.AutoBlacklistEnabled),
			},
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := decimal.NewFromString(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, s := range strings.Split(value, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
