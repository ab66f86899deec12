package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewBillingConfigHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	NodeID      int64

	LogLevel  string
	LogFormat string

	OTelEnabled       bool
	OTLPEndpoint      string
	OTLPProtocol      string
	OTelSamplingRatio float64

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
	DBRunMigrations   bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AuthJWTSecret string

	Treasury TreasuryConfig
	Invoice  InvoiceConfig
	Catalog  CatalogConfig
	Schedule ScheduleConfig
}

type TreasuryConfig struct {
	BaseURL  string
	Token    string
	Timeout  time.Duration
	RetryMax int
}

type InvoiceConfig struct {
	Bucket     string
	Region     string
	Endpoint   string
	PresignTTL time.Duration
}

type CatalogConfig struct {
	TTL time.Duration
}

type ScheduleConfig struct {
	Enabled        bool
	RenewalSpec    string
	CatalogSpec    string
	RenewalAccount string
	// RenewalBatch is the page size of the renewal sweep.
	RenewalBatch   int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:           getenv("APP_SERVICE", "allotment"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		NodeID:            int64(getenvInt("SNOWFLAKE_NODE_ID", 1)),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		LogLevel:          strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogFormat:         strings.ToLower(getenv("LOG_FORMAT", "json")),
		OTelEnabled:       getenvBool("OTEL_ENABLED", false),
		OTLPEndpoint:      getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTLPProtocol:      strings.ToLower(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
		OTelSamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "allotment"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBRunMigrations:   getenvBool("DATABASE_RUN_MIGRATIONS", true),
		RedisAddr:         getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getenv("REDIS_PASSWORD", ""),
		RedisDB:           getenvInt("REDIS_DB", 0),
		AuthJWTSecret:     strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		Treasury: TreasuryConfig{
			BaseURL:  strings.TrimRight(getenv("TREASURY_BASE_URL", "http://localhost:3000/treasury"), "/"),
			Token:    strings.TrimSpace(getenv("TREASURY_TOKEN", "")),
			Timeout:  getenvDuration("TREASURY_TIMEOUT", 30*time.Second),
			RetryMax: getenvInt("TREASURY_RETRY_MAX", 3),
		},
		Invoice: InvoiceConfig{
			Bucket:     strings.TrimSpace(getenv("INVOICE_BUCKET", "")),
			Region:     getenv("INVOICE_REGION", "us-east-1"),
			Endpoint:   strings.TrimSpace(getenv("INVOICE_ENDPOINT", "")),
			PresignTTL: getenvDuration("INVOICE_PRESIGN_TTL", 7*24*time.Hour),
		},
		Catalog: CatalogConfig{
			TTL: getenvDuration("CATALOG_TTL", 5*time.Minute),
		},
		Schedule: ScheduleConfig{
			Enabled:        getenvBool("SCHEDULER_ENABLED", true),
			RenewalSpec:    getenv("SCHEDULER_RENEWAL_SPEC", "0 5 1 * *"),
			CatalogSpec:    getenv("SCHEDULER_CATALOG_SPEC", "@every 5m"),
			RenewalAccount: strings.TrimSpace(getenv("SCHEDULER_RENEWAL_ACCOUNT", "")),
			RenewalBatch:   getenvInt("SCHEDULER_RENEWAL_BATCH", 500),
		},
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
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

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
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
	if err != nil {
		return def
	}
	return parsed
}
