package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreSQL       = "sql"
	StoreFirestore = "firestore"

	IdentityFirebase = "firebase"
	IdentityJWT      = "jwt"

	defaultPortalBaseURL = "https://portal.example.com"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	StoreBackend string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBAutoMigrate     bool
	DBLogLevel        string
	DBSlowQuery       time.Duration

	Firebase FirebaseConfig

	IdentityProvider string
	AuthJWTSecret    string

	SMTP SMTPConfig

	PortalBaseURL string
	CronSecret    string

	Redis RedisConfig

	Scheduler SchedulerConfig

	Seed SeedConfig
}

type FirebaseConfig struct {
	ProjectID string
	// ServiceAccountJSON is the raw service account document. Empty means
	// application default credentials.
	ServiceAccountJSON string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Secure   bool
	Username string
	Password string
	FromName string
}

func (c SMTPConfig) Enabled() bool {
	return strings.TrimSpace(c.Host) != ""
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// Per-tenant token bucket on the billing trigger endpoints.
	TriggerRate  float64
	TriggerBurst int
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// SeedConfig bootstraps a first tenant on an empty store. Seeding is off
// unless OwnerUID is set.
type SeedConfig struct {
	TenantName string
	OwnerUID   string
	OwnerEmail string
}

func (c SeedConfig) Enabled() bool {
	return strings.TrimSpace(c.OwnerUID) != ""
}

type SchedulerConfig struct {
	Enabled  bool
	Interval time.Duration
	// Jobs limits which jobs run; empty runs all of them.
	Jobs []string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	smtpPort := getenvInt("SMTP_PORT", 587)

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "portal"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		StoreBackend:      strings.ToLower(getenv("STORE_BACKEND", StoreSQL)),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "portal"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "portal.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBAutoMigrate:     getenvBool("DATABASE_AUTO_MIGRATE", false),
		DBLogLevel:        getenv("DATABASE_LOG_LEVEL", "warn"),
		DBSlowQuery:       getenvDuration("DATABASE_SLOW_QUERY", 200*time.Millisecond),
		Firebase: FirebaseConfig{
			ProjectID:          strings.TrimSpace(getenv("FIREBASE_PROJECT_ID", "")),
			ServiceAccountJSON: strings.TrimSpace(os.Getenv("FIREBASE_ADMIN_SERVICE_ACCOUNT")),
		},
		IdentityProvider: strings.ToLower(getenv("IDENTITY_PROVIDER", IdentityFirebase)),
		AuthJWTSecret:    strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		SMTP: SMTPConfig{
			Host:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			Port:     smtpPort,
			Secure:   smtpSecure(os.Getenv("SMTP_SECURE"), smtpPort),
			Username: strings.TrimSpace(getenv("SMTP_USER", "")),
			Password: os.Getenv("SMTP_PASS"),
			FromName: getenv("SMTP_FROM_NAME", "Billing Portal"),
		},
		PortalBaseURL: normalizeBaseURL(getenv("PORTAL_BASE_URL", defaultPortalBaseURL)),
		CronSecret:    strings.TrimSpace(os.Getenv("CRON_SECRET")),
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getenvInt("REDIS_DB", 0),

			TriggerRate:  getenvFloat("RATE_LIMIT_TRIGGER_RATE", 0.1),
			TriggerBurst: getenvInt("RATE_LIMIT_TRIGGER_BURST", 3),
		},
		Scheduler: SchedulerConfig{
			Enabled:  getenvBool("SCHEDULER_ENABLED", true),
			Interval: getenvDuration("SCHEDULER_INTERVAL", time.Hour),
			Jobs:     getenvList("SCHEDULER_JOBS"),
		},
		Seed: SeedConfig{
			TenantName: getenv("SEED_TENANT_NAME", "Main"),
			OwnerUID:   strings.TrimSpace(os.Getenv("SEED_OWNER_UID")),
			OwnerEmail: strings.TrimSpace(os.Getenv("SEED_OWNER_EMAIL")),
		},
	}

	return cfg
}

// smtpSecure mirrors the usual mailer convention: an explicit true/false
// wins, otherwise implicit TLS is used only on port 465.
func smtpSecure(raw string, port int) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true":
		return true
	case "false":
		return false
	default:
		return port == 465
	}
}

func normalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = defaultPortalBaseURL
	}
	return strings.TrimSuffix(raw, "/")
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
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func getenvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
