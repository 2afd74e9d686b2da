package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	strutil "racepass/pkg/platform/strings"
)

// Server captures process level configuration.
type Server struct {
	Addr        string
	Environment string
	LogLevel    string
	AdminToken  string

	// TrustedProxies lists CIDRs whose X-Forwarded-For header is honoured.
	TrustedProxies []string

	Issuer     Issuer
	Credential Credential
	RateLimit  RateLimit
	Store      Store
	Redis      RedisConfig
	Database   DatabaseConfig
	Kafka      KafkaConfig
	Anchor     Anchor
	Scanner    Scanner
}

// Issuer holds the ECDSA key material. An empty key selects the demo key
// outside production.
type Issuer struct {
	PrivateKey string
}

// Credential configures the credential builder.
type Credential struct {
	MACSecret      string
	IssuerID       string
	TTL            time.Duration
	DefaultCountry string
}

// RateLimit bounds issuance attempts per subject.
type RateLimit struct {
	Window time.Duration
	Max    int
}

// Store selects the state store backend: memory, redis or postgres.
type Store struct {
	Backend string
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type KafkaConfig struct {
	Brokers  []string
	ClientID string
}

// Anchor lists chain writers in call order.
type Anchor struct {
	Adapters []string
	Timeout  time.Duration
	Topic    string
}

// Scanner configures venue scanner bearer tokens.
type Scanner struct {
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
}

const (
	EnvProduction = "production"

	DefaultMACSecret  = "default-secret"
	DefaultAdminToken = "demo-admin-token"
	DefaultJWTSecret  = "dev-scanner-secret-change-in-production"
	DefaultScannerTTL = 12 * time.Hour
)

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:        getEnv("RACEPASS_ADDR", ":8080"),
		Environment: getEnv("RACEPASS_ENV", "dev"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		AdminToken:  getEnv("ADMIN_TOKEN", DefaultAdminToken),

		TrustedProxies: strutil.SplitList(os.Getenv("TRUSTED_PROXIES")),
		Issuer: Issuer{
			PrivateKey: os.Getenv("ISSUER_PRIVATE_KEY"),
		},
		Credential: Credential{
			MACSecret:      getEnv("CREDENTIAL_MAC_SECRET", DefaultMACSecret),
			IssuerID:       os.Getenv("CREDENTIAL_ISSUER_ID"),
			TTL:            time.Duration(getInt("CREDENTIAL_TTL_DAYS", 365)) * 24 * time.Hour,
			DefaultCountry: strings.ToUpper(getEnv("COUNTRY_CODE", "IN")),
		},
		RateLimit: RateLimit{
			Window: time.Duration(getInt("RATE_LIMIT_WINDOW_MS", 60000)) * time.Millisecond,
			Max:    getInt("RATE_LIMIT_MAX", 5),
		},
		Store: Store{
			Backend: getEnv("STORE_BACKEND", "memory"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:  strutil.SplitList(os.Getenv("KAFKA_BROKERS")),
			ClientID: getEnv("KAFKA_CLIENT_ID", "racepass"),
		},
		Anchor: Anchor{
			Adapters: strutil.DedupeAndTrimLower(strings.Split(getEnv("ANCHOR_ADAPTERS", "memory"), ",")),
			Timeout:  getDuration("ANCHOR_TIMEOUT", 10*time.Second),
			Topic:    getEnv("ANCHOR_TOPIC", "racepass.anchors"),
		},
		Scanner: Scanner{
			JWTSecret: getEnv("SCANNER_JWT_SECRET", DefaultJWTSecret),
			Issuer:    getEnv("SCANNER_JWT_ISSUER", "racepass"),
			TokenTTL:  getDuration("SCANNER_TOKEN_TTL", DefaultScannerTTL),
		},
	}
}

// IsProduction reports whether demo fallbacks are forbidden.
func (s Server) IsProduction() bool {
	return s.Environment == EnvProduction
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
