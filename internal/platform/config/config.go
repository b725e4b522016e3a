package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Memo and session backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config is the full runtime configuration of the dashboard service.
type Config struct {
	Server   Server
	Log      Log
	Session  Session
	Upstream Upstream
	Memo     Memo
	Redis    RedisConfig
	Postgres PostgresConfig
	Kafka    KafkaConfig
	Audit    Audit
	Sources  Sources
	Contact  Contact
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type Log struct {
	Level  string
	Format string // json or text
}

// Session configures the disclaimer/filter session cookie.
type Session struct {
	SigningKey string
	TTL        time.Duration
	Backend    string
	Secure     bool
}

// Upstream configures calls to the public data APIs.
type Upstream struct {
	Timeout time.Duration
	RPS     float64
	Burst   int
}

// Memo configures the fetch memoization cache.
type Memo struct {
	Backend string
	TTL     time.Duration
	Size    int
}

// RedisConfig holds connection settings for the optional Redis backend.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type PostgresConfig struct {
	URL      string
	MaxConns int32
}

type KafkaConfig struct {
	Brokers []string
}

// Audit configures the audit event stream.
type Audit struct {
	Topic   string
	HashKey string
}

// Sources are the base URLs of the public data APIs.
type Sources struct {
	WHO        string
	WorldBank  string
	GlobalFund string
}

type Contact struct {
	RelayURL string
}

// Defaults used when the matching variable is unset.
const (
	DefaultAddr            = ":8080"
	DefaultUpstreamTimeout = 20 * time.Second
	DefaultMemoTTL         = 6 * time.Hour
	DefaultMemoSize        = 128
	DefaultSessionTTL      = 24 * time.Hour
	DefaultWHOBaseURL      = "https://ghoapi.azureedge.net/api"
	DefaultWorldBankURL    = "https://api.worldbank.org"
	DefaultGlobalFundURL   = "https://data-service.theglobalfund.org"
	DefaultContactRelayURL = "https://formsubmit.co/your-inbox@example.org"
	devSigningKey          = "dev-secret-key-change-in-production"
)

// FromEnv builds the configuration from environment variables so main stays lean.
// A .env file in the working directory is loaded first when present; real
// environment variables win over it.
func FromEnv() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var errs []error
	dur := func(key string, def time.Duration) time.Duration {
		v, err := envDuration(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	integer := func(key string, def int) int {
		v, err := envInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	rps, err := envFloat("UPSTREAM_RPS", 5)
	if err != nil {
		errs = append(errs, err)
	}

	cfg := Config{
		Server: Server{
			Addr:            envString("HEALTHDASH_ADDR", DefaultAddr),
			ShutdownTimeout: dur("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Log: Log{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "json"),
		},
		Session: Session{
			SigningKey: envString("SESSION_SIGNING_KEY", devSigningKey),
			TTL:        dur("SESSION_TTL", DefaultSessionTTL),
			Backend:    strings.ToLower(envString("SESSION_BACKEND", BackendMemory)),
			Secure:     os.Getenv("SESSION_COOKIE_SECURE") == "true",
		},
		Upstream: Upstream{
			Timeout: dur("UPSTREAM_TIMEOUT", DefaultUpstreamTimeout),
			RPS:     rps,
			Burst:   integer("UPSTREAM_BURST", 10),
		},
		Memo: Memo{
			Backend: strings.ToLower(envString("MEMO_BACKEND", BackendMemory)),
			TTL:     dur("MEMO_TTL", DefaultMemoTTL),
			Size:    integer("MEMO_SIZE", DefaultMemoSize),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  dur("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  dur("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: dur("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			URL:      os.Getenv("DATABASE_URL"),
			MaxConns: int32(integer("DATABASE_MAX_CONNS", 10)),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
		},
		Audit: Audit{
			Topic:   envString("AUDIT_TOPIC", "healthdash.audit"),
			HashKey: envString("AUDIT_HASH_KEY", devSigningKey),
		},
		Sources: Sources{
			WHO:        strings.TrimRight(envString("WHO_BASE_URL", DefaultWHOBaseURL), "/"),
			WorldBank:  strings.TrimRight(envString("WORLDBANK_BASE_URL", DefaultWorldBankURL), "/"),
			GlobalFund: strings.TrimRight(envString("GLOBALFUND_BASE_URL", DefaultGlobalFundURL), "/"),
		},
		Contact: Contact{
			RelayURL: envString("CONTACT_RELAY_URL", DefaultContactRelayURL),
		},
	}

	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.Memo.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.URL == "" {
			return errors.New("MEMO_BACKEND=redis requires REDIS_URL")
		}
	case BackendPostgres:
		if c.Postgres.URL == "" {
			return errors.New("MEMO_BACKEND=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown MEMO_BACKEND %q", c.Memo.Backend)
	}
	switch c.Session.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.URL == "" {
			return errors.New("SESSION_BACKEND=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown SESSION_BACKEND %q", c.Session.Backend)
	}
	if c.Upstream.Timeout <= 0 {
		return errors.New("UPSTREAM_TIMEOUT must be positive")
	}
	if c.Memo.Size <= 0 {
		return errors.New("MEMO_SIZE must be positive")
	}
	return nil
}

// UsesDevSigningKey reports whether the session key is the development default.
func (c Config) UsesDevSigningKey() bool {
	return c.Session.SigningKey == devSigningKey
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
