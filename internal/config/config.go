package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Env   string `envconfig:"APP_ENV" default:"dev"`
	Port  int    `envconfig:"PORT" default:"8080"`
	DBURL string `envconfig:"DATABASE_URL"`
	// memory | postgres. Empty picks postgres when a DB URL is configured.
	Store string `envconfig:"STORE"`

	// used to build DBURL when DATABASE_URL is unset
	DBHost     string `envconfig:"DB_HOST" default:"127.0.0.1"`
	DBPort     string `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"accounthub"`
	DBPassword string `envconfig:"DB_PASSWORD" default:"accounthub"`
	DBName     string `envconfig:"DB_NAME" default:"accounthub"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`

	DBMaxConns        int32         `envconfig:"DB_MAX_CONNS" default:"10"`
	DBMinConns        int32         `envconfig:"DB_MIN_CONNS" default:"1"`
	DBMaxConnIdleTime time.Duration `envconfig:"DB_MAX_CONN_IDLE_TIME" default:"5m"`

	// empty disables redis and the in-process cache is used instead
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	CacheTTL time.Duration `envconfig:"CACHE_TTL" default:"30s"`

	// 0 means bcrypt.DefaultCost; existing hashes are upgraded on login
	BcryptCost int `envconfig:"BCRYPT_COST" default:"0"`

	JWTSecret           string `envconfig:"JWT_SECRET"`
	JWTAccessTTLMinutes int    `envconfig:"JWT_ACCESS_TTL_MINUTES" default:"30"`

	CORSAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	LoginRateLimit     int           `envconfig:"LOGIN_RATE_LIMIT" default:"20"`
	LoginRateWindow    time.Duration `envconfig:"LOGIN_RATE_WINDOW" default:"1m"`
	MaxBodyBytes       int64         `envconfig:"MAX_BODY_BYTES" default:"1048576"`

	AdminUsername string `envconfig:"ADMIN_USERNAME"`
	AdminEmail    string `envconfig:"ADMIN_EMAIL"`
	AdminPassword string `envconfig:"ADMIN_PASSWORD"`

	OTelEnabled  bool   `envconfig:"OTEL_ENABLED" default:"false"`
	OTelEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4317"`
	// fraction of root traces kept; child spans follow their parent
	OTelSampleRatio float64 `envconfig:"OTEL_SAMPLE_RATIO" default:"1"`

	WorkerPollInterval  time.Duration `envconfig:"WORKER_POLL_INTERVAL" default:"500ms"`
	WorkerConcurrency   int           `envconfig:"WORKER_CONCURRENCY" default:"2"`
	WorkerShutdownGrace time.Duration `envconfig:"WORKER_SHUTDOWN_GRACE" default:"10s"`
	WorkerLockTTL       time.Duration `envconfig:"WORKER_LOCK_TTL" default:"60s"`
	WorkerHealthPort    int           `envconfig:"WORKER_HEALTH_PORT" default:"8081"`
	WorkerJobTimeout    time.Duration `envconfig:"WORKER_JOB_TIMEOUT" default:"30s"`

	// simulate a slow or failing notification provider
	NotifierDelay time.Duration `envconfig:"NOTIFIER_DELAY" default:"0s"`
	NotifierFail  bool          `envconfig:"NOTIFIER_FAIL" default:"false"`
}

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

var ErrMissingJWTSecret = errors.New("JWT_SECRET is required outside dev/test")

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}

	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) normalize() error {
	if c.Store == "" {
		if c.DBURL != "" || !c.IsLocal() {
			c.Store = StorePostgres
		} else {
			c.Store = StoreMemory
		}
	}

	if c.Store != StoreMemory && c.Store != StorePostgres {
		return fmt.Errorf("STORE must be %q or %q, got %q", StoreMemory, StorePostgres, c.Store)
	}

	if c.Store == StorePostgres && c.DBURL == "" {
		c.DBURL = c.buildDBURL()
	}

	if c.JWTSecret == "" {
		if !c.IsLocal() {
			return ErrMissingJWTSecret
		}
		c.JWTSecret = "dev-insecure-secret"
	}

	if c.JWTAccessTTLMinutes <= 0 {
		c.JWTAccessTTLMinutes = 30
	}

	origins := c.CORSAllowedOrigins[:0]
	for _, o := range c.CORSAllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.CORSAllowedOrigins = origins

	return nil
}

// IsLocal reports whether insecure defaults are acceptable.
func (c Config) IsLocal() bool {
	return c.Env == "dev" || c.Env == "test"
}

func (c Config) AccessTTL() time.Duration {
	return time.Duration(c.JWTAccessTTLMinutes) * time.Minute
}

func (c Config) buildDBURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     c.DBHost + ":" + c.DBPort,
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.DBSSLMode),
	}

	return u.String()
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}
