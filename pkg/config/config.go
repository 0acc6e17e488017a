package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Checkout     CheckoutConfig
	Gateway      GatewayConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"OAKLINE_APP_ENV" required:"true"`
	Port         string `envconfig:"OAKLINE_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"OAKLINE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"OAKLINE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"OAKLINE_DB_DSN"`
	Driver string `envconfig:"OAKLINE_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"OAKLINE_DB_HOST"`
	Port     int    `envconfig:"OAKLINE_DB_PORT" default:"5432"`
	User     string `envconfig:"OAKLINE_DB_USER"`
	Password string `envconfig:"OAKLINE_DB_PASSWORD"`
	Name     string `envconfig:"OAKLINE_DB_NAME"`
	SSLMode  string `envconfig:"OAKLINE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"OAKLINE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"OAKLINE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"OAKLINE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"OAKLINE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (d *DBConfig) ensureDSN() error {
	if strings.TrimSpace(d.DSN) != "" {
		return nil
	}
	if d.Host == "" || d.User == "" || d.Name == "" {
		return fmt.Errorf("db config: either OAKLINE_DB_DSN or host/user/name parts are required")
	}
	d.DSN = fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User),
		url.QueryEscape(d.Password),
		d.Host,
		d.Port,
		d.Name,
		d.SSLMode,
	)
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"OAKLINE_REDIS_URL"`
	Address      string        `envconfig:"OAKLINE_REDIS_ADDR"`
	Password     string        `envconfig:"OAKLINE_REDIS_PASSWORD"`
	DB           int           `envconfig:"OAKLINE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"OAKLINE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"OAKLINE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"OAKLINE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"OAKLINE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"OAKLINE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret string `envconfig:"OAKLINE_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"OAKLINE_JWT_ISSUER" default:"oakline"`
}

// CheckoutConfig tunes the reservation and settings-cache behavior.
type CheckoutConfig struct {
	// LockWaitTimeout bounds how long a reservation waits on contended
	// variant rows before the transaction aborts.
	LockWaitTimeout  time.Duration `envconfig:"OAKLINE_CHECKOUT_LOCK_WAIT_TIMEOUT" default:"5s"`
	SettingsCacheTTL time.Duration `envconfig:"OAKLINE_CHECKOUT_SETTINGS_CACHE_TTL" default:"30s"`
	WebhookGuardTTL  time.Duration `envconfig:"OAKLINE_CHECKOUT_WEBHOOK_GUARD_TTL" default:"168h"`
}

type GatewayConfig struct {
	AccessToken   string `envconfig:"OAKLINE_SQUARE_ACCESS_TOKEN"`
	Env           string `envconfig:"OAKLINE_SQUARE_ENV" default:"sandbox"`
	LocationID    string `envconfig:"OAKLINE_SQUARE_LOCATION_ID"`
	WebhookSecret string `envconfig:"OAKLINE_SQUARE_WEBHOOK_SECRET"`
	Currency      string `envconfig:"OAKLINE_SQUARE_CURRENCY" default:"USD"`
}

type PubSubConfig struct {
	ProjectID   string `envconfig:"OAKLINE_PUBSUB_PROJECT_ID"`
	DomainTopic string `envconfig:"OAKLINE_PUBSUB_DOMAIN_TOPIC" default:"marketplace-domain-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"OAKLINE_OUTBOX_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"OAKLINE_OUTBOX_POLL_INTERVAL_MS" default:"500"`
	MaxAttempts    int `envconfig:"OAKLINE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"OAKLINE_FEATURE_AUTO_MIGRATE" default:"false"`
}
