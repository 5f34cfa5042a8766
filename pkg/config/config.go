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

	EnvDBDSN  = "GLINT_DB_DSN"
	EnvDBHost = "GLINT_DB_HOST"
	EnvDBUser = "GLINT_DB_USER"
	EnvDBName = "GLINT_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App        AppConfig
	DB         DBConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Security   SecurityConfig
	GoCardless GoCardlessConfig
	Eventing   EventingConfig
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
	Env          string `envconfig:"GLINT_APP_ENV" required:"true"`
	Port         string `envconfig:"GLINT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"GLINT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"GLINT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"GLINT_DB_DSN"`
	Driver string `envconfig:"GLINT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"GLINT_DB_HOST"`
	LegacyPort     int    `envconfig:"GLINT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"GLINT_DB_USER"`
	LegacyPassword string `envconfig:"GLINT_DB_PASSWORD"`
	LegacyName     string `envconfig:"GLINT_DB_NAME"`
	LegacySSLMode  string `envconfig:"GLINT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"GLINT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"GLINT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"GLINT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"GLINT_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	AutoMigrate bool `envconfig:"GLINT_AUTO_MIGRATE" default:"false"`
}

type RedisConfig struct {
	URL          string        `envconfig:"GLINT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"GLINT_REDIS_ADDR"`
	Password     string        `envconfig:"GLINT_REDIS_PASSWORD"`
	DB           int           `envconfig:"GLINT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"GLINT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"GLINT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"GLINT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"GLINT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"GLINT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"GLINT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"GLINT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"GLINT_JWT_EXPIRATION_MINUTES" default:"60"`
}

// SecurityConfig carries the server-side secret the token-encryption key is
// derived from. Rotating it invalidates every stored provider token.
type SecurityConfig struct {
	ServerSecret string `envconfig:"GLINT_SERVER_SECRET" required:"true"`
}

type GoCardlessConfig struct {
	ClientID       string `envconfig:"GLINT_GOCARDLESS_CLIENT_ID" required:"true"`
	ClientSecret   string `envconfig:"GLINT_GOCARDLESS_CLIENT_SECRET" required:"true"`
	Env            string `envconfig:"GLINT_GOCARDLESS_ENV" default:"sandbox"`
	WebhookSecret  string `envconfig:"GLINT_GOCARDLESS_WEBHOOK_SECRET" required:"true"`
	AllowedDomains string `envconfig:"GLINT_GOCARDLESS_REDIRECT_DOMAINS" default:"glintbooks.com"`

	MaxRetries   int           `envconfig:"GLINT_GOCARDLESS_MAX_RETRIES" default:"3"`
	InitialDelay time.Duration `envconfig:"GLINT_GOCARDLESS_INITIAL_DELAY" default:"1s"`
	MaxDelay     time.Duration `envconfig:"GLINT_GOCARDLESS_MAX_DELAY" default:"10s"`
	Timeout      time.Duration `envconfig:"GLINT_GOCARDLESS_TIMEOUT" default:"30s"`
}

// Environment returns the normalized GoCardless environment (sandbox/live).
func (g GoCardlessConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(g.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

// RedirectAllowList splits the configured comma-separated trusted domains.
func (g GoCardlessConfig) RedirectAllowList() []string {
	parts := strings.Split(g.AllowedDomains, ",")
	domains := make([]string, 0, len(parts))
	for _, part := range parts {
		if domain := strings.TrimSpace(strings.ToLower(part)); domain != "" {
			domains = append(domains, domain)
		}
	}
	return domains
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"GLINT_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
