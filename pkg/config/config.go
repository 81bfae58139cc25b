package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "campuseats"

	AppEnvDev  = "dev"
	AppEnvProd = "production"

	EnvAppEnv   = "CAMPUSEATS_APP_ENV"
	EnvPort     = "CAMPUSEATS_APP_PORT"
	EnvDBDSN    = "CAMPUSEATS_DB_DSN"
	EnvDBHost   = "CAMPUSEATS_DB_HOST"
	EnvDBUser   = "CAMPUSEATS_DB_USER"
	EnvDBName   = "CAMPUSEATS_DB_NAME"
	EnvRedisURL = "CAMPUSEATS_REDIS_URL"

	EnvJWTSecret  = "CAMPUSEATS_JWT_SECRET"
	EnvJWTIssuer  = "CAMPUSEATS_JWT_ISSUER"
	EnvJWTExpMins = "CAMPUSEATS_JWT_EXPIRATION_MINUTES"

	EnvPrimaryGatewayEndpoint   = "CAMPUSEATS_GATEWAY_PRIMARY_ENDPOINT"
	EnvPrimaryGatewayCredential = "CAMPUSEATS_GATEWAY_PRIMARY_CREDENTIAL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Gateways     GatewaysConfig
	Settlement   SettlementConfig
	Orders       OrdersConfig
	Outbox       OutboxConfig
	Channels     ChannelsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Gateways.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CAMPUSEATS_APP_ENV" required:"true"`
	Port         string `envconfig:"CAMPUSEATS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CAMPUSEATS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CAMPUSEATS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CAMPUSEATS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CAMPUSEATS_DB_DSN"`
	Driver string `envconfig:"CAMPUSEATS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CAMPUSEATS_DB_HOST"`
	LegacyPort     int    `envconfig:"CAMPUSEATS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CAMPUSEATS_DB_USER"`
	LegacyPassword string `envconfig:"CAMPUSEATS_DB_PASSWORD"`
	LegacyName     string `envconfig:"CAMPUSEATS_DB_NAME"`
	LegacySSLMode  string `envconfig:"CAMPUSEATS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CAMPUSEATS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CAMPUSEATS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CAMPUSEATS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CAMPUSEATS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CAMPUSEATS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CAMPUSEATS_REDIS_ADDR"`
	Password     string        `envconfig:"CAMPUSEATS_REDIS_PASSWORD"`
	DB           int           `envconfig:"CAMPUSEATS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CAMPUSEATS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CAMPUSEATS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CAMPUSEATS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CAMPUSEATS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CAMPUSEATS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"CAMPUSEATS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"CAMPUSEATS_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"CAMPUSEATS_JWT_EXPIRATION_MINUTES" required:"true"`
}

// TokenTTL returns the access token TTL configured in minutes.
func (j JWTConfig) TokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CAMPUSEATS_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CAMPUSEATS_AUTO_MIGRATE" default:"false"`
}

// GatewaySlot describes one named payment gateway in failover order.
type GatewaySlot struct {
	Name       string
	Endpoint   string
	Credential string
	Timeout    time.Duration
}

// GatewaysConfig holds the ordered gateway slots. The primary slot is
// mandatory; the backup is attempted only after the primary is exhausted.
type GatewaysConfig struct {
	PrimaryName       string        `envconfig:"CAMPUSEATS_GATEWAY_PRIMARY_NAME" default:"primary"`
	PrimaryEndpoint   string        `envconfig:"CAMPUSEATS_GATEWAY_PRIMARY_ENDPOINT"`
	PrimaryCredential string        `envconfig:"CAMPUSEATS_GATEWAY_PRIMARY_CREDENTIAL"`
	PrimaryTimeout    time.Duration `envconfig:"CAMPUSEATS_GATEWAY_PRIMARY_TIMEOUT" default:"10s"`

	BackupName       string        `envconfig:"CAMPUSEATS_GATEWAY_BACKUP_NAME" default:"backup"`
	BackupEndpoint   string        `envconfig:"CAMPUSEATS_GATEWAY_BACKUP_ENDPOINT"`
	BackupCredential string        `envconfig:"CAMPUSEATS_GATEWAY_BACKUP_CREDENTIAL"`
	BackupTimeout    time.Duration `envconfig:"CAMPUSEATS_GATEWAY_BACKUP_TIMEOUT" default:"10s"`
}

func (g *GatewaysConfig) validate() error {
	if strings.TrimSpace(g.PrimaryEndpoint) == "" {
		return fmt.Errorf("%s is required", EnvPrimaryGatewayEndpoint)
	}
	if strings.TrimSpace(g.PrimaryCredential) == "" {
		return fmt.Errorf("%s is required", EnvPrimaryGatewayCredential)
	}
	return nil
}

// Ordered returns the configured gateway slots in failover order.
func (g GatewaysConfig) Ordered() []GatewaySlot {
	slots := []GatewaySlot{{
		Name:       g.PrimaryName,
		Endpoint:   g.PrimaryEndpoint,
		Credential: g.PrimaryCredential,
		Timeout:    g.PrimaryTimeout,
	}}
	if strings.TrimSpace(g.BackupEndpoint) != "" {
		slots = append(slots, GatewaySlot{
			Name:       g.BackupName,
			Endpoint:   g.BackupEndpoint,
			Credential: g.BackupCredential,
			Timeout:    g.BackupTimeout,
		})
	}
	return slots
}

// SettlementConfig tunes the payment orchestration loop.
type SettlementConfig struct {
	MaxRetriesPerGateway int           `envconfig:"CAMPUSEATS_SETTLEMENT_MAX_RETRIES" default:"3"`
	BackoffBaseDelay     time.Duration `envconfig:"CAMPUSEATS_SETTLEMENT_BACKOFF_BASE" default:"500ms"`
	BackoffMultiplier    float64       `envconfig:"CAMPUSEATS_SETTLEMENT_BACKOFF_MULTIPLIER" default:"2"`
	// AutoPrepare advances an order straight to preparing on payment success
	// instead of stopping at paid and waiting for the vendor.
	AutoPrepare bool `envconfig:"CAMPUSEATS_SETTLEMENT_AUTO_PREPARE" default:"false"`
}

type OrdersConfig struct {
	MinPickupLead time.Duration `envconfig:"CAMPUSEATS_ORDERS_MIN_PICKUP_LEAD" default:"15m"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"CAMPUSEATS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"CAMPUSEATS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"CAMPUSEATS_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// ChannelsConfig names the redis pub/sub channels used for delivery.
type ChannelsConfig struct {
	EventsChannel string        `envconfig:"CAMPUSEATS_EVENTS_CHANNEL" default:"settlement.events"`
	DedupTTL      time.Duration `envconfig:"CAMPUSEATS_EVENTS_DEDUP_TTL" default:"720h"`
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
