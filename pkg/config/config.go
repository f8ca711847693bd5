package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Ledger       LedgerConfig
	HTTP         HTTPConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Ledger.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FABZCLEAN_APP_ENV" required:"true"`
	Port         string `envconfig:"FABZCLEAN_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"FABZCLEAN_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FABZCLEAN_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind        string `envconfig:"FABZCLEAN_SERVICE_KIND" default:"api"`
	MetricsAddr string `envconfig:"FABZCLEAN_WORKER_METRICS_ADDR"`
}

type DBConfig struct {
	DSN    string `envconfig:"FABZCLEAN_DB_DSN"`
	Driver string `envconfig:"FABZCLEAN_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FABZCLEAN_DB_HOST"`
	LegacyPort     int    `envconfig:"FABZCLEAN_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FABZCLEAN_DB_USER"`
	LegacyPassword string `envconfig:"FABZCLEAN_DB_PASSWORD"`
	LegacyName     string `envconfig:"FABZCLEAN_DB_NAME"`
	LegacySSLMode  string `envconfig:"FABZCLEAN_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"FABZCLEAN_SQLITE_PATH" default:"fabzclean.db"`

	MaxOpenConns    int           `envconfig:"FABZCLEAN_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FABZCLEAN_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FABZCLEAN_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FABZCLEAN_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FABZCLEAN_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FABZCLEAN_REDIS_ADDR"`
	Password     string        `envconfig:"FABZCLEAN_REDIS_PASSWORD"`
	DB           int           `envconfig:"FABZCLEAN_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FABZCLEAN_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FABZCLEAN_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FABZCLEAN_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FABZCLEAN_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FABZCLEAN_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig describes how employee access tokens are verified. Tokens are
// minted by the back-office auth service; this service only reads them.
type JWTConfig struct {
	Secret            string `envconfig:"FABZCLEAN_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"FABZCLEAN_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"FABZCLEAN_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"FABZCLEAN_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"FABZCLEAN_AUTO_MIGRATE" default:"false"`
}

// LedgerConfig tunes the credit ledger. SettlementTolerance absorbs rounding
// on order settlement and must stay positive.
type LedgerConfig struct {
	HistoryDefaultLimit int    `envconfig:"FABZCLEAN_LEDGER_HISTORY_DEFAULT_LIMIT" default:"50"`
	HistoryMaxLimit     int    `envconfig:"FABZCLEAN_LEDGER_HISTORY_MAX_LIMIT" default:"200"`
	MaxRetries          int    `envconfig:"FABZCLEAN_LEDGER_MAX_RETRIES" default:"3"`
	SettlementTolerance string `envconfig:"FABZCLEAN_LEDGER_SETTLEMENT_TOLERANCE" default:"0.01"`
}

// Tolerance parses SettlementTolerance. Load has already validated it.
func (l LedgerConfig) Tolerance() decimal.Decimal {
	tol, err := decimal.NewFromString(l.SettlementTolerance)
	if err != nil {
		return decimal.New(1, -2)
	}
	return tol
}

func (l LedgerConfig) validate() error {
	tol, err := decimal.NewFromString(l.SettlementTolerance)
	if err != nil {
		return fmt.Errorf("%s must be a decimal: %w", EnvLedgerTolerance, err)
	}
	if !tol.IsPositive() {
		return fmt.Errorf("%s must be positive", EnvLedgerTolerance)
	}
	if l.HistoryDefaultLimit <= 0 || l.HistoryMaxLimit < l.HistoryDefaultLimit {
		return fmt.Errorf("ledger history limits are inconsistent (default=%d max=%d)", l.HistoryDefaultLimit, l.HistoryMaxLimit)
	}
	return nil
}

type HTTPConfig struct {
	AllowedOrigins  []string      `envconfig:"FABZCLEAN_HTTP_ALLOWED_ORIGINS" default:"*"`
	RateLimit       int           `envconfig:"FABZCLEAN_HTTP_RATE_LIMIT" default:"120"`
	RateLimitWindow time.Duration `envconfig:"FABZCLEAN_HTTP_RATE_LIMIT_WINDOW" default:"1m"`
	IdempotencyTTL  time.Duration `envconfig:"FABZCLEAN_HTTP_IDEMPOTENCY_TTL" default:"24h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"FABZCLEAN_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"FABZCLEAN_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"FABZCLEAN_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	AuditTopic string `envconfig:"FABZCLEAN_PUBSUB_AUDIT_TOPIC" default:"fabzclean-audit-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"FABZCLEAN_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"FABZCLEAN_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"FABZCLEAN_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"FABZCLEAN_OUTBOX_RETENTION_DAYS" default:"30"`
}

type CronConfig struct {
	Interval       time.Duration `envconfig:"FABZCLEAN_CRON_INTERVAL" default:"1h"`
	LockTTL        time.Duration `envconfig:"FABZCLEAN_CRON_LOCK_TTL" default:"30m"`
	IntegrityBatch int           `envconfig:"FABZCLEAN_CRON_INTEGRITY_BATCH" default:"500"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" || useSQLite {
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
