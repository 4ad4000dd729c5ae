package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Finance      FinanceConfig
	Cron         CronConfig
	Outbox       OutboxConfig
	Stripe       StripeConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	err := multierr.Combine(
		cfg.DB.ensureDSN(),
		cfg.Finance.validate(),
		cfg.Outbox.validate(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"FINANCE_APP_ENV" required:"true"`
	Port         string   `envconfig:"FINANCE_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"FINANCE_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"FINANCE_LOG_WARN_STACK" default:"false"`
	LogFormat    string   `envconfig:"FINANCE_LOG_FORMAT" default:"json"`
	CORSOrigins  []string `envconfig:"FINANCE_CORS_ORIGINS" default:"http://localhost:3000"`

	// MetricsAddr is where the background workers expose /metrics. Empty disables it.
	MetricsAddr string `envconfig:"FINANCE_METRICS_ADDR" default:":9102"`
}

// ConsoleLogs reports whether logs should use the human readable writer.
func (a AppConfig) ConsoleLogs() bool {
	return strings.EqualFold(strings.TrimSpace(a.LogFormat), "console")
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"FINANCE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"FINANCE_DB_DSN"`
	Driver string `envconfig:"FINANCE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FINANCE_DB_HOST"`
	LegacyPort     int    `envconfig:"FINANCE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FINANCE_DB_USER"`
	LegacyPassword string `envconfig:"FINANCE_DB_PASSWORD"`
	LegacyName     string `envconfig:"FINANCE_DB_NAME"`
	LegacySSLMode  string `envconfig:"FINANCE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FINANCE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FINANCE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FINANCE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FINANCE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// Statements slower than this are logged. Zero disables the check.
	SlowQueryThreshold time.Duration `envconfig:"FINANCE_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FINANCE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FINANCE_REDIS_ADDR"`
	Password     string        `envconfig:"FINANCE_REDIS_PASSWORD"`
	DB           int           `envconfig:"FINANCE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FINANCE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FINANCE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FINANCE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FINANCE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FINANCE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite        bool `envconfig:"FINANCE_USE_SQLITE" default:"false"`
	AutoMigrate      bool `envconfig:"FINANCE_AUTO_MIGRATE" default:"false"`
	DistributedLocks bool `envconfig:"FINANCE_DISTRIBUTED_LOCKS" default:"true"`
}

// FinanceConfig holds the money rules enforced by the back office.
type FinanceConfig struct {
	MinPayoutCents      int64         `envconfig:"FINANCE_MIN_PAYOUT_CENTS" default:"1000"`
	MatchToleranceCents int64         `envconfig:"FINANCE_MATCH_TOLERANCE_CENTS" default:"1"`
	BulkConcurrency     int           `envconfig:"FINANCE_BULK_CONCURRENCY" default:"8"`
	VendorLockTTL       time.Duration `envconfig:"FINANCE_VENDOR_LOCK_TTL" default:"30s"`
	VendorLockWait      time.Duration `envconfig:"FINANCE_VENDOR_LOCK_WAIT" default:"5s"`
	SummaryCacheTTL     time.Duration `envconfig:"FINANCE_SUMMARY_CACHE_TTL" default:"10m"`
	Currency            string        `envconfig:"FINANCE_CURRENCY" default:"usd"`
}

func (f FinanceConfig) validate() error {
	return multierr.Combine(
		positive(EnvMinPayoutCents, f.MinPayoutCents),
		positive(EnvMatchToleranceCents, f.MatchToleranceCents),
		positive(EnvBulkConcurrency, int64(f.BulkConcurrency)),
	)
}

type CronConfig struct {
	Interval time.Duration `envconfig:"FINANCE_CRON_INTERVAL" default:"15m"`
	LockTTL  time.Duration `envconfig:"FINANCE_CRON_LOCK_TTL" default:"14m"`
}

type OutboxConfig struct {
	BatchSize      int    `envconfig:"FINANCE_OUTBOX_BATCH_SIZE" default:"50"`
	PollIntervalMS int    `envconfig:"FINANCE_OUTBOX_POLL_MS" default:"500"`
	MaxAttempts    int    `envconfig:"FINANCE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	ChannelPrefix  string `envconfig:"FINANCE_OUTBOX_CHANNEL_PREFIX" default:"finance.events"`

	PublishedRetention  time.Duration `envconfig:"FINANCE_OUTBOX_PUBLISHED_RETENTION" default:"720h"`
	DeadLetterRetention time.Duration `envconfig:"FINANCE_OUTBOX_DLQ_RETENTION" default:"2160h"`
	PurgeBatchSize      int           `envconfig:"FINANCE_OUTBOX_PURGE_BATCH" default:"500"`
}

func (o OutboxConfig) validate() error {
	err := multierr.Combine(
		positive(EnvOutboxBatchSize, int64(o.BatchSize)),
		positive(EnvOutboxMaxAttempts, int64(o.MaxAttempts)),
		positive(EnvOutboxPurgeBatch, int64(o.PurgeBatchSize)),
	)
	if o.DeadLetterRetention < o.PublishedRetention {
		err = multierr.Append(err, fmt.Errorf("%s must not be shorter than %s", EnvOutboxDLQRetention, EnvOutboxPublishedRetention))
	}
	return err
}

func positive(env string, v int64) error {
	if v <= 0 {
		return fmt.Errorf("%s must be positive", env)
	}
	return nil
}

type StripeConfig struct {
	Env string `envconfig:"FINANCE_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// IsSQLite reports whether the sqlite driver was selected by flag or driver name.
func (c *Config) IsSQLite() bool {
	return c.FeatureFlags.UseSQLite || strings.EqualFold(c.DB.Driver, "sqlite")
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
