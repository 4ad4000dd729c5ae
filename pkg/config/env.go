package config

// EnvPrefix is empty because every field carries its fully-qualified variable name.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "FINANCE_APP_ENV"
	EnvPort     = "FINANCE_APP_PORT"
	EnvDBDSN    = "FINANCE_DB_DSN"
	EnvDBHost   = "FINANCE_DB_HOST"
	EnvDBUser   = "FINANCE_DB_USER"
	EnvDBName   = "FINANCE_DB_NAME"
	EnvRedisURL = "FINANCE_REDIS_URL"

	EnvMinPayoutCents      = "FINANCE_MIN_PAYOUT_CENTS"
	EnvMatchToleranceCents = "FINANCE_MATCH_TOLERANCE_CENTS"
	EnvBulkConcurrency     = "FINANCE_BULK_CONCURRENCY"

	EnvOutboxBatchSize          = "FINANCE_OUTBOX_BATCH_SIZE"
	EnvOutboxMaxAttempts        = "FINANCE_OUTBOX_MAX_ATTEMPTS"
	EnvOutboxPurgeBatch         = "FINANCE_OUTBOX_PURGE_BATCH"
	EnvOutboxPublishedRetention = "FINANCE_OUTBOX_PUBLISHED_RETENTION"
	EnvOutboxDLQRetention       = "FINANCE_OUTBOX_DLQ_RETENTION"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
