package config

// EnvPrefix is handed to envconfig; every field carries its full variable
// name so the prefix only matters for unnamed fields.
const EnvPrefix = "FABZCLEAN"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv          = "FABZCLEAN_APP_ENV"
	EnvPort            = "FABZCLEAN_APP_PORT"
	EnvLogLevel        = "FABZCLEAN_LOG_LEVEL"
	EnvDBDSN           = "FABZCLEAN_DB_DSN"
	EnvDBHost          = "FABZCLEAN_DB_HOST"
	EnvDBUser          = "FABZCLEAN_DB_USER"
	EnvDBName          = "FABZCLEAN_DB_NAME"
	EnvDBPassword      = "FABZCLEAN_DB_PASSWORD"
	EnvUseSQLite       = "FABZCLEAN_USE_SQLITE"
	EnvRedisURL        = "FABZCLEAN_REDIS_URL"
	EnvJWTSecret       = "FABZCLEAN_JWT_SECRET"
	EnvJWTIssuer       = "FABZCLEAN_JWT_ISSUER"
	EnvLedgerTolerance = "FABZCLEAN_LEDGER_SETTLEMENT_TOLERANCE"
	EnvLedgerMaxLimit  = "FABZCLEAN_LEDGER_HISTORY_MAX_LIMIT"
	EnvGCPProjectID    = "FABZCLEAN_GCP_PROJECT_ID"
	EnvAuditTopic      = "FABZCLEAN_PUBSUB_AUDIT_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
