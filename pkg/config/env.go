package config

// EnvPrefix is empty because every field carries its fully qualified variable name.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	StoreDriverMemory = "memory"
	StoreDriverSQLite = "sqlite"
	StoreDriverRedis  = "redis"
)

const (
	EnvAppEnv       = "SHOWROOM_APP_ENV"
	EnvPort         = "SHOWROOM_APP_PORT"
	EnvDBDSN        = "SHOWROOM_DB_DSN"
	EnvDBHost       = "SHOWROOM_DB_HOST"
	EnvDBUser       = "SHOWROOM_DB_USER"
	EnvDBName       = "SHOWROOM_DB_NAME"
	EnvRedisURL     = "SHOWROOM_REDIS_URL"
	EnvJWTSecret    = "SHOWROOM_JWT_SECRET"
	EnvJWTIssuer    = "SHOWROOM_JWT_ISSUER"
	EnvJWTExpMins   = "SHOWROOM_JWT_EXPIRATION_MINUTES"
	EnvUseSQLite    = "SHOWROOM_USE_SQLITE"
	EnvCORSOrigins  = "SHOWROOM_CORS_ALLOWED_ORIGINS"
	EnvRefreshTTL   = "SHOWROOM_REFRESH_TOKEN_TTL_MINUTES"
	EnvLoginWindow  = "SHOWROOM_AUTH_RATE_LIMIT_LOGIN_WINDOW"
	EnvClientAPIURL = "SHOWROOM_CLIENT_API_BASE_URL"

	EnvClientStoreDriver = "SHOWROOM_CLIENT_STORE_DRIVER"
	EnvClientRedisURL    = "SHOWROOM_CLIENT_REDIS_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
