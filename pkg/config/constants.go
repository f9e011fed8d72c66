package config

// EnvPrefix namespaces every variable read by Load.
const EnvPrefix = "REELFORGE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	StorageDriverGCS = "gcs"
	StorageDriverS3  = "s3"
)

const (
	EnvAppEnv    = "REELFORGE_APP_ENV"
	EnvPort      = "REELFORGE_APP_PORT"
	EnvLogLevel  = "REELFORGE_LOG_LEVEL"
	EnvPublicURL = "REELFORGE_PUBLIC_URL"

	EnvDBDSN  = "REELFORGE_DB_DSN"
	EnvDBHost = "REELFORGE_DB_HOST"
	EnvDBPort = "REELFORGE_DB_PORT"
	EnvDBUser = "REELFORGE_DB_USER"
	EnvDBName = "REELFORGE_DB_NAME"

	EnvRedisURL = "REELFORGE_REDIS_URL"

	EnvJWTSecret  = "REELFORGE_JWT_SECRET"
	EnvJWTIssuer  = "REELFORGE_JWT_ISSUER"
	EnvJWTExpMins = "REELFORGE_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID = "REELFORGE_GCP_PROJECT_ID"

	EnvStorageDriver = "REELFORGE_STORAGE_DRIVER"
	EnvGCSBucket     = "REELFORGE_GCS_BUCKET_NAME"
	EnvS3Bucket      = "REELFORGE_S3_BUCKET"

	EnvPubSubGenerationTopic        = "REELFORGE_PUBSUB_GENERATION_TOPIC"
	EnvPubSubGenerationSubscription = "REELFORGE_PUBSUB_GENERATION_SUBSCRIPTION"

	EnvPipelineCharacterMaxAttempts = "REELFORGE_PIPELINE_CHARACTER_MAX_ATTEMPTS"
	EnvPipelineRetryDelay           = "REELFORGE_PIPELINE_RETRY_DELAY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
