package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"google.golang.org/api/option"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	Storage      StorageConfig
	GCS          GCSConfig
	S3           S3Config
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Gemini       GeminiConfig
	Fal          FalConfig
	ElevenLabs   ElevenLabsConfig
	AssemblyAI   AssemblyAIConfig
	Render       RenderConfig
	Pipeline     PipelineConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Storage.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"REELFORGE_APP_ENV" required:"true"`
	Port         string   `envconfig:"REELFORGE_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"REELFORGE_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"REELFORGE_LOG_WARN_STACK" default:"false"`
	PublicURL    string   `envconfig:"REELFORGE_PUBLIC_URL" default:"http://localhost:8080"`
	CORSOrigins  []string `envconfig:"REELFORGE_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"REELFORGE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"REELFORGE_DB_DSN"`
	Driver string `envconfig:"REELFORGE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"REELFORGE_DB_HOST"`
	LegacyPort     int    `envconfig:"REELFORGE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"REELFORGE_DB_USER"`
	LegacyPassword string `envconfig:"REELFORGE_DB_PASSWORD"`
	LegacyName     string `envconfig:"REELFORGE_DB_NAME"`
	LegacySSLMode  string `envconfig:"REELFORGE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"REELFORGE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"REELFORGE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"REELFORGE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"REELFORGE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// SlowQuery is the duration above which a statement is logged at warn. Zero disables it.
	SlowQuery time.Duration `envconfig:"REELFORGE_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"REELFORGE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"REELFORGE_REDIS_ADDR"`
	Password     string        `envconfig:"REELFORGE_REDIS_PASSWORD"`
	DB           int           `envconfig:"REELFORGE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"REELFORGE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"REELFORGE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"REELFORGE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"REELFORGE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"REELFORGE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"REELFORGE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"REELFORGE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"REELFORGE_JWT_EXPIRATION_MINUTES" default:"60"`
}

// RateLimitConfig bounds how often one user may trigger paid generation calls.
type RateLimitConfig struct {
	GenerationWindow time.Duration `envconfig:"REELFORGE_RATE_LIMIT_GENERATION_WINDOW" default:"1m"`
	GenerationLimit  int           `envconfig:"REELFORGE_RATE_LIMIT_GENERATION_LIMIT" default:"30"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"REELFORGE_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"REELFORGE_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"REELFORGE_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"REELFORGE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"REELFORGE_GOOGLE_APPLICATION_CREDENTIALS"`
}

// ClientOptions returns the credential option shared by every Google client.
// Inline JSON wins over a file. With neither set the client uses Application
// Default Credentials.
func (g GCPConfig) ClientOptions() []option.ClientOption {
	switch {
	case strings.TrimSpace(g.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(g.CredentialsJSON))}
	case strings.TrimSpace(g.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(strings.TrimSpace(g.ApplicationCredentials))}
	}
	return nil
}

// StorageConfig picks the blob backend for generated assets.
type StorageConfig struct {
	Driver    string `envconfig:"REELFORGE_STORAGE_DRIVER" default:"gcs"`
	KeyPrefix string `envconfig:"REELFORGE_STORAGE_KEY_PREFIX" default:"generated"`
}

func (s StorageConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(s.Driver)) {
	case StorageDriverGCS, StorageDriverS3:
		return nil
	default:
		return fmt.Errorf("%s must be one of %s, %s", EnvStorageDriver, StorageDriverGCS, StorageDriverS3)
	}
}

// NormalizedDriver returns the lowercase driver name.
func (s StorageConfig) NormalizedDriver() string {
	return strings.ToLower(strings.TrimSpace(s.Driver))
}

type GCSConfig struct {
	BucketName    string `envconfig:"REELFORGE_GCS_BUCKET_NAME"`
	PublicBaseURL string `envconfig:"REELFORGE_GCS_PUBLIC_BASE_URL" default:"https://storage.googleapis.com"`
}

type S3Config struct {
	Bucket        string `envconfig:"REELFORGE_S3_BUCKET"`
	Region        string `envconfig:"REELFORGE_S3_REGION" default:"us-east-1"`
	Endpoint      string `envconfig:"REELFORGE_S3_ENDPOINT"`
	PublicBaseURL string `envconfig:"REELFORGE_S3_PUBLIC_BASE_URL"`
}

type PubSubConfig struct {
	GenerationTopic        string `envconfig:"REELFORGE_PUBSUB_GENERATION_TOPIC" default:"rf-generation-events"`
	GenerationSubscription string `envconfig:"REELFORGE_PUBSUB_GENERATION_SUBSCRIPTION" required:"true"`
	AnalyticsTopic         string `envconfig:"REELFORGE_PUBSUB_ANALYTICS_TOPIC" default:"rf-analytics-events"`
	AnalyticsSubscription  string `envconfig:"REELFORGE_PUBSUB_ANALYTICS_SUBSCRIPTION"`
}

type BigQueryConfig struct {
	Dataset             string `envconfig:"REELFORGE_BIGQUERY_DATASET" default:"reelforge"`
	GenerationRunsTable string `envconfig:"REELFORGE_BIGQUERY_GENERATION_RUNS_TABLE" default:"generation_runs"`
	RenderEventsTable   string `envconfig:"REELFORGE_BIGQUERY_RENDER_EVENTS_TABLE" default:"render_events"`
}

// OutboxConfig tunes the publisher. A failed row waits RetryBase doubled per
// attempt, capped at RetryMax, before it is fetched again.
type OutboxConfig struct {
	BatchSize      int           `envconfig:"REELFORGE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"REELFORGE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"REELFORGE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetryBase      time.Duration `envconfig:"REELFORGE_OUTBOX_RETRY_BASE" default:"2s"`
	RetryMax       time.Duration `envconfig:"REELFORGE_OUTBOX_RETRY_MAX" default:"5m"`
	Retention      time.Duration `envconfig:"REELFORGE_OUTBOX_RETENTION" default:"168h"`
}

type GeminiConfig struct {
	APIKey            string  `envconfig:"REELFORGE_GEMINI_API_KEY"`
	ScriptModel       string  `envconfig:"REELFORGE_GEMINI_SCRIPT_MODEL" default:"gemini-2.5-pro"`
	ImageModel        string  `envconfig:"REELFORGE_GEMINI_IMAGE_MODEL" default:"gemini-2.5-flash-image"`
	Temperature       float32 `envconfig:"REELFORGE_GEMINI_TEMPERATURE" default:"0.8"`
	RequestsPerSecond float64 `envconfig:"REELFORGE_GEMINI_RPS" default:"4"`
}

type FalConfig struct {
	APIKey            string        `envconfig:"REELFORGE_FAL_API_KEY"`
	BaseURL           string        `envconfig:"REELFORGE_FAL_BASE_URL" default:"https://queue.fal.run"`
	StandardModel     string        `envconfig:"REELFORGE_FAL_STANDARD_MODEL" default:"fal-ai/kling-video/v2.1/standard/image-to-video"`
	PremiumModel      string        `envconfig:"REELFORGE_FAL_PREMIUM_MODEL" default:"fal-ai/kling-video/v2.1/master/image-to-video"`
	PollInterval      time.Duration `envconfig:"REELFORGE_FAL_POLL_INTERVAL" default:"5s"`
	Timeout           time.Duration `envconfig:"REELFORGE_FAL_TIMEOUT" default:"10m"`
	RequestsPerSecond float64       `envconfig:"REELFORGE_FAL_RPS" default:"2"`
}

type ElevenLabsConfig struct {
	APIKey            string  `envconfig:"REELFORGE_ELEVENLABS_API_KEY"`
	BaseURL           string  `envconfig:"REELFORGE_ELEVENLABS_BASE_URL" default:"https://api.elevenlabs.io"`
	ModelID           string  `envconfig:"REELFORGE_ELEVENLABS_MODEL_ID" default:"eleven_multilingual_v2"`
	DefaultVoiceID    string  `envconfig:"REELFORGE_ELEVENLABS_DEFAULT_VOICE_ID" default:"21m00Tcm4TlvDq8ikWAM"`
	RequestsPerSecond float64 `envconfig:"REELFORGE_ELEVENLABS_RPS" default:"2"`
}

type AssemblyAIConfig struct {
	APIKey       string        `envconfig:"REELFORGE_ASSEMBLYAI_API_KEY"`
	BaseURL      string        `envconfig:"REELFORGE_ASSEMBLYAI_BASE_URL" default:"https://api.assemblyai.com"`
	PollInterval time.Duration `envconfig:"REELFORGE_ASSEMBLYAI_POLL_INTERVAL" default:"3s"`
	Timeout      time.Duration `envconfig:"REELFORGE_ASSEMBLYAI_TIMEOUT" default:"5m"`
}

type RenderConfig struct {
	BaseURL       string        `envconfig:"REELFORGE_RENDER_BASE_URL"`
	APIKey        string        `envconfig:"REELFORGE_RENDER_API_KEY"`
	WebhookSecret string        `envconfig:"REELFORGE_RENDER_WEBHOOK_SECRET"`
	Timeout       time.Duration `envconfig:"REELFORGE_RENDER_TIMEOUT" default:"30m"`
	WebhookTTL    time.Duration `envconfig:"REELFORGE_RENDER_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
}

// WebhookURL returns the callback the renderer posts to.
func (r RenderConfig) WebhookURL(publicURL string) string {
	return strings.TrimSuffix(publicURL, "/") + "/api/v1/webhooks/render"
}

// PipelineConfig tunes the generation workflow.
type PipelineConfig struct {
	CharacterMaxAttempts int           `envconfig:"REELFORGE_PIPELINE_CHARACTER_MAX_ATTEMPTS" default:"2"`
	RetryDelay           time.Duration `envconfig:"REELFORGE_PIPELINE_RETRY_DELAY" default:"10s"`
	RetryMaxDelay        time.Duration `envconfig:"REELFORGE_PIPELINE_RETRY_MAX_DELAY" default:"1m"`
	ExponentialBackoff   bool          `envconfig:"REELFORGE_PIPELINE_EXPONENTIAL_BACKOFF" default:"false"`
	MaxParallel          int           `envconfig:"REELFORGE_PIPELINE_MAX_PARALLEL" default:"8"`
	RunLease             time.Duration `envconfig:"REELFORGE_PIPELINE_RUN_LEASE" default:"15m"`
	MaxResumes           int           `envconfig:"REELFORGE_PIPELINE_MAX_RESUMES" default:"3"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"REELFORGE_CRON_INTERVAL" default:"1m"`
	LockTTL  time.Duration `envconfig:"REELFORGE_CRON_LOCK_TTL" default:"5m"`
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
