package config

//nolint:gosec,revive // Environment variable keys are not credentials and do not need per-const comments.
const (
	// Server
	EnvPort            = "PORT"
	EnvLogLevel        = "LOG_LEVEL"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	// Tuition API
	EnvTuitionAPIBaseURL     = "TUITION_API_BASE_URL"
	EnvTuitionAPITimeout     = "TUITION_API_TIMEOUT"
	EnvTuitionAPIInsecureTLS = "TUITION_API_INSECURE_SKIP_VERIFY"
	EnvAdminUsername         = "ADMIN_USERNAME"
	EnvAdminPassword         = "ADMIN_PASSWORD"

	// Message store
	EnvStorageBackend          = "STORAGE_BACKEND"
	EnvFirebaseCredentialsFile = "FIREBASE_CREDENTIALS_FILE"
	EnvFirebaseProjectID       = "FIREBASE_PROJECT_ID"
	EnvFirestoreCollection     = "FIRESTORE_COLLECTION"
	EnvDataDir                 = "DATA_DIR"

	// Dialogue state
	EnvSessionStore    = "SESSION_STORE"
	EnvSessionStateTTL = "SESSION_STATE_TTL"

	// LLM fallback
	EnvLLMProviders  = "LLM_PROVIDERS"
	EnvOpenAIAPIKey  = "OPENAI_API_KEY"
	EnvOpenAIBaseURL = "OPENAI_BASE_URL"
	EnvOpenAIModel   = "OPENAI_MODEL"
	EnvGeminiAPIKey  = "GEMINI_API_KEY"
	EnvGeminiModel   = "GEMINI_MODEL"
	EnvLLMRateBurst  = "LLM_RATE_BURST"
	EnvLLMRateRefill = "LLM_RATE_REFILL"
	EnvLLMRateDaily  = "LLM_RATE_DAILY"

	// Chat rate limits
	EnvChatRateBurst  = "CHAT_RATE_BURST"
	EnvChatRateRefill = "CHAT_RATE_REFILL"

	// Metrics
	EnvMetricsUsername = "METRICS_USERNAME"
	EnvMetricsPassword = "METRICS_PASSWORD"

	// Sentry
	EnvSentryDSN         = "SENTRY_DSN"
	EnvSentryEnvironment = "SENTRY_ENVIRONMENT"
	EnvSentrySampleRate  = "SENTRY_SAMPLE_RATE"

	// Better Stack
	EnvBetterStackToken    = "BETTERSTACK_TOKEN"
	EnvBetterStackEndpoint = "BETTERSTACK_ENDPOINT"
)

// Prefix used by envconfig for the Redis block (REDIS_URL, REDIS_READ_TIMEOUT, ...).
const redisEnvPrefix = "redis"
