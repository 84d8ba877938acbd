// Package config loads application configuration from environment variables
// (optionally seeded from a .env file) and validates it.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Storage backends.
const (
	StorageFirestore = "firestore"
	StorageSQLite    = "sqlite"
)

// Dialogue state stores.
const (
	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"
)

// LLM providers accepted in LLM_PROVIDERS.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config holds all application configuration
type Config struct {
	// Server Configuration
	Port            string
	LogLevel        string
	ShutdownTimeout time.Duration

	// Tuition API
	Tuition TuitionConfig

	// Message store
	StorageBackend          string
	FirebaseCredentialsFile string
	FirebaseProjectID       string
	FirestoreCollection     string
	DataDir                 string

	// Dialogue state
	SessionStore    string
	SessionStateTTL time.Duration
	Redis           RedisConfig // only loaded when SessionStore is redis

	// LLM fallback classifier (disabled when no provider has a key)
	LLM LLMConfig

	// Per-session limit on chat endpoints (token bucket)
	ChatRateBurst  float64
	ChatRateRefill float64 // tokens per second

	// Metrics Authentication
	MetricsUsername string
	MetricsPassword string // empty = no auth

	// Sentry
	SentryDSN         string
	SentryEnvironment string
	SentrySampleRate  float64

	// Better Stack
	BetterStackToken    string
	BetterStackEndpoint string
}

// TuitionConfig configures the outbound Tuition API client.
type TuitionConfig struct {
	BaseURL            string
	Timeout            time.Duration
	InsecureSkipVerify bool
	AdminUsername      string
	AdminPassword      string
}

// LLMConfig configures the optional intent classifier chain.
type LLMConfig struct {
	Providers     []string // tried in order
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	GeminiAPIKey  string
	GeminiModel   string

	RateBurst  float64 // per-session burst
	RateRefill float64 // tokens per hour
	RateDaily  int     // per-session daily cap, 0 = disabled
}

// HasProvider reports whether at least one configured provider has an API key.
func (l LLMConfig) HasProvider() bool {
	for _, p := range l.Providers {
		switch p {
		case ProviderOpenAI:
			if l.OpenAIAPIKey != "" {
				return true
			}
		case ProviderGemini:
			if l.GeminiAPIKey != "" {
				return true
			}
		}
	}
	return false
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv(EnvPort, "3001"),
		LogLevel:        getEnv(EnvLogLevel, "info"),
		ShutdownTimeout: getDurationEnv(EnvShutdownTimeout, GracefulShutdown),

		Tuition: TuitionConfig{
			BaseURL:            strings.TrimRight(getEnv(EnvTuitionAPIBaseURL, "http://localhost:5254"), "/"),
			Timeout:            getDurationEnv(EnvTuitionAPITimeout, TuitionAPIRequest),
			InsecureSkipVerify: getBoolEnv(EnvTuitionAPIInsecureTLS, false),
			AdminUsername:      getEnv(EnvAdminUsername, ""),
			AdminPassword:      getEnv(EnvAdminPassword, ""),
		},

		FirebaseCredentialsFile: getEnv(EnvFirebaseCredentialsFile, "./firebase.json"),
		FirebaseProjectID:       getEnv(EnvFirebaseProjectID, ""),
		FirestoreCollection:     getEnv(EnvFirestoreCollection, "messages"),
		DataDir:                 getEnv(EnvDataDir, "./data"),

		SessionStore:    strings.ToLower(getEnv(EnvSessionStore, SessionStoreMemory)),
		SessionStateTTL: getDurationEnv(EnvSessionStateTTL, 24*time.Hour),

		LLM: LLMConfig{
			Providers:     getListEnv(EnvLLMProviders, []string{ProviderOpenAI, ProviderGemini}),
			OpenAIAPIKey:  getEnv(EnvOpenAIAPIKey, ""),
			OpenAIBaseURL: getEnv(EnvOpenAIBaseURL, ""),
			OpenAIModel:   getEnv(EnvOpenAIModel, ""),
			GeminiAPIKey:  getEnv(EnvGeminiAPIKey, ""),
			GeminiModel:   getEnv(EnvGeminiModel, ""),
			RateBurst:     getFloatEnv(EnvLLMRateBurst, 20),
			RateRefill:    getFloatEnv(EnvLLMRateRefill, 10),
			RateDaily:     getIntEnv(EnvLLMRateDaily, 100),
		},

		ChatRateBurst:  getFloatEnv(EnvChatRateBurst, 20),
		ChatRateRefill: getFloatEnv(EnvChatRateRefill, 1),

		MetricsUsername: getEnv(EnvMetricsUsername, "prometheus"),
		MetricsPassword: getEnv(EnvMetricsPassword, ""),

		SentryDSN:         getEnv(EnvSentryDSN, ""),
		SentryEnvironment: getEnv(EnvSentryEnvironment, "production"),
		SentrySampleRate:  getFloatEnv(EnvSentrySampleRate, 1.0),

		BetterStackToken:    getEnv(EnvBetterStackToken, ""),
		BetterStackEndpoint: getEnv(EnvBetterStackEndpoint, ""),
	}
	cfg.StorageBackend = strings.ToLower(getEnv(EnvStorageBackend, defaultStorageBackend(cfg.FirebaseCredentialsFile)))

	if cfg.SessionStore == SessionStoreRedis {
		if err := envconfig.Process(redisEnvPrefix, &cfg.Redis); err != nil {
			return nil, fmt.Errorf("redis config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if required configuration values are set
func (c *Config) Validate() error {
	var errs []error

	if c.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got %v", c.ShutdownTimeout))
	}

	if u, err := url.Parse(c.Tuition.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("TUITION_API_BASE_URL must be an absolute URL, got %q", c.Tuition.BaseURL))
	}
	if c.Tuition.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("TUITION_API_TIMEOUT must be positive, got %v", c.Tuition.Timeout))
	}

	switch c.StorageBackend {
	case StorageFirestore:
		if c.FirebaseCredentialsFile == "" && os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
			errs = append(errs, errors.New("FIREBASE_CREDENTIALS_FILE is required for the firestore backend"))
		}
		if c.FirestoreCollection == "" {
			errs = append(errs, errors.New("FIRESTORE_COLLECTION is required"))
		}
	case StorageSQLite:
		if c.DataDir == "" {
			errs = append(errs, errors.New("DATA_DIR is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q", StorageFirestore, StorageSQLite, c.StorageBackend))
	}

	switch c.SessionStore {
	case SessionStoreMemory:
	case SessionStoreRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("REDIS_URL is required when SESSION_STORE=redis"))
		}
		if budget := TuitionCallsUnderLock * c.Tuition.Timeout; budget >= SessionLockTTL {
			errs = append(errs, fmt.Errorf("TUITION_API_TIMEOUT %v allows %v under the session lock, which must stay below %v",
				c.Tuition.Timeout, budget, SessionLockTTL))
		}
	default:
		errs = append(errs, fmt.Errorf("SESSION_STORE must be %q or %q, got %q", SessionStoreMemory, SessionStoreRedis, c.SessionStore))
	}
	if c.SessionStateTTL <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_STATE_TTL must be positive, got %v", c.SessionStateTTL))
	}

	for _, p := range c.LLM.Providers {
		if p != ProviderOpenAI && p != ProviderGemini {
			errs = append(errs, fmt.Errorf("LLM_PROVIDERS: unknown provider %q", p))
		}
	}
	if c.LLM.RateBurst <= 0 || c.LLM.RateRefill <= 0 {
		errs = append(errs, errors.New("LLM_RATE_BURST and LLM_RATE_REFILL must be positive"))
	}
	if c.LLM.RateDaily < 0 {
		errs = append(errs, fmt.Errorf("LLM_RATE_DAILY cannot be negative, got %d", c.LLM.RateDaily))
	}

	if c.ChatRateBurst <= 0 || c.ChatRateRefill <= 0 {
		errs = append(errs, errors.New("CHAT_RATE_BURST and CHAT_RATE_REFILL must be positive"))
	}

	if c.SentrySampleRate < 0 || c.SentrySampleRate > 1 {
		errs = append(errs, fmt.Errorf("SENTRY_SAMPLE_RATE must be within [0,1], got %v", c.SentrySampleRate))
	}

	return errors.Join(errs...)
}

// SQLitePath returns the message database path under DataDir.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "messages.db")
}

// defaultStorageBackend picks firestore only when the credentials file exists.
func defaultStorageBackend(credentialsFile string) string {
	if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); err == nil {
			return StorageFirestore
		}
	}
	return StorageSQLite
}

// getEnv retrieves environment variable with fallback to default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv retrieves integer environment variable with fallback to default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getDurationEnv retrieves duration environment variable with fallback to default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getFloatEnv retrieves float64 environment variable with fallback to default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getListEnv splits a comma-separated value, lower-cases and trims each item.
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return slices.Clone(defaultValue)
	}
	var out []string
	for item := range strings.SplitSeq(value, ",") {
		if item = strings.ToLower(strings.TrimSpace(item)); item != "" {
			out = append(out, item)
		}
	}
	return out
}
