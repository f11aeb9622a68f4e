package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendAuto   = "auto"
	BackendBridge = "bridge"
	BackendLocal  = "local"

	KVMemory   = "memory"
	KVRedis    = "redis"
	KVPostgres = "postgres"

	DefaultStorageKey = "consultation_app_data"
)

type Config struct {
	Port       string
	AppEnv     string
	AppVersion string
	Location   *time.Location

	LogLevel  string
	LogFormat string

	StoreBackend string
	BridgeURL    string
	BridgeToken  string

	LocalKV    string
	StorageKey string

	RedisHost     string
	RedisPassword string

	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string

	KafkaBroker string
	KafkaTopic  string

	ElasticsearchURL string
	SentryDSN        string

	DocumentDir     string
	DocumentBaseURL string

	SessionIdleTimeout time.Duration
}

// Load reads a .env file when one is present, then the process environment.
// The boolean reports whether a .env file was loaded.
func Load() (*Config, bool) {
	loaded := godotenv.Load() == nil

	port := GetEnv("PORT", "8080")
	cfg := &Config{
		Port:       port,
		AppEnv:     GetEnv("APP_ENV", "development"),
		AppVersion: GetEnv("APP_VERSION", "dev"),
		Location:   loadLocation(GetEnv("APP_TIMEZONE", "Asia/Tokyo")),

		LogLevel:  GetEnv("LOG_LEVEL", "info"),
		LogFormat: GetEnv("LOG_FORMAT", "json"),

		StoreBackend: strings.ToLower(GetEnv("STORE_BACKEND", BackendAuto)),
		BridgeURL:    GetEnv("BRIDGE_URL"),
		BridgeToken:  GetEnv("BRIDGE_TOKEN"),

		LocalKV:    strings.ToLower(GetEnv("LOCAL_KV", KVMemory)),
		StorageKey: GetEnv("LOCAL_STORAGE_KEY", DefaultStorageKey),

		RedisHost:     GetEnv("REDIS_HOST"),
		RedisPassword: GetEnv("REDIS_PASSWORD"),

		DBHost:     GetEnv("DB_HOST"),
		DBUser:     GetEnv("DB_USER"),
		DBPassword: GetEnv("DB_PASSWORD"),
		DBName:     GetEnv("DB_NAME"),
		DBPort:     GetEnv("DB_PORT", "5432"),

		KafkaBroker: GetEnv("KAFKA_BROKER"),
		KafkaTopic:  GetEnv("KAFKA_TOPIC", "consultation_events"),

		ElasticsearchURL: GetEnv("ELASTICSEARCH_URL"),
		SentryDSN:        GetEnv("SENTRY_DSN"),

		DocumentDir:     GetEnv("DOCUMENT_DIR", "./documents"),
		DocumentBaseURL: strings.TrimRight(GetEnv("DOCUMENT_BASE_URL", "http://localhost:"+port+"/documents"), "/"),

		SessionIdleTimeout: parseDuration(GetEnv("SESSION_IDLE_TIMEOUT"), 30*time.Minute),
	}
	return cfg, loaded
}

// Backend resolves "auto" to a concrete store backend.
func (c *Config) Backend() string {
	switch c.StoreBackend {
	case BackendBridge, BackendLocal:
		return c.StoreBackend
	}
	if c.BridgeURL != "" {
		return BackendBridge
	}
	return BackendLocal
}

func GetEnv(key string, defaultValue ...string) string {
	value, exists := os.LookupEnv(key)
	if (!exists || value == "") && len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return value
}

func parseDuration(raw string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local
	}
	return loc
}
