package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultBulkCap       = 10
	defaultSweepInterval = time.Minute
	defaultMemberTTL     = 5 * time.Minute
	defaultNotifyWorkers = 4
)

type Config struct {
	DiscordToken string
	LogLevel     string

	FirestoreProjectID  string
	FirestoreDatabaseID string

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	MemberCacheTTL time.Duration

	BulkRoleCap         int
	ExpirySweepInterval time.Duration
	NotifyWorkers       int

	Port   string
	APIKey string
}

// Load reads the bot configuration. A missing token is an error.
func Load() (*Config, error) {
	config := load()
	if config.DiscordToken == "" {
		return nil, ErrMissingDiscordToken
	}
	return config, nil
}

// LoadServer reads the configuration for the REST process, which never talks
// to the Discord gateway and so does not need a token.
func LoadServer() (*Config, error) {
	return load(), nil
}

func load() *Config {
	_ = godotenv.Load()

	return &Config{
		DiscordToken:        getEnvVar("DISCORD_TOKEN", ""),
		LogLevel:            getEnvVar("LOG_LEVEL", "info"),
		FirestoreProjectID:  getEnvVar("FIRESTORE_PROJECT_ID", ""),
		FirestoreDatabaseID: getEnvVar("FIRESTORE_DATABASE_ID", ""),
		RedisAddr:           getEnvVar("REDIS_ADDR", ""),
		RedisPassword:       getEnvVar("REDIS_PASSWORD", ""),
		RedisDB:             getEnvInt("REDIS_DB", 0),
		MemberCacheTTL:      getEnvDuration("MEMBER_CACHE_TTL", defaultMemberTTL),
		BulkRoleCap:         getEnvInt("BULK_ROLE_CAP", defaultBulkCap),
		ExpirySweepInterval: getEnvDuration("EXPIRY_SWEEP_INTERVAL", defaultSweepInterval),
		NotifyWorkers:       getEnvInt("NOTIFY_WORKERS", defaultNotifyWorkers),
		Port:                getEnvVar("PORT", "8080"),
		APIKey:              getEnvVar("API_KEY", ""),
	}
}

func getEnvVar(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

// StorageEnabled reports whether a Firestore project is configured.
func (c *Config) StorageEnabled() bool {
	return c.FirestoreProjectID != ""
}

// CacheEnabled reports whether a Redis address is configured.
func (c *Config) CacheEnabled() bool {
	return c.RedisAddr != ""
}

// Validate checks the bot configuration and fills in defaults for values
// that were set to something unusable.
func (c *Config) Validate() error {
	if c.DiscordToken == "" {
		return ErrMissingDiscordToken
	}
	return c.validateCommon()
}

// ValidateServer is Validate without the token requirement.
func (c *Config) ValidateServer() error {
	return c.validateCommon()
}

func (c *Config) validateCommon() error {
	if c.BulkRoleCap < 1 || c.BulkRoleCap > 100 {
		return ErrInvalidBulkCap
	}

	if c.StorageEnabled() && c.FirestoreDatabaseID == "" {
		return ErrMissingDatabaseID
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.NotifyWorkers < 1 {
		c.NotifyWorkers = defaultNotifyWorkers
	}
	if c.ExpirySweepInterval <= 0 {
		c.ExpirySweepInterval = defaultSweepInterval
	}
	if c.MemberCacheTTL <= 0 {
		c.MemberCacheTTL = defaultMemberTTL
	}
	if c.Port == "" {
		c.Port = "8080"
	}

	return nil
}
