// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Source, Snapshot, Redis, Index, Cache, Refresh, Analytics, etc.).
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Source    SourceConfig    `yaml:"source"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Index     IndexConfig     `yaml:"index"`
	Cache     CacheConfig     `yaml:"cache"`
	Search    SearchConfig    `yaml:"search"`
	Session   SessionConfig   `yaml:"session"`
	Refresh   RefreshConfig   `yaml:"refresh"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Admin     AdminConfig     `yaml:"admin"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// SourceConfig selects where the bulk job collection is fetched from.
// Kind is one of "http", "file" or "postgres".
type SourceConfig struct {
	Kind    string        `yaml:"kind"`
	URL     string        `yaml:"url"`
	Path    string        `yaml:"path"`
	Timeout time.Duration `yaml:"timeout"`
	Retries int           `yaml:"retries"`
}

// SnapshotConfig controls the persisted record snapshot. Backend is one of
// "file", "redis" or "none".
type SnapshotConfig struct {
	Backend string        `yaml:"backend"`
	Dir     string        `yaml:"dir"`
	Key     string        `yaml:"key"`
	MaxAge  time.Duration `yaml:"maxAge"`
	Timeout time.Duration `yaml:"timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	Table           string        `yaml:"table"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	JobsUpdated     string `yaml:"jobsUpdated"`
	SearchAnalytics string `yaml:"searchAnalytics"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// IndexConfig controls how the search index is built.
type IndexConfig struct {
	BatchSize int `yaml:"batchSize"`
}

// CacheConfig controls the in-memory result cache.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// SearchConfig controls API paging limits. Requests slower than
// SlowQueryThreshold have their span tree logged.
type SearchConfig struct {
	DefaultLimit       int           `yaml:"defaultLimit"`
	MaxLimit           int           `yaml:"maxLimit"`
	SlowQueryThreshold time.Duration `yaml:"slowQueryThreshold"`
}

// SessionConfig controls the client binding layer.
type SessionConfig struct {
	PageSize int `yaml:"pageSize"`
}

// RefreshConfig controls periodic record reloads.
type RefreshConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// RateLimitConfig controls the search API token bucket.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
	// TrustedProxies lists addresses or CIDR ranges whose X-Forwarded-For
	// header identifies the client.
	TrustedProxies []string `yaml:"trustedProxies"`
}

// AnalyticsConfig controls search event tracking. Events are always
// aggregated in memory; they are also published to Kafka when Kafka is
// enabled, and aggregated snapshots are saved to PostgreSQL on
// PersistSchedule (a cron spec) when Persist is set.
type AnalyticsConfig struct {
	BatchSize       int           `yaml:"batchSize"`
	FlushInterval   time.Duration `yaml:"flushInterval"`
	Persist         bool          `yaml:"persist"`
	PersistSchedule string        `yaml:"persistSchedule"`
}

// AdminConfig guards the mutating admin endpoints. Keys is one of "none"
// (open), "static" (KeyHashes holds SHA-256 hex digests of accepted keys)
// or "postgres" (keys managed with cmd/adminkey).
type AdminConfig struct {
	Keys      string   `yaml:"keys"`
	KeyHashes []string `yaml:"keyHashes"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. Variables from a local .env file are loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that defaults cannot repair.
func (c *Config) Validate() error {
	switch c.Source.Kind {
	case "http":
		if c.Source.URL == "" {
			return fmt.Errorf("source.url is required for http source")
		}
	case "file":
		if c.Source.Path == "" {
			return fmt.Errorf("source.path is required for file source")
		}
	case "postgres":
	default:
		return fmt.Errorf("unknown source kind %q", c.Source.Kind)
	}
	switch c.Snapshot.Backend {
	case "file", "redis", "none":
	default:
		return fmt.Errorf("unknown snapshot backend %q", c.Snapshot.Backend)
	}
	switch c.Admin.Keys {
	case "none", "postgres":
	case "static":
		if len(c.Admin.KeyHashes) == 0 {
			return fmt.Errorf("admin.keyHashes is required for static admin keys")
		}
	default:
		return fmt.Errorf("unknown admin key backend %q", c.Admin.Keys)
	}
	for _, p := range c.RateLimit.TrustedProxies {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, _, err := net.ParseCIDR(p); err != nil && net.ParseIP(p) == nil {
			return fmt.Errorf("rateLimit.trustedProxies: %q is neither an address nor a CIDR range", p)
		}
	}
	if c.Search.MaxLimit > 0 && c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("search.defaultLimit (%d) exceeds search.maxLimit (%d)", c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	return nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Source: SourceConfig{
			Kind:    "file",
			Path:    "data/jobs.json",
			Timeout: 30 * time.Second,
			Retries: 3,
		},
		Snapshot: SnapshotConfig{
			Backend: "file",
			Dir:     ".cache",
			Key:     "jobmap:jobs",
			MaxAge:  24 * time.Hour,
			Timeout: 5 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "jobmap",
			User:            "jobmap",
			Password:        "localdev",
			SSLMode:         "disable",
			Table:           "job_records",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Enabled:       false,
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "jobmap-group",
			Topics: KafkaTopics{
				JobsUpdated:     "jobs-updated",
				SearchAnalytics: "search-analytics",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			DB:       0,
			PoolSize: 10,
		},
		Index: IndexConfig{
			BatchSize: 500,
		},
		Cache: CacheConfig{
			TTL: 5 * time.Minute,
		},
		Search: SearchConfig{
			DefaultLimit:       50,
			MaxLimit:           500,
			SlowQueryThreshold: 250 * time.Millisecond,
		},
		Session: SessionConfig{
			PageSize: 50,
		},
		Refresh: RefreshConfig{
			Enabled:  true,
			Interval: 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
		},
		Analytics: AnalyticsConfig{
			BatchSize:       100,
			FlushInterval:   5 * time.Second,
			Persist:         false,
			PersistSchedule: "@every 15m",
		},
		Admin: AdminConfig{
			Keys: "none",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads JM_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("JM_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("JM_SOURCE_KIND"); v != "" {
		cfg.Source.Kind = v
	}
	if v := os.Getenv("JM_SOURCE_URL"); v != "" {
		cfg.Source.URL = v
	}
	if v := os.Getenv("JM_SOURCE_PATH"); v != "" {
		cfg.Source.Path = v
	}
	if v := os.Getenv("JM_SNAPSHOT_BACKEND"); v != "" {
		cfg.Snapshot.Backend = v
	}
	if v := os.Getenv("JM_SNAPSHOT_DIR"); v != "" {
		cfg.Snapshot.Dir = v
	}
	if v := os.Getenv("JM_SNAPSHOT_MAX_AGE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Snapshot.MaxAge = d
		}
	}
	if v := os.Getenv("JM_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("JM_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("JM_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("JM_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("JM_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("JM_KAFKA_ENABLED"); v != "" {
		cfg.Kafka.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("JM_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("JM_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("JM_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("JM_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = d
		}
	}
	if v := os.Getenv("JM_ANALYTICS_PERSIST"); v != "" {
		cfg.Analytics.Persist = v == "true" || v == "1"
	}
	if v := os.Getenv("JM_ADMIN_KEYS"); v != "" {
		cfg.Admin.Keys = v
	}
	if v := os.Getenv("JM_RATELIMIT_TRUSTED_PROXIES"); v != "" {
		cfg.RateLimit.TrustedProxies = strings.Split(v, ",")
	}
	if v := os.Getenv("JM_ADMIN_KEY_HASHES"); v != "" {
		cfg.Admin.KeyHashes = strings.Split(v, ",")
	}
	if v := os.Getenv("JM_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("JM_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
