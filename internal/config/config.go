package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the whole process configuration.
type Config struct {
	App        AppConfig
	DB         DBConfig
	Redis      RedisConfig
	Auth       AuthConfig
	RateLimit  RateLimitConfig
	Shortener  ShortenerConfig
	Cache      CacheConfig
	Resolver   ResolverConfig
	Aggregator AggregatorConfig
	Kafka      KafkaConfig
	Retention  RetentionConfig
	GeoIP      GeoIPConfig
	Sentry     SentryConfig
}

type AppConfig struct {
	Port    string
	Env     string // development | production
	BaseURL string // prefix of every shortUrl, without trailing slash
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int // logical database index
}

type AuthConfig struct {
	JWTSecret string            // HS256 secret; empty disables JWT auth
	APIKeys   map[string]string // API key -> owner id
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

type ShortenerConfig struct {
	CodeLength     int      // characters per short code
	MaxAttempts    int      // collision retries before giving up
	BlockedDomains []string // hosts rejected on create, subdomains included
}

type CacheConfig struct {
	LocalSize int           // entries in the in-process LRU
	RedisTTL  time.Duration // bounds Redis memory only
}

type ResolverConfig struct {
	LookupTimeout time.Duration // whole redirect lookup, all cache levels
}

type AggregatorConfig struct {
	Transport       string // memory | kafka
	Workers         int           // shards, one goroutine each
	BufferSize      int           // events buffered per shard
	MaxRetryElapsed time.Duration // give up on a click after this long
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

type RetentionConfig struct {
	Window   time.Duration // raw events older than this are purged
	Schedule string        // 5-field cron expression
}

type GeoIPConfig struct {
	DBPath string // MaxMind .mmdb file; empty disables geo lookup
}

type SentryConfig struct {
	DSN string
}

// IsDevelopment reports whether app.env is development.
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// setDefaults registers a default for every key, so AutomaticEnv can see it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.env", "production")
	v.SetDefault("app.base_url", "http://localhost:8080")

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "postgres")
	v.SetDefault("db.name", "shortener")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("rate_limit.rps", 10)
	v.SetDefault("rate_limit.burst", 20)

	v.SetDefault("shortener.code_length", 7)
	v.SetDefault("shortener.max_attempts", 5)
	v.SetDefault("shortener.blocked_domains", "malware.com,phishing.com,spam.com")

	v.SetDefault("cache.local_size", 10000)
	v.SetDefault("cache.redis_ttl", 24*time.Hour)

	v.SetDefault("resolver.lookup_timeout", 50*time.Millisecond)

	v.SetDefault("aggregator.transport", "memory")
	v.SetDefault("aggregator.workers", 4)
	v.SetDefault("aggregator.buffer_size", 1000)
	v.SetDefault("aggregator.max_retry_elapsed", 30*time.Second)

	v.SetDefault("kafka.topic", "click-events")
	v.SetDefault("kafka.group_id", "click-aggregator")

	v.SetDefault("retention.window", 90*24*time.Hour)
	v.SetDefault("retention.schedule", "0 3 * * *")
}

// Load reads configuration from the optional file at path (".env" when empty)
// and from environment variables. APP_PORT overrides app.port and so on.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err == nil {
		if err := readConfigFile(v, path); err != nil {
			return nil, err
		}
	}

	var cfg Config
	cfg.App.Port = v.GetString("app.port")
	cfg.App.Env = v.GetString("app.env")
	cfg.App.BaseURL = strings.TrimRight(v.GetString("app.base_url"), "/")

	cfg.DB.Host = v.GetString("db.host")
	cfg.DB.Port = v.GetString("db.port")
	cfg.DB.User = v.GetString("db.user")
	cfg.DB.Password = v.GetString("db.password")
	cfg.DB.Name = v.GetString("db.name")

	cfg.Redis.Host = v.GetString("redis.host")
	cfg.Redis.Port = v.GetString("redis.port")
	cfg.Redis.Password = v.GetString("redis.password")
	cfg.Redis.DB = v.GetInt("redis.db")

	// Format: key1:owner1,key2:owner2
	cfg.Auth.JWTSecret = v.GetString("auth.jwt_secret")
	cfg.Auth.APIKeys = parseAPIKeys(v.GetString("auth.api_keys"))

	cfg.RateLimit.RequestsPerSecond = v.GetFloat64("rate_limit.rps")
	cfg.RateLimit.BurstSize = v.GetInt("rate_limit.burst")

	cfg.Shortener.CodeLength = v.GetInt("shortener.code_length")
	cfg.Shortener.MaxAttempts = v.GetInt("shortener.max_attempts")
	cfg.Shortener.BlockedDomains = splitAndTrim(v.GetString("shortener.blocked_domains"))

	cfg.Cache.LocalSize = v.GetInt("cache.local_size")
	cfg.Cache.RedisTTL = v.GetDuration("cache.redis_ttl")

	cfg.Resolver.LookupTimeout = v.GetDuration("resolver.lookup_timeout")

	cfg.Aggregator.Transport = v.GetString("aggregator.transport")
	cfg.Aggregator.Workers = v.GetInt("aggregator.workers")
	cfg.Aggregator.BufferSize = v.GetInt("aggregator.buffer_size")
	cfg.Aggregator.MaxRetryElapsed = v.GetDuration("aggregator.max_retry_elapsed")

	cfg.Kafka.Brokers = splitAndTrim(v.GetString("kafka.brokers"))
	cfg.Kafka.Topic = v.GetString("kafka.topic")
	cfg.Kafka.GroupID = v.GetString("kafka.group_id")

	cfg.Retention.Window = v.GetDuration("retention.window")
	cfg.Retention.Schedule = v.GetString("retention.schedule")

	cfg.GeoIP.DBPath = v.GetString("geoip.db_path")
	cfg.Sentry.DSN = v.GetString("sentry.dsn")

	return &cfg, nil
}

// readConfigFile loads a structured file (yaml, json, toml) directly. Dotenv
// files have flat keys, so their entries are exported to the environment
// instead and picked up by AutomaticEnv; real environment variables win.
func readConfigFile(v *viper.Viper, path string) error {
	if filepath.Ext(path) != ".env" {
		v.SetConfigFile(path)
		return v.ReadInConfig()
	}

	fv := viper.New()
	fv.SetConfigFile(path)
	fv.SetConfigType("env")
	if err := fv.ReadInConfig(); err != nil {
		return err
	}
	for _, key := range fv.AllKeys() {
		name := strings.ToUpper(key)
		if val, ok := os.LookupEnv(name); ok && val != "" {
			continue
		}
		if err := os.Setenv(name, fv.GetString(key)); err != nil {
			return err
		}
	}
	return nil
}

// parseAPIKeys parses comma-separated API keys in format "key1:owner1,key2:owner2"
func parseAPIKeys(raw string) map[string]string {
	keys := make(map[string]string)
	for _, pair := range splitAndTrim(raw) {
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) == 2 {
			keys[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return keys
}

// splitAndTrim splits a comma-separated list, dropping empty items.
func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := []string{}
	for _, p := range strings.Split(s, ",") {
		pt := strings.TrimSpace(p)
		if pt != "" {
			parts = append(parts, pt)
		}
	}
	return parts
}
