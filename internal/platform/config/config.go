package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration. Values come from an optional YAML
// file (NESTFEED_CONFIG) with environment variables taking precedence, so a
// bare environment is enough for development.
type Config struct {
	Server    Server    `yaml:"server"`
	Auth      Auth      `yaml:"auth"`
	Log       Log       `yaml:"log"`
	Cache     Cache     `yaml:"cache"`
	Redis     Redis     `yaml:"redis"`
	Postgres  Postgres  `yaml:"postgres"`
	Firestore Firestore `yaml:"firestore"`
	Kafka     Kafka     `yaml:"kafka"`
}

type Server struct {
	Addr string `yaml:"addr"`
}

type Auth struct {
	// SigningKey signs identity tokens minted by the in-process credential
	// service. Override in production.
	SigningKey string `yaml:"signing_key"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Cache selects the local cache backend: memory, sqlite, redis or postgres.
type Cache struct {
	Backend    string `yaml:"backend"`
	SQLitePath string `yaml:"sqlite_path"`
}

type Redis struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type Postgres struct {
	URL string `yaml:"url"`
}

// Firestore switches the document store from the in-process implementation to
// the managed one when ProjectID is set. BlobBaseURL is the public prefix for
// uploaded listing images.
type Firestore struct {
	ProjectID   string `yaml:"project_id"`
	BlobBaseURL string `yaml:"blob_base_url"`
}

type Kafka struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Load reads the optional YAML file named by NESTFEED_CONFIG, then applies
// environment overrides on top of defaults.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("NESTFEED_CONFIG"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func defaults() Config {
	return Config{
		Server: Server{Addr: ":8080"},
		Auth:   Auth{SigningKey: "dev-secret-key-change-in-production"},
		Log:    Log{Level: "info", Format: "text"},
		Cache:  Cache{Backend: "memory", SQLitePath: "nestfeed-cache.db"},
		Redis: Redis{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: Kafka{Topic: "nestfeed.audit"},
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Addr, "NESTFEED_ADDR")
	setString(&cfg.Auth.SigningKey, "NESTFEED_SIGNING_KEY")
	setString(&cfg.Log.Level, "NESTFEED_LOG_LEVEL")
	setString(&cfg.Log.Format, "NESTFEED_LOG_FORMAT")
	setString(&cfg.Cache.Backend, "NESTFEED_CACHE_BACKEND")
	setString(&cfg.Cache.SQLitePath, "NESTFEED_CACHE_SQLITE_PATH")
	setString(&cfg.Redis.URL, "NESTFEED_REDIS_URL")
	setInt(&cfg.Redis.PoolSize, "NESTFEED_REDIS_POOL_SIZE")
	setString(&cfg.Postgres.URL, "NESTFEED_POSTGRES_URL")
	setString(&cfg.Firestore.ProjectID, "NESTFEED_FIRESTORE_PROJECT")
	setString(&cfg.Firestore.BlobBaseURL, "NESTFEED_BLOB_BASE_URL")
	setString(&cfg.Kafka.Topic, "NESTFEED_KAFKA_TOPIC")

	if v := os.Getenv("NESTFEED_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitAndTrim(v)
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
