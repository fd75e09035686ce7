package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Env       string `mapstructure:"env"`
	Port      string `mapstructure:"port"`
	JWTSecret string `mapstructure:"jwt_secret"`

	Store       string `mapstructure:"store"`
	DatabaseURL string `mapstructure:"database_url"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`

	MinioEndpoint  string `mapstructure:"minio_endpoint"`
	MinioAccessKey string `mapstructure:"minio_access_key"`
	MinioSecretKey string `mapstructure:"minio_secret_key"`
	MinioBucket    string `mapstructure:"minio_bucket"`
	MinioUseSSL    bool   `mapstructure:"minio_use_ssl"`

	FeedPageSize      int   `mapstructure:"feed_page_size"`
	FeedMaxPageSize   int   `mapstructure:"feed_max_page_size"`
	TrendingThreshold int64 `mapstructure:"trending_threshold"`

	StoryTTL time.Duration `mapstructure:"story_ttl"`

	NotifyConcurrency int `mapstructure:"notify_concurrency"`

	PostRateLimit    int           `mapstructure:"post_rate_limit"`
	CommentRateLimit int           `mapstructure:"comment_rate_limit"`
	RateLimitWindow  time.Duration `mapstructure:"rate_limit_window"`

	ExpirySweepInterval time.Duration `mapstructure:"expiry_sweep_interval"`
	ReconcileInterval   time.Duration `mapstructure:"reconcile_interval"`
	ReconcileBatch      int64         `mapstructure:"reconcile_batch"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "production")
	v.SetDefault("port", "5000")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("store", StorePostgres)
	v.SetDefault("database_url", "")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("kafka_brokers", []string{})
	v.SetDefault("kafka_topic", "notifications")
	v.SetDefault("minio_endpoint", "")
	v.SetDefault("minio_access_key", "")
	v.SetDefault("minio_secret_key", "")
	v.SetDefault("minio_bucket", "")
	v.SetDefault("minio_use_ssl", false)
	v.SetDefault("feed_page_size", 20)
	v.SetDefault("feed_max_page_size", 50)
	v.SetDefault("trending_threshold", 10)
	v.SetDefault("story_ttl", 24*time.Hour)
	v.SetDefault("notify_concurrency", 8)
	v.SetDefault("post_rate_limit", 30)
	v.SetDefault("comment_rate_limit", 60)
	v.SetDefault("rate_limit_window", time.Hour)
	v.SetDefault("expiry_sweep_interval", time.Minute)
	v.SetDefault("reconcile_interval", 30*time.Second)
	v.SetDefault("reconcile_batch", 100)
}

// Load reads .env (if any), an optional config.json and the environment, in
// increasing order of precedence.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET not set")
	}
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL not set")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown STORE %q", c.Store)
	}
	if c.FeedPageSize <= 0 || c.FeedMaxPageSize < c.FeedPageSize {
		return fmt.Errorf("feed page size %d must be positive and at most %d", c.FeedPageSize, c.FeedMaxPageSize)
	}
	if c.StoryTTL <= 0 {
		return errors.New("STORY_TTL must be positive")
	}
	return nil
}
