package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// RangePresets are the window sizes offered to dashboard users.
var RangePresets = []int{7, 30, 90}

type Config struct {
	Environment       string
	LogLevel          string
	GRPCPort          string
	EventPort         string
	MetricsPort       string
	WorkerMetricsPort string
	Postgres          PostgresConfig
	Kafka             KafkaConfig
	Redis             RedisConfig
	Analytics         AnalyticsConfig
}

type PostgresConfig struct {
	Host            string
	Port            string
	Database        string
	Username        string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	SSLMode         string
}

type KafkaConfig struct {
	Brokers          []string
	RecomputeTopic   string
	SnapshotsTopic   string
	ConsumerGroup    string
	ProducerRetries  int
	ProducerTimeout  time.Duration
	RequiredAcks     int
	CompressionType  string
	MaxMessageBytes  int
	IdempotentWrites bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

type AnalyticsConfig struct {
	RangeDays         int
	RetentionEvent    string
	FunnelSteps       []string
	RetentionOffsets  []int
	PassTimeout       time.Duration
	Workers           int
	RecomputeInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := &Config{
		Environment:       getEnv("ENVIRONMENT", "development"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		GRPCPort:          getEnv("QUERY_SERVICE_PORT", "50052"),
		EventPort:         getEnv("EVENT_SERVICE_PORT", "50051"),
		MetricsPort:       getEnv("METRICS_PORT", "9102"),
		WorkerMetricsPort: getEnv("WORKER_METRICS_PORT", "9103"),
	}

	cfg.Postgres = PostgresConfig{
		Host:            getEnv("POSTGRES_HOST", "localhost"),
		Port:            getEnv("POSTGRES_PORT", "5432"),
		Database:        getEnv("POSTGRES_DB", "analytics"),
		Username:        getEnv("POSTGRES_USER", "admin"),
		Password:        getEnv("POSTGRES_PASSWORD", "password"),
		MaxOpenConns:    getEnvAsInt("POSTGRES_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("POSTGRES_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("POSTGRES_CONN_MAX_LIFETIME", 5*time.Minute),
		SSLMode:         getEnv("POSTGRES_SSL_MODE", "disable"),
	}

	recomputeTopic := getEnv("KAFKA_TOPIC_RECOMPUTE", "analytics-recompute")
	cfg.Kafka = KafkaConfig{
		Brokers:          getEnvAsList("KAFKA_BROKERS", []string{"localhost:9092"}),
		RecomputeTopic:   recomputeTopic,
		SnapshotsTopic:   getEnv("KAFKA_TOPIC_SNAPSHOTS", "analytics-snapshots"),
		ConsumerGroup:    getEnv("KAFKA_CONSUMER_GROUP", recomputeTopic+"-workers"),
		ProducerRetries:  getEnvAsInt("KAFKA_PRODUCER_RETRIES", 3),
		ProducerTimeout:  getEnvAsDuration("KAFKA_PRODUCER_TIMEOUT", 10*time.Second),
		RequiredAcks:     getEnvAsInt("KAFKA_REQUIRED_ACKS", -1), // -1 = all in-sync replicas
		CompressionType:  getEnv("KAFKA_COMPRESSION", "snappy"),
		IdempotentWrites: getEnvAsBool("KAFKA_IDEMPOTENT", true),
		MaxMessageBytes:  getEnvAsInt("KAFKA_MAX_MESSAGE_BYTES", 1000000),
	}

	cfg.Redis = RedisConfig{
		Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvAsInt("REDIS_DB", 0),
		CacheTTL: getEnvAsDuration("SNAPSHOT_CACHE_TTL", 5*time.Minute),
	}

	cfg.Analytics = AnalyticsConfig{
		RangeDays:         getEnvAsInt("ANALYTICS_RANGE_DAYS", 30),
		RetentionEvent:    getEnv("ANALYTICS_RETENTION_EVENT", "signup_completed"),
		FunnelSteps:       getEnvAsList("ANALYTICS_FUNNEL_STEPS", []string{"page_view", "signup_started", "signup_completed"}),
		RetentionOffsets:  getEnvAsIntList("ANALYTICS_RETENTION_OFFSETS", []int{1, 3, 7}),
		PassTimeout:       getEnvAsDuration("ANALYTICS_PASS_TIMEOUT", 10*time.Second),
		Workers:           getEnvAsInt("ANALYTICS_WORKERS", 4),
		RecomputeInterval: getEnvAsDuration("ANALYTICS_RECOMPUTE_INTERVAL", 15*time.Minute),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Analytics.RangeDays <= 0 {
		return fmt.Errorf("ANALYTICS_RANGE_DAYS must be positive, got %d", c.Analytics.RangeDays)
	}
	if c.Analytics.Workers <= 0 {
		return fmt.Errorf("ANALYTICS_WORKERS must be positive, got %d", c.Analytics.Workers)
	}
	if c.Analytics.RecomputeInterval <= 0 {
		return fmt.Errorf("ANALYTICS_RECOMPUTE_INTERVAL must be positive, got %s", c.Analytics.RecomputeInterval)
	}
	for _, offset := range c.Analytics.RetentionOffsets {
		if offset < 0 {
			return fmt.Errorf("ANALYTICS_RETENTION_OFFSETS must not be negative, got %d", offset)
		}
	}
	return nil
}

func (c *PostgresConfig) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.Database, c.SSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value. A variable that is set but
// blank yields an empty list, which callers treat as "disabled".
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}

	items := []string{}
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func getEnvAsIntList(key string, defaultValue []int) []int {
	valueStr, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}

	items := []int{}
	for _, item := range strings.Split(valueStr, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		value, err := strconv.Atoi(item)
		if err != nil {
			return defaultValue
		}
		items = append(items, value)
	}
	return items
}
