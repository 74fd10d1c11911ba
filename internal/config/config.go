package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting for the service. All values come from
// the environment; a .env file is loaded first when present.
type Config struct {
	Environment string

	Server        ServerConfig
	Postgres      PostgresConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Elasticsearch ElasticsearchConfig
	Clickhouse    ClickhouseConfig
	Auth          AuthConfig
	Uploads       UploadsConfig
	RateLimit     RateLimitConfig
	Logging       LoggingConfig
}

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
	GroupID    string
}

type ElasticsearchConfig struct {
	URL           string
	Username      string
	Password      string
	CustomerIndex string
}

type ClickhouseConfig struct {
	Addr     string
	Username string
	Password string
	Database string
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
	// PendingTTL bounds how long a login attempt may stay pending before the
	// sweeper rejects it. Zero disables the sweep entirely.
	PendingTTL    time.Duration
	SweepInterval time.Duration
	BcryptCost    int
}

type UploadsConfig struct {
	Dir string
}

type RateLimitConfig struct {
	LoginMaxAttempts int
	LoginWindow      time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig reads configuration from the environment, falling back to
// development defaults for anything unset.
func LoadConfig() (*Config, error) {
	// Best effort: the file only exists in local development.
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Port:         getEnvInt("SERVER_PORT", 5000),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Postgres: PostgresConfig{
			DSN:             getEnv("POSTGRES_DSN", "host=localhost user=repairdesk password=repairdesk dbname=repairdesk port=5432 sslmode=disable"),
			MaxOpenConns:    getEnvInt("POSTGRES_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("POSTGRES_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("POSTGRES_CONN_MAX_LIFETIME", time.Hour),
			AutoMigrate:     getEnvBool("POSTGRES_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 20),
		},
		Kafka: KafkaConfig{
			Brokers:    strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			AuditTopic: getEnv("KAFKA_AUDIT_TOPIC", "repairdesk-audit-events"),
			GroupID:    getEnv("KAFKA_GROUP_ID", "repairdesk-audit-sink"),
		},
		Elasticsearch: ElasticsearchConfig{
			URL:           getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
			Username:      getEnv("ELASTICSEARCH_USERNAME", ""),
			Password:      getEnv("ELASTICSEARCH_PASSWORD", ""),
			CustomerIndex: getEnv("ELASTICSEARCH_CUSTOMER_INDEX", "repairdesk-customers"),
		},
		Clickhouse: ClickhouseConfig{
			Addr:     getEnv("CLICKHOUSE_ADDR", "localhost:9000"),
			Username: getEnv("CLICKHOUSE_USERNAME", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			Database: getEnv("CLICKHOUSE_DATABASE", "repairdesk"),
		},
		Auth: AuthConfig{
			JWTSecret:     getEnv("JWT_SECRET", ""),
			TokenTTL:      getEnvDuration("JWT_TOKEN_TTL", time.Hour),
			PendingTTL:    getEnvDuration("APPROVAL_PENDING_TTL", 0),
			SweepInterval: getEnvDuration("APPROVAL_SWEEP_INTERVAL", time.Minute),
			BcryptCost:    getEnvInt("BCRYPT_COST", 10),
		},
		Uploads: UploadsConfig{
			Dir: getEnv("UPLOADS_DIR", "uploads"),
		},
		RateLimit: RateLimitConfig{
			LoginMaxAttempts: getEnvInt("LOGIN_MAX_ATTEMPTS", 10),
			LoginWindow:      getEnvDuration("LOGIN_RATE_WINDOW", time.Minute),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.IsProduction() && c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	if c.Auth.JWTSecret == "" {
		// Development convenience only; tokens do not survive restarts anyway.
		c.Auth.JWTSecret = "repairdesk-dev-secret"
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("JWT_TOKEN_TTL must be positive")
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS must not be empty")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return !c.IsProduction()
}

// GetServerAddress returns the listen address for the HTTP server.
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
