package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

/* Config holds application configuration */
type Config struct {
	Database  DatabaseConfig
	Mongo     MongoConfig
	Server    ServerConfig
	Logging   LoggingConfig
	Auth      AuthConfig
	Embedding EmbeddingConfig
	LLM       LLMConfig
	Ingestion IngestionConfig
}

/* DatabaseConfig holds the relational store (Job Catalog, Vocabulary Service,
   ID Service cache) configuration */
type DatabaseConfig struct {
	Path            string // DATABASE_PATH; only Validate reads it (it skips the Host/Name checks when set). NewPool always dials the Postgres DSN, so no file-backed store is opened.
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

/* MongoConfig holds Record Store (document store) configuration */
type MongoConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	URI            string
	ConnectTimeout time.Duration
	OpTimeout      time.Duration
}

/* ServerConfig holds server configuration */
type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

/* LoggingConfig holds logging configuration */
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

/* AuthConfig holds authentication configuration. The core neither issues
   nor validates tokens; JWTSecretKey is opaque and only used to extract a
   user identifier from a bearer token supplied by the (out-of-scope) API
   layer. */
type AuthConfig struct {
	JWTSecretKey string
}

/* EmbeddingConfig configures the embedding backend used by the AI Mapping
   Engine and OMOP Engine concept matcher. */
type EmbeddingConfig struct {
	UseSBERT bool
	URL      string
	Timeout  time.Duration
}

/* LLMConfig configures the reasoning-stage LLM client. */
type LLMConfig struct {
	URL       string
	ModelName string
	Timeout   time.Duration
}

/* IngestionConfig holds Ingestion Engine tunables. */
type IngestionConfig struct {
	MaxConcurrentJobs int
	StatusFlushEvery  time.Duration
	StatusFlushRows   int
	DrainTimeout      time.Duration
	TestFailureMode   bool // artificial 1-in-20 failure injection; OFF by default, see spec open question
}

/* Load loads configuration from environment variables */
func Load() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            getEnv("DATABASE_PATH", ""),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "neuronip"),
			Password:        getEnv("DB_PASSWORD", "neuronip"),
			Name:            getEnv("DB_NAME", "neuronip"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Mongo: MongoConfig{
			Host:           getEnv("MONGO_HOST", "localhost"),
			Port:           getEnv("MONGO_PORT", "27017"),
			Database:       getEnv("MONGO_DB", "neuronip"),
			User:           getEnv("MONGO_USER", ""),
			Password:       getEnv("MONGO_PASSWORD", ""),
			URI:            getEnv("MONGO_URI", ""),
			ConnectTimeout: getEnvDuration("MONGO_CONNECT_TIMEOUT", 5*time.Second),
			OpTimeout:      getEnvDuration("MONGO_OP_TIMEOUT", 10*time.Second),
		},
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8082"),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
		Auth: AuthConfig{
			JWTSecretKey: getEnv("JWT_SECRET_KEY", ""),
		},
		Embedding: EmbeddingConfig{
			UseSBERT: getEnv("USE_SBERT_EMBEDDINGS", "false") == "true",
			URL:      getEnv("EMBEDDING_URL", ""),
			Timeout:  getEnvDuration("EMBEDDING_TIMEOUT", 15*time.Second),
		},
		LLM: LLMConfig{
			URL:       getEnv("LLM_URL", ""),
			ModelName: getEnv("LLM_MODEL_NAME", ""),
			Timeout:   getEnvDuration("LLM_TIMEOUT", 60*time.Second),
		},
		Ingestion: IngestionConfig{
			MaxConcurrentJobs: getEnvInt("INGESTION_MAX_CONCURRENT_JOBS", 16),
			StatusFlushEvery:  getEnvDuration("INGESTION_STATUS_FLUSH_INTERVAL", 2*time.Second),
			StatusFlushRows:   getEnvInt("INGESTION_STATUS_FLUSH_ROWS", 100),
			DrainTimeout:      getEnvDuration("INGESTION_DRAIN_TIMEOUT", 10*time.Second),
			TestFailureMode:   getEnv("INGESTION_TEST_FAILURE_MODE", "false") == "true",
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

/* DSN returns the relational store connection string */
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.Name)
}

/* ConnectionURI returns the Mongo connection URI, preferring an explicit
   URI over discrete fields. */
func (c *MongoConfig) ConnectionURI() string {
	if c.URI != "" {
		return c.URI
	}
	if c.User != "" {
		return fmt.Sprintf("mongodb://%s:%s@%s:%s", c.User, c.Password, c.Host, c.Port)
	}
	return fmt.Sprintf("mongodb://%s:%s", c.Host, c.Port)
}
