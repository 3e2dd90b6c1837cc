package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds backend configuration from environment variables
type Config struct {
	// Application
	AppPort string
	SiteURL string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Auth
	JWTSecret string
	JWTTTL    time.Duration

	// Redis (idempotency keys, reset tokens, subscription status cache)
	RedisAddr string

	// Kafka (order events); empty disables publishing
	KafkaBrokers     []string
	KafkaTopicOrders string

	// External try-on API
	TryOnAPIURL string

	// OpenTelemetry
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPProtocol  string
	OTELExporterOTLPHeaders   string
	OTELExporterOTLPInsecure  bool
	OTELServiceName           string
	OTELServiceVersion        string
	OTELDeploymentEnvironment string
	OTELResourceAttributes    string
}

// ClientConfig holds configuration for the client coordination layer
type ClientConfig struct {
	APIBaseURL  string
	TokenFile   string
	CartFile    string
	HTTPTimeout time.Duration
}

// LoadConfig loads configuration from .env file and environment variables with defaults
func LoadConfig() *Config {
	loadDotEnv()

	return &Config{
		AppPort: getEnv("APP_PORT", "8080"),
		SiteURL: getEnv("SITE_URL", "https://nyambika.com"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "nyambika"),

		JWTSecret: getEnv("JWT_SECRET", "dev-only-nyambika-secret"),
		JWTTTL:    getEnvDuration("JWT_TTL", 7*24*time.Hour),

		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),

		KafkaBrokers:     splitCSV(getEnv("KAFKA_BROKERS", "")),
		KafkaTopicOrders: getEnv("KAFKA_TOPIC_ORDERS", "nyambika.orders"),

		TryOnAPIURL: getEnv("TRYON_API_URL", "http://localhost:8000"),

		OTELExporterOTLPEndpoint:  getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		OTELExporterOTLPProtocol:  getEnv("OTEL_EXPORTER_OTLP_PROTOCOL", "http/protobuf"),
		OTELExporterOTLPHeaders:   getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
		OTELExporterOTLPInsecure:  getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELServiceName:           getEnv("OTEL_SERVICE_NAME", "nyambika-api"),
		OTELServiceVersion:        getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
		OTELDeploymentEnvironment: getEnv("OTEL_DEPLOYMENT_ENVIRONMENT", "development"),
		OTELResourceAttributes:    getEnv("OTEL_RESOURCE_ATTRIBUTES", ""),
	}
}

// LoadClientConfig loads the client layer configuration
func LoadClientConfig() *ClientConfig {
	loadDotEnv()

	return &ClientConfig{
		APIBaseURL:  getEnv("NYAMBIKA_API_BASE_URL", "https://nyambikaai.onrender.com"),
		TokenFile:   getEnv("NYAMBIKA_TOKEN_FILE", ""),
		CartFile:    getEnv("NYAMBIKA_CART_FILE", ""),
		HTTPTimeout: getEnvDuration("NYAMBIKA_HTTP_TIMEOUT", 30*time.Second),
	}
}

// GetDSN returns the MySQL DSN string
func (c *Config) GetDSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?parseTime=true&charset=utf8mb4&clientFoundRows=true"
}

// GetAppPortInt returns the application port as an integer
func (c *Config) GetAppPortInt() int {
	port, err := strconv.Atoi(c.AppPort)
	if err != nil {
		return 8080
	}
	return port
}

// KafkaEnabled reports whether order events should be published to Kafka
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func loadDotEnv() {
	// .env is optional; only complain about real read errors
	if err := godotenv.Load(); err != nil {
		if _, ok := err.(*os.PathError); !ok {
			log.Printf("Warning: Error loading .env file: %v", err)
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if value == "true" || value == "1" || value == "yes" {
			return true
		}
		return false
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("Warning: invalid duration for %s, using default", key)
	}
	return defaultValue
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
