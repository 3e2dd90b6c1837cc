package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DB_NAME", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("JWT_TTL", "")

	cfg := LoadConfig()

	assert.Equal(t, "nyambika", cfg.DBName)
	assert.Equal(t, 7*24*time.Hour, cfg.JWTTTL)
	assert.False(t, cfg.KafkaEnabled())
	assert.Equal(t, "root:password@tcp(localhost:3306)/nyambika?parseTime=true&charset=utf8mb4&clientFoundRows=true", cfg.GetDSN())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092 ,")
	t.Setenv("JWT_TTL", "2h")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "no")

	cfg := LoadConfig()

	assert.Equal(t, 9090, cfg.GetAppPortInt())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, 2*time.Hour, cfg.JWTTTL)
	assert.False(t, cfg.OTELExporterOTLPInsecure)
}

func TestGetEnvDurationInvalidFallsBack(t *testing.T) {
	t.Setenv("NYAMBIKA_HTTP_TIMEOUT", "soon")

	cfg := LoadClientConfig()

	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.NotEmpty(t, cfg.APIBaseURL)
}

func TestGetAppPortIntInvalid(t *testing.T) {
	cfg := &Config{AppPort: "http"}
	assert.Equal(t, 8080, cfg.GetAppPortInt())
}
