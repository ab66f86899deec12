package observability

import (
	"testing"

	"github.com/smallbiznis/allotment/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigMapsApplicationConfig(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppName:           " billing ",
		AppVersion:        "1.2.3",
		Environment:       "production",
		LogLevel:          "warn",
		LogFormat:         "console",
		OTelEnabled:       true,
		OTLPEndpoint:      "otel:4317",
		OTLPProtocol:      "grpc",
		OTelSamplingRatio: 3,
	})

	assert.Equal(t, "billing", cfg.ServiceName)
	assert.Equal(t, "1.2.3", cfg.Version)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.True(t, cfg.OtelEnabled)
	assert.Equal(t, "otel:4317", cfg.OtelExporterEndpoint)
	assert.Equal(t, 0.1, cfg.OtelSamplingRatio)
	assert.False(t, cfg.Debug())
}

func TestDebug(t *testing.T) {
	assert.True(t, Config{LogLevel: "DEBUG", Environment: "production"}.Debug())
	assert.True(t, Config{Environment: "development"}.Debug())
	assert.False(t, Config{Environment: "staging"}.Debug())
	assert.Equal(t, "allotment", LoadConfig(config.Config{}).ServiceName)
}
