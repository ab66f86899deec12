package observability

import (
	"strings"

	"github.com/smallbiznis/allotment/internal/config"
)

// Config is the slice of the application config the logger, tracer and
// meter are built from.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	service := strings.TrimSpace(cfg.AppName)
	if service == "" {
		service = "allotment"
	}
	ratio := cfg.OTelSamplingRatio
	if ratio < 0 || ratio > 1 {
		ratio = 0.1
	}
	return Config{
		ServiceName:          service,
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             strings.TrimSpace(cfg.LogLevel),
		LogFormat:            strings.TrimSpace(cfg.LogFormat),
		OtelEnabled:          cfg.OTelEnabled,
		OtelExporterEndpoint: strings.TrimSpace(cfg.OTLPEndpoint),
		OtelExporterProtocol: strings.TrimSpace(cfg.OTLPProtocol),
		OtelSamplingRatio:    ratio,
	}
}

// Debug reports whether verbose request logging and stack traces are on.
func (c Config) Debug() bool {
	if strings.EqualFold(c.LogLevel, "debug") {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}
