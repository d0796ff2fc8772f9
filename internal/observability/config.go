package observability

import (
	"os"
	"strconv"
	"strings"

	"github.com/smallbiznis/studyquota/internal/config"
)

// defaultTraceSkipPaths are polled by load balancers and scrapers and would
// otherwise dominate sampled traces.
var defaultTraceSkipPaths = []string{"/health", "/metrics"}

// Config is the observability view of the process: identity taken from
// config.Config, everything else from LOG_*, GORM_LOG_LEVEL, PROMETHEUS_ENABLED
// and the standard OTEL_* variables.
type Config struct {
	ServiceName string
	Environment string
	Version     string
	// QuotaStore is the counter backend ("sql" or "redis"), stamped on
	// traces so store latency can be split by backend.
	QuotaStore string

	LogLevel     string
	LogFormat    string
	GormLogLevel string

	PrometheusEnabled bool

	Otel OtelConfig
}

type OtelConfig struct {
	Enabled       bool
	Endpoint      string
	Protocol      string
	SamplingRatio float64
	// SkipPaths are request paths the HTTP tracer never opens a span for.
	SkipPaths []string
}

func LoadConfig(cfg config.Config) Config {
	out := Config{
		ServiceName:       strings.TrimSpace(cfg.AppName),
		Environment:       envString("DEPLOYMENT_ENV", cfg.Environment),
		Version:           envString("SERVICE_VERSION", cfg.AppVersion),
		QuotaStore:        cfg.Quota.Store,
		LogLevel:          strings.ToLower(envString("LOG_LEVEL", "info")),
		LogFormat:         strings.ToLower(envString("LOG_FORMAT", "json")),
		GormLogLevel:      strings.ToLower(envString("GORM_LOG_LEVEL", "warn")),
		PrometheusEnabled: envBool("PROMETHEUS_ENABLED", true),
		Otel: OtelConfig{
			Enabled:       envBool("OTEL_ENABLED", false),
			Endpoint:      envString("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint),
			Protocol:      strings.ToLower(envString("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", envString("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			SamplingRatio: envFloat("OTEL_SAMPLING_RATIO", 0.1),
			SkipPaths:     envList("OTEL_TRACES_SKIP_PATHS", defaultTraceSkipPaths),
		},
	}
	if out.ServiceName == "" {
		out.ServiceName = "studyquota"
	}
	if out.QuotaStore == "" {
		out.QuotaStore = config.QuotaStoreSQL
	}
	return out
}

// Debug turns on development logging for LOG_LEVEL=debug or any local
// environment.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func envString(key, def string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return strings.TrimSpace(def)
}

func envBool(key string, def bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return def
	}
	return parsed
}

func envFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

// envList reads a comma separated list. An empty variable keeps def; "-"
// clears it.
func envList(key string, def []string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	switch value {
	case "":
		return append([]string(nil), def...)
	case "-":
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
