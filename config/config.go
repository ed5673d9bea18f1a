package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"shield/models"
)

type Config struct {
	AppEnv    string
	LogLevel  string
	DB        DatabaseConfig
	Seeder    SeederConfig
	Telemetry TelemetryConfig
}

type DatabaseConfig struct {
	Engine   string
	Host     string
	Port     string
	Name     string
	Username string
	Password string
	SSLMode  string
	Tables   models.Tables
}

type SeederConfig struct {
	OutputPath    string
	StubPath      string
	RuntimeImport string
	ManifestPath  string
}

type TelemetryConfig struct {
	ServiceName          string
	ServiceVersion       string
	OTLPEndpoint         string
	OTLPTracesEndpoint   string
	OTLPMetricsEndpoint  string
	OTLPProtocol         string
	OTLPHeaders          map[string]string
	OTLPInsecure         bool
	ExportTimeout        time.Duration
	MetricExportInterval time.Duration
}

const (
	DefaultSeederPath    = "database/seeders/shield_seeder.go"
	DefaultRuntimeImport = "shield/seeder"
	DefaultManifestPath  = "shield.yaml"
)

func Load() (Config, error) {
	appEnv := getEnv("APP_ENV", "dev")

	dbName := getEnv("DB_NAME", "")
	if dbName == "" {
		dbName = os.Getenv("DB_INSTANCE_IDENTIFIER")
	}

	dbSSLMode := getEnv("DB_SSLMODE", "")
	if dbSSLMode == "" {
		if appEnv == "prod" {
			dbSSLMode = "require"
		} else {
			dbSSLMode = "disable"
		}
	}

	exportTimeout, err := time.ParseDuration(getEnv("OTEL_EXPORTER_TIMEOUT", "10s"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid OTEL_EXPORTER_TIMEOUT: %w", err)
	}
	metricInterval, err := time.ParseDuration(getEnv("OTEL_METRIC_EXPORT_INTERVAL", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid OTEL_METRIC_EXPORT_INTERVAL: %w", err)
	}
	headers, err := parseHeaders(getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""))
	if err != nil {
		return Config{}, err
	}

	defaults := models.DefaultTables()

	cfg := Config{
		AppEnv:   appEnv,
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DB: DatabaseConfig{
			Engine:   getEnv("DB_ENGINE", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Name:     dbName,
			Username: getEnv("DB_USERNAME", ""),
			Password: getEnv("DB_PASSWORD", ""),
			SSLMode:  dbSSLMode,
			Tables: models.Tables{
				Roles:              getEnv("SHIELD_TABLE_ROLES", defaults.Roles),
				Permissions:        getEnv("SHIELD_TABLE_PERMISSIONS", defaults.Permissions),
				RoleHasPermissions: getEnv("SHIELD_TABLE_ROLE_HAS_PERMISSIONS", defaults.RoleHasPermissions),
			},
		},
		Seeder: SeederConfig{
			OutputPath:    getEnv("SHIELD_SEEDER_PATH", DefaultSeederPath),
			StubPath:      getEnv("SHIELD_STUB_PATH", ""),
			RuntimeImport: getEnv("SHIELD_SEEDER_PACKAGE", DefaultRuntimeImport),
			ManifestPath:  getEnv("SHIELD_MANIFEST", DefaultManifestPath),
		},
		Telemetry: TelemetryConfig{
			ServiceName:          getEnv("OTEL_SERVICE_NAME", "shield"),
			ServiceVersion:       getEnv("OTEL_SERVICE_VERSION", "dev"),
			OTLPEndpoint:         getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			OTLPTracesEndpoint:   getEnv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", ""),
			OTLPMetricsEndpoint:  getEnv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", ""),
			OTLPProtocol:         strings.ToLower(getEnv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
			OTLPHeaders:          headers,
			OTLPInsecure:         getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", appEnv != "prod"),
			ExportTimeout:        exportTimeout,
			MetricExportInterval: metricInterval,
		},
	}

	if err := cfg.DB.Tables.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the settings needed to open a connection. Load leaves this
// to the caller so commands that never reach the database can run without them.
func (c DatabaseConfig) Validate() error {
	if c.Name == "" || c.Username == "" {
		return errors.New("DB_NAME (or DB_INSTANCE_IDENTIFIER) and DB_USERNAME must be set")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseCSV(value string) []string {
	parts := strings.Split(value, ",")
	var results []string
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

// parseHeaders reads the OTLP "k1=v1,k2=v2" header list.
func parseHeaders(value string) (map[string]string, error) {
	headers := make(map[string]string)
	for _, pair := range parseCSV(value) {
		key, val, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid OTEL_EXPORTER_OTLP_HEADERS entry: %q", pair)
		}
		headers[key] = strings.TrimSpace(val)
	}
	return headers, nil
}
