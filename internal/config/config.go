package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Analyst       AnalystConfig
	SemanticModel SemanticModelConfig
	Warehouse     WarehouseConfig
	Archive       ArchiveConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type AnalystConfig struct {
	BaseURL            string
	Token              string
	TokenType          string
	Timeout            time.Duration
	BreakerMaxFailures int
	BreakerTimeout     time.Duration
}

type SemanticModelConfig struct {
	Database string
	Schema   string
	Stage    string
	File     string
	// LocalPath points at a semantic model YAML sent inline instead of the
	// staged file.
	LocalPath string
}

type WarehouseConfig struct {
	Driver          string
	DSN             string
	Account         string
	User            string
	Password        string
	Warehouse       string
	Role            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
	RowLimit        int
}

type ArchiveConfig struct {
	Enabled          bool
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type ObservabilityConfig struct {
	LogLevel        slog.Level
	LogJSON         bool
	TracingExporter string
}

type AuthConfig struct {
	Required        bool
	StaticKeys      string
	RateLimitPerMin int
	RateLimitBurst  int
}

const (
	DriverSnowflake = "snowflake"
	DriverPostgres  = "pgx"
	DriverDuckDB    = "duckdb"
	DriverSQLite    = "sqlite"
)

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("ASKWH_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid ASKWH_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	if err := applyString(lookup, "ASKWH_SERVICE_NAME", &cfg.Service.Name); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKWH_HTTP_ADDR", &cfg.HTTP.Address); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "ASKWH_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "ASKWH_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "ASKWH_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKWH_ANALYST_BASE_URL", &cfg.Analyst.BaseURL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKWH_ANALYST_TOKEN", &cfg.Analyst.Token); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKWH_ANALYST_TOKEN_TYPE", &cfg.Analyst.TokenType); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "ASKWH_ANALYST_TIMEOUT", &cfg.Analyst.Timeout); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "ASKWH_ANALYST_BREAKER_MAX_FAILURES", &cfg.Analyst.BreakerMaxFailures); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "ASKWH_ANALYST_BREAKER_TIMEOUT", &cfg.Analyst.BreakerTimeout); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SNOWFLAKE_DATABASE", &cfg.SemanticModel.Database); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SNOWFLAKE_SCHEMA", &cfg.SemanticModel.Schema); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SNOWFLAKE_STAGE", &cfg.SemanticModel.Stage); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SNOWFLAKE_FILE", &cfg.SemanticModel.File); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKWH_SEMANTIC_MODEL_PATH", &cfg.SemanticModel.LocalPath); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKWH_WAREHOUSE_DRIVER", &cfg.Warehouse.Driver); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKWH_WAREHOUSE_DSN", &cfg.Warehouse.DSN); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SNOWFLAKE_ACCOUNT", &cfg.Warehouse.Account); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SNOWFLAKE_USER", &cfg.Warehouse.User); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SNOWFLAKE_PASSWORD", &cfg.Warehouse.Password); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SNOWFLAKE_WAREHOUSE", &cfg.Warehouse.Warehouse); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "SNOWFLAKE_ROLE", &cfg.Warehouse.Role); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "ASKWH_WAREHOUSE_MAX_OPEN_CONNS", &cfg.Warehouse.MaxOpenConns); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "ASKWH_WAREHOUSE_MAX_IDLE_CONNS", &cfg.Warehouse.MaxIdleConns); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "ASKWH_WAREHOUSE_CONN_MAX_IDLE_TIME", &cfg.Warehouse.ConnMaxIdleTime); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "ASKWH_WAREHOUSE_CONN_MAX_LIFETIME", &cfg.Warehouse.ConnMaxLifetime); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "ASKWH_WAREHOUSE_QUERY_TIMEOUT", &cfg.Warehouse.QueryTimeout); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "ASKWH_WAREHOUSE_ROW_LIMIT", &cfg.Warehouse.RowLimit); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "ASKWH_ARCHIVE_ENABLED", &cfg.Archive.Enabled); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKWH_ARCHIVE_ENDPOINT", &cfg.Archive.Endpoint); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKWH_ARCHIVE_REGION", &cfg.Archive.Region); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKWH_ARCHIVE_BUCKET", &cfg.Archive.Bucket); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKWH_ARCHIVE_ACCESS_KEY", &cfg.Archive.AccessKeyID); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKWH_ARCHIVE_SECRET_KEY", &cfg.Archive.SecretAccessKey); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "ASKWH_ARCHIVE_USE_SSL", &cfg.Archive.UseSSL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKWH_ARCHIVE_PREFIX", &cfg.Archive.Prefix); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "ASKWH_ARCHIVE_AUTO_CREATE_BUCKET", &cfg.Archive.AutoCreateBucket); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "ASKWH_LOG_JSON", &cfg.Observability.LogJSON); err != nil {
		return Config{}, err
	}
	if err := applyLogLevel(lookup, "ASKWH_LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKWH_TRACING_EXPORTER", &cfg.Observability.TracingExporter); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "ASKWH_AUTH_REQUIRED", &cfg.Auth.Required); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "ASKWH_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "ASKWH_RATE_LIMIT_PER_MIN", &cfg.Auth.RateLimitPerMin); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "ASKWH_RATE_LIMIT_BURST", &cfg.Auth.RateLimitBurst); err != nil {
		return Config{}, err
	}

	if cfg.Analyst.BaseURL == "" && cfg.Warehouse.Account != "" {
		cfg.Analyst.BaseURL = AccountURL(cfg.Warehouse.Account)
	}
	cfg.Warehouse.Driver = strings.ToLower(cfg.Warehouse.Driver)

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return Config{}, fmt.Errorf("http address is required")
	}
	if !isValidDriver(cfg.Warehouse.Driver) {
		return Config{}, fmt.Errorf("invalid ASKWH_WAREHOUSE_DRIVER: %q", cfg.Warehouse.Driver)
	}
	if cfg.Analyst.BreakerMaxFailures < 0 {
		return Config{}, fmt.Errorf("invalid ASKWH_ANALYST_BREAKER_MAX_FAILURES: %d", cfg.Analyst.BreakerMaxFailures)
	}
	if cfg.Warehouse.RowLimit < 0 {
		return Config{}, fmt.Errorf("invalid ASKWH_WAREHOUSE_ROW_LIMIT: %d", cfg.Warehouse.RowLimit)
	}
	if cfg.Archive.Enabled && cfg.Archive.Bucket == "" {
		return Config{}, fmt.Errorf("archive bucket is required when archiving is enabled")
	}
	return cfg, nil
}

// AccountURL is the default analyst endpoint host for a Snowflake account
// identifier.
func AccountURL(account string) string {
	return "https://" + strings.ToLower(strings.TrimSpace(account)) + ".snowflakecomputing.com"
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "askwarehouse-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 3 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		Analyst: AnalystConfig{
			TokenType:          "KEYPAIR_JWT",
			Timeout:            2 * time.Minute,
			BreakerMaxFailures: 5,
			BreakerTimeout:     30 * time.Second,
		},
		SemanticModel: SemanticModelConfig{
			Database: "CORTEX_ANALYST_DEMO",
			Schema:   "REVENUE_TIMESERIES",
			Stage:    "RAW_DATA",
			File:     "revenue_timeseries.yaml",
		},
		Warehouse: WarehouseConfig{
			Driver:          DriverSnowflake,
			Warehouse:       "COMPUTE_WH",
			Role:            "ACCOUNTADMIN",
			MaxOpenConns:    8,
			MaxIdleConns:    8,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
			QueryTimeout:    60 * time.Second,
			RowLimit:        0,
		},
		Archive: ArchiveConfig{
			Enabled:          false,
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "askwarehouse",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			Prefix:           "",
			AutoCreateBucket: true,
		},
		Observability: ObservabilityConfig{
			LogLevel:        slog.LevelDebug,
			LogJSON:         true,
			TracingExporter: "noop",
		},
		Auth: AuthConfig{
			Required:        false,
			StaticKeys:      "",
			RateLimitPerMin: 0,
			RateLimitBurst:  5,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.Auth.Required = false
		cfg.Warehouse.Driver = DriverSQLite
		cfg.Warehouse.DSN = "file::memory:?cache=shared"
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.Auth.RateLimitPerMin = 60
		cfg.Archive.UseSSL = true
		cfg.Archive.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func isValidDriver(driver string) bool {
	switch driver {
	case DriverSnowflake, DriverPostgres, DriverDuckDB, DriverSQLite:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
