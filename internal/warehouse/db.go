package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
	"github.com/snowflakedb/gosnowflake"
	_ "modernc.org/sqlite"
)

const (
	DriverSnowflake = "snowflake"
	DriverPostgres  = "pgx"
	DriverDuckDB    = "duckdb"
	DriverSQLite    = "sqlite"
)

type DBConfig struct {
	Driver string
	// DSN overrides the Snowflake fields below when set. It is required for
	// every other driver.
	DSN       string
	Account   string
	User      string
	Password  string
	Database  string
	Schema    string
	Warehouse string
	Role      string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

func Open(ctx context.Context, cfg DBConfig) (*sql.DB, error) {
	dsn, err := DataSourceName(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open warehouse db: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping warehouse db: %w", err)
	}

	return db, nil
}

// DataSourceName resolves the driver DSN. Snowflake DSNs are built from the
// account fields unless one is given explicitly.
func DataSourceName(cfg DBConfig) (string, error) {
	switch cfg.Driver {
	case DriverSnowflake:
		if cfg.DSN != "" {
			return cfg.DSN, nil
		}
		if cfg.Account == "" || cfg.User == "" {
			return "", fmt.Errorf("snowflake account and user are required")
		}
		dsn, err := gosnowflake.DSN(&gosnowflake.Config{
			Account:   cfg.Account,
			User:      cfg.User,
			Password:  cfg.Password,
			Database:  cfg.Database,
			Schema:    cfg.Schema,
			Warehouse: cfg.Warehouse,
			Role:      cfg.Role,
		})
		if err != nil {
			return "", fmt.Errorf("build snowflake dsn: %w", err)
		}
		return dsn, nil
	case DriverPostgres, DriverSQLite:
		if cfg.DSN == "" {
			return "", fmt.Errorf("warehouse dsn is required for driver %s", cfg.Driver)
		}
		return cfg.DSN, nil
	case DriverDuckDB:
		// An empty DSN opens an in-memory database.
		return cfg.DSN, nil
	default:
		return "", fmt.Errorf("unsupported warehouse driver: %q", cfg.Driver)
	}
}
