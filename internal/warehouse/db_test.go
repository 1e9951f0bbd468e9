package warehouse

import (
	"context"
	"strings"
	"testing"
)

func TestDataSourceNameBuildsSnowflakeDSN(t *testing.T) {
	dsn, err := DataSourceName(DBConfig{
		Driver:    DriverSnowflake,
		Account:   "myorg-acct1",
		User:      "analyst",
		Password:  "secret",
		Warehouse: "COMPUTE_WH",
		Role:      "REPORTER",
	})
	if err != nil {
		t.Fatalf("DataSourceName() error = %v", err)
	}
	if !strings.HasPrefix(dsn, "analyst:secret@") {
		t.Fatalf("dsn = %q", dsn)
	}
	for _, want := range []string{"warehouse=COMPUTE_WH", "role=REPORTER"} {
		if !strings.Contains(dsn, want) {
			t.Fatalf("dsn = %q, missing %q", dsn, want)
		}
	}
}

func TestDataSourceNamePrefersExplicitDSN(t *testing.T) {
	dsn, err := DataSourceName(DBConfig{Driver: DriverSnowflake, DSN: "u:p@acct/db", Account: "ignored"})
	if err != nil {
		t.Fatalf("DataSourceName() error = %v", err)
	}
	if dsn != "u:p@acct/db" {
		t.Fatalf("dsn = %q", dsn)
	}
}

func TestDataSourceNameValidation(t *testing.T) {
	tests := []DBConfig{
		{Driver: DriverSnowflake, User: "u"},
		{Driver: DriverSnowflake, Account: "a"},
		{Driver: DriverPostgres},
		{Driver: DriverSQLite},
		{Driver: "oracle", DSN: "x"},
	}
	for _, cfg := range tests {
		if _, err := DataSourceName(cfg); err == nil {
			t.Fatalf("DataSourceName(%#v) expected error", cfg)
		}
	}
}

func TestOpenRequiresDriverSettings(t *testing.T) {
	if _, err := Open(context.Background(), DBConfig{Driver: DriverPostgres}); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestOpenDuckDBInMemory(t *testing.T) {
	db, err := Open(context.Background(), DBConfig{Driver: DriverDuckDB})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	session, err := NewPool(db, 0).Session(context.Background())
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	defer func() { _ = session.Close() }()

	rows, err := session.Query(context.Background(), "SELECT 42 AS answer")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(rows) != 1 || rows[0]["answer"] != int32(42) {
		t.Fatalf("rows = %#v", rows)
	}
}
