package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/askwarehouse/askwarehouse/internal/config"
	"github.com/askwarehouse/askwarehouse/internal/demo"
	"github.com/askwarehouse/askwarehouse/internal/observability"
	"github.com/askwarehouse/askwarehouse/internal/warehouse"
)

func main() {
	direction := flag.String("direction", "up", "up seeds the demo table, down drops it")
	days := flag.Int("days", 365, "number of days of revenue to generate")
	start := flag.String("start", "", "first day (YYYY-MM-DD); defaults to days before today")
	seed := flag.Int64("seed", 1, "random seed for generated values")
	replace := flag.Bool("replace", false, "clear daily_revenue before inserting")
	flag.Parse()

	cfg, err := config.LoadFromEnv("askwarehouse-seed")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Warehouse.Driver == config.DriverSnowflake {
		fmt.Fprintln(os.Stderr, "seeding targets a local warehouse; set ASKWH_WAREHOUSE_DRIVER to pgx, duckdb or sqlite")
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	firstDay := time.Now().UTC().AddDate(0, 0, -*days)
	if *start != "" {
		firstDay, err = time.Parse(time.DateOnly, *start)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -start %q: %v\n", *start, err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := warehouse.Open(ctx, warehouse.DBConfig{
		Driver:       cfg.Warehouse.Driver,
		DSN:          cfg.Warehouse.DSN,
		MaxOpenConns: 1,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "database open error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	switch *direction {
	case "up":
		result, err := demo.Seed(ctx, db, demo.SeedConfig{
			Driver:  cfg.Warehouse.Driver,
			Start:   firstDay,
			Days:    *days,
			Seed:    *seed,
			Replace: *replace,
		}, logger)
		if err != nil {
			logger.Error("seed failed", slog.Any("error", err))
			os.Exit(1)
		}
		fmt.Printf("applied %d migration(s), inserted %d row(s)\n", result.MigrationsApplied, result.RowsInserted)
	case "down":
		n, err := demo.NewMigrator(cfg.Warehouse.Driver).Down(ctx, db)
		if err != nil {
			logger.Error("rollback failed", slog.Any("error", err))
			os.Exit(1)
		}
		fmt.Printf("rolled back %d migration(s)\n", n)
	default:
		fmt.Fprintf(os.Stderr, "invalid direction: %s\n", *direction)
		os.Exit(1)
	}
}
