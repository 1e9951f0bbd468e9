package demo

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

type SeedConfig struct {
	Driver string
	Start  time.Time
	Days   int
	Seed   int64
	// Replace clears daily_revenue before inserting.
	Replace bool
}

type SeedResult struct {
	MigrationsApplied int
	RowsInserted      int
}

// Seed creates the demo schema on db and fills daily_revenue with generated
// rows in a single transaction.
func Seed(ctx context.Context, db *sql.DB, cfg SeedConfig, logger *slog.Logger) (SeedResult, error) {
	if db == nil {
		return SeedResult{}, fmt.Errorf("db is required")
	}
	if cfg.Days <= 0 {
		return SeedResult{}, fmt.Errorf("days must be > 0")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	applied, err := NewMigrator(cfg.Driver).Up(ctx, db)
	if err != nil {
		return SeedResult{}, err
	}
	rows := NewGenerator(cfg.Seed).Rows(cfg.Start, cfg.Days)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return SeedResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if cfg.Replace {
		if _, err := tx.ExecContext(ctx, `DELETE FROM daily_revenue`); err != nil {
			return SeedResult{}, fmt.Errorf("clear daily_revenue: %w", err)
		}
	}
	marks := make([]string, 6)
	for i := range marks {
		marks[i] = placeholder(cfg.Driver, i+1)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO daily_revenue
(date, product_line, sales_region, revenue, cogs, forecasted_revenue)
VALUES (`+strings.Join(marks, ", ")+`)`)
	if err != nil {
		return SeedResult{}, fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx,
			row.Date.Format(time.DateOnly),
			row.ProductLine,
			row.SalesRegion,
			row.Revenue,
			row.COGS,
			row.ForecastedRevenue,
		); err != nil {
			return SeedResult{}, fmt.Errorf("insert %s/%s/%s: %w", row.Date.Format(time.DateOnly), row.ProductLine, row.SalesRegion, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return SeedResult{}, fmt.Errorf("commit seed: %w", err)
	}

	logger.Info("demo warehouse seeded",
		slog.Int("migrations_applied", applied),
		slog.Int("rows", len(rows)),
		slog.String("start", cfg.Start.Format(time.DateOnly)),
	)
	return SeedResult{MigrationsApplied: applied, RowsInserted: len(rows)}, nil
}
