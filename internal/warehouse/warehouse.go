package warehouse

import (
	"context"
	"database/sql"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"github.com/askwarehouse/askwarehouse/internal/observability"
)

// Row is one result row keyed by column name.
type Row map[string]any

// Session runs statements on a single borrowed warehouse connection.
type Session interface {
	Query(ctx context.Context, sqlText string) ([]Row, error)
	Close() error
}

// Pool hands out sessions backed by connections of a shared *sql.DB.
type Pool struct {
	db       *sql.DB
	rowLimit int
	logger   *slog.Logger
}

func NewPool(db *sql.DB, rowLimit int) *Pool {
	if rowLimit < 0 {
		rowLimit = 0
	}
	return &Pool{db: db, rowLimit: rowLimit, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// WithLogger sets the logger used to report truncated results.
func (p *Pool) WithLogger(logger *slog.Logger) *Pool {
	if logger != nil {
		p.logger = logger
	}
	return p
}

func (p *Pool) Session(ctx context.Context) (Session, error) {
	if p == nil || p.db == nil {
		return nil, fmt.Errorf("warehouse pool is not configured")
	}
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("borrow warehouse connection: %w", err)
	}
	return &connSession{conn: conn, rowLimit: p.rowLimit, logger: p.logger}, nil
}

func (p *Pool) Ping(ctx context.Context) error {
	if p == nil || p.db == nil {
		return fmt.Errorf("warehouse pool is not configured")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := p.db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ping warehouse: %w", err)
	}
	return nil
}

func (p *Pool) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

type connSession struct {
	conn     *sql.Conn
	rowLimit int
	logger   *slog.Logger
}

func (s *connSession) Query(ctx context.Context, sqlText string) ([]Row, error) {
	ctx, span := observability.StartSpan(ctx, "warehouse.query")
	defer span.End()

	start := time.Now()
	rows, truncated, err := s.query(ctx, sqlText)
	observability.ObserveWarehouseQuery(err, time.Since(start))
	if err != nil {
		observability.RecordSpanError(span, err)
		return nil, err
	}
	if truncated {
		span.SetAttributes(attribute.Int("warehouse.row_limit", s.rowLimit), attribute.Bool("warehouse.truncated", true))
		observability.IncrementRowLimitTruncation()
		s.logger.WarnContext(ctx, "warehouse result truncated at row limit",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.Int("row_limit", s.rowLimit),
		)
	}
	return rows, nil
}

// query reports truncated when the row limit stopped iteration before the
// result set was exhausted.
func (s *connSession) query(ctx context.Context, sqlText string) ([]Row, bool, error) {
	statement := stripTrailingSemicolons(sqlText)
	if statement == "" {
		return nil, false, fmt.Errorf("sql is required")
	}

	rows, err := s.conn.QueryContext(ctx, statement)
	if err != nil {
		return nil, false, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, false, fmt.Errorf("query columns: %w", err)
	}

	result := make([]Row, 0)
	truncated := false
	for rows.Next() {
		if s.rowLimit > 0 && len(result) >= s.rowLimit {
			truncated = true
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, false, fmt.Errorf("scan row: %w", err)
		}
		row := make(Row, len(columns))
		for i, column := range columns {
			row[column] = normalizeValue(values[i])
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate rows: %w", err)
	}
	return result, truncated, nil
}

func (s *connSession) Close() error {
	return s.conn.Close()
}

// normalizeValue makes driver values JSON encodable. Text columns arrive as
// []byte from several drivers; bytes that are not valid UTF-8 are binary and
// are base64 encoded. Non-finite floats become "NaN", "Infinity" or
// "-Infinity".
func normalizeValue(value any) any {
	switch typed := value.(type) {
	case []byte:
		if utf8.Valid(typed) {
			return string(typed)
		}
		return base64.StdEncoding.EncodeToString(typed)
	case float64:
		return normalizeFloat(typed)
	case float32:
		if f := float64(typed); math.IsNaN(f) || math.IsInf(f, 0) {
			return normalizeFloat(f)
		}
		return typed
	default:
		return typed
	}
}

func normalizeFloat(f float64) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	default:
		return f
	}
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
