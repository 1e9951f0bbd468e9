package ask

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/askwarehouse/askwarehouse/internal/analyst"
	"github.com/askwarehouse/askwarehouse/internal/observability"
	"github.com/askwarehouse/askwarehouse/internal/stream"
	"github.com/askwarehouse/askwarehouse/internal/warehouse"
)

type Service struct {
	Conversation Conversation
	Warehouse    Warehouse
	Archiver     Archiver
	Logger       *slog.Logger
	// QueryTimeout bounds each statement; zero leaves only the caller's deadline.
	QueryTimeout time.Duration
	MaxEventSize int
	Clock        func() time.Time
}

func (s *Service) Ask(ctx context.Context, question string) (Response, error) {
	s.ensureDefaults()
	askedAt := s.Clock()

	ctx, span := observability.StartSpan(ctx, "ask")
	defer span.End()

	response, err := s.ask(ctx, question)
	elapsed := s.Clock().Sub(askedAt)
	outcome := Outcome(err)
	observability.ObserveAsk(outcome, len(response.SQLQueries), elapsed)

	traceID := observability.TraceIDFromContext(ctx)
	if err != nil {
		observability.RecordSpanError(span, err)
		s.Logger.WarnContext(ctx, "ask failed",
			slog.String("trace_id", traceID),
			slog.String("outcome", outcome),
			slog.Any("error", err),
		)
		return Response{}, err
	}

	s.Logger.InfoContext(ctx, "ask completed",
		slog.String("trace_id", traceID),
		slog.Int("sql_statements", len(response.SQLQueries)),
		slog.Int64("duration_ms", elapsed.Milliseconds()),
	)

	if s.Archiver != nil {
		record := Record{TraceID: traceID, AskedAt: askedAt, Question: question, Response: response}
		if err := s.Archiver.Archive(ctx, record); err != nil {
			observability.IncrementArchiveFailure()
			s.Logger.ErrorContext(ctx, "archive answer failed",
				slog.String("trace_id", traceID),
				slog.Any("error", err),
			)
		}
	}
	return response, nil
}

func (s *Service) ask(ctx context.Context, question string) (Response, error) {
	if strings.TrimSpace(question) == "" {
		return Response{}, ErrQuestionRequired
	}
	if s.Conversation == nil || s.Warehouse == nil {
		return Response{}, &InternalError{Message: "ask service is not configured"}
	}

	decoded, err := s.converse(ctx, question)
	if err != nil {
		return Response{}, err
	}

	results, err := s.execute(ctx, decoded.SQL)
	if err != nil {
		return Response{}, err
	}

	sqlQueries := decoded.SQL
	if sqlQueries == nil {
		sqlQueries = []string{}
	}
	return Response{Text: decoded.Text, SQLQueries: sqlQueries, Results: results}, nil
}

func (s *Service) converse(ctx context.Context, question string) (stream.Result, error) {
	body, err := s.Conversation.Send(ctx, question)
	if err != nil {
		var upstream *analyst.UpstreamError
		if errors.As(err, &upstream) {
			return stream.Result{}, upstream
		}
		return stream.Result{}, &InternalError{Message: "send question", Err: err}
	}
	defer func() { _ = body.Close() }()

	decodeCtx, span := observability.StartSpan(ctx, "stream.decode")
	defer span.End()

	result, err := stream.DecodeWith(decodeCtx, stream.NewSSESource(body, s.MaxEventSize), func(event stream.Event) {
		observability.IncrementStreamEvent(event.Kind)
	})
	if err != nil {
		observability.RecordSpanError(span, err)
		var streamErr *stream.Error
		if errors.As(err, &streamErr) {
			return stream.Result{}, streamErr
		}
		return stream.Result{}, &InternalError{Message: "decode analyst stream", Err: err}
	}
	return result, nil
}

func (s *Service) execute(ctx context.Context, statements []string) ([][]warehouse.Row, error) {
	results := make([][]warehouse.Row, 0, len(statements))
	if len(statements) == 0 {
		return results, nil
	}

	session, err := s.Warehouse.Session(ctx)
	if err != nil {
		return nil, &InternalError{Message: "acquire warehouse session", Err: err}
	}
	defer func() { _ = session.Close() }()

	for index, statement := range statements {
		rows, err := s.runStatement(ctx, session, statement)
		if err != nil {
			return nil, &QueryExecutionError{Index: index, SQL: statement, Err: err}
		}
		if rows == nil {
			rows = []warehouse.Row{}
		}
		results = append(results, rows)
	}
	return results, nil
}

func (s *Service) runStatement(ctx context.Context, session warehouse.Session, statement string) ([]warehouse.Row, error) {
	if s.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.QueryTimeout)
		defer cancel()
	}
	return session.Query(ctx, statement)
}

func (s *Service) ensureDefaults() {
	if s.Clock == nil {
		s.Clock = time.Now
	}
	if s.Logger == nil {
		s.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
}

// Outcome classifies an Ask error for metrics and logs.
func Outcome(err error) string {
	var (
		upstream  *analyst.UpstreamError
		streamErr *stream.Error
		queryErr  *QueryExecutionError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrQuestionRequired):
		return "invalid"
	case errors.As(err, &upstream):
		return "upstream_error"
	case errors.Is(err, analyst.ErrUnavailable):
		return "unavailable"
	case errors.As(err, &streamErr):
		return "stream_error"
	case errors.As(err, &queryErr):
		return "query_error"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "internal_error"
	}
}
