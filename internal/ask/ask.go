// Package ask answers a natural-language question by streaming the analyst
// reply, decoding it into narrative text and SQL, and running that SQL on
// the warehouse.
package ask

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/askwarehouse/askwarehouse/internal/warehouse"
)

var ErrQuestionRequired = errors.New("question is required")

// Response is the assembled answer. SQLQueries and Results are index-aligned.
type Response struct {
	Text       string            `json:"text"`
	SQLQueries []string          `json:"sql_queries"`
	Results    [][]warehouse.Row `json:"results"`
}

// Conversation sends one question upstream and returns the streamed reply body.
type Conversation interface {
	Send(ctx context.Context, question string) (io.ReadCloser, error)
}

type Warehouse interface {
	Session(ctx context.Context) (warehouse.Session, error)
}

// Record is what gets archived for every successful answer.
type Record struct {
	TraceID  string
	AskedAt  time.Time
	Question string
	Response Response
}

type Archiver interface {
	Archive(ctx context.Context, record Record) error
}

// QueryExecutionError reports the first statement that failed. Statements
// after Index were not run.
type QueryExecutionError struct {
	Index int
	SQL   string
	Err   error
}

func (e *QueryExecutionError) Error() string {
	return fmt.Sprintf("execute sql statement %d: %v", e.Index, e.Err)
}

func (e *QueryExecutionError) Unwrap() error {
	return e.Err
}

// InternalError covers every failure that is neither an upstream rejection,
// a stream error event, nor a statement failure.
type InternalError struct {
	Message string
	Err     error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *InternalError) Unwrap() error {
	return e.Err
}
