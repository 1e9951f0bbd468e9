// Package archive writes answered questions to object storage as Parquet.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/askwarehouse/askwarehouse/internal/ask"
	"github.com/askwarehouse/askwarehouse/internal/observability"
	"github.com/askwarehouse/askwarehouse/internal/storage"
)

const contentTypeParquet = "application/vnd.apache.parquet"

type Archiver struct {
	Store   storage.ObjectStore
	Timeout time.Duration
}

func New(store storage.ObjectStore) *Archiver {
	return &Archiver{Store: store, Timeout: 10 * time.Second}
}

// Archive uploads one answer. It outlives the caller's cancellation so an
// answer already sent to a disconnected client is still recorded.
func (a *Archiver) Archive(ctx context.Context, record ask.Record) error {
	if a == nil || a.Store == nil {
		return fmt.Errorf("archive store is required")
	}

	ctx = context.WithoutCancel(ctx)
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}
	ctx, span := observability.StartSpan(ctx, "archive.put")
	defer span.End()

	// Trace ids come from clients and may repeat, so objects are keyed by a
	// fresh ULID and the trace id is kept as a column.
	answerID := newAnswerID(record.AskedAt)
	key, err := storage.BuildAnswerPath(answerID, record.AskedAt)
	if err != nil {
		return fmt.Errorf("build answer path: %w", err)
	}

	encoded, err := EncodeAnswer(answerID, record)
	if err != nil {
		observability.RecordSpanError(span, err)
		return fmt.Errorf("encode answer: %w", err)
	}

	if _, err := a.Store.Put(ctx, key, bytes.NewReader(encoded.Data), int64(len(encoded.Data)), storage.PutOptions{ContentType: contentTypeParquet}); err != nil {
		observability.RecordSpanError(span, err)
		return fmt.Errorf("put answer %q: %w", key, err)
	}
	return nil
}

func (a *Archiver) Ping(ctx context.Context) error {
	if a == nil || a.Store == nil {
		return fmt.Errorf("archive store is required")
	}
	return a.Store.Ping(ctx)
}

func newAnswerID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}
