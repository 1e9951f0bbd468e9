// Package stream reconstructs text and SQL segments from the analyst
// service's incremental message stream.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Mode is the decoder state. ModeDone and ModeFailed are terminal.
type Mode int

const (
	ModeNone Mode = iota
	ModeText
	ModeSQL
	ModeDone
	ModeFailed
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeText:
		return "text"
	case ModeSQL:
		return "sql"
	case ModeDone:
		return "done"
	case ModeFailed:
		return "failed"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Error is raised when the upstream stream emits an error event. Payload is
// the event body exactly as received.
type Error struct {
	Payload json.RawMessage
}

func (e *Error) Error() string {
	return fmt.Sprintf("analyst stream error: %s", string(e.Payload))
}

type Result struct {
	Text     string
	SQL      []string
	Segments []Segment
}

// Decoder consumes events one at a time. A Decoder belongs to a single
// question and must not be shared between goroutines.
//
// Suggestions deltas are treated like text: they close an open SQL block.
// Stream exhaustion flushes an open SQL block the same way a done status does.
type Decoder struct {
	mode      Mode
	text      []string
	run       []string
	sql       []string
	completed []string
	segments  []Segment
	err       error
}

func NewDecoder() *Decoder {
	return &Decoder{mode: ModeNone}
}

func (d *Decoder) Mode() Mode {
	return d.mode
}

func (d *Decoder) Terminal() bool {
	return d.mode == ModeDone || d.mode == ModeFailed
}

// Feed applies one event. It reports true once the decoder reached a terminal
// mode; the returned error is non-nil when that mode is ModeFailed.
func (d *Decoder) Feed(event Event) (bool, error) {
	if d.Terminal() {
		return true, d.err
	}
	var err error
	switch event.Kind {
	case KindContentDelta:
		err = d.onContentDelta(event.Data)
	case KindStatus:
		err = d.onStatus(event.Data)
	case KindError:
		d.onError(event.Data)
	default:
		return false, nil
	}
	if err != nil {
		d.fail(err)
	}
	return d.Terminal(), d.err
}

// Finish marks the stream as exhausted.
func (d *Decoder) Finish() {
	if d.Terminal() {
		return
	}
	d.closeRun()
	d.mode = ModeDone
}

func (d *Decoder) Result() (Result, error) {
	if d.mode == ModeFailed {
		return Result{}, d.err
	}
	if d.mode != ModeDone {
		return Result{}, fmt.Errorf("decoder not finished (mode=%s)", d.mode)
	}
	return Result{
		Text:     strings.Join(d.text, ""),
		SQL:      append([]string{}, d.completed...),
		Segments: append([]Segment{}, d.segments...),
	}, nil
}

func (d *Decoder) onContentDelta(data json.RawMessage) error {
	var delta contentDelta
	if err := json.Unmarshal(data, &delta); err != nil {
		return fmt.Errorf("decode %s payload: %w", KindContentDelta, err)
	}
	switch delta.Type {
	case DeltaSQL:
		d.onSQL(delta.StatementDelta)
	case DeltaText:
		d.onText(delta.TextDelta)
	case DeltaSuggestions:
		if delta.SuggestionsDelta == nil {
			return fmt.Errorf("suggestions delta without suggestions_delta")
		}
		d.onText(delta.SuggestionsDelta.SuggestionDelta)
	}
	return nil
}

func (d *Decoder) onSQL(fragment string) {
	if d.mode != ModeSQL {
		d.closeRun()
		d.sql = d.sql[:0]
		d.mode = ModeSQL
	}
	d.sql = append(d.sql, fragment)
}

func (d *Decoder) onText(fragment string) {
	if d.mode == ModeSQL {
		d.closeRun()
	}
	d.text = append(d.text, fragment)
	d.run = append(d.run, fragment)
	d.mode = ModeText
}

func (d *Decoder) onStatus(data json.RawMessage) error {
	var status statusPayload
	if err := json.Unmarshal(data, &status); err != nil {
		return fmt.Errorf("decode %s payload: %w", KindStatus, err)
	}
	if !strings.EqualFold(status.message(), statusDone) {
		return nil
	}
	d.closeRun()
	d.mode = ModeDone
	return nil
}

func (d *Decoder) onError(data json.RawMessage) {
	d.fail(&Error{Payload: append(json.RawMessage{}, data...)})
}

func (d *Decoder) fail(err error) {
	d.err = err
	d.mode = ModeFailed
}

// closeRun ends the current text run or SQL block and records its segment.
func (d *Decoder) closeRun() {
	switch d.mode {
	case ModeSQL:
		statement := strings.Join(d.sql, "")
		d.completed = append(d.completed, statement)
		d.segments = append(d.segments, Segment{Kind: SegmentSQL, Content: statement})
		d.sql = d.sql[:0]
	case ModeText:
		d.segments = append(d.segments, Segment{Kind: SegmentText, Content: strings.Join(d.run, "")})
		d.run = d.run[:0]
	}
	d.mode = ModeNone
}

// Source yields events in arrival order and returns io.EOF when exhausted.
type Source interface {
	Next() (Event, error)
}

// Decode drives src through a fresh Decoder until a terminal event or
// exhaustion. ctx is checked between events.
func Decode(ctx context.Context, src Source) (Result, error) {
	return DecodeWith(ctx, src, nil)
}

// DecodeWith is Decode with a hook invoked for every event pulled from src.
func DecodeWith(ctx context.Context, src Source, observe func(Event)) (Result, error) {
	decoder := NewDecoder()
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		event, err := src.Next()
		if errors.Is(err, io.EOF) {
			// the sse reader reports a cancelled body read as io.EOF
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{}, ctxErr
			}
			decoder.Finish()
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("read stream event: %w", err)
		}
		if observe != nil {
			observe(event)
		}
		done, err := decoder.Feed(event)
		if err != nil {
			return Result{}, err
		}
		if done {
			break
		}
	}
	return decoder.Result()
}
