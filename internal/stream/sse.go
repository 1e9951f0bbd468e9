package stream

import (
	"bytes"
	"io"

	"github.com/r3labs/sse/v2"
)

const (
	defaultMaxEventSize = 1 << 20
	defaultEventName    = "message"
)

var (
	fieldEvent = []byte("event")
	fieldData  = []byte("data")
	fieldID    = []byte("id")
	fieldRetry = []byte("retry")
)

// SSESource reads text/event-stream frames from r.
type SSESource struct {
	reader *sse.EventStreamReader
}

func NewSSESource(r io.Reader, maxEventSize int) *SSESource {
	if maxEventSize <= 0 {
		maxEventSize = defaultMaxEventSize
	}
	return &SSESource{reader: sse.NewEventStreamReader(r, maxEventSize)}
}

func (s *SSESource) Next() (Event, error) {
	for {
		raw, err := s.reader.ReadEvent()
		if err != nil {
			return Event{}, err
		}
		frame := parseFrame(raw)
		if frame == nil {
			continue
		}
		name := string(frame.Event)
		if name == "" {
			name = defaultEventName
		}
		return Event{Kind: name, Data: frame.Data}, nil
	}
}

// parseFrame returns nil for frames that carry neither a name nor data, such
// as keep-alive comments. Unknown fields are ignored.
func parseFrame(raw []byte) *sse.Event {
	normalized := bytes.ReplaceAll(raw, []byte("\r\n"), []byte("\n"))
	normalized = bytes.ReplaceAll(normalized, []byte("\r"), []byte("\n"))

	frame := &sse.Event{}
	var data [][]byte
	for _, line := range bytes.Split(normalized, []byte("\n")) {
		if len(line) == 0 || line[0] == ':' {
			continue
		}
		field, value := line, []byte(nil)
		if i := bytes.IndexByte(line, ':'); i >= 0 {
			field = line[:i]
			value = bytes.TrimPrefix(line[i+1:], []byte(" "))
		}
		switch {
		case bytes.Equal(field, fieldEvent):
			frame.Event = append([]byte{}, value...)
		case bytes.Equal(field, fieldData):
			data = append(data, value)
		case bytes.Equal(field, fieldID):
			frame.ID = append([]byte{}, value...)
		case bytes.Equal(field, fieldRetry):
			frame.Retry = append([]byte{}, value...)
		}
	}
	if len(frame.Event) == 0 && len(data) == 0 {
		return nil
	}
	frame.Data = bytes.Join(data, []byte("\n"))
	return frame
}
