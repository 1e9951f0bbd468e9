package stream

import "encoding/json"

// Event kinds emitted by the analyst message stream.
const (
	KindContentDelta = "message.content.delta"
	KindStatus       = "status"
	KindError        = "error"
)

// Delta payload types carried by KindContentDelta events.
const (
	DeltaText        = "text"
	DeltaSQL         = "sql"
	DeltaSuggestions = "suggestions"
)

const statusDone = "done"

type Event struct {
	Kind string
	Data json.RawMessage
}

type SegmentKind string

const (
	SegmentText SegmentKind = "text"
	SegmentSQL  SegmentKind = "sql"
)

type Segment struct {
	Kind    SegmentKind `json:"kind"`
	Content string      `json:"content"`
}

type contentDelta struct {
	Index            int               `json:"index"`
	Type             string            `json:"type"`
	TextDelta        string            `json:"text_delta"`
	StatementDelta   string            `json:"statement_delta"`
	SuggestionsDelta *suggestionsDelta `json:"suggestions_delta"`
}

type suggestionsDelta struct {
	Index           int    `json:"index"`
	SuggestionDelta string `json:"suggestion_delta"`
}

type statusPayload struct {
	Status        string `json:"status"`
	StatusMessage string `json:"status_message"`
}

func (p statusPayload) message() string {
	if p.StatusMessage != "" {
		return p.StatusMessage
	}
	return p.Status
}
