package analyst

import (
	"errors"
	"fmt"
	"strings"
)

// MessagePath is the analyst message endpoint relative to the account URL.
const MessagePath = "/api/v2/cortex/analyst/message"

// Token types understood by the analyst service.
const (
	TokenTypeSession = "SESSION"
	TokenTypeJWT     = "KEYPAIR_JWT"
	TokenTypeOAuth   = "OAUTH"
	TokenTypePAT     = "PROGRAMMATIC_ACCESS_TOKEN"
)

var ErrUnavailable = errors.New("analyst service unavailable")

// SemanticModelFile references a semantic model staged in the warehouse.
type SemanticModelFile struct {
	Database string
	Schema   string
	Stage    string
	File     string
}

func (f SemanticModelFile) String() string {
	return fmt.Sprintf("@%s.%s.%s/%s", f.Database, f.Schema, f.Stage, f.File)
}

func (f SemanticModelFile) Validate() error {
	parts := map[string]string{"database": f.Database, "schema": f.Schema, "stage": f.Stage, "file": f.File}
	for _, name := range []string{"database", "schema", "stage", "file"} {
		if strings.TrimSpace(parts[name]) == "" {
			return fmt.Errorf("semantic model %s is required", name)
		}
	}
	return nil
}

// UpstreamError is returned when the analyst service rejects the message
// request before any stream is opened.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("analyst request failed status=%d body=%s", e.StatusCode, e.Body)
}

type messageRequest struct {
	Messages          []message `json:"messages"`
	SemanticModelFile string    `json:"semantic_model_file,omitempty"`
	SemanticModel     string    `json:"semantic_model,omitempty"`
	Stream            bool      `json:"stream"`
}

type message struct {
	Role    string           `json:"role"`
	Content []messageContent `json:"content"`
}

type messageContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
