package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/askwarehouse/askwarehouse/internal/analyst"
	"github.com/askwarehouse/askwarehouse/internal/ask"
	"github.com/askwarehouse/askwarehouse/internal/stream"
)

const maxAskBodyBytes = 64 << 10

type askRequest struct {
	Question string `json:"question"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Asker == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASK_NOT_CONFIGURED", "ask service is not configured", false, nil)
		return
	}

	var request askRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAskBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	response, err := deps.Asker.Ask(r.Context(), request.Question)
	if err != nil {
		writeAskError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func writeAskError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		upstream  *analyst.UpstreamError
		streamErr *stream.Error
		queryErr  *ask.QueryExecutionError
	)
	switch {
	case errors.Is(err, ask.ErrQuestionRequired):
		writeError(ctx, w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
	case errors.As(err, &upstream):
		status := upstream.StatusCode
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		retryable := status == http.StatusTooManyRequests || status >= 500
		writeError(ctx, w, status, "UPSTREAM_REQUEST_FAILED", "Failed request: "+upstream.Body, retryable, map[string]any{"upstream_status": upstream.StatusCode})
	case errors.As(err, &streamErr):
		writeError(ctx, w, http.StatusInternalServerError, "STREAM_ERROR", "analyst stream reported an error", false, map[string]any{"payload": payloadValue(streamErr.Payload)})
	case errors.As(err, &queryErr):
		writeError(ctx, w, http.StatusInternalServerError, "QUERY_EXECUTION_FAILED", "query execution failed", false, map[string]any{
			"statement_index": queryErr.Index,
			"sql":             queryErr.SQL,
			"details":         queryErr.Error(),
		})
	case errors.Is(err, analyst.ErrUnavailable):
		writeError(ctx, w, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "analyst service is temporarily unavailable", true, nil)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(ctx, w, http.StatusGatewayTimeout, "TIMEOUT", "question timed out", true, nil)
	case errors.Is(err, context.Canceled):
		writeError(ctx, w, http.StatusRequestTimeout, "REQUEST_CANCELED", "request canceled", true, nil)
	default:
		writeError(ctx, w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", false, map[string]any{"details": err.Error()})
	}
}

func payloadValue(payload json.RawMessage) any {
	if json.Valid(payload) {
		return payload
	}
	return string(payload)
}
