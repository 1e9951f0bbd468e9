package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/askwarehouse/askwarehouse/internal/analyst"
	"github.com/askwarehouse/askwarehouse/internal/ask"
	"github.com/askwarehouse/askwarehouse/internal/config"
	"github.com/askwarehouse/askwarehouse/internal/stream"
	"github.com/askwarehouse/askwarehouse/internal/warehouse"
)

type fakeAsker struct {
	response  ask.Response
	err       error
	calls     int
	questions []string
}

func (f *fakeAsker) Ask(_ context.Context, question string) (ask.Response, error) {
	f.calls++
	f.questions = append(f.questions, question)
	return f.response, f.err
}

func newAskHandler(t *testing.T, asker Asker) http.Handler {
	t.Helper()
	cfg, err := config.Load("askwarehouse-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return NewHandler(cfg, Dependencies{Asker: asker})
}

func TestAskReturnsAnswer(t *testing.T) {
	asker := &fakeAsker{response: ask.Response{
		Text:       "Revenue by month.",
		SQLQueries: []string{"SELECT 1 AS x"},
		Results:    [][]warehouse.Row{{{"X": 1}}},
	}}
	h := newAskHandler(t, asker)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, askRequestWith(`{"question":"Monthly revenue?"}`, ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}

	var got struct {
		Text       string                     `json:"text"`
		SQLQueries []string                   `json:"sql_queries"`
		Results    [][]map[string]json.Number `json:"results"`
	}
	decoder := json.NewDecoder(rr.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Text != "Revenue by month." || !reflect.DeepEqual(got.SQLQueries, []string{"SELECT 1 AS x"}) {
		t.Fatalf("response = %#v", got)
	}
	if len(got.Results) != 1 || got.Results[0][0]["X"] != "1" {
		t.Fatalf("results = %#v", got.Results)
	}
	if asker.questions[0] != "Monthly revenue?" {
		t.Fatalf("question = %q", asker.questions[0])
	}
}

func TestAskUnencodableAnswerIsInternalError(t *testing.T) {
	asker := &fakeAsker{response: ask.Response{
		Text:       "Ratio.",
		SQLQueries: []string{"SELECT ratio FROM metrics"},
		Results:    [][]warehouse.Row{{{"v": math.NaN()}}},
	}}
	h := newAskHandler(t, asker)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, askRequestWith(`{"question":"ratio?"}`, ""))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d body=%q", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["error_code"] != "INTERNAL_ERROR" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
	if body["trace_id"] == "" || body["trace_id"] != rr.Header().Get("X-Trace-ID") {
		t.Fatalf("trace_id = %v, header = %q", body["trace_id"], rr.Header().Get("X-Trace-ID"))
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}
}

func TestAskRejectsInvalidBodies(t *testing.T) {
	tests := []struct {
		body string
		code string
	}{
		{body: `{"question":`, code: "INVALID_JSON"},
		{body: `{"question":"q","extra":1}`, code: "INVALID_JSON"},
		{body: `{"question":"   "}`, code: "QUESTION_REQUIRED"},
		{body: `{}`, code: "QUESTION_REQUIRED"},
	}
	for _, tc := range tests {
		asker := &fakeAsker{}
		rr := httptest.NewRecorder()
		newAskHandler(t, asker).ServeHTTP(rr, askRequestWith(tc.body, ""))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("body %s: status = %d", tc.body, rr.Code)
		}
		if got := decodeBody(t, rr)["error_code"]; got != tc.code {
			t.Fatalf("body %s: error_code = %v, want %s", tc.body, got, tc.code)
		}
		if asker.calls != 0 {
			t.Fatalf("body %s: asker called", tc.body)
		}
	}
}

func TestAskNotConfigured(t *testing.T) {
	rr := httptest.NewRecorder()
	newAskHandler(t, nil).ServeHTTP(rr, askRequestWith(`{"question":"q"}`, ""))
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestAskErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		code      string
		retryable bool
	}{
		{
			name:   "upstream forbidden",
			err:    &analyst.UpstreamError{StatusCode: http.StatusForbidden, Body: `{"message":"denied"}`},
			status: http.StatusForbidden,
			code:   "UPSTREAM_REQUEST_FAILED",
		},
		{
			name:      "upstream throttled",
			err:       &analyst.UpstreamError{StatusCode: http.StatusTooManyRequests, Body: "slow down"},
			status:    http.StatusTooManyRequests,
			code:      "UPSTREAM_REQUEST_FAILED",
			retryable: true,
		},
		{
			name:   "stream error",
			err:    &stream.Error{Payload: json.RawMessage(`{"message":"model missing"}`)},
			status: http.StatusInternalServerError,
			code:   "STREAM_ERROR",
		},
		{
			name:   "query failure",
			err:    &ask.QueryExecutionError{Index: 1, SQL: "SELECT broken", Err: errors.New("syntax error")},
			status: http.StatusInternalServerError,
			code:   "QUERY_EXECUTION_FAILED",
		},
		{
			name:      "breaker open",
			err:       &ask.InternalError{Message: "send question", Err: fmt.Errorf("%w: open", analyst.ErrUnavailable)},
			status:    http.StatusServiceUnavailable,
			code:      "UPSTREAM_UNAVAILABLE",
			retryable: true,
		},
		{
			name:      "timeout",
			err:       &ask.InternalError{Message: "send question", Err: context.DeadlineExceeded},
			status:    http.StatusGatewayTimeout,
			code:      "TIMEOUT",
			retryable: true,
		},
		{
			name:   "internal",
			err:    &ask.InternalError{Message: "decode analyst stream", Err: errors.New("bad json")},
			status: http.StatusInternalServerError,
			code:   "INTERNAL_ERROR",
		},
	}

	for _, tc := range tests {
		rr := httptest.NewRecorder()
		newAskHandler(t, &fakeAsker{err: tc.err}).ServeHTTP(rr, askRequestWith(`{"question":"q"}`, ""))
		if rr.Code != tc.status {
			t.Fatalf("%s: status = %d, want %d", tc.name, rr.Code, tc.status)
		}
		body := decodeBody(t, rr)
		if body["error_code"] != tc.code {
			t.Fatalf("%s: error_code = %v, want %s", tc.name, body["error_code"], tc.code)
		}
		if body["retryable"] != tc.retryable {
			t.Fatalf("%s: retryable = %v, want %v", tc.name, body["retryable"], tc.retryable)
		}
	}
}

func TestAskUpstreamErrorMessageCarriesBody(t *testing.T) {
	rr := httptest.NewRecorder()
	asker := &fakeAsker{err: &analyst.UpstreamError{StatusCode: http.StatusForbidden, Body: `{"message":"denied"}`}}
	newAskHandler(t, asker).ServeHTTP(rr, askRequestWith(`{"question":"q"}`, ""))

	body := decodeBody(t, rr)
	if body["message"] != `Failed request: {"message":"denied"}` {
		t.Fatalf("message = %v", body["message"])
	}
}

func TestAskStreamErrorExposesPayload(t *testing.T) {
	rr := httptest.NewRecorder()
	asker := &fakeAsker{err: &stream.Error{Payload: json.RawMessage(`{"message":"model missing","code":"392700"}`)}}
	newAskHandler(t, asker).ServeHTTP(rr, askRequestWith(`{"question":"q"}`, ""))

	body := decodeBody(t, rr)
	ctx, ok := body["context"].(map[string]any)
	if !ok {
		t.Fatalf("context = %#v", body["context"])
	}
	payload, ok := ctx["payload"].(map[string]any)
	if !ok || payload["code"] != "392700" {
		t.Fatalf("payload = %#v", ctx["payload"])
	}
}

func TestAskQueryFailureContext(t *testing.T) {
	rr := httptest.NewRecorder()
	asker := &fakeAsker{err: &ask.QueryExecutionError{Index: 1, SQL: "SELECT broken", Err: errors.New("syntax error")}}
	newAskHandler(t, asker).ServeHTTP(rr, askRequestWith(`{"question":"q"}`, ""))

	ctx, ok := decodeBody(t, rr)["context"].(map[string]any)
	if !ok {
		t.Fatal("expected error context")
	}
	if ctx["statement_index"] != float64(1) || ctx["sql"] != "SELECT broken" {
		t.Fatalf("context = %#v", ctx)
	}
}
