package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/askwarehouse/askwarehouse/internal/analyst"
	"github.com/askwarehouse/askwarehouse/internal/ask"
	"github.com/askwarehouse/askwarehouse/internal/config"
	"github.com/askwarehouse/askwarehouse/internal/warehouse"
)

const analystReply = "event: message.content.delta\n" +
	"data: {\"index\":0,\"type\":\"text\",\"text_delta\":\"Daily revenue \"}\n\n" +
	"event: message.content.delta\n" +
	"data: {\"index\":1,\"type\":\"sql\",\"statement_delta\":\"SELECT day, amount \"}\n\n" +
	": keep-alive\n\n" +
	"event: message.content.delta\n" +
	"data: {\"index\":1,\"type\":\"sql\",\"statement_delta\":\"FROM revenue ORDER BY day\"}\n\n" +
	"event: message.content.delta\n" +
	"data: {\"index\":2,\"type\":\"text\",\"text_delta\":\"for January.\"}\n\n" +
	"event: status\n" +
	"data: {\"status\":\"done\",\"status_message\":\"Done\"}\n\n"

func TestAskEndToEndAgainstSQLite(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != analyst.MessagePath {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, analystReply)
	}))
	defer upstream.Close()

	client, err := analyst.NewClient(analyst.Config{
		BaseURL: upstream.URL,
		Token:   "jwt",
		SemanticModelFile: analyst.SemanticModelFile{
			Database: "CORTEX_ANALYST_DEMO",
			Schema:   "REVENUE_TIMESERIES",
			Stage:    "RAW_DATA",
			File:     "revenue_timeseries.yaml",
		},
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	db, err := warehouse.Open(context.Background(), warehouse.DBConfig{Driver: warehouse.DriverSQLite, DSN: ":memory:", MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("warehouse.Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Exec(`CREATE TABLE revenue (day TEXT, amount INTEGER)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO revenue VALUES ('2024-01-01', 10), ('2024-01-02', 20)`); err != nil {
		t.Fatalf("insert: %v", err)
	}

	cfg, err := config.Load("askwarehouse-api", mapLookup(map[string]string{"ASKWH_PROFILE": "test"}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	service := &ask.Service{Conversation: client, Warehouse: warehouse.NewPool(db, 0)}
	h := NewHandler(cfg, Dependencies{Asker: service})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, askRequestWith(`{"question":"What was daily revenue in January?"}`, ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}

	var got struct {
		Text       string             `json:"text"`
		SQLQueries []string           `json:"sql_queries"`
		Results    [][]map[string]any `json:"results"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Text != "Daily revenue for January." {
		t.Fatalf("text = %q", got.Text)
	}
	if !reflect.DeepEqual(got.SQLQueries, []string{"SELECT day, amount FROM revenue ORDER BY day"}) {
		t.Fatalf("sql_queries = %#v", got.SQLQueries)
	}
	want := [][]map[string]any{{
		{"day": "2024-01-01", "amount": float64(10)},
		{"day": "2024-01-02", "amount": float64(20)},
	}}
	if !reflect.DeepEqual(got.Results, want) {
		t.Fatalf("results = %#v", got.Results)
	}
}

func TestAskEndToEndUpstreamForbidden(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"message":"Unauthorized access"}`)
	}))
	defer upstream.Close()

	client, err := analyst.NewClient(analyst.Config{BaseURL: upstream.URL, Token: "jwt", SemanticModelYAML: "name: m\ntables:\n  - name: t\n"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	cfg, err := config.Load("askwarehouse-api", mapLookup(map[string]string{"ASKWH_PROFILE": "test"}))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	h := NewHandler(cfg, Dependencies{Asker: &ask.Service{Conversation: client, Warehouse: warehouse.NewPool(nil, 0)}})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, askRequestWith(`{"question":"q"}`, ""))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if msg := decodeBody(t, rr)["message"]; msg != `Failed request: {"message":"Unauthorized access"}` {
		t.Fatalf("message = %v", msg)
	}
}
