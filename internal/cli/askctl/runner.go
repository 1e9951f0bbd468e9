package askctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type usageError struct {
	err error
}

func (e *usageError) Error() string {
	return e.err.Error()
}

type httpError struct {
	code int
	body []byte
}

func (e *httpError) Error() string {
	return fmt.Sprintf("http %d: %s", e.code, strings.TrimSpace(string(e.body)))
}

// Run executes one askwarehousectl invocation and returns the process exit
// code: 0 on success, 1 on request failure, 2 on usage errors.
func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	root := newRootCommand(defaults, stdout)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	_, _ = fmt.Fprintln(stderr, err)

	var usage *usageError
	if errors.As(err, &usage) || strings.HasPrefix(err.Error(), "unknown command") {
		_, _ = fmt.Fprintln(stderr)
		_, _ = fmt.Fprint(stderr, root.UsageString())
		return 2
	}
	return 1
}

type runner struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	client  *http.Client
	format  string
}

func newRootCommand(defaults Options, stdout io.Writer) *cobra.Command {
	r := &runner{client: defaults.HTTPClient}

	root := &cobra.Command{
		Use:           "askwarehousectl",
		Short:         "Command-line client for the askwarehouse API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return &usageError{err: errors.New("a command is required")}
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	flags := root.PersistentFlags()
	flags.StringVar(&r.baseURL, "base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "askwarehouse API base URL")
	flags.StringVar(&r.apiKey, "api-key", defaults.APIKey, "API key for authenticated requests")
	flags.DurationVar(&r.timeout, "timeout", durationOr(defaults.Timeout, 3*time.Minute), "HTTP timeout (e.g. 90s)")

	root.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "GET /v1/health",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.printJSON(cmd.Context(), stdout, http.MethodGet, "/v1/health", nil)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "ready",
		Short: "GET /v1/ready",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.printJSON(cmd.Context(), stdout, http.MethodGet, "/v1/ready", nil)
		},
	})

	askCmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "POST /v1/ask",
		Args: func(_ *cobra.Command, args []string) error {
			if strings.TrimSpace(strings.Join(args, " ")) == "" {
				return &usageError{err: errors.New("ask requires a question")}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.ask(cmd.Context(), stdout, strings.Join(args, " "))
		},
	}
	askCmd.Flags().StringVar(&r.format, "format", "json", "output format: json or text")
	root.AddCommand(askCmd)

	return root
}

func noArgs(_ *cobra.Command, args []string) error {
	if len(args) > 0 {
		return &usageError{err: fmt.Errorf("unexpected arguments: %s", strings.Join(args, " "))}
	}
	return nil
}

type answer struct {
	Text       string             `json:"text"`
	SQLQueries []string           `json:"sql_queries"`
	Results    [][]map[string]any `json:"results"`
}

func (r *runner) ask(ctx context.Context, stdout io.Writer, question string) error {
	if r.format != "json" && r.format != "text" {
		return &usageError{err: fmt.Errorf("unknown format %q", r.format)}
	}
	payload, err := json.Marshal(map[string]string{"question": question})
	if err != nil {
		return err
	}
	body, err := r.do(ctx, http.MethodPost, "/v1/ask", payload)
	if err != nil {
		return err
	}
	if r.format == "json" {
		writeBody(stdout, body)
		return nil
	}

	var decoded answer
	if err := json.Unmarshal(body, &decoded); err != nil {
		return fmt.Errorf("decode answer: %w", err)
	}
	_, _ = fmt.Fprintln(stdout, decoded.Text)
	for i, statement := range decoded.SQLQueries {
		_, _ = fmt.Fprintf(stdout, "\n-- query %d\n%s\n", i+1, statement)
		if i >= len(decoded.Results) {
			continue
		}
		_, _ = fmt.Fprintf(stdout, "-- %d row(s)\n", len(decoded.Results[i]))
		for _, row := range decoded.Results[i] {
			line, err := json.Marshal(row)
			if err != nil {
				return fmt.Errorf("encode row: %w", err)
			}
			_, _ = fmt.Fprintln(stdout, string(line))
		}
	}
	return nil
}

func (r *runner) printJSON(ctx context.Context, stdout io.Writer, method, path string, payload []byte) error {
	body, err := r.do(ctx, method, path, payload)
	if err != nil {
		return err
	}
	writeBody(stdout, body)
	return nil
}

func (r *runner) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	client := r.client
	if client == nil {
		client = &http.Client{Timeout: r.timeout}
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	endpoint := strings.TrimRight(r.baseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := strings.TrimSpace(r.apiKey); key != "" {
		req.Header.Set("X-API-Key", key)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, &httpError{code: resp.StatusCode, body: body}
	}
	return body, nil
}

func writeBody(w io.Writer, body []byte) {
	if pretty, ok := prettyJSON(body); ok {
		_, _ = fmt.Fprintln(w, pretty)
		return
	}
	if len(body) > 0 {
		_, _ = fmt.Fprintln(w, string(body))
	}
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
