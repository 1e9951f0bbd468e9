package analyst

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/askwarehouse/askwarehouse/internal/observability"
)

const (
	defaultTimeout            = 2 * time.Minute
	defaultBreakerMaxFailures = 5
	defaultBreakerTimeout     = 30 * time.Second
	maxErrorBodyBytes         = 64 << 10
)

type BreakerConfig struct {
	MaxFailures uint32
	Timeout     time.Duration
}

type Config struct {
	BaseURL           string
	Token             string
	TokenType         string
	Timeout           time.Duration
	SemanticModelFile SemanticModelFile
	// SemanticModelYAML, when set, is sent inline instead of the staged file.
	SemanticModelYAML string
	Breaker           BreakerConfig
	HTTPClient        *http.Client
	Logger            *slog.Logger
}

type Client struct {
	endpoint    string
	token       string
	tokenType   string
	modelFile   string
	modelInline string
	client      *http.Client
	breaker     *gobreaker.CircuitBreaker[*http.Response]
	logger      *slog.Logger
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, fmt.Errorf("analyst token is required")
	}
	inline := strings.TrimSpace(cfg.SemanticModelYAML)
	if inline == "" {
		if err := cfg.SemanticModelFile.Validate(); err != nil {
			return nil, err
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Client{
		endpoint:    baseURL + MessagePath,
		token:       token,
		tokenType:   strings.ToUpper(strings.TrimSpace(cfg.TokenType)),
		modelInline: inline,
		client:      httpClient,
		logger:      logger,
	}
	if inline == "" {
		c.modelFile = cfg.SemanticModelFile.String()
	}
	c.breaker = newBreaker(cfg.Breaker, logger)
	return c, nil
}

func newBreaker(cfg BreakerConfig, logger *slog.Logger) *gobreaker.CircuitBreaker[*http.Response] {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultBreakerMaxFailures
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultBreakerTimeout
	}
	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "analyst",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			observability.SetAnalystBreakerState(int(to))
		},
		IsSuccessful: countsAsHealthy,
	})
}

// countsAsHealthy keeps client-side rejections and caller cancellations from
// tripping the breaker.
func countsAsHealthy(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.StatusCode < http.StatusInternalServerError
	}
	return false
}

// Send posts question to the analyst service and returns the streamed reply
// body. The caller owns the body. A status >= 400 yields *UpstreamError.
func (c *Client) Send(ctx context.Context, question string) (io.ReadCloser, error) {
	ctx, span := observability.StartSpan(ctx, "analyst.send")
	defer span.End()

	body, err := json.Marshal(c.buildRequest(question))
	if err != nil {
		return nil, fmt.Errorf("marshal analyst payload: %w", err)
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build analyst request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "text/event-stream")
		c.authorize(httpReq)

		resp, err := c.client.Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("request analyst message: %w", err)
		}
		if resp.StatusCode >= 400 {
			defer func() { _ = resp.Body.Close() }()
			raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
			if readErr != nil {
				return nil, fmt.Errorf("read analyst error body: %w", readErr)
			}
			return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: string(raw)}
		}
		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		observability.RecordSpanError(span, err)
		return nil, err
	}

	c.logger.DebugContext(ctx, "analyst stream opened",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.Int("status", resp.StatusCode),
		slog.String("request_id", resp.Header.Get("X-Snowflake-Request-Id")),
	)
	return resp.Body, nil
}

func (c *Client) buildRequest(question string) messageRequest {
	return messageRequest{
		Messages: []message{{
			Role:    "user",
			Content: []messageContent{{Type: "text", Text: question}},
		}},
		SemanticModelFile: c.modelFile,
		SemanticModel:     c.modelInline,
		Stream:            true,
	}
}

func (c *Client) authorize(req *http.Request) {
	if c.tokenType == TokenTypeSession {
		req.Header.Set("Authorization", fmt.Sprintf(`Snowflake Token="%s"`, c.token))
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if c.tokenType != "" {
		req.Header.Set("X-Snowflake-Authorization-Token-Type", c.tokenType)
	}
}

func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}
