// Package backend talks to the RAG backend over its HTTP/JSON contract.
package backend

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

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "http://localhost:8000"

	maxResponseBytes = 8 << 20
)

type requestIDKey struct{}

// WithRequestID attaches the ID sent as X-Request-ID on requests made with ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

type Client struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithTimeout bounds each exchange. Zero leaves requests unbounded. It is
// applied to a copy, so a client passed through WithHTTPClient keeps its own
// timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		baseURL: baseURL,
		client:  &http.Client{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.client
		hc.Timeout = c.timeout
		c.client = &hc
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ingest asks the backend to index the given source URLs.
func (c *Client) Ingest(ctx context.Context, urls []string) (IngestResult, error) {
	if urls == nil {
		urls = []string{}
	}

	var parsed ingestResponse
	if err := c.postJSON(ctx, "ingest", "/ingest", ingestRequest{URLs: urls}, &parsed); err != nil {
		return IngestResult{}, err
	}
	if parsed.PassagesIndexed == nil {
		return IngestResult{}, &TransportError{Op: "ingest", Err: errors.New("response missing passages_indexed")}
	}
	if *parsed.PassagesIndexed < 0 {
		return IngestResult{}, &TransportError{Op: "ingest", Err: fmt.Errorf("negative passages_indexed %d", *parsed.PassagesIndexed)}
	}

	return IngestResult{PassagesIndexed: *parsed.PassagesIndexed, Warning: parsed.Warning}, nil
}

// Query asks the backend to answer question from previously ingested sources.
func (c *Client) Query(ctx context.Context, question string) (QueryResult, error) {
	var parsed queryResponse
	if err := c.postJSON(ctx, "query", "/query", queryRequest{Question: question}, &parsed); err != nil {
		return QueryResult{}, err
	}

	evidence := make([]Evidence, len(parsed.Evidence))
	for i, item := range parsed.Evidence {
		evidence[i] = Evidence(item)
	}

	return QueryResult{Answer: parsed.Answer, Evidence: evidence}, nil
}

// Health calls GET /status and fails unless the backend answers with 2xx.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return &TransportError{Op: "status", Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("X-Request-ID", requestID(ctx))

	resp, err := c.client.Do(req)
	if err != nil {
		return &TransportError{Op: "status", Err: err}
	}
	defer resp.Body.Close()

	return c.decode("status", resp, &struct{}{})
}

func (c *Client) postJSON(ctx context.Context, op, path string, payload, dst any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	id := requestID(ctx)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", id)

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("backend request failed",
			zap.String("op", op),
			zap.String("request_id", id),
			zap.Error(err))
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("backend responded",
		zap.String("op", op),
		zap.String("request_id", id),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(started)))

	return c.decode(op, resp, dst)
}

// decode reads the body as JSON for both success and failure replies. A body
// that is not JSON is a transport failure whatever the status code.
func (c *Client) decode(op string, resp *http.Response, dst any) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var parsed errorResponse
		if err := json.Unmarshal(data, &parsed); err != nil {
			return &TransportError{Op: op, Err: fmt.Errorf("decode error response (%s): %w", resp.Status, err)}
		}
		message := parsed.Error
		if message == "" {
			message = "unknown"
		}
		return &ResponseError{Op: op, StatusCode: resp.StatusCode, Message: message}
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
