// Package api is the typed HTTP client for the fine-tuning backend.
//
// Every endpoint answers with a JSON envelope carrying a "status"
// discriminator. Failures are reported as one of three error types:
// TransportError, ProtocolError or DeclaredError.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zulandar/modelyard/internal/config"
	"github.com/zulandar/modelyard/internal/logging"
	"go.uber.org/zap"
)

// maxBody caps how much of a response is read.
const maxBody = 32 << 20

// Options holds parameters for creating a Client.
type Options struct {
	BaseURL    string
	Timeouts   config.TimeoutsConfig
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to one backend.
type Client struct {
	baseURL  string
	timeouts config.TimeoutsConfig
	http     *http.Client
	log      *zap.Logger
}

// New creates a Client.
func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		timeouts: opts.Timeouts,
		http:     hc,
		log:      logging.OrNop(opts.Logger),
	}
}

// FromConfig creates a Client for the configured backend.
func FromConfig(cfg *config.Config, logger *zap.Logger) *Client {
	return New(Options{BaseURL: cfg.Backend.BaseURL, Timeouts: cfg.Backend.Timeouts, Logger: logger})
}

// BaseURL returns the backend root this client targets.
func (c *Client) BaseURL() string { return c.baseURL }

// envelope is the superset of every response body shape.
type envelope struct {
	Status       *string         `json:"status"`
	Detail       json.RawMessage `json:"detail"`
	Message      string          `json:"message"`
	Data         json.RawMessage `json:"data"`
	Logs         string          `json:"logs"`
	PredictedSQL *string         `json:"predicted_sql"`
}

// detail renders the server's failure description. FastAPI validation errors
// send a list of objects instead of a string.
func (e *envelope) detail() string {
	if len(e.Detail) > 0 && string(e.Detail) != "null" {
		var s string
		if err := json.Unmarshal(e.Detail, &s); err == nil {
			return s
		}
		return Snippet(string(e.Detail))
	}
	return e.Message
}

type request struct {
	op          string
	method      string
	path        string
	body        io.Reader
	contentType string
	timeout     time.Duration
}

func (c *Client) postJSON(ctx context.Context, op, path string, timeout time.Duration, v any) (*envelope, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("api: %s: encode request: %w", op, err)
	}
	return c.do(ctx, request{
		op:          op,
		method:      http.MethodPost,
		path:        path,
		body:        bytes.NewReader(data),
		contentType: "application/json",
		timeout:     timeout,
	})
}

func (c *Client) get(ctx context.Context, op, path string) (*envelope, error) {
	return c.do(ctx, request{op: op, method: http.MethodGet, path: path, timeout: c.timeouts.Default})
}

// do issues one request and classifies the outcome.
func (c *Client) do(ctx context.Context, r request) (*envelope, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, r.body)
	if err != nil {
		return nil, &TransportError{Op: r.op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("request failed", zap.String("op", r.op), zap.String("path", r.path), zap.Error(err))
		return nil, &TransportError{Op: r.op, Err: err, Timeout: r.timeout}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &TransportError{Op: r.op, Err: err, Timeout: r.timeout}
	}
	c.log.Debug("request done",
		zap.String("op", r.op),
		zap.String("method", r.method),
		zap.String("path", r.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, c.protocolError(r, resp.StatusCode, body, "body is not a JSON object")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &DeclaredError{Op: r.op, StatusCode: resp.StatusCode, Detail: env.detail(), Logs: env.Logs}
	}
	if env.Status == nil {
		return nil, c.protocolError(r, resp.StatusCode, body, "missing status field")
	}
	if *env.Status != "success" {
		return nil, &DeclaredError{Op: r.op, StatusCode: resp.StatusCode, Detail: env.detail(), Logs: env.Logs}
	}
	return &env, nil
}

func (c *Client) protocolError(r request, code int, body []byte, reason string) error {
	c.log.Warn("unparseable response",
		zap.String("op", r.op),
		zap.String("path", r.path),
		zap.Int("status", code),
		zap.String("reason", reason),
		zap.ByteString("body", body))
	return &ProtocolError{Op: r.op, StatusCode: code, Body: body, Reason: reason}
}

// decodeData unmarshals the envelope's data field into v.
func (c *Client) decodeData(op string, env *envelope, v any) error {
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		c.log.Warn("unexpected data shape", zap.String("op", op), zap.Error(err), zap.ByteString("data", env.Data))
		return &ProtocolError{Op: op, StatusCode: http.StatusOK, Body: env.Data, Reason: "unexpected data shape"}
	}
	return nil
}
