// Package api is the HTTP client for the aicacia backend.
//
// Client exposes one method per backend endpoint. Two behaviors apply to
// every call:
//
//   - The bearer token from the token store is attached as the
//     aicacia-api-token header, except on login and registration.
//   - A 401 response removes the stored token, runs the auth-rejected
//     handler (the terminal UI uses it to force the login screen) and
//     returns an error matching ErrAuthRejected.
//
// Nothing is retried. Every other failure returns an error matching
// ErrRequestFailed whose message is fixed per operation; the backend's
// detail is logged instead of returned.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fyrsmithlabs/aicacia/internal/logging"
	"github.com/fyrsmithlabs/aicacia/internal/telemetry"
	"github.com/fyrsmithlabs/aicacia/internal/tokenstore"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// RequestIDHeader carries a per-request UUID for log correlation.
	RequestIDHeader = "X-Request-ID"

	maxResponseSize = 32 << 20 // 32MB
)

// Client talks to the backend. It is safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	tokens     tokenstore.Store
	httpClient *http.Client
	logger     *logging.Logger
	tracer     trace.Tracer
	metrics    *clientMetrics
	propagator propagation.TextMapPropagator

	mu             sync.RWMutex
	onAuthRejected func()
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets an overall per-request timeout. Zero keeps the
// transport defaults.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) {
		c.logger = l.Named("api")
	}
}

// WithTelemetry records a span and metrics for every request.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(c *Client) {
		c.tracer = tel.Tracer(instrumentationName)
		c.metrics = newClientMetrics(tel.Meter(instrumentationName), c.logger)
	}
}

// WithAuthRejectedHandler sets the function run after a 401 clears the token.
func WithAuthRejectedHandler(fn func()) Option {
	return func(c *Client) {
		c.onAuthRejected = fn
	}
}

// NewClient returns a client for the backend at baseURL.
func NewClient(baseURL string, tokens tokenstore.Store, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base URL must be http or https, got %q", baseURL)
	}
	if tokens == nil {
		return nil, errors.New("token store is required")
	}

	c := &Client{
		baseURL:    u,
		tokens:     tokens,
		httpClient: &http.Client{},
		logger:     logging.NewNop(),
		propagator: otel.GetTextMapPropagator(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(instrumentationName)
	}
	if c.metrics == nil {
		c.metrics = newClientMetrics(otel.Meter(instrumentationName), c.logger)
	}
	return c, nil
}

// BaseURL returns the backend address.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// SetAuthRejectedHandler replaces the function run after a 401.
func (c *Client) SetAuthRejectedHandler(fn func()) {
	c.mu.Lock()
	c.onAuthRejected = fn
	c.mu.Unlock()
}

// request describes one backend call.
type request struct {
	op      string // span and metric name
	method  string
	path    string
	query   url.Values
	public  bool   // sent without the token
	failMsg string // user-facing message on failure

	body        any       // encoded as JSON when non-nil
	raw         io.Reader // sent as-is when non-nil
	contentType string
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do performs r and decodes a successful JSON response into out (if non-nil).
func (c *Client) do(ctx context.Context, r request, out any) error {
	requestID := uuid.NewString()
	ctx = logging.WithRequestID(ctx, requestID)

	ctx, span := c.tracer.Start(ctx, "aicacia.api."+r.op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", r.method),
			attribute.String("http.route", r.path),
			attribute.String("request.id", requestID),
		),
	)
	defer span.End()

	start := time.Now()
	status, size, err := c.roundTrip(ctx, r, requestID, out)
	c.metrics.record(ctx, r.op, status, time.Since(start), size)

	span.SetAttributes(attribute.Int("http.status_code", status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, r.failMsg)
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func (c *Client) roundTrip(ctx context.Context, r request, requestID string, out any) (int, int, error) {
	var body io.Reader
	contentType := r.contentType
	switch {
	case r.raw != nil:
		body = r.raw
	case r.body != nil:
		data, err := json.Marshal(r.body)
		if err != nil {
			return 0, 0, c.fail(ctx, r, 0, "", fmt.Errorf("failed to marshal request: %w", err))
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.endpoint(r.path, r.query), body)
	if err != nil {
		return 0, 0, c.fail(ctx, r, 0, "", fmt.Errorf("failed to create request: %w", err))
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)
	c.propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))

	if !r.public {
		if tok, ok := c.tokens.Get(); ok {
			req.Header.Set(tokenstore.Key, tok)
		}
	}

	c.logger.Debug(ctx, "api request", zap.String("op", r.op), zap.String("method", r.method), zap.String("path", r.path))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, 0, c.fail(ctx, r, 0, "", fmt.Errorf("%s %s: %w", r.method, r.path, err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return resp.StatusCode, 0, c.fail(ctx, r, resp.StatusCode, "", fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return resp.StatusCode, len(data), c.rejectAuth(ctx, r, errorDetail(data))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := errorDetail(data)
		return resp.StatusCode, len(data), c.fail(ctx, r, resp.StatusCode, detail,
			fmt.Errorf("%s %s: status %d", r.method, r.path, resp.StatusCode))
	}

	// Login responses carry the token; never log their bodies.
	if !r.public {
		c.logger.Trace(ctx, "api response", zap.String("op", r.op), zap.Int("status", resp.StatusCode), zap.ByteString("body", data))
	}

	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, len(data), c.fail(ctx, r, resp.StatusCode, "", fmt.Errorf("failed to parse response: %w", err))
		}
	}

	return resp.StatusCode, len(data), nil
}

// fail logs the failure and returns a RequestFailed error.
func (c *Client) fail(ctx context.Context, r request, status int, detail string, cause error) error {
	c.logger.Warn(ctx, "api request failed",
		zap.String("op", r.op),
		zap.Int("status", status),
		zap.String("detail", detail),
		zap.Error(cause),
	)
	return &RequestError{
		Op:      r.op,
		Status:  status,
		Message: r.failMsg,
		Detail:  detail,
		class:   ErrRequestFailed,
		cause:   cause,
	}
}

// rejectAuth clears the token, notifies the handler and returns an
// AuthRejected error.
func (c *Client) rejectAuth(ctx context.Context, r request, detail string) error {
	if err := c.tokens.Remove(); err != nil {
		c.logger.Error(ctx, "failed to clear rejected token", zap.Error(err))
	}
	c.logger.Warn(ctx, "authentication rejected", zap.String("op", r.op), zap.String("detail", detail))

	c.mu.RLock()
	handler := c.onAuthRejected
	c.mu.RUnlock()
	if handler != nil {
		handler()
	}

	return &RequestError{
		Op:      r.op,
		Status:  http.StatusUnauthorized,
		Message: r.failMsg,
		Detail:  detail,
		class:   ErrAuthRejected,
	}
}

// errorDetail extracts FastAPI's "detail" field, falling back to the raw body.
func errorDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 {
		var s string
		if err := json.Unmarshal(payload.Detail, &s); err == nil {
			return s
		}
		return string(payload.Detail)
	}
	const maxDetail = 512
	if len(body) > maxDetail {
		return string(body[:maxDetail])
	}
	return string(body)
}

// pathf joins escaped path segments into a format string.
func pathf(format string, segments ...string) string {
	args := make([]any, len(segments))
	for i, s := range segments {
		args[i] = url.PathEscape(s)
	}
	return fmt.Sprintf(format, args...)
}
