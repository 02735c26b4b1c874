// Package apiclient is the single HTTP client for the admissions backend.
// It injects the bearer token and customer id on every call, normalises
// error responses into *APIError and retries idempotent requests.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smartedu/dashboard/internal/infrastructure/auth"
	"github.com/smartedu/dashboard/internal/infrastructure/config"
	"github.com/smartedu/dashboard/internal/infrastructure/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	maxResponseBytes = 32 << 20
	tracerName       = "github.com/smartedu/dashboard/internal/infrastructure/apiclient"
)

// RetryConfig configures retry behaviour for idempotent requests
type RetryConfig struct {
	MaxRetries int
	RetryDelay time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 2,
		RetryDelay: 250 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2.0,
	}
}

// Client talks to the admissions backend
type Client struct {
	httpClient     *http.Client
	baseURL        *url.URL
	defaults       Credentials
	retry          RetryConfig
	limiter        *rate.Limiter
	metrics        *Metrics
	tracer         trace.Tracer
	propagator     propagation.TextMapPropagator
	userAgent      string
	logger         *zap.Logger
	onUnauthorized func(ctx context.Context)
	now            func() time.Time
}

// Option configures a Client
type Option func(*Client)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics enables Prometheus instrumentation
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithRetryConfig overrides the retry policy
func WithRetryConfig(rc RetryConfig) Option {
	return func(c *Client) { c.retry = rc }
}

// WithRateLimit caps outbound requests per second; limit <= 0 disables it
func WithRateLimit(limit float64, burst int) Option {
	return func(c *Client) {
		if limit <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(limit), max(burst, 1))
	}
}

// WithOnUnauthorized registers a hook run whenever the backend rejects the token
func WithOnUnauthorized(fn func(ctx context.Context)) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

// WithDefaultCredentials sets credentials used when the context carries none
func WithDefaultCredentials(cr Credentials) Option {
	return func(c *Client) { c.defaults = cr }
}

// WithClock overrides the clock used for token expiry checks
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a Client from configuration
func New(cfg config.APIConfig, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retry := DefaultRetryConfig()
	retry.MaxRetries = cfg.MaxRetries
	if cfg.RetryDelay > 0 {
		retry.RetryDelay = cfg.RetryDelay
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL:    base,
		defaults:   Credentials{CustomerID: cfg.CustomerID, UserID: cfg.UserID},
		retry:      retry,
		tracer:     otel.Tracer(tracerName),
		propagator: otel.GetTextMapPropagator(),
		userAgent:  cfg.UserAgent,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	WithRateLimit(cfg.RateLimit, cfg.RateBurst)(c)

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// request is one logical call to the backend
type request struct {
	endpoint    string // metric and span label, e.g. "parents.search"
	method      string
	path        string
	query       url.Values
	body        any
	rawBody     []byte
	contentType string
	accept      string
	tenantFree  bool
	serverRoot  bool // resolve path against the host rather than the API prefix
}

// response is a successful (2xx) reply
type response struct {
	status int
	header http.Header
	body   []byte
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

func (c *Client) do(ctx context.Context, req request) (*response, error) {
	creds, _ := CredentialsFrom(ctx)
	creds = creds.merge(c.defaults)

	if err := c.checkToken(ctx, creds.Token); err != nil {
		return nil, err
	}

	query := url.Values{}
	for k, v := range req.query {
		query[k] = v
	}
	if !req.tenantFree {
		if creds.CustomerID == "" {
			return nil, ErrNoCustomer
		}
		query.Set("customer_id", creds.CustomerID)
	}
	path := strings.TrimPrefix(req.path, "/")
	if req.serverRoot {
		path = "/" + path
	}
	u, err := c.buildURL(path, query)
	if err != nil {
		return nil, err
	}

	payload := req.rawBody
	contentType := req.contentType
	if req.body != nil {
		payload, err = json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		contentType = "application/json"
	}

	ctx, span := c.tracer.Start(ctx, "admissions "+req.endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.method),
			attribute.String("url.path", u.Path),
			attribute.String("admissions.customer_id", creds.CustomerID),
		))
	defer span.End()

	attempts := 1
	if idempotent(req.method) {
		attempts += max(c.retry.MaxRetries, 0)
	}

	var (
		resp    *response
		lastErr error
	)
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			c.metrics.retried(req.endpoint)
			select {
			case <-ctx.Done():
				return nil, c.fail(span, ctx.Err())
			case <-time.After(c.backoff(attempt)):
			}
		}

		var retryable bool
		resp, retryable, lastErr = c.attempt(ctx, req, u, payload, contentType, creds)
		if lastErr == nil || !retryable {
			break
		}
		logger.L(ctx).Debug("retrying backend request",
			zap.String("endpoint", req.endpoint),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr))
	}

	if lastErr != nil {
		if errors.Is(lastErr, ErrUnauthorized) && c.onUnauthorized != nil {
			c.onUnauthorized(ctx)
		}
		return nil, c.fail(span, lastErr)
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.status))
	return resp, nil
}

// attempt sends the request once. retryable reports whether a failure may
// succeed on another try.
func (c *Client) attempt(ctx context.Context, req request, u *url.URL, payload []byte, contentType string, creds Credentials) (*response, bool, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, false, err
		}
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, u.String(), body)
	if err != nil {
		return nil, false, fmt.Errorf("creating HTTP request: %w", err)
	}
	c.setHeaders(ctx, httpReq, req, contentType, creds)

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	elapsed := time.Since(start)
	if err != nil {
		c.metrics.observe(req.endpoint, req.method, 0, err, elapsed)
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, fmt.Errorf("%s: %w", req.endpoint, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	c.metrics.observe(req.endpoint, req.method, httpResp.StatusCode, err, elapsed)
	if err != nil {
		return nil, true, fmt.Errorf("%s: reading response body: %w", req.endpoint, err)
	}

	if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
		return &response{status: httpResp.StatusCode, header: httpResp.Header, body: data}, false, nil
	}

	requestID := httpResp.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = logger.GetRequestID(ctx)
	}
	apiErr := newAPIError(httpResp.StatusCode, data, requestID, req.endpoint)
	retryable := httpResp.StatusCode >= 500 || httpResp.StatusCode == http.StatusTooManyRequests
	return nil, retryable, apiErr
}

func (c *Client) setHeaders(ctx context.Context, r *http.Request, req request, contentType string, creds Credentials) {
	accept := req.accept
	if accept == "" {
		accept = "application/json"
	}
	r.Header.Set("Accept", accept)
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	if c.userAgent != "" {
		r.Header.Set("User-Agent", c.userAgent)
	}
	if creds.Token != "" {
		r.Header.Set("Authorization", "Bearer "+creds.Token)
	}
	if id := logger.GetRequestID(ctx); id != "" {
		r.Header.Set("X-Request-ID", id)
	}
	c.propagator.Inject(ctx, propagation.HeaderCarrier(r.Header))
}

// checkToken refuses JWTs that have already expired; opaque tokens pass through
func (c *Client) checkToken(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	claims, err := auth.Inspect(token)
	if err != nil {
		return nil
	}
	if claims.Expired(c.now(), 5*time.Second) {
		if c.onUnauthorized != nil {
			c.onUnauthorized(ctx)
		}
		return fmt.Errorf("%w: %w", ErrUnauthorized, auth.ErrExpiredToken)
	}
	return nil
}

func (c *Client) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, Message(err))
	if s := statusOf(err); s != 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", s))
	}
	return err
}

func (c *Client) buildURL(path string, query url.Values) (*url.URL, error) {
	u, err := c.baseURL.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path %q: %w", path, err)
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u, nil
}

// backoff returns the delay before attempt, with ±25% jitter
func (c *Client) backoff(attempt int) time.Duration {
	mult := c.retry.Multiplier
	if mult <= 0 {
		mult = 2
	}
	delay := float64(c.retry.RetryDelay) * math.Pow(mult, float64(attempt-1))
	if c.retry.MaxDelay > 0 && delay > float64(c.retry.MaxDelay) {
		delay = float64(c.retry.MaxDelay)
	}
	jitter := delay * 0.25
	return time.Duration(delay + (rand.Float64()*2-1)*jitter)
}

func (c *Client) getJSON(ctx context.Context, endpoint, path string, query url.Values, out any) error {
	return c.doJSON(ctx, request{endpoint: endpoint, method: http.MethodGet, path: path, query: query}, out)
}

func (c *Client) sendJSON(ctx context.Context, endpoint, method, path string, body, out any) error {
	return c.doJSON(ctx, request{endpoint: endpoint, method: method, path: path, body: body}, out)
}

func (c *Client) doJSON(ctx context.Context, req request, out any) error {
	resp, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", req.endpoint, err)
	}
	return nil
}

// Health checks the backend's /health endpoint at the server root
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, request{
		endpoint:   "health",
		method:     http.MethodGet,
		path:       "/health",
		tenantFree: true,
		serverRoot: true,
	})
	return err
}

// BaseURL returns the configured backend URL
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}
