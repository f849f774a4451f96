package http

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	nethttp "net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tradesense/tradesense-go/logger"
	"github.com/tradesense/tradesense-go/trace"
)

const (
	// DefaultTimeout is the default request timeout duration
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the default maximum number of retries for failed requests
	DefaultMaxRetries = 0

	// DefaultRetryDelay is the default delay between retries
	DefaultRetryDelay = 1 * time.Second

	// HeaderXRequestID is the default header carrying the request id
	HeaderXRequestID = trace.HeaderXRequestID
)

// client implements the Client interface
type client struct {
	httpClient           *nethttp.Client
	logger               logger.Logger
	config               *Config
	requestInterceptors  []RequestInterceptor
	responseInterceptors []ResponseInterceptor
	callCount            int64
}

func defaultConfig() *Config {
	return &Config{
		Timeout:              DefaultTimeout,
		MaxRetries:           DefaultMaxRetries,
		RetryDelay:           DefaultRetryDelay,
		RequestInterceptors:  []RequestInterceptor{},
		ResponseInterceptors: []ResponseInterceptor{},
		DefaultHeaders:       make(map[string]string),
		RequestIDHeader:      HeaderXRequestID,
	}
}

// NewClient creates a new REST client with default configuration
func NewClient(log logger.Logger) Client {
	return NewBuilder(log).Build()
}

// Builder provides a fluent interface for configuring the REST client
type Builder struct {
	config     *Config
	logger     logger.Logger
	transport  nethttp.RoundTripper
	httpClient *nethttp.Client
}

// NewBuilder creates a new client builder
func NewBuilder(log logger.Logger) *Builder {
	if log == nil {
		log = logger.Nop()
	}
	return &Builder{
		config: defaultConfig(),
		logger: log,
	}
}

// WithBaseURL sets the URL that relative request URLs are resolved against
func (b *Builder) WithBaseURL(baseURL string) *Builder {
	b.config.BaseURL = strings.TrimRight(baseURL, "/")
	return b
}

// WithTimeout sets the request timeout
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.config.Timeout = timeout
	return b
}

// WithRetries sets the retry configuration
func (b *Builder) WithRetries(maxRetries int, retryDelay time.Duration) *Builder {
	b.config.MaxRetries = maxRetries
	b.config.RetryDelay = retryDelay
	return b
}

// WithBasicAuth sets basic authentication credentials
func (b *Builder) WithBasicAuth(username, password string) *Builder {
	b.config.BasicAuth = &BasicAuth{
		Username: username,
		Password: password,
	}
	return b
}

// WithDefaultHeader adds a default header that will be sent with all requests
func (b *Builder) WithDefaultHeader(key, value string) *Builder {
	b.config.DefaultHeaders[key] = value
	return b
}

// WithRequestInterceptor adds a request interceptor
func (b *Builder) WithRequestInterceptor(interceptor RequestInterceptor) *Builder {
	b.config.RequestInterceptors = append(b.config.RequestInterceptors, interceptor)
	return b
}

// WithResponseInterceptor adds a response interceptor
func (b *Builder) WithResponseInterceptor(interceptor ResponseInterceptor) *Builder {
	b.config.ResponseInterceptors = append(b.config.ResponseInterceptors, interceptor)
	return b
}

// WithTransport sets the round tripper used to execute requests.
// Ignored when WithHTTPClient supplies a client.
func (b *Builder) WithTransport(transport nethttp.RoundTripper) *Builder {
	b.transport = transport
	return b
}

// WithHTTPClient uses a copy of the given client; its timeout is kept unless zero
func (b *Builder) WithHTTPClient(httpClient *nethttp.Client) *Builder {
	b.httpClient = httpClient
	return b
}

// WithRequestIDHeader changes the header carrying the request id.
// An empty name disables request id propagation.
func (b *Builder) WithRequestIDHeader(header string) *Builder {
	b.config.RequestIDHeader = header
	return b
}

// Build creates the REST client with the configured options
func (b *Builder) Build() Client {
	httpClient := &nethttp.Client{
		Timeout:   b.config.Timeout,
		Transport: b.transport,
	}
	if b.httpClient != nil {
		copied := *b.httpClient
		if copied.Timeout == 0 {
			copied.Timeout = b.config.Timeout
		}
		httpClient = &copied
	}

	return &client{
		httpClient:           httpClient,
		logger:               b.logger,
		config:               b.config,
		requestInterceptors:  b.config.RequestInterceptors,
		responseInterceptors: b.config.ResponseInterceptors,
	}
}

// Get performs a GET request
func (c *client) Get(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodGet, req)
}

// Post performs a POST request
func (c *client) Post(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodPost, req)
}

// Put performs a PUT request
func (c *client) Put(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodPut, req)
}

// Patch performs a PATCH request
func (c *client) Patch(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodPatch, req)
}

// Delete performs a DELETE request
func (c *client) Delete(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, nethttp.MethodDelete, req)
}

// Do performs an HTTP request with the specified method
func (c *client) Do(ctx context.Context, method string, req *Request) (*Response, error) {
	if err := c.validateRequest(req); err != nil {
		return nil, err
	}
	target, err := c.resolveURL(req.URL)
	if err != nil {
		return nil, err
	}

	// All attempts of one call share a request id.
	requestID := trace.EnsureTraceID(ctx)
	ctx = trace.WithTraceID(ctx, requestID)
	log := c.logger.WithContext(ctx)

	start := time.Now()
	callCount := atomic.AddInt64(&c.callCount, 1)
	maxRetries := c.config.MaxRetries

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, c.transportError(err)
		}
		c.logRequest(log, method, target, req, attempt)

		httpReq, err := c.buildRequest(ctx, method, target, requestID, req)
		if err != nil {
			return nil, err
		}

		httpResp, err := c.httpClient.Do(httpReq)
		if err != nil {
			var clientErr ClientError
			if errors.As(err, &clientErr) {
				log.Warn().
					Str("error_type", string(clientErr.Type())).
					Str("method", method).
					Str("url", target).
					Err(clientErr).
					Msg("REST client request aborted by transport")
				return nil, clientErr
			}
			if attempt < maxRetries && c.wait(ctx, attempt) == nil {
				continue
			}
			return nil, c.transportError(err)
		}

		resp, err := c.buildResponse(ctx, start, callCount, httpReq, httpResp)
		if err != nil {
			if attempt < maxRetries && IsErrorType(err, NetworkError) && c.wait(ctx, attempt) == nil {
				continue
			}
			return nil, err
		}

		if IsSuccessStatus(resp.StatusCode) {
			c.logResponse(log, resp)
			return resp, nil
		}

		if c.isRetryableStatus(resp.StatusCode) && attempt < maxRetries && c.wait(ctx, attempt) == nil {
			continue
		}

		c.logResponse(log, resp)
		return resp, NewHTTPError(
			fmt.Sprintf("HTTP request failed with status %d", resp.StatusCode),
			resp.StatusCode,
			resp.Body,
		)
	}
}

// transportError maps a failed round trip onto the client error taxonomy
func (c *client) transportError(err error) ClientError {
	if c.isTimeout(err) {
		return NewTimeoutError("request timeout", c.config.Timeout)
	}
	if errors.Is(err, context.Canceled) {
		return NewNetworkError("request canceled", err)
	}
	return NewNetworkError("request execution failed", err)
}

// wait sleeps for the backoff delay of attempt or until ctx is done
func (c *client) wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(c.backoffDelay(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// backoffDelay returns the exponential backoff delay for the given attempt,
// using RetryDelay as the base and capping to a reasonable maximum.
func (c *client) backoffDelay(attempt int) time.Duration {
	base := c.config.RetryDelay
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	// Cap attempt to avoid overflow when computing multiplier
	if attempt > 20 {
		attempt = 20
	}
	mult := 1 << attempt
	d := base * time.Duration(mult)
	const maxBackoff = 30 * time.Second
	if d > maxBackoff {
		d = maxBackoff
	}
	// Full jitter: random duration in [0, d)
	if d <= 0 {
		return base
	}
	maxN := big.NewInt(int64(d))
	n, err := crand.Int(crand.Reader, maxN)
	if err != nil {
		return d
	}
	return time.Duration(n.Int64())
}

// validateRequest validates the request before sending
func (c *client) validateRequest(req *Request) error {
	if req == nil {
		return NewValidationError("request cannot be nil", "request")
	}
	if req.URL == "" {
		return NewValidationError("URL cannot be empty", "url")
	}
	return nil
}

// resolveURL joins relative request URLs onto the configured base URL
func (c *client) resolveURL(raw string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", NewValidationError(fmt.Sprintf("invalid URL: %v", err), "url")
	}
	if parsed.IsAbs() {
		return raw, nil
	}
	if c.config.BaseURL == "" {
		return "", NewValidationError("relative URL requires a base URL", "url")
	}
	return c.config.BaseURL + "/" + strings.TrimLeft(raw, "/"), nil
}

// applyHeaders applies headers to the HTTP request
func (c *client) applyHeaders(httpReq *nethttp.Request, requestID string, req *Request) {
	// Apply default headers first
	for key, value := range c.config.DefaultHeaders {
		httpReq.Header.Set(key, value)
	}

	// Apply request-specific headers (these override defaults)
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	// Set Content-Type if not already set and body is present
	if httpReq.Header.Get("Content-Type") == "" && req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	if header := c.config.RequestIDHeader; header != "" && httpReq.Header.Get(header) == "" {
		httpReq.Header.Set(header, requestID)
	}
}

// applyAuth applies authentication to the HTTP request
func (c *client) applyAuth(httpReq *nethttp.Request, req *Request) {
	// Request-specific auth takes precedence
	auth := req.Auth
	if auth == nil {
		auth = c.config.BasicAuth
	}

	if auth != nil {
		httpReq.SetBasicAuth(auth.Username, auth.Password)
	}
}

// buildRequest constructs an *http.Request, applies headers/auth, and runs request interceptors.
func (c *client) buildRequest(ctx context.Context, method, target, requestID string, req *Request) (*nethttp.Request, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := nethttp.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, NewValidationError(fmt.Sprintf("failed to create HTTP request: %v", err), "request")
	}

	c.applyHeaders(httpReq, requestID, req)
	c.applyAuth(httpReq, req)

	if err := c.runRequestInterceptors(ctx, httpReq); err != nil {
		return nil, NewInterceptorError("request interceptor failed", "request", err)
	}
	return httpReq, nil
}

// buildResponse runs response interceptors, reads body, and builds a Response.
func (c *client) buildResponse(ctx context.Context, start time.Time, callCount int64, httpReq *nethttp.Request, httpResp *nethttp.Response) (*Response, error) {
	defer httpResp.Body.Close()

	if err := c.runResponseInterceptors(ctx, httpReq, httpResp); err != nil {
		return nil, NewInterceptorError("response interceptor failed", "response", err)
	}

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, NewNetworkError("failed to read response body", err)
	}

	elapsed := time.Since(start)
	return &Response{
		StatusCode: httpResp.StatusCode,
		Body:       respBody,
		Headers:    httpResp.Header,
		Stats: Stats{
			ElapsedTime: elapsed,
			CallCount:   callCount,
		},
	}, nil
}

func (c *client) isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (c *client) isRetryableStatus(code int) bool {
	return code >= 500 && code < 600
}

// runRequestInterceptors executes all request interceptors
func (c *client) runRequestInterceptors(ctx context.Context, req *nethttp.Request) error {
	for _, interceptor := range c.requestInterceptors {
		if err := interceptor(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

// runResponseInterceptors executes all response interceptors
func (c *client) runResponseInterceptors(ctx context.Context, req *nethttp.Request, resp *nethttp.Response) error {
	for _, interceptor := range c.responseInterceptors {
		if err := interceptor(ctx, req, resp); err != nil {
			return err
		}
	}
	return nil
}

// logRequest logs the outgoing request; the body only at debug level
func (c *client) logRequest(log logger.Logger, method, target string, req *Request, attempt int) {
	log.Info().
		Str("direction", "outbound").
		Str("method", method).
		Str("url", target).
		Int("attempt", attempt).
		Msg("REST client request")

	if len(req.Headers) == 0 && len(req.Body) == 0 {
		return
	}
	logEvent := log.Debug().Str("direction", "outbound")
	if len(req.Headers) > 0 {
		logEvent.Interface("headers", req.Headers)
	}
	logBody(logEvent, req.Body)
	logEvent.Msg("REST client request payload")
}

// logResponse logs the incoming response; the body only at debug level
func (c *client) logResponse(log logger.Logger, resp *Response) {
	log.Info().
		Str("direction", "inbound").
		Int("status", resp.StatusCode).
		Dur("elapsed", resp.Stats.ElapsedTime).
		Int64("call_count", resp.Stats.CallCount).
		Msg("REST client response")

	if len(resp.Body) > 0 {
		logEvent := log.Debug().Str("direction", "inbound")
		logBody(logEvent, resp.Body)
		logEvent.Msg("REST client response payload")
	}
}

// logBody decodes JSON bodies so the logger can mask credential fields;
// other bodies are reported by size only.
func logBody(logEvent logger.LogEvent, body []byte) {
	if len(body) == 0 {
		return
	}
	var decoded any
	if err := json.Unmarshal(body, &decoded); err == nil {
		logEvent.Interface("body", decoded)
		return
	}
	logEvent.Int("body_bytes", len(body))
}
