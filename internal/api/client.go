// Package api is the single choke point for calls to the call-center
// backend. It attaches the bearer credential, classifies failures and turns
// a 401 for the resident credential into an auth-expired event.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/felixgeelhaar/switchboard/internal/credential"
	"github.com/felixgeelhaar/switchboard/internal/errors"
	"github.com/felixgeelhaar/switchboard/internal/log"
	"github.com/felixgeelhaar/switchboard/internal/metrics"
	"github.com/felixgeelhaar/switchboard/internal/telemetry"
)

// DefaultTimeout bounds a single request when no HTTP client is supplied.
const DefaultTimeout = 30 * time.Second

// maxBodySize caps how much of a response body is read.
const maxBodySize = 16 << 20

// Client is the backend API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      credential.Store
	logger     *log.Logger
	metrics    *metrics.Metrics
	userAgent  string

	mu          sync.Mutex
	subscribers map[uint64]func(AuthExpiredEvent)
	nextSubID   uint64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request transport timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics records request metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// NewClient creates a client for the backend rooted at baseURL (for example
// http://localhost:5000/api). Tokens are read from and cleared in store.
func NewClient(baseURL string, store credential.Store, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		store:       store,
		userAgent:   "switchboard",
		subscribers: make(map[uint64]func(AuthExpiredEvent)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = log.OrDefault(c.logger).With("component", "api")
	return c
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Store returns the credential store the client reads tokens from.
func (c *Client) Store() credential.Store {
	return c.store
}

// Request describes one backend call. A nil Body sends no body, an
// io.Reader is streamed as-is without a JSON Content-Type, json.RawMessage
// and []byte are sent verbatim as JSON, and anything else is marshalled.
// Every call except an io.Reader one carries Content-Type application/json,
// bodiless or not.
type Request struct {
	Method   string
	Endpoint string
	Body     any
	Header   http.Header

	// Anonymous requests neither send nor clear the resident credential.
	Anonymous bool
}

// Execute sends req and returns the parsed JSON body unmodified. An empty
// 2xx body is returned as JSON null.
func (c *Client) Execute(ctx context.Context, req Request) (json.RawMessage, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	cl := call{
		method:      method,
		endpoint:    req.Endpoint,
		contentType: "application/json",
		header:      req.Header,
		detached:    req.Anonymous,
	}
	switch b := req.Body.(type) {
	case nil:
	case io.Reader:
		// Binary bodies keep whatever Content-Type the caller set.
		cl.body = b
		cl.contentType = ""
	default:
		data, err := encodeBody(b)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeRequestInvalid, "failed to encode request body", err)
		}
		cl.body = bytes.NewReader(data)
	}

	return c.send(ctx, cl)
}

// Do executes req and decodes the response into out when out is non-nil.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	raw, err := c.Execute(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.NewMalformedResponseError(http.StatusOK, err)
	}
	return nil
}

// Get is shorthand for a GET Execute.
func (c *Client) Get(ctx context.Context, endpoint string) (json.RawMessage, error) {
	return c.Execute(ctx, Request{Method: http.MethodGet, Endpoint: endpoint})
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case json.RawMessage:
		return b, nil
	case []byte:
		return b, nil
	default:
		return json.Marshal(body)
	}
}

// URL joins the base address and endpoint with exactly one slash.
func (c *Client) URL(endpoint string) string {
	if endpoint == "" {
		return c.baseURL
	}
	return c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
}

// call is one dispatch through the pipeline.
type call struct {
	method      string
	endpoint    string
	body        io.Reader
	contentType string
	header      http.Header
	// detached calls never read or clear the credential store.
	detached bool
}

// send is the pipeline shared by JSON and multipart requests.
func (c *Client) send(ctx context.Context, cl call) (json.RawMessage, error) {
	method, endpoint, body := cl.method, cl.endpoint, cl.body

	ctx, span := telemetry.StartRequestSpan(ctx, method, metrics.EndpointLabel(endpoint))
	defer span.End()

	start := time.Now()
	target := c.URL(endpoint)

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		err := errors.Wrap(errors.ErrCodeRequestInvalid, fmt.Sprintf("invalid request %s %s", method, endpoint), err)
		telemetry.RecordError(span, err)
		return nil, err
	}

	for k, vs := range cl.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if cl.contentType != "" {
		httpReq.Header.Set("Content-Type", cl.contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	requestID := httpReq.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
		httpReq.Header.Set("X-Request-ID", requestID)
	}

	// The token is captured once so a 401 can only evict the credential
	// that was actually sent.
	var sent credential.Token
	var authenticated bool
	if !cl.detached {
		sent, authenticated = c.store.Get()
	}
	if authenticated {
		httpReq.Header.Set("Authorization", "Bearer "+string(sent))
	}

	logger := c.logger.With("method", method, "endpoint", endpoint, "request_id", requestID)
	logger.DebugContext(ctx, "sending request", "authenticated", authenticated, "detached", cl.detached)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.ObserveRequest(method, endpoint, 0, time.Since(start))
		netErr := errors.NewNetworkError(method, target, err)
		c.metrics.ObserveError(string(netErr.Code), "api")
		telemetry.RecordError(span, netErr)
		logger.WarnContext(ctx, "request failed", "error", err.Error())
		return nil, netErr
	}
	defer func() { _ = resp.Body.Close() }()

	data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	c.metrics.ObserveRequest(method, endpoint, resp.StatusCode, time.Since(start))
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	result, err := c.classify(ctx, resp.StatusCode, data, readErr, sent, authenticated, endpoint)
	if err != nil {
		if sbErr, ok := errors.As(err); ok {
			c.metrics.ObserveError(string(sbErr.Code), "api")
		}
		telemetry.RecordError(span, err)
		logger.DebugContext(ctx, "request rejected", "status", resp.StatusCode, "error", err.Error())
		return nil, err
	}

	telemetry.RecordSuccess(span)
	logger.DebugContext(ctx, "request succeeded", "status", resp.StatusCode, "duration", time.Since(start))
	return result, nil
}

// classify maps a response to a result or one of the pipeline errors.
func (c *Client) classify(ctx context.Context, status int, data []byte, readErr error, sent credential.Token, authenticated bool, endpoint string) (json.RawMessage, error) {
	if status == http.StatusUnauthorized {
		env := parseEnvelope(data)
		if authenticated {
			c.expire(ctx, sent, endpoint, env.Message)
		}
		e := errors.NewAuthExpiredError(env.Message)
		e.BackendCode = env.Code
		return nil, e
	}

	if readErr != nil {
		return nil, errors.NewMalformedResponseError(status, readErr)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		trimmed = []byte("null")
	} else if !json.Valid(trimmed) {
		return nil, errors.NewMalformedResponseError(status, fmt.Errorf("response body is not JSON"))
	}

	if status < 200 || status >= 300 {
		env := parseEnvelope(trimmed)
		return nil, errors.NewAPIError(status, env.Message, env.Code)
	}

	return json.RawMessage(append([]byte(nil), trimmed...)), nil
}

// expire clears the credential that produced a 401 and notifies
// subscribers. CompareAndClear makes this happen once per resident token no
// matter how many in-flight requests observe the 401.
func (c *Client) expire(ctx context.Context, sent credential.Token, endpoint, message string) {
	cleared, err := c.store.CompareAndClear(sent)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to persist credential clear", "error", err.Error())
	}
	if !cleared {
		return
	}

	c.metrics.IncAuthExpired()
	c.logger.InfoContext(ctx, "credential rejected by backend",
		"endpoint", endpoint,
		"fingerprint", credential.Fingerprint(sent),
	)
	c.emit(AuthExpiredEvent{
		Endpoint:    endpoint,
		Message:     message,
		Fingerprint: credential.Fingerprint(sent),
	})
}
