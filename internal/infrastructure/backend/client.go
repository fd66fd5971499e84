// Package backend is the shared outbound HTTP client every connector uses to
// talk to its system of record.
package backend

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
	"time"

	"github.com/cardhub/connectors/internal/domain/shared"
	"github.com/cardhub/connectors/internal/infrastructure/config"
	"github.com/cardhub/connectors/internal/infrastructure/logger"
	"github.com/cardhub/connectors/internal/infrastructure/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultMaxResponseSize caps buffered backend bodies.
const DefaultMaxResponseSize = 10 << 20

// Options configures a Client.
type Options struct {
	Timeout             time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	MaxResponseSize     int64
	RateLimit           float64 // requests per second, 0 disables
	RateBurst           int

	Metrics *telemetry.BackendMetrics
	// Transport replaces the pooled transport, mainly for tests.
	Transport http.RoundTripper
}

// OptionsFromConfig maps the backend config section onto Options.
func OptionsFromConfig(cfg config.BackendConfig) Options {
	return Options{
		Timeout:             cfg.Timeout,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		MaxResponseSize:     cfg.MaxResponseSize,
		RateLimit:           cfg.RateLimit,
		RateBurst:           cfg.RateBurst,
	}
}

// Client issues requests against connector backends. It is safe for
// concurrent use and shared by all requests.
type Client struct {
	http            *http.Client
	limiter         *rate.Limiter
	maxResponseSize int64
	metrics         *telemetry.BackendMetrics
	logger          *zap.Logger
}

// NewClient builds a Client with a pooled, traced transport.
func NewClient(opts Options, log *zap.Logger) *Client {
	transport := opts.Transport
	if transport == nil {
		pooled := http.DefaultTransport.(*http.Transport).Clone()
		if opts.MaxIdleConns > 0 {
			pooled.MaxIdleConns = opts.MaxIdleConns
		}
		if opts.MaxIdleConnsPerHost > 0 {
			pooled.MaxIdleConnsPerHost = opts.MaxIdleConnsPerHost
		}
		if opts.IdleConnTimeout > 0 {
			pooled.IdleConnTimeout = opts.IdleConnTimeout
		}
		transport = pooled
	}

	maxSize := opts.MaxResponseSize
	if maxSize <= 0 {
		maxSize = DefaultMaxResponseSize
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	if log == nil {
		log = zap.NewNop()
	}

	return &Client{
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(transport),
		},
		limiter:         limiter,
		maxResponseSize: maxSize,
		metrics:         opts.Metrics,
		logger:          log.Named("backend"),
	}
}

// HTTPClient exposes the traced client for libraries that bring their own
// request flow, such as the oauth2 token exchange.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// Request describes one backend call.
type Request struct {
	Connector string
	Operation string

	Method  string
	BaseURL string
	// Path is appended to BaseURL as is; callers escape path segments.
	Path        string
	Query       url.Values
	Header      http.Header
	Body        []byte
	ContentType string
}

// URL joins BaseURL, Path and Query.
func (r Request) URL() (string, error) {
	base, err := ParseBaseURL(r.BaseURL)
	if err != nil {
		return "", err
	}
	if r.Path == "" && len(r.Query) == 0 {
		return base.String(), nil
	}
	u := strings.TrimRight(base.String(), "/")
	if r.Path != "" {
		u += "/" + strings.TrimLeft(r.Path, "/")
	}
	if len(r.Query) > 0 {
		u += "?" + r.Query.Encode()
	}
	return u, nil
}

// endpoint is the method and path used in logs and errors; query strings
// carry user emails and are left out.
func (r Request) endpoint() string {
	return "/" + strings.TrimLeft(r.Path, "/")
}

// ParseBaseURL validates a caller-supplied backend base URL.
func ParseBaseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, shared.ErrMissingBaseURL
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, shared.NewValidationError("Invalid backend base URL %q", raw)
	}
	return u, nil
}

// Response is a fully buffered backend reply.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Do sends req and buffers the reply. Statuses >= 400 return a
// *shared.BackendError carrying the body; network failures return a
// *shared.TransportError; a finished ctx returns its error.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	resp, done, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize))
	if err != nil {
		done(resp.StatusCode, telemetry.OutcomeTransportErr)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &shared.TransportError{Endpoint: req.endpoint(), Err: err}
	}
	done(resp.StatusCode, telemetry.OutcomeFor(resp.StatusCode))

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &shared.BackendError{
			Status:   resp.StatusCode,
			Method:   req.Method,
			Endpoint: req.endpoint(),
			Body:     body,
		}
	}

	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// DoJSON sends req and decodes the reply into out. Unknown fields are ignored
// and an empty body leaves out untouched.
func (c *Client) DoJSON(ctx context.Context, req Request, out any) (*Response, error) {
	if req.Header == nil {
		req.Header = http.Header{}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if out != nil && len(bytes.TrimSpace(resp.Body)) > 0 {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return resp, fmt.Errorf("decode %s %s response: %w", req.Method, req.endpoint(), err)
		}
	}
	return resp, nil
}

// StreamResponse is an unbuffered backend reply. The caller closes Body.
type StreamResponse struct {
	Status int
	Header http.Header
	Body   io.ReadCloser
}

// Stream sends req and hands back the open body. Error statuses are buffered
// and returned as *shared.BackendError like Do.
func (c *Client) Stream(ctx context.Context, req Request) (*StreamResponse, error) {
	resp, done, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}
	done(resp.StatusCode, telemetry.OutcomeFor(resp.StatusCode))

	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize))
		return nil, &shared.BackendError{
			Status:   resp.StatusCode,
			Method:   req.Method,
			Endpoint: req.endpoint(),
			Body:     body,
		}
	}

	return &StreamResponse{Status: resp.StatusCode, Header: resp.Header, Body: resp.Body}, nil
}

func (c *Client) send(ctx context.Context, req Request) (*http.Response, func(int, string), error) {
	target, err := req.URL()
	if err != nil {
		return nil, nil, err
	}
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	req.Method = method

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, nil, fmt.Errorf("build %s %s request: %w", method, req.endpoint(), err)
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, nil, ctxErr
			}
			return nil, nil, &shared.TransportError{Endpoint: req.endpoint(), Err: err}
		}
	}

	log := logger.L(ctx).With(
		zap.String("backend_method", method),
		zap.String("backend_path", req.endpoint()),
		zap.String("operation", req.Operation),
	)
	done := c.metrics.Start(ctx, req.Connector, req.Operation)

	start := time.Now()
	var resp *http.Response
	telemetry.WithProfilingLabels(ctx, telemetry.ConnectorLabels(req.Connector, req.Operation), func(ctx context.Context) {
		resp, err = c.http.Do(httpReq.WithContext(ctx))
	})
	if err != nil {
		done(0, outcomeForError(ctx))
		if ctxErr := ctx.Err(); ctxErr != nil {
			log.Debug("Backend call abandoned", zap.Error(ctxErr))
			return nil, nil, ctxErr
		}
		log.Warn("Backend call failed", zap.Error(err), zap.Duration("latency", time.Since(start)))
		return nil, nil, &shared.TransportError{Endpoint: req.endpoint(), Err: err}
	}

	log.Debug("Backend call completed",
		zap.Int("backend_status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)
	return resp, done, nil
}

func outcomeForError(ctx context.Context) string {
	if errors.Is(ctx.Err(), context.Canceled) {
		return telemetry.OutcomeCanceled
	}
	return telemetry.OutcomeTransportErr
}

// JSONBody marshals v for Request.Body.
func JSONBody(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return b, nil
}
