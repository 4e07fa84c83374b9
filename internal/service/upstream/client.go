// Package upstream implements the HTTP client shared by every backend
// adapter. One Client talks to one backend: it issues exactly one request per
// call, never retries, and turns failures into *apperr.UpstreamError values.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/iliamunaev/movie-composite-gateway/internal/apperr"
	"github.com/iliamunaev/movie-composite-gateway/internal/model"
	"github.com/iliamunaev/movie-composite-gateway/internal/observability"
)

// DefaultTimeout bounds a call when Config.Timeout is not set.
const DefaultTimeout = 5 * time.Second

// Config configures a Client.
type Config struct {
	// Name identifies the backend in errors, logs and metrics.
	Name    string
	BaseURL string
	Timeout time.Duration
	// MaxInFlight bounds concurrent calls; <= 0 means unbounded.
	MaxInFlight int

	Transport      http.RoundTripper
	Logger         observability.Logger
	Metrics        *observability.Metrics
	TracerProvider trace.TracerProvider
	// Propagator injects the trace context into outbound headers. Nil means
	// the global propagator.
	Propagator propagation.TextMapPropagator
}

// Client issues requests to one backend.
type Client struct {
	name    string
	baseURL string
	timeout time.Duration

	http     *http.Client
	slots    *slots
	inFlight *tracker

	logger  observability.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
	prop    propagation.TextMapPropagator
}

// Request describes one backend call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	// Body is sent as JSON when non-nil. json.RawMessage is sent verbatim.
	Body   any
	Header http.Header
}

type callOptions struct {
	tolerant bool
	header   http.Header
}

// CallOption adjusts a single call.
type CallOption func(*callOptions)

// Tolerant makes error statuses come back as a result instead of an error.
// Transport failures are still returned as errors.
func Tolerant() CallOption {
	return func(o *callOptions) { o.tolerant = true }
}

// WithHeader adds headers to the outbound request.
func WithHeader(h http.Header) CallOption {
	return func(o *callOptions) {
		if len(h) == 0 {
			return
		}
		if o.header == nil {
			o.header = make(http.Header, len(h))
		}
		for k, vs := range h {
			for _, v := range vs {
				o.header.Add(k, v)
			}
		}
	}
}

// New creates a Client. It panics if Name or BaseURL is empty.
func New(cfg Config) *Client {
	if cfg.Name == "" {
		panic("upstream.New: empty backend name")
	}
	if cfg.BaseURL == "" {
		panic("upstream.New: empty base URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger()
	}

	c := &Client{
		name:    cfg.Name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		http: &http.Client{
			Transport: cfg.Transport,
			Timeout:   cfg.Timeout,
		},
		slots:   newSlots(cfg.MaxInFlight),
		logger:  cfg.Logger.With(observability.String("backend", cfg.Name)),
		metrics: cfg.Metrics,
		tracer:  observability.Tracer(cfg.TracerProvider),
		prop:    observability.Propagator(cfg.Propagator),
	}
	c.inFlight = &tracker{onChange: func(n int64) { c.metrics.SetInFlight(c.name, n) }}
	return c
}

// Name returns the backend name.
func (c *Client) Name() string { return c.name }

// BaseURL returns the configured base URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// InFlight returns the number of calls currently running.
func (c *Client) InFlight() int64 { return c.inFlight.load() }

// Do issues req and returns the backend response.
//
// In the default strict mode a status >= 400 is returned as an
// *apperr.UpstreamError carrying the backend status and detail. With
// Tolerant the response is returned as is. A call that cannot complete
// returns an *apperr.UpstreamError with 502 (connection failure) or 504
// (timeout) in both modes.
func (c *Client) Do(ctx context.Context, req Request, opts ...CallOption) (*model.CallResult, error) {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx, span := c.tracer.Start(ctx, c.name+" "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("backend", c.name),
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", req.Path),
		),
	)
	defer span.End()

	start := time.Now()
	res, err := c.roundTrip(ctx, req, o.header)
	elapsed := time.Since(start)

	logger := c.logger.WithContext(ctx)
	if err != nil {
		c.metrics.ObserveUpstream(c.name, req.Method, "error", elapsed.Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, "call failed")
		logger.Warn("backend call failed",
			observability.String("method", req.Method),
			observability.String("path", req.Path),
			observability.Duration("duration", elapsed),
			observability.Error(err),
		)
		return nil, err
	}

	c.metrics.ObserveUpstream(c.name, req.Method, strconv.Itoa(res.StatusCode), elapsed.Seconds())
	span.SetAttributes(attribute.Int("http.response.status_code", res.StatusCode))
	logger.Debug("backend call",
		observability.String("method", req.Method),
		observability.String("path", req.Path),
		observability.Int("status", res.StatusCode),
		observability.Duration("duration", elapsed),
	)

	if res.StatusCode >= http.StatusBadRequest {
		span.SetStatus(codes.Error, http.StatusText(res.StatusCode))
		if !o.tolerant {
			return nil, &apperr.UpstreamError{
				Backend:    c.name,
				StatusCode: res.StatusCode,
				Detail:     errorDetail(res),
			}
		}
	}
	return res, nil
}

func (c *Client) roundTrip(ctx context.Context, req Request, extra http.Header) (*model.CallResult, error) {
	if err := c.slots.acquire(ctx); err != nil {
		return nil, c.transportError(err)
	}
	defer c.slots.release()

	c.inFlight.inc()
	defer c.inFlight.dec()

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, &apperr.InternalError{Op: "encode " + c.name + " request body", Cause: err}
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.url(req.Path, req.Query), body)
	if err != nil {
		return nil, &apperr.InternalError{Op: "build " + c.name + " request", Cause: err}
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for _, h := range []http.Header{req.Header, extra} {
		for k, vs := range h {
			for _, v := range vs {
				httpReq.Header.Add(k, v)
			}
		}
	}
	c.prop.Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, c.transportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(err)
	}

	return &model.CallResult{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       normalizeBody(raw),
	}, nil
}

func (c *Client) url(path string, query url.Values) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// transportError normalizes a failed call. The raw transport text stays in
// Cause for logs; clients only see Detail.
func (c *Client) transportError(err error) *apperr.UpstreamError {
	if isTimeout(err) {
		return &apperr.UpstreamError{
			Backend:    c.name,
			StatusCode: http.StatusGatewayTimeout,
			Detail:     fmt.Sprintf("%s service timed out", c.name),
			Cause:      pkgerrors.Wrap(apperr.ErrTimeout, err.Error()),
		}
	}
	return &apperr.UpstreamError{
		Backend:    c.name,
		StatusCode: http.StatusBadGateway,
		Detail:     fmt.Sprintf("%s service unavailable", c.name),
		Cause:      pkgerrors.Wrap(apperr.ErrUnreachable, err.Error()),
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// normalizeBody returns nil for an empty payload, the payload itself when it
// is valid JSON, and the payload as a JSON string otherwise.
func normalizeBody(raw []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	quoted, err := json.Marshal(string(raw))
	if err != nil {
		return nil
	}
	return quoted
}

// errorDetail is the detail relayed for an upstream error status: the decoded
// body when there is one, the status text otherwise.
func errorDetail(res *model.CallResult) any {
	if !res.HasBody() {
		return http.StatusText(res.StatusCode)
	}
	return res.Body
}
