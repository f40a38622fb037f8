package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ariefcatur/go-order-saga/internal/apperr"
	"github.com/ariefcatur/go-order-saga/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const maxBody = 1 << 20

// Client calls other services of the system. It sets no timeout of its own:
// every call is bounded by the deadline on the context it receives.
type Client struct {
	target string
	tracer trace.Tracer
	http   *http.Client
}

// New returns a client for target, the name used in spans and metrics.
func New(target string) *Client {
	return &Client{
		target: target,
		tracer: otel.Tracer("httpclient"),
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   any
}

type Response struct {
	Status   int
	Envelope apperr.Envelope
}

// Do sends req and decodes the response envelope. Transport failures and
// timeouts come back as DependencyUnavailable; HTTP error statuses are not
// errors here and are left to the caller.
func (c *Client) Do(ctx context.Context, req Request) (Response, error) {
	ctx, span := c.tracer.Start(ctx, "call-"+c.target, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	start := time.Now()
	status := "error"
	defer func() {
		metrics.DependencyCalls.WithLabelValues(c.target, status).Observe(time.Since(start).Seconds())
	}()

	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return Response{}, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	span.SetAttributes(
		semconv.URLFull(req.URL),
		semconv.HTTPRequestMethodKey.String(req.Method),
	)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Response{}, apperr.Unavailable(c.target+" unavailable", err)
	}
	defer resp.Body.Close()
	status = strconv.Itoa(resp.StatusCode)
	span.SetAttributes(semconv.HTTPResponseStatusCode(resp.StatusCode))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Response{}, apperr.Unavailable(c.target+" unavailable", err)
	}

	out := Response{Status: resp.StatusCode}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out.Envelope); err != nil {
			err = fmt.Errorf("decode %s response (status %d): %w", c.target, resp.StatusCode, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if resp.StatusCode >= http.StatusInternalServerError {
				return Response{}, apperr.Unavailable(c.target+" unavailable", err)
			}
			return Response{}, apperr.Internal(err)
		}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		span.SetStatus(codes.Error, resp.Status)
	}
	return out, nil
}

// Err maps a non-2xx response to an error. 5xx responses without a
// recognizable error code are treated as an unavailable dependency.
func (r Response) Err(target string) error {
	if r.Status < http.StatusBadRequest {
		return nil
	}
	if r.Status >= http.StatusInternalServerError && r.Envelope.Code == "" {
		return apperr.Unavailable(fmt.Sprintf("%s returned %d", target, r.Status), nil)
	}
	if e := r.Envelope.Err(r.Status); e != nil {
		return e
	}
	return apperr.Decode(r.Status, "", "", nil)
}
