// Package proxy implements the request lifecycle shared by every provider:
// prepare through the adapter, call the provider, finalize the response.
package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/NamanArora/pay-proxy/internal/logging"
	"github.com/NamanArora/pay-proxy/internal/metrics"
	"github.com/NamanArora/pay-proxy/internal/providers"
)

// Result is the uniform outcome of Handle. Err is nil when the provider
// answered, whatever its status code.
type Result struct {
	providers.Response
	Err error
}

// Failed reports whether the proxy itself produced the result.
func (r *Result) Failed() bool {
	return r.Err != nil
}

// Kind returns the failure kind, or "" for provider responses.
func (r *Result) Kind() string {
	return providers.Kind(r.Err)
}

func failure(err error) *Result {
	return &Result{
		Response: providers.Response{StatusCode: providers.StatusCode(err)},
		Err:      err,
	}
}

// Proxy drives one adapter. It is safe for concurrent use.
type Proxy struct {
	adapter providers.Adapter
	client  *http.Client
	enabled bool
	metrics *metrics.Collector
	logger  *slog.Logger
}

// Config holds the dependencies of a Proxy.
type Config struct {
	Adapter providers.Adapter
	Client  *http.Client
	Enabled bool
	Metrics *metrics.Collector
	Logger  *slog.Logger
}

// New creates a Proxy. A nil Client gets NewClient().
func New(cfg Config) *Proxy {
	if cfg.Client == nil {
		cfg.Client = NewClient()
	}
	return &Proxy{
		adapter: cfg.Adapter,
		client:  cfg.Client,
		enabled: cfg.Enabled,
		metrics: cfg.Metrics,
		logger:  logging.OrDefault(cfg.Logger).With("provider", cfg.Adapter.Name()),
	}
}

// NewClient returns the outbound client shared by all proxies. Timeouts are
// applied per call, so the client itself has none. TLS verification stays on.
func NewClient() *http.Client {
	return &http.Client{
		Transport: otelhttp.NewTransport(&http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DisableCompression:  true, // pass bodies through untouched
			MaxIdleConnsPerHost: 16,
			IdleConnTimeout:     90 * time.Second,
		}),
	}
}

// Name returns the adapter name.
func (p *Proxy) Name() string {
	return p.adapter.Name()
}

// Enabled reports whether the proxy will contact its provider.
func (p *Proxy) Enabled() bool {
	return p.enabled
}

// Handle runs the full lifecycle for one inbound call. It always returns a
// well-formed result.
func (p *Proxy) Handle(ctx context.Context, in *providers.InboundRequest) *Result {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("payproxy.provider", p.Name()))

	if !p.enabled {
		p.metrics.RecordRejected(p.Name(), providers.KindDisabled)
		return annotate(span, failure(providers.ErrProxyDisabled))
	}

	out, err := p.pre(ctx, in)
	if err != nil {
		p.metrics.RecordRejected(p.Name(), providers.Kind(err))
		return annotate(span, failure(err))
	}
	span.SetAttributes(attribute.String("payproxy.hop", out.Hop))

	return annotate(span, p.post(p.call(ctx, out)))
}

func annotate(span trace.Span, res *Result) *Result {
	if res.Failed() {
		span.SetAttributes(attribute.String("payproxy.error_kind", res.Kind()))
		span.SetStatus(codes.Error, res.Err.Error())
	}
	return res
}

func (p *Proxy) pre(ctx context.Context, in *providers.InboundRequest) (*providers.OutboundRequest, error) {
	out, err := p.adapter.Prepare(ctx, in)
	if err != nil {
		p.logger.Warn("request preparation failed", "kind", providers.Kind(err), "error", err)
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("adapter %s returned no request", p.Name())
	}
	return out, nil
}

// call sends out exactly as prepared and passes any HTTP response through.
func (p *Proxy) call(ctx context.Context, out *providers.OutboundRequest) *Result {
	start := time.Now()
	log := p.logger.With("hop", out.Hop, "url", out.URL, "method", out.Method)

	resp, err := p.do(ctx, out)
	elapsed := time.Since(start)
	if err != nil {
		p.metrics.ObserveCall(out.Provider, out.Hop, metrics.OutcomeTransport, elapsed)
		log.Error("provider call failed", "error", err, "elapsed", elapsed)
		return failure(&providers.TransportError{Provider: p.Name(), URL: out.URL, Timeout: out.Timeout, Cause: err})
	}

	p.metrics.ObserveCall(out.Provider, out.Hop, metrics.OutcomeFor(resp.StatusCode), elapsed)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn("warning response status", "status", resp.StatusCode)
	} else {
		log.Info("called provider", "status", resp.StatusCode, "elapsed", elapsed)
	}

	return &Result{Response: *resp}
}

func (p *Proxy) do(ctx context.Context, out *providers.OutboundRequest) (*providers.Response, error) {
	if out.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, out.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, out.Method, out.URL, bytes.NewReader(out.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy request: %w", err)
	}
	req.Header = out.Header.Clone()
	if req.Header == nil {
		req.Header = http.Header{}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// The deadline covers reading the body, so a stalled provider still fails here.
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read provider response: %w", err)
	}

	return &providers.Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// post lets the adapter finalize a provider response. Failures are returned as is.
func (p *Proxy) post(res *Result) *Result {
	if res.Failed() {
		return res
	}

	status := res.StatusCode
	finalized := p.adapter.Finalize(&res.Response)
	if finalized == nil {
		return res
	}
	if finalized.StatusCode != status {
		p.logger.Error("finalize changed the status code, restoring it", "from", status, "to", finalized.StatusCode)
		finalized.StatusCode = status
	}
	return &Result{Response: *finalized}
}

// IsTimeout reports whether a transport failure was caused by a deadline.
func IsTimeout(err error) bool {
	var transportErr *providers.TransportError
	if !errors.As(err, &transportErr) {
		return false
	}
	return errors.Is(transportErr.Cause, context.DeadlineExceeded)
}
