package providers

import (
	"context"
	"net/http"
	"time"
)

// Adapter defines the interface that all provider families must implement
type Adapter interface {
	// Name returns the provider family name (e.g., "paypal", "bango")
	Name() string

	// Prepare turns an inbound request into a fully formed outbound request,
	// including any credentials the provider requires. It either returns a
	// complete request or a typed error, never both.
	Prepare(ctx context.Context, in *InboundRequest) (*OutboundRequest, error)

	// Finalize allows provider-specific post-processing of the response.
	// It must not change the status code.
	Finalize(resp *Response) *Response
}

// InboundRequest is the transport-neutral view of a call made to the proxy.
type InboundRequest struct {
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte

	// RoutePrefix is the path prefix matched by the dispatcher; the remainder
	// of Path is forwarded by URL-rewriting adapters.
	RoutePrefix string
}

// NewInboundRequest captures an http.Request whose body has already been read.
func NewInboundRequest(r *http.Request, body []byte, routePrefix string) *InboundRequest {
	return &InboundRequest{
		Method:      r.Method,
		Path:        r.URL.Path,
		RawQuery:    r.URL.RawQuery,
		Header:      r.Header.Clone(),
		Body:        body,
		RoutePrefix: routePrefix,
	}
}

// OutboundRequest is what an adapter asks the proxy core to send.
type OutboundRequest struct {
	Method  string
	URL     string
	Header  http.Header
	Body    []byte
	Timeout time.Duration

	// Provider and Hop key the timing metric for the call.
	Provider string
	Hop      string
}

// Response is the provider's answer as passed back to the caller.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Passthrough provides the identity Finalize for adapters to embed.
type Passthrough struct{}

// Finalize returns the response unchanged.
func (Passthrough) Finalize(resp *Response) *Response {
	return resp
}
