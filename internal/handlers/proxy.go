package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/NamanArora/pay-proxy/internal/logging"
	"github.com/NamanArora/pay-proxy/internal/metrics"
	"github.com/NamanArora/pay-proxy/internal/middleware"
	"github.com/NamanArora/pay-proxy/internal/providers"
	"github.com/NamanArora/pay-proxy/internal/providers/bango"
	"github.com/NamanArora/pay-proxy/internal/providers/paypal"
	"github.com/NamanArora/pay-proxy/internal/providers/reference"
	"github.com/NamanArora/pay-proxy/internal/proxy"
	"github.com/NamanArora/pay-proxy/internal/registry"
)

// maxBodySize caps inbound bodies read into memory.
const maxBodySize = 10 << 20

// referenceSegment introduces a named reference provider in the path.
const referenceSegment = "provider"

// ProviderStatus describes one registered proxy for the status endpoint.
type ProviderStatus struct {
	Name    string `json:"name"`
	Family  string `json:"family"`
	Enabled bool   `json:"enabled"`
}

// errorResponse is the JSON body written for failures produced by the proxy.
type errorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Provider string `json:"provider,omitempty"`
}

// ProxyHandler routes inbound calls to the proxy for their provider
type ProxyHandler struct {
	prefix     string
	families   map[string]*proxy.Proxy
	references map[string]*proxy.Proxy
	statuses   []ProviderStatus
	logger     *slog.Logger
}

// Options holds the shared dependencies handed to every proxy.
type Options struct {
	Client  *http.Client
	Metrics *metrics.Collector
	Logger  *slog.Logger
}

// NewProxyHandler builds one proxy per family and per reference provider.
func NewProxyHandler(reg *registry.Registry, opts Options) *ProxyHandler {
	logger := logging.OrDefault(opts.Logger)
	if opts.Client == nil {
		opts.Client = proxy.NewClient()
	}

	h := &ProxyHandler{
		prefix:     reg.RoutePrefix(),
		families:   make(map[string]*proxy.Proxy, 2),
		references: make(map[string]*proxy.Proxy),
		logger:     logger,
	}

	register := func(family string, cfg registry.ProviderConfig, adapter providers.Adapter) *proxy.Proxy {
		enabled := reg.Enabled() && cfg.Enabled
		h.statuses = append(h.statuses, ProviderStatus{Name: cfg.Name, Family: family, Enabled: enabled})
		logger.Info("registered provider", "provider", cfg.Name, "family", family, "enabled", enabled)
		return proxy.New(proxy.Config{
			Adapter: adapter,
			Client:  opts.Client,
			Enabled: enabled,
			Metrics: opts.Metrics,
			Logger:  logger,
		})
	}

	if cfg, ok := reg.Family(registry.FamilyPayPal); ok {
		h.families[registry.FamilyPayPal] = register(registry.FamilyPayPal, cfg, paypal.New(cfg, logger))
	}
	if cfg, ok := reg.Family(registry.FamilyBango); ok {
		h.families[registry.FamilyBango] = register(registry.FamilyBango, cfg, bango.New(cfg, logger))
	}
	for _, name := range reg.References() {
		cfg, _ := reg.Reference(name)
		h.references[name] = register(registry.FamilyReference, cfg, reference.New(name, reg.Reference, logger))
	}

	return h
}

// ServeHTTP implements http.Handler interface
func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p, routePrefix, err := h.resolve(r.URL.Path)
	if err != nil {
		h.logger.Warn("unknown provider", "path", r.URL.Path, "error", err)
		h.writeError(w, r, "", err)
		return
	}

	// A disabled proxy answers before the body is touched.
	if !p.Enabled() {
		res := p.Handle(r.Context(), providers.NewInboundRequest(r, nil, routePrefix))
		h.writeError(w, r, p.Name(), res.Err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		h.writeError(w, r, p.Name(), &providers.PayloadError{Provider: p.Name(), Cause: fmt.Errorf("failed to read request body: %w", err)})
		return
	}

	res := p.Handle(r.Context(), providers.NewInboundRequest(r, body, routePrefix))
	if res.Failed() {
		h.writeError(w, r, p.Name(), res.Err)
		return
	}

	if res.ContentType != "" {
		w.Header().Set("Content-Type", res.ContentType)
	}
	w.WriteHeader(res.StatusCode)
	if _, err := w.Write(res.Body); err != nil {
		h.logger.Error("error writing response body", "provider", p.Name(), "error", err)
	}
}

// resolve picks the proxy for path and the route prefix its adapter sees.
func (h *ProxyHandler) resolve(path string) (*proxy.Proxy, string, error) {
	base := strings.TrimRight(h.prefix, "/") + "/"
	if !strings.HasPrefix(path, base) {
		return nil, "", &providers.UnknownProviderError{Name: path}
	}

	segments := strings.SplitN(strings.TrimPrefix(path, base), "/", 3)
	family := segments[0]

	if family != referenceSegment {
		p, ok := h.families[family]
		if !ok {
			return nil, "", &providers.UnknownProviderError{Name: family}
		}
		return p, base + family + "/", nil
	}

	if len(segments) < 2 || segments[1] == "" {
		return nil, "", &providers.UnknownProviderError{Name: referenceSegment}
	}
	name := segments[1]
	p, ok := h.references[name]
	if !ok {
		return nil, "", &providers.UnknownProviderError{Name: name}
	}
	return p, base + referenceSegment + "/" + name + "/", nil
}

func (h *ProxyHandler) writeError(w http.ResponseWriter, r *http.Request, provider string, err error) {
	middleware.CallInfoFrom(r.Context()).SetErrorCode(providers.Kind(err))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(providers.StatusCode(err))

	resp := errorResponse{
		Code:     providers.Kind(err),
		Message:  err.Error(),
		Provider: provider,
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("error encoding error response", "error", err)
	}
}

// Providers returns every registered proxy in registration order.
func (h *ProxyHandler) Providers() []ProviderStatus {
	return append([]ProviderStatus(nil), h.statuses...)
}

// RoutePrefix returns the path the handler is mounted under.
func (h *ProxyHandler) RoutePrefix() string {
	return h.prefix
}
