package router

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/NamanArora/pay-proxy/internal/config"
	"github.com/NamanArora/pay-proxy/internal/handlers"
	"github.com/NamanArora/pay-proxy/internal/logging"
	"github.com/NamanArora/pay-proxy/internal/metrics"
	"github.com/NamanArora/pay-proxy/internal/middleware"
	"github.com/NamanArora/pay-proxy/internal/proxy"
	"github.com/NamanArora/pay-proxy/internal/registry"
	"github.com/NamanArora/pay-proxy/internal/storage"
)

// Router manages HTTP routing and provider registration
type Router struct {
	proxyHandler *handlers.ProxyHandler
	config       *config.Config
	metrics      *metrics.Collector
	logWriter    *storage.AsyncLogWriter
	capture      *middleware.CaptureMiddleware
	logger       *slog.Logger
}

// Options holds optional collaborators. Nil fields are created or disabled.
type Options struct {
	LogWriter *storage.AsyncLogWriter
	Metrics   *metrics.Collector
	Client    *http.Client
	Logger    *slog.Logger
}

// New builds the registry from cfg and creates a router serving it.
func New(cfg *config.Config, opts Options) (*Router, error) {
	reg, err := registry.New(cfg.Proxy)
	if err != nil {
		return nil, err
	}

	logger := logging.OrDefault(opts.Logger)
	if opts.Metrics == nil && cfg.Metrics.Enabled {
		opts.Metrics = metrics.NewCollector(cfg.Metrics.Namespace)
	}
	if opts.Client == nil {
		opts.Client = proxy.NewClient()
	}

	var capture *middleware.CaptureMiddleware
	if opts.LogWriter != nil {
		capture = middleware.NewCaptureMiddleware(middleware.CaptureConfig{
			Writer:      opts.LogWriter,
			MaxBodySize: cfg.Logging.MaxBodySize,
			RoutePrefix: reg.RoutePrefix(),
		})
	}

	return &Router{
		proxyHandler: handlers.NewProxyHandler(reg, handlers.Options{
			Client:  opts.Client,
			Metrics: opts.Metrics,
			Logger:  logger,
		}),
		config:    cfg,
		metrics:   opts.Metrics,
		logWriter: opts.LogWriter,
		capture:   capture,
		logger:    logger,
	}, nil
}

// Handler returns the main HTTP handler with all middleware applied
func (r *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(r.proxyHandler.RoutePrefix()+"/", r.proxyHandler)
	mux.HandleFunc("/health", r.healthCheckHandler)
	mux.HandleFunc("/status", r.statusHandler)

	if r.metrics != nil {
		mux.Handle(r.config.Metrics.Path, r.metrics.Handler())
	}
	if r.logWriter != nil {
		mux.HandleFunc("/logs/metrics", r.logMetricsHandler)
	}

	// First middleware listed runs first (outermost layer)
	middlewares := []func(http.Handler) http.Handler{
		middleware.Recovery(r.logger),
		middleware.Logger(r.logger),
		middleware.CORS,
		middleware.ContentType,
	}

	// innermost, so it records what the handler actually wrote
	if r.capture != nil {
		middlewares = append(middlewares, r.capture.Capture)
	}

	return otelhttp.NewHandler(middleware.ApplyChain(mux, middlewares...), "pay-proxy")
}

// healthCheckHandler provides a simple health check endpoint
func (r *Router) healthCheckHandler(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, map[string]string{"status": "healthy"})
}

// statusHandler lists registered providers and whether they are enabled
func (r *Router) statusHandler(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, map[string]interface{}{
		"status":        "running",
		"proxy_enabled": r.config.Proxy.Enabled,
		"route_prefix":  r.proxyHandler.RoutePrefix(),
		"providers":     r.proxyHandler.Providers(),
	})
}

// logMetricsHandler provides call-log writer metrics
func (r *Router) logMetricsHandler(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, r.logWriter.GetMetrics())
}

// Providers exposes the registered providers for start-up reporting.
func (r *Router) Providers() []handlers.ProviderStatus {
	return r.proxyHandler.Providers()
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
