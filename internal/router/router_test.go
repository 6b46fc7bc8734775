package router

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NamanArora/pay-proxy/internal/config"
	"github.com/NamanArora/pay-proxy/internal/storage"
)

func testConfig(serviceURL string) *config.Config {
	cfg := config.Default()
	cfg.Proxy.Enabled = true
	cfg.Proxy.PayPal = config.FamilyConfig{
		Enabled:  true,
		Timeout:  config.Duration(time.Second),
		Services: map[string]string{"get-pay-key": serviceURL},
	}
	cfg.Proxy.Providers = []config.ProviderConfig{{Name: "zippy", BaseURL: "http://zippy.invalid/"}}
	return cfg
}

func TestHandler_EndToEnd(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("responseEnvelope.ack=Success"))
	}))
	defer backend.Close()

	store := storage.NewMemoryStorage()
	writer := storage.NewAsyncLogWriter(storage.AsyncLogWriterConfig{Backend: store, BatchSize: 1, Enabled: true})

	r, err := New(testConfig(backend.URL), Options{LogWriter: writer})
	require.NoError(t, err)
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/proxy/paypal/", strings.NewReader("a=b"))
	req.Header.Set("X-Gateway-URL", "get-pay-key")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	metricsResp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	var body strings.Builder
	_, _ = io.Copy(&body, metricsResp.Body)
	assert.Contains(t, body.String(), `payproxy_proxy_calls_total{hop="get-pay-key",outcome="success",provider="paypal"} 1`)

	require.NoError(t, writer.Close())
	assert.Equal(t, 1, store.Len())
}

func TestHandler_Status(t *testing.T) {
	r, err := New(testConfig("http://unused.invalid"), Options{})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status struct {
		Status    string `json:"status"`
		Providers []struct {
			Name    string `json:"name"`
			Family  string `json:"family"`
			Enabled bool   `json:"enabled"`
		} `json:"providers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "running", status.Status)
	require.Len(t, status.Providers, 3)
	assert.Equal(t, "zippy", status.Providers[2].Name)
	assert.False(t, status.Providers[1].Enabled, "bango is not enabled in this config")
}

func TestHandler_Health(t *testing.T) {
	r, err := New(testConfig("http://unused.invalid"), Options{})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandler_LogMetricsOnlyWithWriter(t *testing.T) {
	r, err := New(testConfig("http://unused.invalid"), Options{})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logs/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNew_DuplicateReference(t *testing.T) {
	cfg := testConfig("http://unused.invalid")
	cfg.Proxy.Providers = append(cfg.Proxy.Providers, cfg.Proxy.Providers[0])

	_, err := New(cfg, Options{})
	assert.Error(t, err)
}
