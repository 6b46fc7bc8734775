package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_ObserveCall(t *testing.T) {
	c := NewCollector("payproxy")

	c.ObserveCall("paypal", "get-pay-key", OutcomeSuccess, 120*time.Millisecond)
	c.ObserveCall("paypal", "get-pay-key", OutcomeSuccess, 80*time.Millisecond)
	c.ObserveCall("bango", "bango", OutcomeTransport, 10*time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.calls.WithLabelValues("paypal", "get-pay-key", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.calls.WithLabelValues("bango", "bango", OutcomeTransport)))
	assert.Equal(t, 2, testutil.CollectAndCount(c.duration))
}

func TestCollector_RecordRejected(t *testing.T) {
	c := NewCollector("payproxy")
	c.RecordRejected("reference", "disabled")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.rejected.WithLabelValues("reference", "disabled")))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveCall("p", "h", OutcomeSuccess, time.Second)
		c.RecordRejected("p", "disabled")
	})
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("payproxy")
	c.ObserveCall("bango", "bango", OutcomeProviderError, time.Second)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "payproxy_proxy_calls_total"))
}

func TestOutcomeFor(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, OutcomeFor(200))
	assert.Equal(t, OutcomeSuccess, OutcomeFor(299))
	assert.Equal(t, OutcomeProviderError, OutcomeFor(301))
	assert.Equal(t, OutcomeProviderError, OutcomeFor(404))
	assert.Equal(t, OutcomeProviderError, OutcomeFor(199))
}
