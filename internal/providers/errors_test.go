package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKindAndStatusCode(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		kind   string
		status int
	}{
		{"configuration", &ConfigurationError{Provider: "paypal", Key: "X-Gateway-URL", Message: "missing"}, KindConfiguration, http.StatusBadRequest},
		{"payload", &PayloadError{Provider: "bango", Cause: errors.New("bad xml")}, KindPayload, http.StatusBadRequest},
		{"transport", &TransportError{Provider: "bango", Timeout: time.Second, Cause: context.DeadlineExceeded}, KindTransport, http.StatusInternalServerError},
		{"unknown", &UnknownProviderError{Name: "stripe"}, KindUnknownProvider, http.StatusNotFound},
		{"disabled", ErrProxyDisabled, KindDisabled, http.StatusNotFound},
		{"wrapped configuration", fmt.Errorf("prepare: %w", &ConfigurationError{Provider: "x", Message: "m"}), KindConfiguration, http.StatusBadRequest},
		{"other", errors.New("boom"), KindInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, Kind(tt.err))
			assert.Equal(t, tt.status, StatusCode(tt.err))
		})
	}

	assert.Equal(t, "", Kind(nil))
}

func TestErrorUnwrap(t *testing.T) {
	cause := context.DeadlineExceeded
	err := &TransportError{Provider: "paypal", URL: "https://example.com", Timeout: time.Second, Cause: cause}
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "https://example.com")

	perr := &PayloadError{Provider: "bango", Cause: cause}
	assert.ErrorIs(t, perr, context.DeadlineExceeded)
}
