package providers

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrProxyDisabled is returned for any call to a disabled provider or when
// the proxy is switched off globally.
var ErrProxyDisabled = errors.New("proxy disabled")

// Error kinds reported in failure responses.
const (
	KindConfiguration   = "configuration"
	KindPayload         = "payload"
	KindTransport       = "transport"
	KindUnknownProvider = "unknown_provider"
	KindDisabled        = "disabled"
	KindInternal        = "internal"
)

// ConfigurationError means required routing input is missing or cannot be
// resolved. It is caused by the caller and is never retried.
type ConfigurationError struct {
	// Provider is the family or reference name handling the request
	Provider string

	// Key is the header or lookup key that was missing or unresolvable
	Key string

	// Message describes the problem
	Message string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("provider %q configuration error (%s): %s", e.Provider, e.Key, e.Message)
	}
	return fmt.Sprintf("provider %q configuration error: %s", e.Provider, e.Message)
}

// PayloadError means the inbound body could not be parsed or transformed.
type PayloadError struct {
	Provider string
	Cause    error
}

// Error implements the error interface.
func (e *PayloadError) Error() string {
	return fmt.Sprintf("provider %q payload error: %v", e.Provider, e.Cause)
}

// Unwrap returns the underlying error for error chain support.
func (e *PayloadError) Unwrap() error {
	return e.Cause
}

// TransportError means the outbound call failed at the network level or timed out.
type TransportError struct {
	Provider string
	URL      string
	Timeout  time.Duration
	Cause    error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("provider %q transport error calling %s (timeout %s): %v", e.Provider, e.URL, e.Timeout, e.Cause)
}

// Unwrap returns the underlying error for error chain support.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// UnknownProviderError means the dispatcher could not resolve the requested provider.
type UnknownProviderError struct {
	Name string
}

// Error implements the error interface.
func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown provider %q", e.Name)
}

// Kind classifies err into one of the Kind* constants.
func Kind(err error) string {
	var (
		cfgErr       *ConfigurationError
		payloadErr   *PayloadError
		transportErr *TransportError
		unknownErr   *UnknownProviderError
	)

	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrProxyDisabled):
		return KindDisabled
	case errors.As(err, &cfgErr):
		return KindConfiguration
	case errors.As(err, &payloadErr):
		return KindPayload
	case errors.As(err, &transportErr):
		return KindTransport
	case errors.As(err, &unknownErr):
		return KindUnknownProvider
	default:
		return KindInternal
	}
}

// StatusCode maps err to the HTTP status returned to the caller.
func StatusCode(err error) int {
	switch Kind(err) {
	case KindConfiguration, KindPayload:
		return http.StatusBadRequest
	case KindDisabled, KindUnknownProvider:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
