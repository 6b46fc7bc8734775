package reference

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/NamanArora/pay-proxy/internal/providers"
	"github.com/NamanArora/pay-proxy/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const routePrefix = "/proxy/provider/reference/"

func lookup(cfgs ...registry.ProviderConfig) Lookup {
	return func(name string) (registry.ProviderConfig, bool) {
		for _, c := range cfgs {
			if c.Name == name {
				return c, true
			}
		}
		return registry.ProviderConfig{}, false
	}
}

func referenceConfig() registry.ProviderConfig {
	return registry.ProviderConfig{
		Name:        "reference",
		Family:      registry.FamilyReference,
		BaseURL:     "https://zippy.example.com/",
		Timeout:     4 * time.Second,
		Enabled:     true,
		Credentials: map[string]string{CredKey: "consumer-key", CredSecret: "consumer-secret"},
	}
}

func inbound(method, path, query string) *providers.InboundRequest {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set("Cookie", "session=secret")
	h.Set("X-Forwarded-For", "10.0.0.1")
	h.Set("Authorization", "Bearer caller-token")
	return &providers.InboundRequest{
		Method:      method,
		Path:        path,
		RawQuery:    query,
		Header:      h,
		Body:        []byte(`{"uuid":"abc"}`),
		RoutePrefix: routePrefix,
	}
}

func TestPrepare_RewritesURL(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		query string
		want  string
	}{
		{"resource", routePrefix + "sellers/", "", "https://zippy.example.com/sellers/"},
		{"nested", routePrefix + "sellers/1/products/", "", "https://zippy.example.com/sellers/1/products/"},
		{"query preserved", routePrefix + "transactions/", "a=1&b=%2F+x&a=2", "https://zippy.example.com/transactions/?a=1&b=%2F+x&a=2"},
		{"root", routePrefix, "", "https://zippy.example.com/"},
		{"root without slash", "/proxy/provider/reference", "", "https://zippy.example.com/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New("reference", lookup(referenceConfig()), nil)

			in := inbound(http.MethodPut, tt.path, tt.query)
			out, err := a.Prepare(context.Background(), in)
			require.NoError(t, err)

			assert.Equal(t, tt.want, out.URL)
			assert.Equal(t, http.MethodPut, out.Method, "method passes through")
			assert.Equal(t, in.Body, out.Body)
			assert.Equal(t, 4*time.Second, out.Timeout)
			assert.Equal(t, "reference", out.Hop)
		})
	}
}

func TestPrepare_OnlyForwardsContentTypeAndAccept(t *testing.T) {
	a := New("reference", lookup(referenceConfig()), nil)

	out, err := a.Prepare(context.Background(), inbound(http.MethodPost, routePrefix+"sellers/", ""))
	require.NoError(t, err)

	keys := make([]string, 0, len(out.Header))
	for k := range out.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	assert.Equal(t, []string{"Accept", "Authorization", "Content-Type"}, keys)
	assert.Equal(t, "application/json", out.Header.Get("Content-Type"))
	assert.Equal(t, "application/json", out.Header.Get("Accept"))
	assert.NotContains(t, out.Header.Get("Authorization"), "caller-token")
}

func TestPrepare_MissingOptionalHeaders(t *testing.T) {
	a := New("reference", lookup(referenceConfig()), nil)

	in := &providers.InboundRequest{Method: http.MethodGet, Path: routePrefix + "sellers/", Header: http.Header{}, RoutePrefix: routePrefix}
	out, err := a.Prepare(context.Background(), in)
	require.NoError(t, err)

	assert.Empty(t, out.Header.Get("Content-Type"))
	assert.Empty(t, out.Header.Get("Accept"))
	assert.NotEmpty(t, out.Header.Get("Authorization"))
}

func TestPrepare_SignsRequest(t *testing.T) {
	a := New("reference", lookup(referenceConfig()), nil)

	out, err := a.Prepare(context.Background(), inbound(http.MethodGet, routePrefix+"sellers/", "page=2"))
	require.NoError(t, err)

	auth := out.Header.Get("Authorization")
	require.True(t, strings.HasPrefix(auth, "OAuth "), auth)
	assert.Contains(t, auth, `oauth_consumer_key="consumer-key"`)
	assert.Contains(t, auth, `oauth_signature_method="HMAC-SHA1"`)
	assert.Contains(t, auth, `oauth_token="not-implemented"`)
	assert.Contains(t, auth, "oauth_signature=")
}

func TestPrepare_ConfiguredToken(t *testing.T) {
	cfg := referenceConfig()
	cfg.Credentials[CredToken] = "tok"
	cfg.Credentials[CredTokenSecret] = "tok-secret"
	a := New("reference", lookup(cfg), nil)

	out, err := a.Prepare(context.Background(), inbound(http.MethodGet, routePrefix, ""))
	require.NoError(t, err)
	assert.Contains(t, out.Header.Get("Authorization"), `oauth_token="tok"`)
}

func TestPrepare_MissingConfig(t *testing.T) {
	a := New("ghost", lookup(referenceConfig()), nil)

	out, err := a.Prepare(context.Background(), inbound(http.MethodGet, "/proxy/provider/ghost/x", ""))
	assert.Nil(t, out)

	var cfgErr *providers.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "ghost", cfgErr.Provider)
}

func TestPrepare_IdempotentApartFromNonce(t *testing.T) {
	a := New("reference", lookup(referenceConfig()), nil)
	in := inbound(http.MethodPost, routePrefix+"sellers/", "q=1")

	first, err := a.Prepare(context.Background(), in)
	require.NoError(t, err)
	second, err := a.Prepare(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, first.Method, second.Method)
	assert.Equal(t, first.URL, second.URL)
	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, first.Header.Get("Content-Type"), second.Header.Get("Content-Type"))
	assert.Equal(t, first.Header.Get("Accept"), second.Header.Get("Accept"))
	assert.Len(t, second.Header, len(first.Header))

	// the inbound request is not mutated by Prepare
	assert.Equal(t, "Bearer caller-token", in.Header.Get("Authorization"))
}

func TestJoinURL(t *testing.T) {
	assert.Equal(t, "https://a.example.com/x/y", JoinURL("https://a.example.com", "x/y"))
	assert.Equal(t, "https://a.example.com/x/y", JoinURL("https://a.example.com/", "/x/y"))
	assert.Equal(t, "https://a.example.com/api/x/", JoinURL("https://a.example.com/api/", "x/"))
	assert.Equal(t, "https://a.example.com/", JoinURL("https://a.example.com/", ""))
}
