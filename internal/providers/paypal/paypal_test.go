package paypal

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/NamanArora/pay-proxy/internal/providers"
	"github.com/NamanArora/pay-proxy/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() registry.ProviderConfig {
	return registry.ProviderConfig{
		Name:    "paypal",
		Family:  registry.FamilyPayPal,
		Timeout: 3 * time.Second,
		Enabled: true,
		Services: map[string]string{
			"get-pay-key": "https://svcs.paypal.example.com/AdaptivePayments/Pay",
		},
		Credentials: map[string]string{
			CredUserID:        "api-user",
			CredPassword:      "api-pass",
			CredSignature:     "api-sig",
			CredApplicationID: "APP-1",
		},
	}
}

func inbound(method string, header http.Header, body string) *providers.InboundRequest {
	return &providers.InboundRequest{
		Method: method,
		Path:   "/proxy/paypal/",
		Header: header,
		Body:   []byte(body),
	}
}

func TestPrepare_ForwardsToService(t *testing.T) {
	a := New(testConfig(), nil)

	h := http.Header{}
	h.Set(HeaderURL, "get-pay-key")
	h.Set("Content-Type", "application/x-www-form-urlencoded")
	out, err := a.Prepare(context.Background(), inbound(http.MethodGet, h, "actionType=PAY"))
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, out.Method, "method is forced to POST")
	assert.Equal(t, "https://svcs.paypal.example.com/AdaptivePayments/Pay", out.URL)
	assert.Equal(t, []byte("actionType=PAY"), out.Body)
	assert.Equal(t, 3*time.Second, out.Timeout)
	assert.Equal(t, "paypal", out.Provider)
	assert.Equal(t, "get-pay-key", out.Hop)

	assert.Equal(t, "api-user", out.Header.Get("X-PAYPAL-SECURITY-USERID"))
	assert.Equal(t, "api-pass", out.Header.Get("X-PAYPAL-SECURITY-PASSWORD"))
	assert.Equal(t, "api-sig", out.Header.Get("X-PAYPAL-SECURITY-SIGNATURE"))
	assert.Equal(t, "APP-1", out.Header.Get("X-PAYPAL-APPLICATION-ID"))
	assert.Equal(t, "NV", out.Header.Get("X-PAYPAL-REQUEST-DATA-FORMAT"))
	assert.Empty(t, out.Header.Get("X-PAYPAL-AUTHORIZATION"))
	assert.Empty(t, out.Header.Get("Content-Type"), "inbound headers are not copied")
}

func TestPrepare_WithPermissionToken(t *testing.T) {
	a := New(testConfig(), nil)

	h := http.Header{}
	h.Set(HeaderURL, "get-pay-key")
	h.Set(HeaderToken, "token=abc&secret=xyz")
	out, err := a.Prepare(context.Background(), inbound(http.MethodPost, h, ""))
	require.NoError(t, err)

	auth := out.Header.Get("X-PAYPAL-AUTHORIZATION")
	require.NotEmpty(t, auth)
	assert.True(t, strings.HasPrefix(auth, "token=abc,signature="), auth)
	assert.Contains(t, auth, ",timestamp=")
}

func TestPrepare_MissingRoutingHeader(t *testing.T) {
	a := New(testConfig(), nil)

	out, err := a.Prepare(context.Background(), inbound(http.MethodPost, http.Header{}, ""))
	assert.Nil(t, out)

	var cfgErr *providers.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, HeaderURL, cfgErr.Key)
}

func TestPrepare_UnknownService(t *testing.T) {
	a := New(testConfig(), nil)

	h := http.Header{}
	h.Set(HeaderURL, "refund")
	_, err := a.Prepare(context.Background(), inbound(http.MethodPost, h, ""))
	assert.Equal(t, providers.KindConfiguration, providers.Kind(err))
}

func TestPrepare_BadToken(t *testing.T) {
	a := New(testConfig(), nil)

	h := http.Header{}
	h.Set(HeaderURL, "get-pay-key")
	h.Set(HeaderToken, "secret=only")
	_, err := a.Prepare(context.Background(), inbound(http.MethodPost, h, ""))

	var cfgErr *providers.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, HeaderToken, cfgErr.Key)
}

func TestPrepare_Idempotent(t *testing.T) {
	a := New(testConfig(), nil)

	h := http.Header{}
	h.Set(HeaderURL, "get-pay-key")
	in := inbound(http.MethodPost, h, "actionType=PAY")

	first, err := a.Prepare(context.Background(), in)
	require.NoError(t, err)
	second, err := a.Prepare(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestParseAuthToken(t *testing.T) {
	token, err := ParseAuthToken("token=t%20one&secret=s")
	require.NoError(t, err)
	assert.Equal(t, "t one", token.Token)
	assert.Equal(t, "s", token.Secret)

	_, err = ParseAuthToken("%zz")
	assert.Error(t, err)
}
