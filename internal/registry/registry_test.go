package registry

import (
	"testing"
	"time"

	"github.com/NamanArora/pay-proxy/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProxyConfig() config.ProxyConfig {
	disabled := false
	return config.ProxyConfig{
		Enabled:     true,
		RoutePrefix: "/proxy",
		PayPal: config.FamilyConfig{
			Enabled:  true,
			Timeout:  config.Duration(5 * time.Second),
			Services: map[string]string{"get-pay-key": "https://paypal.example.com/Pay"},
		},
		Bango: config.FamilyConfig{
			Enabled:     true,
			Timeout:     config.Duration(7 * time.Second),
			Namespaces:  []string{"ns.one"},
			Credentials: map[string]string{"user": "u", "password": "p"},
		},
		Providers: []config.ProviderConfig{
			{Name: "zeta", BaseURL: "https://zeta.example.com/", Timeout: config.Duration(time.Second)},
			{Name: "alpha", BaseURL: "https://alpha.example.com/", Enabled: &disabled, Timeout: config.Duration(time.Second)},
		},
	}
}

func TestRegistry_Lookups(t *testing.T) {
	r, err := New(testProxyConfig())
	require.NoError(t, err)

	assert.True(t, r.Enabled())
	assert.Equal(t, "/proxy", r.RoutePrefix())

	paypal, ok := r.Family(FamilyPayPal)
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, paypal.Timeout)
	assert.Equal(t, "https://paypal.example.com/Pay", paypal.Services["get-pay-key"])

	bango, ok := r.Family(FamilyBango)
	require.True(t, ok)
	assert.Equal(t, "u", bango.Credential("user"))
	assert.Equal(t, []string{"ns.one"}, bango.Namespaces)

	_, ok = r.Family("stripe")
	assert.False(t, ok)

	alpha, ok := r.Reference("alpha")
	require.True(t, ok)
	assert.False(t, alpha.Enabled)
	assert.Equal(t, FamilyReference, alpha.Family)

	_, ok = r.Reference("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"alpha", "zeta"}, r.References())
}

func TestRegistry_LookupsReturnCopies(t *testing.T) {
	r, err := New(testProxyConfig())
	require.NoError(t, err)

	bango, _ := r.Family(FamilyBango)
	bango.Credentials["user"] = "mutated"
	bango.Namespaces[0] = "mutated"

	again, _ := r.Family(FamilyBango)
	assert.Equal(t, "u", again.Credential("user"))
	assert.Equal(t, "ns.one", again.Namespaces[0])
}

func TestRegistry_DuplicateReference(t *testing.T) {
	cfg := testProxyConfig()
	cfg.Providers = append(cfg.Providers, config.ProviderConfig{Name: "zeta", BaseURL: "https://other"})

	_, err := New(cfg)
	assert.Error(t, err)
}
