package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, "/proxy", cfg.Proxy.RoutePrefix)
	assert.False(t, cfg.Proxy.Enabled)
	assert.Equal(t, DefaultTimeout, cfg.Proxy.PayPal.Timeout.Std())
	assert.Equal(t, DefaultTimeout, cfg.Proxy.Bango.Timeout.Std())
	assert.Equal(t, DefaultBangoNamespaces, cfg.Proxy.Bango.Namespaces)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, "pay-proxy", cfg.Tracing.ServiceName)
	assert.Empty(t, cfg.Tracing.Endpoint)
}

func TestLoadConfig_ProviderTable(t *testing.T) {
	t.Setenv("REF_SECRET", "s3cret")

	path := writeConfig(t, `
proxy:
  enabled: true
  route_prefix: /gateway/
  paypal:
    enabled: true
    timeout: 5s
    services:
      get-permission-url: https://svcs.example.com/Permissions/RequestPermissions
    credentials:
      userid: api-user
  bango:
    enabled: true
    timeout: 20
    credentials:
      user: bango-user
      password: bango-pass
  providers:
    - name: reference
      base_url: https://zippy.example.com/
      timeout: 2s
      credentials:
        key: consumer
        secret: ${REF_SECRET}
    - name: offline
      base_url: https://offline.example.com/
      enabled: false
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.True(t, cfg.Proxy.Enabled)
	assert.Equal(t, "/gateway", cfg.Proxy.RoutePrefix)
	assert.Equal(t, 5*time.Second, cfg.Proxy.PayPal.Timeout.Std())
	assert.Equal(t, 20*time.Second, cfg.Proxy.Bango.Timeout.Std())
	assert.Equal(t, "https://svcs.example.com/Permissions/RequestPermissions", cfg.Proxy.PayPal.Services["get-permission-url"])

	require.Len(t, cfg.Proxy.Providers, 2)
	ref := cfg.Proxy.Providers[0]
	assert.Equal(t, "s3cret", ref.Credentials["secret"])
	assert.Equal(t, 2*time.Second, ref.Timeout.Std())
	assert.True(t, ref.IsEnabled())

	offline := cfg.Proxy.Providers[1]
	assert.False(t, offline.IsEnabled())
	assert.Equal(t, DefaultTimeout, offline.Timeout.Std())
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "missing base url",
			body: "proxy:\n  providers:\n    - name: ref\n",
		},
		{
			name: "duplicate provider",
			body: "proxy:\n  providers:\n    - name: ref\n      base_url: http://a\n    - name: ref\n      base_url: http://b\n",
		},
		{
			name: "slash in name",
			body: "proxy:\n  providers:\n    - name: a/b\n      base_url: http://a\n",
		},
		{
			name: "bad duration",
			body: "proxy:\n  paypal:\n    timeout: soon\n",
		},
		{
			name: "unknown storage",
			body: "storage:\n  type: mongo\n",
		},
		{
			name: "sample ratio out of range",
			body: "tracing:\n  sample_ratio: 1.5\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}
