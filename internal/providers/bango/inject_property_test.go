package bango

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/NamanArora/pay-proxy/internal/config"
)

func TestInjectCredentials_Idempotent(t *testing.T) {
	a := New(testConfig(), nil)

	rapid.Check(t, func(rt *rapid.T) {
		ns := rapid.SampledFrom(config.DefaultBangoNamespaces).Draw(rt, "namespace")
		user := rapid.StringMatching(`[A-Za-z0-9]{0,12}`).Draw(rt, "user")
		pass := rapid.StringMatching(`[A-Za-z0-9]{0,12}`).Draw(rt, "password")
		pkg := rapid.StringMatching(`[0-9]{1,6}`).Draw(rt, "package")

		body := envelope(ns, "<ns:username>"+user+"</ns:username><ns:password>"+pass+"</ns:password><ns:packageId>"+pkg+"</ns:packageId>")

		once, err := a.InjectCredentials([]byte(body))
		require.NoError(rt, err)
		twice, err := a.InjectCredentials(once)
		require.NoError(rt, err)

		assert.Equal(rt, string(once), string(twice))
		assert.Equal(rt, envelope(ns, "<ns:username>real-user</ns:username><ns:password>real-pass</ns:password><ns:packageId>"+pkg+"</ns:packageId>"), string(once))
	})
}
