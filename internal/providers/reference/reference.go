package reference

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gomodule/oauth1/oauth"

	"github.com/NamanArora/pay-proxy/internal/logging"
	"github.com/NamanArora/pay-proxy/internal/providers"
	"github.com/NamanArora/pay-proxy/internal/registry"
)

// Credential keys in a reference provider's credential table.
const (
	CredKey         = "key"
	CredSecret      = "secret"
	CredToken       = "token"
	CredTokenSecret = "token_secret"
)

// defaultToken is sent as oauth_token when the provider has no token configured.
const defaultToken = "not-implemented"

// forwardedHeaders are the only inbound headers passed on to the provider.
var forwardedHeaders = []string{"Content-Type", "Accept"}

// Lookup resolves a reference name to its provider configuration.
type Lookup func(name string) (registry.ProviderConfig, bool)

// Adapter proxies calls to a named provider, splicing the request path onto
// the provider's base URL and signing the result with OAuth 1.0.
type Adapter struct {
	providers.Passthrough

	name   string
	lookup Lookup
	logger *slog.Logger
}

// New creates an adapter for the reference provider name, resolving its
// configuration through lookup on every call.
func New(name string, lookup Lookup, logger *slog.Logger) *Adapter {
	return &Adapter{
		name:   name,
		lookup: lookup,
		logger: logging.OrDefault(logger).With("provider", name),
	}
}

// Name returns the reference name
func (a *Adapter) Name() string {
	return a.name
}

// Prepare builds the signed outbound request. The method is passed through.
func (a *Adapter) Prepare(ctx context.Context, in *providers.InboundRequest) (*providers.OutboundRequest, error) {
	cfg, ok := a.lookup(a.name)
	if !ok {
		a.logger.Error("no configuration for reference provider")
		return nil, &providers.ConfigurationError{Provider: a.name, Message: "no config for reference provider"}
	}

	header := http.Header{}
	for _, key := range forwardedHeaders {
		if v := in.Header.Get(key); v != "" {
			header.Set(key, v)
		}
	}

	// A path without the trailing slash of the prefix addresses the base URL.
	var rest string
	if strings.HasPrefix(in.Path, in.RoutePrefix) {
		rest = in.Path[len(in.RoutePrefix):]
	}
	target := JoinURL(cfg.BaseURL, rest)
	if in.RawQuery != "" {
		target = target + "?" + in.RawQuery
	}

	if err := Sign(header, cfg, in.Method, target); err != nil {
		return nil, &providers.ConfigurationError{Provider: a.name, Key: CredKey, Message: err.Error()}
	}

	return &providers.OutboundRequest{
		Method:   in.Method,
		URL:      target,
		Header:   header,
		Body:     in.Body,
		Timeout:  cfg.Timeout,
		Provider: registry.FamilyReference,
		Hop:      a.name,
	}, nil
}

// Sign sets an OAuth 1.0 HMAC-SHA1 Authorization header for method and
// target using the provider's consumer key and secret.
func Sign(header http.Header, cfg registry.ProviderConfig, method, target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("invalid target url: %w", err)
	}

	client := oauth.Client{
		Credentials: oauth.Credentials{
			Token:  cfg.Credential(CredKey),
			Secret: cfg.Credential(CredSecret),
		},
		SignatureMethod: oauth.HMACSHA1,
	}

	token := cfg.Credential(CredToken)
	if token == "" {
		token = defaultToken
	}
	creds := &oauth.Credentials{Token: token, Secret: cfg.Credential(CredTokenSecret)}

	if err := client.SetAuthorizationHeader(header, creds, strings.ToUpper(method), u, nil); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}
	return nil
}

// JoinURL appends path to base with exactly one slash between them.
// An empty path returns base unchanged.
func JoinURL(base, path string) string {
	if path == "" {
		return base
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
