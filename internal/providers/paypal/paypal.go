package paypal

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gomodule/oauth1/oauth"

	"github.com/NamanArora/pay-proxy/internal/logging"
	"github.com/NamanArora/pay-proxy/internal/providers"
	"github.com/NamanArora/pay-proxy/internal/registry"
)

// Routing headers read from the inbound request.
const (
	HeaderURL   = "X-Gateway-URL"
	HeaderToken = "X-Gateway-Token"
)

// Credential keys in the family's credential table.
const (
	CredUserID        = "userid"
	CredPassword      = "password"
	CredSignature     = "signature"
	CredApplicationID = "application_id"
)

// Adapter forwards calls to the PayPal adaptive APIs. The target URL is
// picked from the service table by the X-Gateway-URL header.
type Adapter struct {
	providers.Passthrough

	config registry.ProviderConfig
	logger *slog.Logger
}

// New creates a PayPal adapter bound to cfg.
func New(cfg registry.ProviderConfig, logger *slog.Logger) *Adapter {
	return &Adapter{
		config: cfg,
		logger: logging.OrDefault(logger).With("provider", cfg.Name),
	}
}

// Name returns the provider family name
func (a *Adapter) Name() string {
	return a.config.Name
}

// Prepare resolves the service URL and builds PayPal's authentication headers.
func (a *Adapter) Prepare(ctx context.Context, in *providers.InboundRequest) (*providers.OutboundRequest, error) {
	service := in.Header.Get(HeaderURL)
	if service == "" {
		a.logger.Error("missing routing header", "header", HeaderURL)
		return nil, &providers.ConfigurationError{Provider: a.Name(), Key: HeaderURL, Message: "routing header is missing"}
	}

	target, ok := a.config.Services[service]
	if !ok {
		a.logger.Error("unknown service", "service", service)
		return nil, &providers.ConfigurationError{Provider: a.Name(), Key: HeaderURL, Message: fmt.Sprintf("unknown service %q", service)}
	}

	var token *AuthToken
	if raw := in.Header.Get(HeaderToken); raw != "" {
		parsed, err := ParseAuthToken(raw)
		if err != nil {
			return nil, &providers.ConfigurationError{Provider: a.Name(), Key: HeaderToken, Message: err.Error()}
		}
		token = parsed
	}

	header, err := a.Headers(target, token)
	if err != nil {
		return nil, &providers.ConfigurationError{Provider: a.Name(), Key: HeaderToken, Message: err.Error()}
	}

	// Every PayPal API method is a POST, whatever the caller used.
	return &providers.OutboundRequest{
		Method:   http.MethodPost,
		URL:      target,
		Header:   header,
		Body:     in.Body,
		Timeout:  a.config.Timeout,
		Provider: a.Name(),
		Hop:      service,
	}, nil
}

// AuthToken is a third-party permission token granted to the application.
type AuthToken struct {
	Token  string
	Secret string
}

// ParseAuthToken parses the URL-encoded token header ("token=...&secret=...").
func ParseAuthToken(raw string) (*AuthToken, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("malformed token header: %w", err)
	}
	token := &AuthToken{Token: values.Get("token"), Secret: values.Get("secret")}
	if token.Token == "" {
		return nil, fmt.Errorf("token header has no token value")
	}
	return token, nil
}

// Headers builds the PayPal security headers for a call to target. When a
// permission token is supplied an X-PAYPAL-AUTHORIZATION header is added.
func (a *Adapter) Headers(target string, token *AuthToken) (http.Header, error) {
	h := http.Header{}
	h.Set("X-PAYPAL-SECURITY-USERID", a.config.Credential(CredUserID))
	h.Set("X-PAYPAL-SECURITY-PASSWORD", a.config.Credential(CredPassword))
	h.Set("X-PAYPAL-SECURITY-SIGNATURE", a.config.Credential(CredSignature))
	h.Set("X-PAYPAL-APPLICATION-ID", a.config.Credential(CredApplicationID))
	h.Set("X-PAYPAL-REQUEST-DATA-FORMAT", "NV")
	h.Set("X-PAYPAL-RESPONSE-DATA-FORMAT", "NV")

	if token != nil {
		auth, err := a.authorization(target, token)
		if err != nil {
			return nil, err
		}
		h.Set("X-PAYPAL-AUTHORIZATION", auth)
	}

	return h, nil
}

// authorization signs the call with the API credentials as consumer and the
// permission token as access token, in PayPal's token/signature/timestamp form.
func (a *Adapter) authorization(target string, token *AuthToken) (string, error) {
	client := oauth.Client{
		Credentials: oauth.Credentials{
			Token:  a.config.Credential(CredUserID),
			Secret: a.config.Credential(CredPassword),
		},
		SignatureMethod: oauth.HMACSHA1,
	}

	form := url.Values{}
	creds := &oauth.Credentials{Token: token.Token, Secret: token.Secret}
	if err := client.SignForm(creds, http.MethodPost, target, form); err != nil {
		return "", fmt.Errorf("failed to sign authorization: %w", err)
	}

	return fmt.Sprintf("token=%s,signature=%s,timestamp=%s",
		form.Get("oauth_token"), form.Get("oauth_signature"), form.Get("oauth_timestamp")), nil
}
