package bango

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/beevik/etree"

	"github.com/NamanArora/pay-proxy/internal/logging"
	"github.com/NamanArora/pay-proxy/internal/providers"
	"github.com/NamanArora/pay-proxy/internal/registry"
)

// HeaderService carries the full Bango endpoint URL for the call.
const HeaderService = "X-Gateway-Service"

// Credential keys in the family's credential table.
const (
	CredUser     = "user"
	CredPassword = "password"
)

const contentType = "text/xml; charset=utf-8"

// Adapter forwards SOAP calls to Bango, writing the configured account
// credentials into the envelope's username and password elements.
type Adapter struct {
	providers.Passthrough

	config     registry.ProviderConfig
	namespaces map[string]bool
	logger     *slog.Logger
}

// New creates a Bango adapter bound to cfg.
func New(cfg registry.ProviderConfig, logger *slog.Logger) *Adapter {
	namespaces := make(map[string]bool, len(cfg.Namespaces))
	for _, ns := range cfg.Namespaces {
		namespaces[ns] = true
	}
	return &Adapter{
		config:     cfg,
		namespaces: namespaces,
		logger:     logging.OrDefault(logger).With("provider", cfg.Name),
	}
}

// Name returns the provider family name
func (a *Adapter) Name() string {
	return a.config.Name
}

// Prepare injects credentials into the XML body. All Bango methods are POSTs.
func (a *Adapter) Prepare(ctx context.Context, in *providers.InboundRequest) (*providers.OutboundRequest, error) {
	target := in.Header.Get(HeaderService)
	if target == "" {
		a.logger.Error("missing routing header", "header", HeaderService)
		return nil, &providers.ConfigurationError{Provider: a.Name(), Key: HeaderService, Message: "routing header is missing"}
	}

	body, err := a.InjectCredentials(in.Body)
	if err != nil {
		return nil, &providers.PayloadError{Provider: a.Name(), Cause: err}
	}

	header := http.Header{}
	header.Set("Content-Type", contentType)

	return &providers.OutboundRequest{
		Method:   http.MethodPost,
		URL:      target,
		Header:   header,
		Body:     body,
		Timeout:  a.config.Timeout,
		Provider: a.Name(),
		Hop:      a.Name(),
	}, nil
}

// InjectCredentials rewrites the text of the first username and password
// elements found in any configured namespace. A body with neither element is
// returned byte-for-byte.
func (a *Adapter) InjectCredentials(body []byte) ([]byte, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.PreserveCData = true
	doc.WriteSettings = etree.WriteSettings{
		CanonicalEndTags: true,
		CanonicalText:    true,
		CanonicalAttrVal: true,
	}
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, err
	}
	if err := checkDocument(doc); err != nil {
		return nil, err
	}
	root := doc.Root()

	var setUser, setPassword bool
	walk(root, func(el *etree.Element) bool {
		if !a.namespaces[el.NamespaceURI()] {
			return false
		}
		switch el.Tag {
		case "username":
			el.SetText(a.config.Credential(CredUser))
			setUser = true
		case "password":
			el.SetText(a.config.Credential(CredPassword))
			setPassword = true
		}
		return setUser && setPassword
	})

	if !setUser && !setPassword {
		a.logger.Info("did not set a username and password on the request")
		return body, nil
	}

	return doc.WriteToBytes()
}

// checkDocument rejects documents etree accepts but XML does not: several
// top-level elements, or text outside the root.
func checkDocument(doc *etree.Document) error {
	roots := 0
	for _, tok := range doc.Child {
		switch t := tok.(type) {
		case *etree.Element:
			roots++
		case *etree.CharData:
			if strings.TrimSpace(t.Data) != "" {
				return errors.New("text outside the root element")
			}
		}
	}
	switch roots {
	case 0:
		return errors.New("body has no root element")
	case 1:
		return nil
	default:
		return errors.New("body has more than one root element")
	}
}

// walk visits el and its descendants depth-first until visit returns true.
func walk(el *etree.Element, visit func(*etree.Element) bool) bool {
	if visit(el) {
		return true
	}
	for _, child := range el.ChildElements() {
		if walk(child, visit) {
			return true
		}
	}
	return false
}
