// Package registry holds the read-only provider table built from configuration at start-up.
package registry

import (
	"fmt"
	"sort"
	"time"

	"github.com/NamanArora/pay-proxy/internal/config"
)

// Provider families.
const (
	FamilyPayPal    = "paypal"
	FamilyBango     = "bango"
	FamilyReference = "reference"
)

// ProviderConfig is the connection record for one provider.
type ProviderConfig struct {
	Name        string
	Family      string
	BaseURL     string
	Timeout     time.Duration
	Credentials map[string]string
	Services    map[string]string
	Namespaces  []string
	Enabled     bool
}

// clone returns a deep copy so callers can never reach the registry's maps.
func (p ProviderConfig) clone() ProviderConfig {
	out := p
	out.Credentials = cloneMap(p.Credentials)
	out.Services = cloneMap(p.Services)
	out.Namespaces = append([]string(nil), p.Namespaces...)
	return out
}

// Credential returns a single credential value, or "" when absent.
func (p ProviderConfig) Credential(key string) string {
	return p.Credentials[key]
}

// Registry maps family and reference names to provider configuration.
// It is immutable after New returns and safe for concurrent use.
type Registry struct {
	enabled     bool
	routePrefix string
	families    map[string]ProviderConfig
	references  map[string]ProviderConfig
}

// New builds a registry from the proxy section of the configuration.
func New(cfg config.ProxyConfig) (*Registry, error) {
	r := &Registry{
		enabled:     cfg.Enabled,
		routePrefix: cfg.RoutePrefix,
		families:    make(map[string]ProviderConfig, 2),
		references:  make(map[string]ProviderConfig, len(cfg.Providers)),
	}

	r.families[FamilyPayPal] = ProviderConfig{
		Name:        FamilyPayPal,
		Family:      FamilyPayPal,
		Timeout:     cfg.PayPal.Timeout.Std(),
		Credentials: cloneMap(cfg.PayPal.Credentials),
		Services:    cloneMap(cfg.PayPal.Services),
		Enabled:     cfg.PayPal.Enabled,
	}

	r.families[FamilyBango] = ProviderConfig{
		Name:        FamilyBango,
		Family:      FamilyBango,
		Timeout:     cfg.Bango.Timeout.Std(),
		Credentials: cloneMap(cfg.Bango.Credentials),
		Namespaces:  append([]string(nil), cfg.Bango.Namespaces...),
		Enabled:     cfg.Bango.Enabled,
	}

	for _, p := range cfg.Providers {
		if _, exists := r.references[p.Name]; exists {
			return nil, fmt.Errorf("duplicate reference provider %q", p.Name)
		}
		r.references[p.Name] = ProviderConfig{
			Name:        p.Name,
			Family:      FamilyReference,
			BaseURL:     p.BaseURL,
			Timeout:     p.Timeout.Std(),
			Credentials: cloneMap(p.Credentials),
			Enabled:     p.IsEnabled(),
		}
	}

	return r, nil
}

// Enabled reports the global proxy toggle.
func (r *Registry) Enabled() bool {
	return r.enabled
}

// RoutePrefix is the path under which all proxy routes are mounted.
func (r *Registry) RoutePrefix() string {
	return r.routePrefix
}

// Family returns the configuration for a built-in family.
func (r *Registry) Family(name string) (ProviderConfig, bool) {
	p, ok := r.families[name]
	if !ok {
		return ProviderConfig{}, false
	}
	return p.clone(), true
}

// Reference returns the configuration for a named reference provider.
func (r *Registry) Reference(name string) (ProviderConfig, bool) {
	p, ok := r.references[name]
	if !ok {
		return ProviderConfig{}, false
	}
	return p.clone(), true
}

// References returns all reference provider names, sorted.
func (r *Registry) References() []string {
	names := make([]string, 0, len(r.references))
	for name := range r.references {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func cloneMap(in map[string]string) map[string]string {
	if in == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
