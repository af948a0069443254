// Package discovery aggregates protected service names from the static
// policy configuration and from dynamic service discovery backends.
// Discovery backends only ever add protections, their failures are
// swallowed so an unavailable backend can never fail a safety check.
package discovery

import (
	"strings"
)

// Config is the service_discovery section of the safety config
type Config struct {
	Kubernetes KubernetesConfig `yaml:"kubernetes,omitempty"`
	Consul     CatalogConfig    `yaml:"consul,omitempty"`
}

// Source contributes protected service names from a discovery backend.
// Implementations are fail-open: on any backend error they contribute
// nothing and return no error.
type Source interface {
	Name() string
	ProtectedServices() []string
}

// Registry answers protection queries against the static list and all
// registered discovery sources
type Registry struct {
	static  []string
	sources []Source
}

// NewRegistry builds a registry over the policy's static protected
// services and the enabled discovery sources
func NewRegistry(static []string, sources ...Source) *Registry {
	return &Registry{static: static, sources: sources}
}

// NewRegistryFromConfig wires the standard source set from config
func NewRegistryFromConfig(static []string, config Config) *Registry {
	return NewRegistry(static, SourcesFromConfig(config)...)
}

// SourcesFromConfig builds the enabled discovery sources
func SourcesFromConfig(config Config) []Source {
	var sources []Source
	if config.Kubernetes.Enabled {
		sources = append(sources, NewKubernetesSource(config.Kubernetes))
	}
	if config.Consul.Enabled {
		sources = append(sources, NewCatalogSource(config.Consul))
	}
	return sources
}

// IsProtected reports whether the named service may not be targeted.
// The static list matches case-insensitive as a substring, with "*"
// protecting everything. Discovered names match exactly.
func (r *Registry) IsProtected(service string) bool {
	if r.matchStatic(service) {
		return true
	}

	lowered := strings.ToLower(service)
	for name := range r.discovered() {
		if strings.ToLower(name) == lowered {
			return true
		}
	}
	return false
}

// ProtectedSet returns the union of the static list and every source's
// current contribution
func (r *Registry) ProtectedSet() map[string]bool {
	set := map[string]bool{}
	for _, name := range r.static {
		set[name] = true
	}
	for name := range r.discovered() {
		set[name] = true
	}
	return set
}

func (r *Registry) matchStatic(service string) bool {
	lowered := strings.ToLower(service)
	for _, protected := range r.static {
		if protected == "*" {
			return true
		}
		if strings.Contains(lowered, strings.ToLower(protected)) {
			return true
		}
	}
	return false
}

func (r *Registry) discovered() map[string]bool {
	set := map[string]bool{}
	for _, source := range r.sources {
		for _, name := range source.ProtectedServices() {
			set[name] = true
		}
	}
	return set
}
