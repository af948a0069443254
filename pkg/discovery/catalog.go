package discovery

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mayhemchaos/mayhem-go/pkg/log"
	"github.com/mayhemchaos/mayhem-go/pkg/utils/retry"
	"github.com/pkg/errors"
)

// CatalogConfig points at a consul-compatible service catalog whose
// tagged services are treated as protected
type CatalogConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url,omitempty"`
	// Services carrying any of these tags are protected
	ProtectedServiceTags []string `yaml:"protected_service_tags,omitempty"`
	// Timeout per catalog call in seconds, defaults to 5
	Timeout int `yaml:"timeout,omitempty"`
}

// CatalogSource queries the catalog endpoint for services tagged as
// protected
type CatalogSource struct {
	config CatalogConfig
	client *http.Client
}

func NewCatalogSource(config CatalogConfig) *CatalogSource {
	if config.URL == "" {
		config.URL = "http://localhost:8500"
	}
	timeout := 5 * time.Second
	if config.Timeout > 0 {
		timeout = time.Duration(config.Timeout) * time.Second
	}
	return &CatalogSource{
		config: config,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *CatalogSource) Name() string {
	return "catalog"
}

// ProtectedServices returns every catalog service carrying a protected
// tag. Catalog failures contribute nothing.
func (s *CatalogSource) ProtectedServices() []string {
	services, err := s.listServices()
	if err != nil {
		log.Debugf("unable to query service catalog, err: %v", err)
		return nil
	}

	var protected []string
	for name, tags := range services {
		if s.hasProtectedTag(tags) {
			protected = append(protected, name)
		}
	}
	return protected
}

// listServices fetches the catalog service map, name -> tags
func (s *CatalogSource) listServices() (map[string][]string, error) {
	var services map[string][]string

	err := retry.
		Times(2).
		Wait(1 * time.Second).
		Try(func(attempt uint) error {
			resp, err := s.client.Get(s.config.URL + "/v1/catalog/services")
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return errors.Errorf("catalog returned status code %v", resp.StatusCode)
			}
			return json.NewDecoder(resp.Body).Decode(&services)
		})

	return services, err
}

func (s *CatalogSource) hasProtectedTag(tags []string) bool {
	for _, tag := range tags {
		for _, protected := range s.config.ProtectedServiceTags {
			if tag == protected {
				return true
			}
		}
	}
	return false
}
