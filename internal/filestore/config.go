package filestore

import (
	"fmt"
	"net/url"
	"strings"
)

// Provider identifies the file storage backend.
type Provider string

const (
	ProviderMinIO Provider = "minio"
)

// Config holds all settings needed to connect to a file storage backend.
// Credentials are not part of it: drivers obtain them from a credcache.Source.
type Config struct {
	// Provider is the storage backend (e.g. ProviderMinIO).
	Provider Provider `yaml:"provider"`

	// Endpoint is the host:port of the storage server.
	// Example: "localhost:9000" for local MinIO.
	Endpoint string `yaml:"endpoint"`

	// UseSSL controls whether TLS is used for the connection.
	UseSSL bool `yaml:"use_ssl"`

	// Region is used by region-aware backends (e.g. AWS S3).
	// Leave empty for MinIO.
	Region string `yaml:"region"`

	// PublicURL is the base URL anonymous readers use to reach public
	// objects. Defaults to the endpoint itself.
	PublicURL string `yaml:"public_url"`
}

// DefaultConfig returns a sensible local-dev config for MinIO.
func DefaultConfig(endpoint string) *Config {
	return &Config{
		Provider: ProviderMinIO,
		Endpoint: endpoint,
		UseSSL:   false,
	}
}

// BaseURL returns the URL public objects are served from.
func (c *Config) BaseURL() (*url.URL, error) {
	raw := c.PublicURL
	if raw == "" {
		scheme := "http"
		if c.UseSSL {
			scheme = "https"
		}
		raw = scheme + "://" + c.Endpoint
	}
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid public url %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("public url %q must be absolute", raw)
	}
	return u, nil
}
