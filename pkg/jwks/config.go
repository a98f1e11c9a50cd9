package jwks

import (
	"fmt"
	"net/url"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/jetstack/jwks-resolver/pkg/keystore"
	"github.com/jetstack/jwks-resolver/pkg/pathutils"
)

// DefaultJwksRequestsPerMinute is the rate limit applied when rate limiting
// is enabled without an explicit number of requests per minute.
const DefaultJwksRequestsPerMinute = 10

// DefaultTimeout bounds each request to the JWKS endpoint when no timeout is
// configured.
const DefaultTimeout = 30 * time.Second

// ClientConfig wraps the options of a Client. It is copied when the client
// is created, so later changes have no effect on the client.
type ClientConfig struct {
	// JwksURI is the URL of the JWKS document. Required.
	JwksURI string `yaml:"jwks_uri"`

	// Cache enables the in-memory cache. Nil means enabled.
	Cache *bool `yaml:"cache,omitempty"`
	// UseTmpFileCache persists resolved keys to a file, FilePath or
	// keystore.DefaultPath() when unset. Only used when Cache is enabled.
	UseTmpFileCache bool   `yaml:"use_tmp_file_cache,omitempty"`
	FilePath        string `yaml:"file_path,omitempty"`
	// CacheMaxAge expires keys from the in-memory cache. Zero means never.
	CacheMaxAge time.Duration `yaml:"cache_max_age,omitempty"`
	// CacheMaxEntries caps the in-memory cache. Zero means no cap.
	CacheMaxEntries int `yaml:"cache_max_entries,omitempty"`

	// RateLimit throttles fetches to JwksRequestsPerMinute per rolling
	// minute.
	RateLimit             bool `yaml:"rate_limit,omitempty"`
	JwksRequestsPerMinute int  `yaml:"jwks_requests_per_minute,omitempty"`

	// RequestHeaders are added to every request to the JWKS endpoint.
	RequestHeaders map[string]string `yaml:"request_headers,omitempty"`
	// Timeout bounds each request to the JWKS endpoint. Zero means
	// DefaultTimeout.
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// CacheEnabled reports whether the in-memory cache is on.
func (c *ClientConfig) CacheEnabled() bool {
	return c.Cache == nil || *c.Cache
}

// FileCacheEnabled reports whether resolved keys are persisted to a file.
func (c *ClientConfig) FileCacheEnabled() bool {
	return c.CacheEnabled() && c.UseTmpFileCache
}

// CacheFilePath returns the path of the file cache. A leading "~" of
// FilePath is expanded to the home directory.
func (c *ClientConfig) CacheFilePath() string {
	if c.FilePath != "" {
		return pathutils.ExpandHome(c.FilePath)
	}
	return keystore.DefaultPath()
}

// Dump generates a YAML string of the ClientConfig object
func (c *ClientConfig) Dump() (string, error) {
	d, err := yaml.Marshal(&c)

	if err != nil {
		return "", errors.Wrap(err, "failed to generate YAML dump of config")
	}

	return string(d), nil
}

func (c *ClientConfig) setDefaults() {
	if c.RateLimit && c.JwksRequestsPerMinute == 0 {
		c.JwksRequestsPerMinute = DefaultJwksRequestsPerMinute
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
}

func (c *ClientConfig) validate() error {
	var result *multierror.Error

	if c.JwksURI == "" {
		result = multierror.Append(result, fmt.Errorf("jwks_uri is required"))
	} else if u, err := url.Parse(c.JwksURI); err != nil {
		result = multierror.Append(result, fmt.Errorf("jwks_uri is not a valid URL: %s", err))
	} else if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		result = multierror.Append(result, fmt.Errorf("jwks_uri must be an absolute http or https URL, got %q", c.JwksURI))
	}

	if c.CacheMaxAge < 0 {
		result = multierror.Append(result, fmt.Errorf("cache_max_age must not be negative"))
	}

	if c.CacheMaxEntries < 0 {
		result = multierror.Append(result, fmt.Errorf("cache_max_entries must not be negative"))
	}

	if c.JwksRequestsPerMinute < 0 {
		result = multierror.Append(result, fmt.Errorf("jwks_requests_per_minute must not be negative"))
	}

	if c.Timeout < 0 {
		result = multierror.Append(result, fmt.Errorf("timeout must not be negative"))
	}

	return result.ErrorOrNil()
}

// ParseConfig reads config into a struct used to configure a Client
func ParseConfig(data []byte) (ClientConfig, error) {
	var config ClientConfig

	err := yaml.Unmarshal(data, &config)
	if err != nil {
		return config, err
	}

	config.setDefaults()

	if err = config.validate(); err != nil {
		return config, err
	}

	return config, nil
}
