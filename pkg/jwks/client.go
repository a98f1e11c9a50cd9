package jwks

import (
	"context"
	"errors"
	"net/http"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
	"k8s.io/klog/v2"

	"github.com/jetstack/jwks-resolver/api"
	"github.com/jetstack/jwks-resolver/pkg/cache"
	"github.com/jetstack/jwks-resolver/pkg/keystore"
	"github.com/jetstack/jwks-resolver/pkg/logs"
	"github.com/jetstack/jwks-resolver/pkg/ratelimit"
)

// Client resolves signing keys by kid. Lookups go to the in-memory cache
// first, then to the file cache, and only then to the JWKS endpoint. A
// successful fetch caches every key of the document, not just the one that
// was asked for. Failed fetches are never cached.
//
// A Client is safe for concurrent use. Concurrent fetches of the JWKS
// document are coalesced into a single request.
type Client struct {
	cfg     ClientConfig
	fetcher Fetcher

	// memory is nil when caching is disabled.
	memory *cache.Memory
	// store is nil unless the file cache is enabled.
	store *keystore.File
	// limiter is nil unless rate limiting is enabled.
	limiter *ratelimit.Limiter

	inflight singleflight.Group
}

type options struct {
	httpClient *http.Client
	clock      clockwork.Clock
	fetcher    Fetcher
}

// Option customizes a Client.
type Option func(*options)

// WithHTTPClient sets the HTTP client used to fetch the JWKS document.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *options) { o.httpClient = httpClient }
}

// WithClock sets the clock used for rate limiting and fetch timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithFetcher replaces the HTTP fetcher, e.g. with a FakeFetcher.
func WithFetcher(fetcher Fetcher) Option {
	return func(o *options) { o.fetcher = fetcher }
}

// NewClient creates a client from cfg, which is validated and copied.
func NewClient(cfg ClientConfig, opts ...Option) (*Client, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := options{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}

	headers := make(map[string]string, len(cfg.RequestHeaders))
	for name, value := range cfg.RequestHeaders {
		headers[name] = value
	}
	cfg.RequestHeaders = headers

	c := &Client{
		cfg:     cfg,
		fetcher: o.fetcher,
	}
	if c.fetcher == nil {
		c.fetcher = NewHTTPFetcher(cfg.JwksURI, o.httpClient, headers, cfg.Timeout, o.clock)
	}

	if cfg.CacheEnabled() {
		c.memory = cache.New(cache.Options{
			MaxAge:     cfg.CacheMaxAge,
			MaxEntries: cfg.CacheMaxEntries,
		})
	}
	if cfg.FileCacheEnabled() {
		c.store = keystore.NewFile(cfg.CacheFilePath())
	}
	if cfg.RateLimit {
		c.limiter = ratelimit.New(cfg.JwksRequestsPerMinute, o.clock)
	}

	return c, nil
}

// Config returns a copy of the configuration of the client.
func (c *Client) Config() ClientConfig {
	return c.cfg
}

// Close drops the keys held in memory. The file cache is left in place.
func (c *Client) Close() {
	if c.memory != nil {
		c.memory.Purge()
	}
}

// GetSigningKey returns the signing key identified by kid.
//
// A key found in the in-memory or file cache is returned without any network
// call, even if the endpoint has since stopped publishing it. Otherwise the
// JWKS document is fetched; a *TransportError, *ParseError or
// ErrRateLimitExceeded is returned when that fails, and a
// *SigningKeyNotFoundError when the document does not hold kid.
func (c *Client) GetSigningKey(ctx context.Context, kid string) (api.KeyRecord, error) {
	logger := klog.FromContext(ctx).WithName("jwks").WithValues("kid", kid)

	if c.memory != nil {
		if record, ok := c.memory.Get(kid); ok {
			metricCacheLookups.WithLabelValues(tierMemory, resultHit).Inc()
			logger.V(logs.Trace).Info("Using key from memory cache")
			return record, nil
		}
		metricCacheLookups.WithLabelValues(tierMemory, resultMiss).Inc()

		if c.store != nil {
			if record, ok := c.store.Load(ctx)[kid]; ok {
				metricCacheLookups.WithLabelValues(tierFile, resultHit).Inc()
				logger.V(logs.Debug).Info("Using key from file cache", "path", c.store.Path())
				c.memory.Set(kid, record)
				return record, nil
			}
			metricCacheLookups.WithLabelValues(tierFile, resultMiss).Inc()
		}
	}

	records, err := c.fetch(ctx)
	if err != nil {
		return api.KeyRecord{}, err
	}

	for _, record := range records {
		if record.KID == kid {
			return record, nil
		}
	}

	logger.V(logs.Debug).Info("Key not found in JWKS document", "keys", len(records))
	return api.KeyRecord{}, &SigningKeyNotFoundError{KID: kid}
}

// GetSigningKeys fetches the JWKS document and returns all of its usable
// signing keys, caching them like GetSigningKey does.
func (c *Client) GetSigningKeys(ctx context.Context) ([]api.KeyRecord, error) {
	records, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}
	return append([]api.KeyRecord(nil), records...), nil
}

// fetch retrieves the JWKS document and populates the caches. Callers that
// arrive while a fetch is in flight wait for it and share its result. The
// shared fetch does not end when the caller that started it goes away; it is
// bounded by the configured timeout instead. Each caller stops waiting when
// its own ctx is done.
func (c *Client) fetch(ctx context.Context) ([]api.KeyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch := c.inflight.DoChan("jwks", func() (any, error) {
		return c.fetchAndPopulate(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			klog.FromContext(ctx).WithName("jwks").V(logs.Trace).Info("Shared an in-flight JWKS fetch")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]api.KeyRecord), nil
	}
}

func (c *Client) fetchAndPopulate(ctx context.Context) ([]api.KeyRecord, error) {
	logger := klog.FromContext(ctx).WithName("jwks")

	if c.limiter != nil && !c.limiter.Allow() {
		metricFetches.WithLabelValues(fetchRateLimited).Inc()
		logger.Info("Not fetching JWKS, rate limit reached", "uri", c.cfg.JwksURI, "requestsPerMinute", c.cfg.JwksRequestsPerMinute)
		return nil, ErrRateLimitExceeded
	}

	records, err := c.fetcher.Fetch(ctx)
	if err != nil {
		var transportErr *TransportError
		var parseErr *ParseError
		switch {
		case errors.As(err, &transportErr):
			metricFetches.WithLabelValues(fetchTransportError).Inc()
		case errors.As(err, &parseErr):
			metricFetches.WithLabelValues(fetchParseError).Inc()
		default:
			metricFetches.WithLabelValues(fetchOtherError).Inc()
		}
		return nil, err
	}
	metricFetches.WithLabelValues(fetchSuccess).Inc()

	if c.memory != nil {
		c.memory.SetAll(records)
	}

	if c.store != nil {
		// A key that could not be persisted is still resolved.
		if err := c.store.MergeAndSave(ctx, records); err != nil {
			logger.Error(err, "Failed to update key cache file", "path", c.store.Path())
		}
	}

	return records, nil
}
