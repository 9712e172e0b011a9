package client

import (
	"net/http"
	"time"

	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
)

// Config holds HTTP client configuration for calls to the identity provider.
type Config struct {
	Timeout  time.Duration
	CacheDir string
}

// DefaultConfig returns a default client configuration
func DefaultConfig() Config {
	return Config{
		Timeout: 10 * time.Second,
	}
}

// NewCachingHTTPClient creates an HTTP client that honours Cache-Control on
// responses such as the JWKS document, so scheduled key refreshes are served
// from cache until the provider's max-age runs out.
func NewCachingHTTPClient(cfg Config) *http.Client {
	var cache httpcache.Cache
	if cfg.CacheDir == "" {
		cache = httpcache.NewMemoryCache()
	} else {
		// Use disk-based cache for persistence across restarts
		cache = diskcache.New(cfg.CacheDir)
	}

	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: httpcache.NewTransport(cache),
	}
}
