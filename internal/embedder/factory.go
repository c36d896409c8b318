package embedder

import (
	"fmt"
	"strings"
)

// Config holds embedder configuration
type Config struct {
	Provider  string
	BaseURL   string
	Token     string
	Model     string
	CacheSize int
}

// New creates an embedder with explicit configuration.
// An empty provider returns ErrNoProviderEnabled.
func New(cfg Config) (Embedder, error) {
	cache := NewCache(cfg.CacheSize)

	switch strings.ToLower(cfg.Provider) {
	case ProviderHTTP:
		return NewHTTPProvider(cfg.BaseURL, cfg.Token, cfg.Model, cache)
	case ProviderLocal:
		return NewLocalProvider(cache), nil
	case "":
		return nil, ErrNoProviderEnabled
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedModel, cfg.Provider)
	}
}
