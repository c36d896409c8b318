package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Common errors
var (
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrProviderFailed    = errors.New("embedding provider failed")
	ErrUnsupportedModel  = errors.New("unsupported embedding provider")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
)

// Embedder produces a vector for a piece of text
type Embedder interface {
	// Embed returns the embedding of text
	Embed(ctx context.Context, text string) ([]float32, error)

	// Provider returns the provider name
	Provider() string

	// Model returns the model name
	Model() string

	// Close releases any resources held by the embedder
	Close() error
}

// DefaultCacheSize is the number of vectors kept per embedder
const DefaultCacheSize = 1024

// Cache provides in-memory LRU caching of vectors by content hash
type Cache struct {
	cache *lru.Cache[string, []float32]
}

// NewCache creates a new vector cache with LRU eviction
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = DefaultCacheSize
	}
	cache, err := lru.New[string, []float32](maxLen)
	if err != nil {
		cache, _ = lru.New[string, []float32](DefaultCacheSize)
	}
	return &Cache{cache: cache}
}

// Get returns a copy of a cached vector
func (c *Cache) Get(hash string) ([]float32, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}
	return slices.Clone(v), true
}

// Set stores a copy of a vector
func (c *Cache) Set(hash string, v []float32) {
	if c == nil {
		return
	}
	c.cache.Add(hash, slices.Clone(v))
}

// Size returns the current cache size
func (c *Cache) Size() int {
	if c == nil {
		return 0
	}
	return c.cache.Len()
}

// ComputeHash computes SHA-256 hash of text for caching
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// NormalizeVector scales v to unit length. Zero vectors are returned as is.
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}
	return result
}
