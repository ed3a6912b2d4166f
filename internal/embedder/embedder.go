package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Common errors
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrProviderFailed    = errors.New("embedding provider failed")
	ErrUnsupportedModel  = errors.New("unsupported model")
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrBatchTooLarge     = errors.New("batch size exceeds limit")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
)

// Embedding represents a vector embedding with metadata
type Embedding struct {
	Vector    []float32
	Dimension int
	Provider  string
	Model     string
	Hash      string // Normalized-text hash used as the cache key
}

// EmbeddingRequest represents a request to generate an embedding
type EmbeddingRequest struct {
	Text  string
	Model string // Optional: override default model
}

// BatchEmbeddingRequest represents a batch request
type BatchEmbeddingRequest struct {
	Texts []string
	Model string
}

// BatchEmbeddingResponse represents a batch response
type BatchEmbeddingResponse struct {
	Embeddings []*Embedding
	Provider   string
	Model      string
}

// Embedder interface defines methods for generating embeddings
type Embedder interface {
	// GenerateEmbedding generates a single embedding for the given text
	GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error)

	// GenerateBatch generates embeddings for multiple texts efficiently
	GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error)

	// Dimension returns the embedding dimension for this provider
	Dimension() int

	// Provider returns the provider name
	Provider() string

	// Model returns the model name
	Model() string

	// Close releases any resources held by the embedder
	Close() error
}

// PersistentCache is an optional durable tier behind the in-process cache.
// The sqlite storage layer implements it.
type PersistentCache interface {
	GetCachedEmbedding(ctx context.Context, contentHash, model string) ([]float32, error)
	PutCachedEmbedding(ctx context.Context, contentHash, model string, vector []float32) error
}

// Cache memoizes embeddings keyed by a hash of the normalized query text.
// It is a pure memoization layer: a miss only costs latency, and write
// failures on the persistent tier degrade silently to in-memory caching.
type Cache struct {
	lru        *lru.Cache[string, []float32]
	persistent PersistentCache
	model      string
}

// NewCache creates an embedding cache with LRU eviction.
// persistent may be nil for a purely in-memory cache.
func NewCache(maxLen int, model string, persistent PersistentCache) *Cache {
	if maxLen <= 0 {
		maxLen = 10000 // Default: cache 10k embeddings
	}
	c, err := lru.New[string, []float32](maxLen)
	if err != nil {
		// Should never happen with positive size, but fall back to default
		c, _ = lru.New[string, []float32](10000)
	}
	return &Cache{
		lru:        c,
		persistent: persistent,
		model:      model,
	}
}

// Get retrieves a cached vector for the given raw text.
// Returns a copy so caller mutations cannot pollute the cache.
func (c *Cache) Get(ctx context.Context, text string) ([]float32, bool) {
	hash := ComputeHash(NormalizeText(text))

	if vector, ok := c.lru.Get(hash); ok {
		return copyVector(vector), true
	}

	if c.persistent != nil {
		vector, err := c.persistent.GetCachedEmbedding(ctx, hash, c.model)
		if err == nil && len(vector) > 0 {
			c.lru.Add(hash, vector)
			return copyVector(vector), true
		}
	}

	return nil, false
}

// Put stores a vector for the given raw text. Persistent-tier failures are
// logged and never surfaced to the caller.
func (c *Cache) Put(ctx context.Context, text string, vector []float32) {
	hash := ComputeHash(NormalizeText(text))
	c.lru.Add(hash, copyVector(vector))

	if c.persistent != nil {
		if err := c.persistent.PutCachedEmbedding(ctx, hash, c.model, vector); err != nil {
			log.Printf("embedding cache write failed (hash=%s): %v", hash[:12], err)
		}
	}
}

// Size returns the current in-memory cache size
func (c *Cache) Size() int {
	return c.lru.Len()
}

// Clear empties the in-memory cache
func (c *Cache) Clear() {
	c.lru.Purge()
}

// NormalizeText canonicalizes query text for cache keying: trims, collapses
// whitespace runs to a single space, and lowercases. "Route  Ordering" and
// "route ordering" share a cache slot.
func NormalizeText(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// ComputeHash computes the SHA-256 hex digest of text for cache keying
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// copyVector returns an independent copy of a vector
func copyVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

// ValidateRequest validates an embedding request
func ValidateRequest(req EmbeddingRequest) error {
	if strings.TrimSpace(req.Text) == "" {
		return ErrEmptyText
	}
	return nil
}

// ValidateBatchRequest validates a batch embedding request
func ValidateBatchRequest(req BatchEmbeddingRequest) error {
	if len(req.Texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	}

	for i, text := range req.Texts {
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("%w: text at index %d is empty", ErrInvalidInput, i)
		}
	}

	return nil
}
