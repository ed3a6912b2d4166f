package embedder

import (
	"fmt"
	"os"
	"strconv"
)

const (
	// EnvProvider selects the embedding provider: openai, jina, or local.
	EnvProvider = "KBCONTEXT_EMBEDDING_PROVIDER"
	// EnvCacheSize overrides the in-memory embedding cache capacity.
	EnvCacheSize = "KBCONTEXT_EMBEDDING_CACHE_SIZE"

	DefaultCacheSize = 1000
)

// NewFromEnv builds an embedder from environment configuration.
// Falls back to the local provider when no provider is configured,
// so the server degrades to keyword-only quality rather than failing
// to start.
func NewFromEnv(persistent PersistentCache) (Embedder, error) {
	provider := os.Getenv(EnvProvider)
	if provider == "" {
		switch {
		case os.Getenv(EnvJinaAPIKey) != "":
			provider = ProviderJina
		case os.Getenv(EnvOpenAIAPIKey) != "":
			provider = ProviderOpenAI
		default:
			provider = ProviderLocal
		}
	}

	cacheSize := DefaultCacheSize
	if v := os.Getenv(EnvCacheSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid %s: %q", EnvCacheSize, v)
		}
		cacheSize = n
	}

	switch provider {
	case ProviderOpenAI:
		return NewOpenAIProvider("", NewCache(cacheSize, DefaultOpenAIModel, persistent))
	case ProviderJina:
		return NewJinaProvider("", NewCache(cacheSize, DefaultJinaModel, persistent))
	case ProviderLocal:
		return NewLocalProvider(NewCache(cacheSize, LocalModel, persistent))
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrUnsupportedModel, provider)
	}
}
