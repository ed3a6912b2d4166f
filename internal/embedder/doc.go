// Package embedder generates vector embeddings for knowledge entries
// and search queries.
//
// Three providers are available: OpenAI and Jina (both speaking the
// OpenAI-compatible embeddings API over HTTPS with retry and
// exponential backoff), and a deterministic local provider used when
// no API key is configured.
//
// All providers share a two-tier cache keyed by the sha256 of the
// normalized text: an in-memory LRU in front of the persistent
// embedding_cache table, so repeated queries and unchanged entries
// never hit the network twice.
package embedder
