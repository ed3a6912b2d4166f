// Package storage provides SQLite-backed persistence for knowledge entries,
// the embedding cache, and the audit log.
//
// # Schema
//
// Three domain tables plus schema version tracking:
//
//   - knowledge_entries: the retrieval units, with JSON-encoded tags, an
//     optional parent_id weak reference, and an optional embedding blob
//   - embedding_cache: vectors keyed by (content_hash, model) so a model
//     change misses cleanly instead of serving stale vectors
//   - audit_log: add/update/delete trail that survives entry deletion
//
// # Build Modes
//
// The package supports two build configurations:
//
// CGO build with sqlite-vec (production):
//
//	CGO_ENABLED=1 go build -tags "sqlite_vec" ./...
//
// Cosine distance is computed at the database layer via vec_distance_cosine,
// using the mattn/go-sqlite3 driver.
//
// Pure Go build (development, cross-compilation):
//
//	CGO_ENABLED=0 go build -tags "purego" ./...
//
// Similarity is computed in Go over candidate embeddings, using the
// modernc.org/sqlite driver. Results are identical; only throughput differs.
//
// # Search Candidates
//
// SearchSemantic returns entry IDs with cosine similarity against a query
// vector; entries with no stored embedding never appear. SearchKeywordCandidates
// returns entries whose content or title matches any query term; per-term
// scoring and ranking happen in the search package, keeping the SQL layer a
// candidate filter rather than a ranker.
//
// # Concurrency
//
// The database is opened in WAL mode with a single writer connection. All
// search-path operations are reads; CRUD accessors are the only writers.
package storage
