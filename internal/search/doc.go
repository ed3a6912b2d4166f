// Package search implements hybrid knowledge retrieval combining
// semantic similarity and keyword matching, plus the related-entry
// graph and CRUD accessors the MCP tools are built on.
//
// # Basic Usage
//
//	s := search.NewSearcher(store, emb)
//
//	resp, err := s.Search(ctx, search.SearchRequest{
//	    Query: "redis deployment rollback",
//	    Limit: 10,
//	})
//
//	for _, r := range resp.Results {
//	    fmt.Printf("%.4f  %s\n", r.FusedScore, r.Entry.Title)
//	}
//
// # Reciprocal Rank Fusion
//
// A hybrid search ranks the union of both sources:
//
//	fused(e) = semanticWeight/(k + semanticRank(e))
//	         + keywordWeight/(k + keywordRank(e))
//
// with k = 60 and both weights 1.0 by default. An entry absent from one
// source simply loses that term. Ties are broken by entry ID ascending,
// so identical queries over identical data always return identical
// orderings.
//
// # Graceful Degradation
//
// The embedding provider is optional at every step. If the query vector
// cannot be produced (provider error, timeout, no provider configured)
// the search silently degrades to keyword-only ranking and reports it
// through SearchMetadata.SemanticAvailable. A request only fails when
// both search sources fail.
//
// # Related Entries
//
// GetRelated walks the relationship graph around an entry: its parent,
// its children, its siblings, and entries sharing at least one tag.
// An entry reachable through several rules keeps only its strongest
// relation (parent > child > sibling > tag overlap).
//
// # Caching
//
// Search responses are cached in an LRU with a per-request TTL. Every
// mutation through Add, Update, or Delete purges the cache, so stale
// rankings never outlive a write.
package search
