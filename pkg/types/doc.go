// Package types provides shared type definitions for the kbcontext MCP server.
//
// This package defines domain types used across multiple components of the
// knowledge retrieval engine, including knowledge entries, scored and ranked
// search results, and related-entry relations.
//
// # Core Types
//
// KnowledgeEntry is the unit of retrieval:
//
//	entry := &types.KnowledgeEntry{
//	    ID:      uuid.New(),
//	    Content: "Rewrites in vercel.json are evaluated top to bottom.",
//	    Title:   "Route ordering",
//	    Role:    types.RoleDev,
//	    Tags:    []string{"routing", "deployment"},
//	}
//
// ScoredEntry carries a single source's ranking, RankedEntry carries the
// fused ranking produced by Reciprocal Rank Fusion:
//
//	ranked := types.RankedEntry{
//	    Entry:        entry,
//	    FusedScore:   0.0314,
//	    SemanticRank: &semRank,
//	    KeywordRank:  &kwRank,
//	}
//
// # Relationships
//
// RelatedEntry describes graph-style connections between entries. The
// relationship values are ordered by priority for deduplication:
//
//	parent > child > sibling > tag_overlap
//
// An entry matched by more than one rule keeps only its strongest relation,
// and a source entry is never related to itself.
//
// # Validation
//
// Domain types implement validation methods to ensure data integrity:
//
//	if err := entry.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package types
