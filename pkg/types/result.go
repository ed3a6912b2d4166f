package types

// ScoreSource identifies which search path produced a scored entry
type ScoreSource string

const (
	SourceSemantic ScoreSource = "semantic"
	SourceKeyword  ScoreSource = "keyword"
)

// ScoredEntry is an intermediate result from a single search source.
// Rank is the 1-based position within that source's ranked list; ties in
// RawScore are broken by entry ID ascending so identical queries always
// produce identical rankings.
type ScoredEntry struct {
	Entry    *KnowledgeEntry
	Rank     int
	RawScore float64
	Source   ScoreSource
}

// RankedEntry is the fusion output. SemanticRank and KeywordRank are nil
// for entries absent from that source's list.
type RankedEntry struct {
	Entry        *KnowledgeEntry
	FusedScore   float64
	SemanticRank *int
	KeywordRank  *int
}

// Relationship identifies how a related entry connects to the source entry
type Relationship string

const (
	RelationParent     Relationship = "parent"
	RelationChild      Relationship = "child"
	RelationSibling    Relationship = "sibling"
	RelationTagOverlap Relationship = "tag_overlap"
)

// Priority orders relationships for deduplication; lower is stronger.
// An entry matched by multiple rules keeps only its strongest relation.
func (r Relationship) Priority() int {
	switch r {
	case RelationParent:
		return 0
	case RelationChild:
		return 1
	case RelationSibling:
		return 2
	case RelationTagOverlap:
		return 3
	default:
		return 4
	}
}

// RelatedEntry is an entry connected to a source entry by a
// parent/child/sibling/tag relationship. OverlapScore is the shared-tag
// count for tag_overlap relations and zero otherwise.
type RelatedEntry struct {
	Entry        *KnowledgeEntry
	Relationship Relationship
	OverlapScore int
}

// SearchMetadata describes how a search result set was produced
type SearchMetadata struct {
	Total             int
	SemanticCount     int
	KeywordCount      int
	SemanticAvailable bool // false when the search degraded to keyword-only
	QueryTimeMs       int64
	CacheHit          bool
}

// Validate checks if the ranked entry is internally consistent
func (r *RankedEntry) Validate() error {
	if r.Entry == nil {
		return ErrMissingEntry
	}
	if r.FusedScore < 0 {
		return ErrInvalidScore
	}
	if r.SemanticRank == nil && r.KeywordRank == nil {
		return ErrMissingRank
	}
	if r.SemanticRank != nil && *r.SemanticRank < 1 {
		return ErrInvalidRank
	}
	if r.KeywordRank != nil && *r.KeywordRank < 1 {
		return ErrInvalidRank
	}
	return nil
}
