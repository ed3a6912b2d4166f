package search

import (
	"context"
	"fmt"

	"github.com/avaine/kbcontext-mcp/internal/storage"
	"github.com/avaine/kbcontext-mcp/pkg/types"
)

// MinSimilarity is the cosine-similarity floor for semantic candidates.
// Entries below it are excluded entirely rather than ranked low.
const MinSimilarity = 0.30

// SemanticSearch ranks entries by cosine similarity to the query vector.
// Storage returns candidates ordered similarity desc with ID tie-breaks
// and never includes entries without a stored embedding; this layer
// applies the similarity threshold and assigns 1-based ranks.
func (s *Searcher) SemanticSearch(ctx context.Context, queryVector []float32, filters *storage.SearchFilters, fetchLimit int) ([]types.ScoredEntry, error) {
	if isZeroVector(queryVector) {
		return nil, ErrEmbeddingUnavailable
	}
	if fetchLimit <= 0 {
		fetchLimit = DefaultLimit
	}

	candidates, err := s.storage.SearchSemantic(ctx, queryVector, fetchLimit, filters)
	if err != nil {
		return nil, fmt.Errorf("%w: semantic candidates: %v", ErrStore, err)
	}

	scored := make([]types.ScoredEntry, 0, len(candidates))
	for _, c := range candidates {
		if c.Similarity < MinSimilarity {
			continue
		}
		entry, err := s.storage.GetEntry(ctx, c.EntryID)
		if err != nil {
			// Candidate deleted between the similarity scan and the
			// fetch; skip it.
			continue
		}
		scored = append(scored, types.ScoredEntry{
			Entry:    entry,
			Rank:     len(scored) + 1,
			RawScore: c.Similarity,
			Source:   types.SourceSemantic,
		})
	}
	return scored, nil
}

func isZeroVector(v []float32) bool {
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}
