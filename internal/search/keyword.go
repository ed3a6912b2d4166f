package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/avaine/kbcontext-mcp/internal/storage"
	"github.com/avaine/kbcontext-mcp/pkg/types"
)

// TitleBoost is the per-term score for a title match. Title hits count
// twice as much as content hits.
const TitleBoost = 2.0

// Tokenize lowercases the query and splits it on non-alphanumeric runs,
// dropping empty and duplicate terms. Order of first appearance is kept
// so scoring is deterministic.
func Tokenize(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !isAlphanumeric(r)
	})

	seen := make(map[string]bool, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}

func isAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// KeywordSearch ranks entries by term-match score. Storage returns
// candidates matching any term; scoring happens here: each term adds
// 1.0 per content match and TitleBoost per title match. Zero-score
// entries are dropped, the rest sorted score desc with ID tie-breaks.
func (s *Searcher) KeywordSearch(ctx context.Context, query string, filters *storage.SearchFilters, fetchLimit int) ([]types.ScoredEntry, error) {
	terms := Tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}
	if fetchLimit <= 0 {
		fetchLimit = DefaultLimit
	}

	candidates, err := s.storage.SearchKeywordCandidates(ctx, terms, fetchLimit*candidateMultiplier, filters)
	if err != nil {
		return nil, fmt.Errorf("%w: keyword candidates: %v", ErrStore, err)
	}

	type scoredCandidate struct {
		entry *types.KnowledgeEntry
		score float64
	}
	scored := make([]scoredCandidate, 0, len(candidates))
	for _, entry := range candidates {
		score := scoreEntry(entry, terms)
		if score <= 0 {
			continue
		}
		scored = append(scored, scoredCandidate{entry: entry, score: score})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].entry.ID.String() < scored[j].entry.ID.String()
	})

	if len(scored) > fetchLimit {
		scored = scored[:fetchLimit]
	}

	results := make([]types.ScoredEntry, len(scored))
	for i, sc := range scored {
		results[i] = types.ScoredEntry{
			Entry:    sc.entry,
			Rank:     i + 1,
			RawScore: sc.score,
			Source:   types.SourceKeyword,
		}
	}
	return results, nil
}

// scoreEntry sums per-term match scores for one entry
func scoreEntry(entry *types.KnowledgeEntry, terms []string) float64 {
	content := strings.ToLower(entry.Content)
	title := strings.ToLower(entry.Title)

	var score float64
	for _, term := range terms {
		if strings.Contains(content, term) {
			score += 1.0
		}
		if title != "" && strings.Contains(title, term) {
			score += TitleBoost
		}
	}
	return score
}

// HasKeywordMatches reports whether any query term appears in the
// entry's content or title.
func HasKeywordMatches(entry *types.KnowledgeEntry, query string) bool {
	if entry == nil {
		return false
	}
	return scoreEntry(entry, Tokenize(query)) > 0
}
