package search

import (
	"sort"

	"github.com/avaine/kbcontext-mcp/pkg/types"
)

// Fusion defaults. A larger K flattens the contribution curve of both
// sources; the weights scale each source independently.
const (
	DefaultRRFK           = 60.0
	DefaultSemanticWeight = 1.0
	DefaultKeywordWeight  = 1.0
)

// FusionOptions tunes Reciprocal Rank Fusion
type FusionOptions struct {
	K              float64
	SemanticWeight float64
	KeywordWeight  float64
}

// DefaultFusionOptions returns the standard fusion parameters
func DefaultFusionOptions() FusionOptions {
	return FusionOptions{
		K:              DefaultRRFK,
		SemanticWeight: DefaultSemanticWeight,
		KeywordWeight:  DefaultKeywordWeight,
	}
}

func (o *FusionOptions) normalize() {
	if o.K <= 0 {
		o.K = DefaultRRFK
	}
	if o.SemanticWeight <= 0 {
		o.SemanticWeight = DefaultSemanticWeight
	}
	if o.KeywordWeight <= 0 {
		o.KeywordWeight = DefaultKeywordWeight
	}
}

// CalculateRRFScore computes a single source's reciprocal-rank term:
// weight / (k + rank). Rank is 1-based; rank < 1 means the entry is
// absent from that source and contributes zero.
func CalculateRRFScore(rank int, weight, k float64) float64 {
	if rank < 1 {
		return 0
	}
	return weight / (k + float64(rank))
}

// FuseResults merges semantic and keyword rankings with Reciprocal Rank
// Fusion. The union of both lists is scored; an entry absent from one
// list simply loses that list's term. Output is strictly ordered by
// fused score descending with entry ID ascending on ties, truncated to
// limit.
func FuseResults(semantic, keyword []types.ScoredEntry, limit int, opts FusionOptions) []types.RankedEntry {
	opts.normalize()

	fused := make(map[string]*types.RankedEntry)

	for i := range semantic {
		se := semantic[i]
		rank := se.Rank
		fused[se.Entry.ID.String()] = &types.RankedEntry{
			Entry:        se.Entry,
			FusedScore:   CalculateRRFScore(rank, opts.SemanticWeight, opts.K),
			SemanticRank: &rank,
		}
	}

	for i := range keyword {
		ke := keyword[i]
		rank := ke.Rank
		id := ke.Entry.ID.String()
		if existing, ok := fused[id]; ok {
			existing.FusedScore += CalculateRRFScore(rank, opts.KeywordWeight, opts.K)
			existing.KeywordRank = &rank
		} else {
			fused[id] = &types.RankedEntry{
				Entry:       ke.Entry,
				FusedScore:  CalculateRRFScore(rank, opts.KeywordWeight, opts.K),
				KeywordRank: &rank,
			}
		}
	}

	results := make([]types.RankedEntry, 0, len(fused))
	for _, re := range fused {
		results = append(results, *re)
	}
	sortRanked(results)

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// KeywordOnlyRanking produces fused output from the keyword list alone,
// used when semantic search is unavailable. Each entry's fused score is
// its keyword RRF term; SemanticRank stays nil.
func KeywordOnlyRanking(keyword []types.ScoredEntry, limit int, opts FusionOptions) []types.RankedEntry {
	return FuseResults(nil, keyword, limit, opts)
}

// sortRanked orders by fused score descending, entry ID ascending on ties
func sortRanked(results []types.RankedEntry) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].FusedScore != results[j].FusedScore {
			return results[i].FusedScore > results[j].FusedScore
		}
		return results[i].Entry.ID.String() < results[j].Entry.ID.String()
	})
}
