package search

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/avaine/kbcontext-mcp/internal/embedder"
	"github.com/avaine/kbcontext-mcp/internal/storage"
	"github.com/avaine/kbcontext-mcp/pkg/types"
)

// Search limits
const (
	DefaultLimit = 10
	MaxLimit     = 50

	// Each source fetches more candidates than the final limit so
	// fusion has a meaningful union to rank.
	candidateMultiplier = 2

	responseCacheSize       = 1000
	DefaultResponseCacheTTL = 5 * time.Minute
	DefaultEmbeddingTimeout = 5 * time.Second
)

// SearchRequest contains parameters for a hybrid search
type SearchRequest struct {
	Query    string
	Limit    int
	Filters  *storage.SearchFilters
	UseCache bool
	CacheTTL time.Duration
	Fusion   FusionOptions
}

// SearchResponse contains ranked results and retrieval metadata
type SearchResponse struct {
	Results  []types.RankedEntry
	Metadata types.SearchMetadata
}

// cacheEntry is a cached search response with expiration time
type cacheEntry struct {
	response  *SearchResponse
	expiresAt time.Time
}

// Searcher coordinates hybrid retrieval across the semantic and keyword
// paths, the related-entry graph, and the CRUD accessors.
type Searcher struct {
	storage          storage.Storage
	embedder         embedder.Embedder
	embeddingTimeout time.Duration
	cache            *lru.Cache[[32]byte, *cacheEntry]
	cacheMu          sync.RWMutex
}

// NewSearcher creates a Searcher. The embedder may be nil, in which case
// every search runs keyword-only.
func NewSearcher(store storage.Storage, emb embedder.Embedder) *Searcher {
	cache, err := lru.New[[32]byte, *cacheEntry](responseCacheSize)
	if err != nil {
		// Cannot happen with a positive size
		panic(fmt.Sprintf("failed to create response cache: %v", err))
	}

	return &Searcher{
		storage:          store,
		embedder:         emb,
		embeddingTimeout: DefaultEmbeddingTimeout,
		cache:            cache,
	}
}

// SetEmbeddingTimeout overrides the deadline for query-embedding calls
func (s *Searcher) SetEmbeddingTimeout(d time.Duration) {
	if d > 0 {
		s.embeddingTimeout = d
	}
}

// Search runs a hybrid semantic+keyword search. Embedding failures
// degrade to keyword-only retrieval rather than failing the request;
// an error is returned only for invalid input or when both search
// sources fail.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	if err := s.validateRequest(&req); err != nil {
		return nil, err
	}

	if req.UseCache {
		if cached := s.checkCache(req); cached != nil {
			cached.Metadata.CacheHit = true
			cached.Metadata.QueryTimeMs = time.Since(startTime).Milliseconds()
			return cached, nil
		}
	}

	fetchLimit := req.Limit * candidateMultiplier

	type sourceResult struct {
		scored    []types.ScoredEntry
		err       error
		available bool
	}
	semanticChan := make(chan sourceResult, 1)
	keywordChan := make(chan sourceResult, 1)

	// The embedding call runs inside the semantic goroutine so the
	// keyword path never waits on the provider.
	go func() {
		var res sourceResult
		if queryVector := s.embedQuery(ctx, req.Query); queryVector != nil {
			res.available = true
			res.scored, res.err = s.SemanticSearch(ctx, queryVector, req.Filters, fetchLimit)
		}
		select {
		case semanticChan <- res:
		case <-ctx.Done():
		}
	}()
	go func() {
		var res sourceResult
		res.scored, res.err = s.KeywordSearch(ctx, req.Query, req.Filters, fetchLimit)
		select {
		case keywordChan <- res:
		case <-ctx.Done():
		}
	}()

	var semanticRes, keywordRes sourceResult
	var semanticDone, keywordDone bool
	for !semanticDone || !keywordDone {
		select {
		case semanticRes = <-semanticChan:
			semanticDone = true
		case keywordRes = <-keywordChan:
			keywordDone = true
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	semanticAvailable := semanticRes.available

	// One source failing is absorbed; both failing is fatal.
	if semanticRes.err != nil && keywordRes.err != nil {
		return nil, fmt.Errorf("%w: both sources failed: semantic=%v, keyword=%v",
			ErrStore, semanticRes.err, keywordRes.err)
	}
	if semanticRes.err != nil {
		log.Printf("WARN semantic search failed, continuing keyword-only: %v", semanticRes.err)
		semanticAvailable = false
		semanticRes.scored = nil
	}
	if keywordRes.err != nil {
		log.Printf("WARN keyword search failed, continuing semantic-only: %v", keywordRes.err)
		keywordRes.scored = nil
	}

	var results []types.RankedEntry
	if semanticAvailable {
		results = FuseResults(semanticRes.scored, keywordRes.scored, req.Limit, req.Fusion)
	} else {
		results = KeywordOnlyRanking(keywordRes.scored, req.Limit, req.Fusion)
	}

	response := &SearchResponse{
		Results: results,
		Metadata: types.SearchMetadata{
			Total:             len(results),
			SemanticCount:     len(semanticRes.scored),
			KeywordCount:      len(keywordRes.scored),
			SemanticAvailable: semanticAvailable,
			QueryTimeMs:       time.Since(startTime).Milliseconds(),
		},
	}

	if req.UseCache && len(results) > 0 {
		s.storeInCache(req, response)
	}

	return response, nil
}

// embedQuery produces the query vector, or nil when semantic search
// must be skipped. Provider errors and timeouts are absorbed here.
func (s *Searcher) embedQuery(ctx context.Context, query string) []float32 {
	if s.embedder == nil {
		return nil
	}

	embedCtx, cancel := context.WithTimeout(ctx, s.embeddingTimeout)
	defer cancel()

	emb, err := s.embedder.GenerateEmbedding(embedCtx, embedder.EmbeddingRequest{Text: query})
	if err != nil {
		log.Printf("WARN query embedding failed, falling back to keyword-only: %v", err)
		return nil
	}
	if emb == nil || isZeroVector(emb.Vector) {
		return nil
	}
	return emb.Vector
}

// validateRequest checks inputs and applies limit defaults
func (s *Searcher) validateRequest(req *SearchRequest) error {
	if strings.TrimSpace(req.Query) == "" {
		return fmt.Errorf("%w: query cannot be empty", ErrValidation)
	}
	if req.Limit < 0 || req.Limit > MaxLimit {
		return fmt.Errorf("%w: limit must be between 1 and %d", ErrValidation, MaxLimit)
	}
	if req.Limit == 0 {
		req.Limit = DefaultLimit
	}
	if req.CacheTTL == 0 {
		req.CacheTTL = DefaultResponseCacheTTL
	}
	if req.Filters != nil {
		if req.Filters.Role != "" {
			probe := types.KnowledgeEntry{Role: req.Filters.Role}
			if err := probe.ValidateRole(); err != nil {
				return fmt.Errorf("%w: %v", ErrValidation, err)
			}
		}
		if req.Filters.EntryType != "" {
			probe := types.KnowledgeEntry{EntryType: req.Filters.EntryType}
			if err := probe.ValidateEntryType(); err != nil {
				return fmt.Errorf("%w: %v", ErrValidation, err)
			}
		}
	}
	return nil
}

// checkCache returns a copy of a fresh cached response, or nil
func (s *Searcher) checkCache(req SearchRequest) *SearchResponse {
	hash := computeQueryHash(req)
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)
	if !found {
		s.cacheMu.RUnlock()
		return nil
	}
	if now.After(entry.expiresAt) {
		s.cacheMu.RUnlock()
		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil
	}
	response := copySearchResponse(entry.response)
	s.cacheMu.RUnlock()

	return response
}

func (s *Searcher) storeInCache(req SearchRequest, response *SearchResponse) {
	entry := &cacheEntry{
		response:  copySearchResponse(response),
		expiresAt: time.Now().Add(req.CacheTTL),
	}

	s.cacheMu.Lock()
	s.cache.Add(computeQueryHash(req), entry)
	s.cacheMu.Unlock()
}

// InvalidateCache drops all cached responses. Called after any mutation
// so stale rankings never outlive a write.
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// copySearchResponse creates a copy safe to hand to callers. Entries are
// shared pointers; callers treat them as read-only.
func copySearchResponse(src *SearchResponse) *SearchResponse {
	if src == nil {
		return nil
	}
	dst := &SearchResponse{
		Results:  make([]types.RankedEntry, len(src.Results)),
		Metadata: src.Metadata,
	}
	for i, r := range src.Results {
		dst.Results[i] = types.RankedEntry{
			Entry:      r.Entry,
			FusedScore: r.FusedScore,
		}
		if r.SemanticRank != nil {
			rank := *r.SemanticRank
			dst.Results[i].SemanticRank = &rank
		}
		if r.KeywordRank != nil {
			rank := *r.KeywordRank
			dst.Results[i].KeywordRank = &rank
		}
	}
	return dst
}

// computeQueryHash derives a deterministic cache key for a request
func computeQueryHash(req SearchRequest) [32]byte {
	var data strings.Builder
	data.WriteString(req.Query)
	data.WriteString("|")
	fmt.Fprintf(&data, "%d", req.Limit)

	if req.Filters != nil {
		data.WriteString("|filters:")
		data.WriteString(string(req.Filters.Role))
		data.WriteString("|")
		data.WriteString(strings.Join(req.Filters.Tags, ","))
		data.WriteString("|")
		data.WriteString(string(req.Filters.EntryType))
	}

	// Fusion tuning changes the ranking, so it is part of the key.
	fmt.Fprintf(&data, "|fusion:%g,%g,%g", req.Fusion.K, req.Fusion.SemanticWeight, req.Fusion.KeywordWeight)

	return sha256.Sum256([]byte(data.String()))
}
