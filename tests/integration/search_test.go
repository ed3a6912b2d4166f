package integration

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/avaine/kbcontext-mcp/internal/search"
	"github.com/avaine/kbcontext-mcp/internal/storage"
	"github.com/avaine/kbcontext-mcp/pkg/types"
)

// SearchTestSuite exercises the full retrieval pipeline: storage, embedding,
// fusion, and the searcher's degradation paths.
type SearchTestSuite struct {
	suite.Suite
	storage  storage.Storage
	searcher *search.Searcher
	embedder *MockEmbedder
	ctx      context.Context

	seeded map[string]*types.KnowledgeEntry
}

// SetupTest runs before each test
func (s *SearchTestSuite) SetupTest() {
	s.ctx = context.Background()

	store, err := storage.NewSQLiteStorage(":memory:")
	s.Require().NoError(err)
	s.storage = store

	s.embedder = NewMockEmbedder(384)
	s.searcher = search.NewSearcher(s.storage, s.embedder)

	s.seeded = make(map[string]*types.KnowledgeEntry)
	s.seedKnowledgeBase()
}

// TearDownTest runs after each test
func (s *SearchTestSuite) TearDownTest() {
	if s.storage != nil {
		_ = s.storage.Close()
	}
}

// seedKnowledgeBase stores a small realistic corpus through the normal add path
func (s *SearchTestSuite) seedKnowledgeBase() {
	requests := []search.AddRequest{
		{
			Title:     "JWT key rotation",
			Content:   "Rotate JWT signing keys every 90 days. Old keys stay valid for one rotation window.",
			Role:      types.RoleDev,
			EntryType: types.EntryRunbook,
			Tags:      []string{"auth", "jwt"},
		},
		{
			Title:     "Auth service decision",
			Content:   "We chose stateless JWT sessions over server-side sessions for horizontal scaling.",
			Role:      types.RoleDev,
			EntryType: types.EntryDecision,
			Tags:      []string{"auth", "architecture"},
		},
		{
			Title:     "Deploy rollback runbook",
			Content:   "Roll back by redeploying the previous image tag, then revert pending migrations.",
			Role:      types.RoleAll,
			EntryType: types.EntryRunbook,
			Tags:      []string{"deploy"},
		},
		{
			Title:     "QA regression checklist",
			Content:   "Run the auth regression suite before every release candidate.",
			Role:      types.RoleQA,
			EntryType: types.EntryNote,
			Tags:      []string{"auth", "release"},
		},
	}

	for _, req := range requests {
		entry, err := s.searcher.Add(s.ctx, req)
		s.Require().NoError(err)
		s.Require().NotEmpty(entry.Embedding, "seed entries should be embedded")
		s.seeded[req.Title] = entry
	}
}

// TestHybridSearch verifies both retrieval sources contribute to ranking
func (s *SearchTestSuite) TestHybridSearch() {
	resp, err := s.searcher.Search(s.ctx, search.SearchRequest{
		Query: "JWT key rotation",
		Limit: 10,
	})
	s.Require().NoError(err)
	s.Require().NotEmpty(resp.Results)

	s.True(resp.Metadata.SemanticAvailable)
	s.Greater(resp.Metadata.KeywordCount, 0, "keyword source should find JWT entries")
	s.LessOrEqual(resp.Metadata.Total, 10)

	// The exact-phrase entry must win: it matches every keyword term and
	// its embedding is closest to the query's.
	s.Equal(s.seeded["JWT key rotation"].ID, resp.Results[0].Entry.ID)
	s.Require().NotNil(resp.Results[0].KeywordRank)

	// Scores are fused and strictly ordered
	for i := 1; i < len(resp.Results); i++ {
		s.GreaterOrEqual(resp.Results[i-1].FusedScore, resp.Results[i].FusedScore)
	}
}

// TestSearchRoleFilter verifies role filtering includes universal entries
func (s *SearchTestSuite) TestSearchRoleFilter() {
	resp, err := s.searcher.Search(s.ctx, search.SearchRequest{
		Query:   "runbook rollback release",
		Limit:   10,
		Filters: &storage.SearchFilters{Role: types.RoleQA},
	})
	s.Require().NoError(err)

	for _, result := range resp.Results {
		role := result.Entry.Role
		s.True(role == types.RoleQA || role == types.RoleAll,
			"role filter leaked entry with role %s", role)
	}
}

// TestGracefulDegradation verifies keyword-only search when the provider fails
func (s *SearchTestSuite) TestGracefulDegradation() {
	query := "JWT key rotation"
	s.embedder.FailTexts[query] = true

	resp, err := s.searcher.Search(s.ctx, search.SearchRequest{
		Query: query,
		Limit: 10,
	})
	s.Require().NoError(err, "provider failure must not fail the search")
	s.Require().NotEmpty(resp.Results)

	s.False(resp.Metadata.SemanticAvailable)
	s.Zero(resp.Metadata.SemanticCount)
	s.Greater(resp.Metadata.KeywordCount, 0)

	for _, result := range resp.Results {
		s.Nil(result.SemanticRank, "no semantic ranks in degraded mode")
		s.NotNil(result.KeywordRank)
	}
}

// TestAddSurvivesEmbeddingFailure verifies entries without embeddings are
// still stored and keyword-reachable
func (s *SearchTestSuite) TestAddSurvivesEmbeddingFailure() {
	title := "Flag cleanup lesson"
	content := "Feature flags must be removed within two sprints of full rollout."
	s.embedder.FailTexts[title+"\n"+content] = true

	entry, err := s.searcher.Add(s.ctx, search.AddRequest{
		Title:     title,
		Content:   content,
		Role:      types.RoleAll,
		EntryType: types.EntryLesson,
		Tags:      []string{"flags"},
	})
	s.Require().NoError(err)
	s.Empty(entry.Embedding)

	resp, err := s.searcher.Search(s.ctx, search.SearchRequest{
		Query: "feature flags rollout",
		Limit: 10,
	})
	s.Require().NoError(err)

	found := false
	for _, result := range resp.Results {
		if result.Entry.ID == entry.ID {
			found = true
			s.Nil(result.SemanticRank, "unembedded entry cannot have a semantic rank")
		}
	}
	s.True(found, "unembedded entry should surface via keyword search")
}

// TestRelatedEntriesPipeline verifies the graph resolver over stored data
func (s *SearchTestSuite) TestRelatedEntriesPipeline() {
	parent := s.seeded["Auth service decision"]

	child, err := s.searcher.Add(s.ctx, search.AddRequest{
		Title:     "Refresh token follow-up",
		Content:   "Refresh tokens rotate on every use.",
		Role:      types.RoleDev,
		EntryType: types.EntryNote,
		Tags:      []string{"sessions"},
		ParentID:  &parent.ID,
	})
	s.Require().NoError(err)

	related, err := s.searcher.GetRelated(s.ctx, child.ID, 10)
	s.Require().NoError(err)
	s.Require().NotEmpty(related)

	// Parent relationship outranks everything else
	s.Equal(types.RelationParent, related[0].Relationship)
	s.Equal(parent.ID, related[0].Entry.ID)

	// Tag-overlap neighbors of the parent: the JWT runbook and the QA
	// checklist both share the "auth" tag.
	parentRelated, err := s.searcher.GetRelated(s.ctx, parent.ID, 10)
	s.Require().NoError(err)

	byID := make(map[uuid.UUID]types.RelatedEntry)
	for _, rel := range parentRelated {
		s.NotEqual(parent.ID, rel.Entry.ID, "no self-relations")
		byID[rel.Entry.ID] = rel
	}

	childRel, ok := byID[child.ID]
	s.Require().True(ok)
	s.Equal(types.RelationChild, childRel.Relationship)

	runbookRel, ok := byID[s.seeded["JWT key rotation"].ID]
	s.Require().True(ok)
	s.Equal(types.RelationTagOverlap, runbookRel.Relationship)
	s.Equal(1, runbookRel.OverlapScore)
}

// TestCacheRoundTrip verifies response caching and mutation invalidation
func (s *SearchTestSuite) TestCacheRoundTrip() {
	req := search.SearchRequest{
		Query:    "deploy rollback",
		Limit:    10,
		UseCache: true,
	}

	first, err := s.searcher.Search(s.ctx, req)
	s.Require().NoError(err)
	s.False(first.Metadata.CacheHit)

	second, err := s.searcher.Search(s.ctx, req)
	s.Require().NoError(err)
	s.True(second.Metadata.CacheHit)
	s.Equal(len(first.Results), len(second.Results))

	// Any mutation purges the cache
	s.Require().NoError(s.searcher.Delete(s.ctx, s.seeded["Deploy rollback runbook"].ID))

	third, err := s.searcher.Search(s.ctx, req)
	s.Require().NoError(err)
	s.False(third.Metadata.CacheHit)

	for _, result := range third.Results {
		s.NotEqual(s.seeded["Deploy rollback runbook"].ID, result.Entry.ID,
			"deleted entry must not appear in results")
	}
}

// TestRebuildPipeline verifies embedding rebuild over the stored corpus
func (s *SearchTestSuite) TestRebuildPipeline() {
	// Store an entry that misses its embedding
	title := "Unembedded note"
	content := "This entry starts without a vector."
	s.embedder.FailTexts[title+"\n"+content] = true

	entry, err := s.searcher.Add(s.ctx, search.AddRequest{
		Title:   title,
		Content: content,
	})
	s.Require().NoError(err)
	s.Empty(entry.Embedding)

	// Provider recovers
	delete(s.embedder.FailTexts, title+"\n"+content)

	stats, err := s.searcher.RebuildEmbeddings(s.ctx, search.RebuildOptions{})
	s.Require().NoError(err)
	s.Equal(1, stats.Scanned)
	s.Equal(1, stats.Rebuilt)
	s.Equal(0, stats.Failed)

	refreshed, err := s.searcher.Get(s.ctx, entry.ID)
	s.Require().NoError(err)
	s.Require().NotNil(refreshed)
	s.NotEmpty(refreshed.Embedding)
}

// TestSearchTestSuite runs the suite
func TestSearchTestSuite(t *testing.T) {
	suite.Run(t, new(SearchTestSuite))
}
