package integration

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/avaine/kbcontext-mcp/internal/search"
	"github.com/avaine/kbcontext-mcp/internal/storage"
	"github.com/avaine/kbcontext-mcp/pkg/types"
)

// LifecycleTestSuite exercises persistence across store restarts using a
// file-backed database instead of :memory:.
type LifecycleTestSuite struct {
	suite.Suite
	dbPath string
	ctx    context.Context
}

func (s *LifecycleTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.dbPath = filepath.Join(s.T().TempDir(), "kbcontext.db")
}

// openSearcher opens a fresh storage+searcher pair over the suite database
func (s *LifecycleTestSuite) openSearcher() (*storage.SQLiteStorage, *search.Searcher) {
	store, err := storage.NewSQLiteStorage(s.dbPath)
	s.Require().NoError(err)
	return store, search.NewSearcher(store, NewMockEmbedder(384))
}

// TestEntriesSurviveRestart verifies entries and embeddings persist on disk
func (s *LifecycleTestSuite) TestEntriesSurviveRestart() {
	store, srch := s.openSearcher()

	entry, err := srch.Add(s.ctx, search.AddRequest{
		Title:     "Incident postmortem",
		Content:   "Redis eviction policy caused session churn under load.",
		Role:      types.RoleDev,
		EntryType: types.EntryLesson,
		Tags:      []string{"redis", "incident"},
	})
	s.Require().NoError(err)
	s.Require().NotEmpty(entry.Embedding)
	s.Require().NoError(store.Close())

	// Reopen and verify the full entry round-trips
	store, srch = s.openSearcher()
	defer store.Close()

	loaded, err := srch.Get(s.ctx, entry.ID)
	s.Require().NoError(err)
	s.Require().NotNil(loaded)
	s.Equal(entry.Title, loaded.Title)
	s.Equal(entry.Tags, loaded.Tags)
	s.Equal(entry.Embedding, loaded.Embedding)

	// Search works against the reopened store
	resp, err := srch.Search(s.ctx, search.SearchRequest{Query: "redis eviction"})
	s.Require().NoError(err)
	s.Require().NotEmpty(resp.Results)
	s.Equal(entry.ID, resp.Results[0].Entry.ID)
}

// TestEmbeddingCachePersists verifies the durable cache tier survives restarts
func (s *LifecycleTestSuite) TestEmbeddingCachePersists() {
	store, _ := s.openSearcher()

	vector := []float32{0.25, -0.5, 0.75}
	s.Require().NoError(store.PutCachedEmbedding(s.ctx, "abc123", "mock-v1", vector))
	s.Require().NoError(store.Close())

	store, _ = s.openSearcher()
	defer store.Close()

	cached, err := store.GetCachedEmbedding(s.ctx, "abc123", "mock-v1")
	s.Require().NoError(err)
	s.Equal(vector, cached)

	count, err := store.CountCachedEmbeddings(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, count)
}

// TestAuditTrailPersists verifies the audit log survives restarts and deletes
func (s *LifecycleTestSuite) TestAuditTrailPersists() {
	store, srch := s.openSearcher()

	entry, err := srch.Add(s.ctx, search.AddRequest{
		Title:   "Ephemeral note",
		Content: "Created then deleted.",
	})
	s.Require().NoError(err)
	s.Require().NoError(srch.Delete(s.ctx, entry.ID))
	s.Require().NoError(store.Close())

	store, _ = s.openSearcher()
	defer store.Close()

	records, err := store.ListAudit(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(records, 2)

	// Newest first: delete, then add
	s.Equal(storage.AuditDelete, records[0].Operation)
	s.Equal(storage.AuditAdd, records[1].Operation)
	s.Require().NotNil(records[0].EntryID)
	s.Equal(entry.ID, *records[0].EntryID)
}

// TestMigrationsAreIdempotent verifies reopening never re-runs applied migrations
func (s *LifecycleTestSuite) TestMigrationsAreIdempotent() {
	for i := 0; i < 3; i++ {
		store, err := storage.NewSQLiteStorage(s.dbPath)
		s.Require().NoError(err)
		s.Require().NoError(store.Close())
	}
}

// TestLifecycleTestSuite runs the suite
func TestLifecycleTestSuite(t *testing.T) {
	suite.Run(t, new(LifecycleTestSuite))
}
