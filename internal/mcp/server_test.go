package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avaine/kbcontext-mcp/internal/embedder"
	"github.com/avaine/kbcontext-mcp/internal/search"
	"github.com/avaine/kbcontext-mcp/internal/storage"
)

// newTestServer builds a server over in-memory storage with the local
// embedding provider, bypassing env-driven construction.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	emb, err := embedder.NewLocalProvider(embedder.NewCache(100, embedder.LocalModel, store))
	require.NoError(t, err)

	s := &Server{
		mcp:               server.NewMCPServer(ServerName, ServerVersion),
		storage:           store,
		searcher:          search.NewSearcher(store, emb),
		searchTimeout:     DefaultSearchTimeout,
		getRelatedTimeout: DefaultGetRelatedTimeout,
		slowQueryWarn:     DefaultSlowQueryWarn,
	}
	s.registerTools()
	return s
}

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultJSON unmarshals the text payload of a tool result
func resultJSON(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotEmpty(t, result.Content)
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(tc.Text), &out))
	return out
}

func TestServerInitialization(t *testing.T) {
	t.Run("custom path creates database", func(t *testing.T) {
		tmpDir := t.TempDir()

		srv, err := NewServer(tmpDir)
		require.NoError(t, err)
		defer srv.storage.Close()

		assert.NotNil(t, srv.mcp, "MCP server should be initialized")
		assert.NotNil(t, srv.storage, "Storage should be initialized")
		assert.NotNil(t, srv.searcher, "Searcher should be initialized")
	})

	t.Run("timeouts have defaults", func(t *testing.T) {
		tmpDir := t.TempDir()

		srv, err := NewServer(tmpDir)
		require.NoError(t, err)
		defer srv.storage.Close()

		assert.Equal(t, DefaultSearchTimeout, srv.searchTimeout)
		assert.Equal(t, DefaultGetRelatedTimeout, srv.getRelatedTimeout)
	})
}

func TestToolRoundTrip(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	// Add two entries, one the child of the other.
	addResult, err := s.handleAdd(ctx, callRequest(map[string]interface{}{
		"content":    "Rollback by redeploying the previous image tag.",
		"title":      "Deploy rollback",
		"role":       "dev",
		"entry_type": "runbook",
		"tags":       []interface{}{"deploy", "oncall"},
	}))
	require.NoError(t, err)
	parent := resultJSON(t, addResult)["entry"].(map[string]interface{})
	parentID := parent["id"].(string)
	assert.Equal(t, "runbook", parent["entry_type"])

	childResult, err := s.handleAdd(ctx, callRequest(map[string]interface{}{
		"content":   "Database migrations must be rolled back first.",
		"tags":      []interface{}{"deploy"},
		"parent_id": parentID,
	}))
	require.NoError(t, err)
	child := resultJSON(t, childResult)["entry"].(map[string]interface{})
	childID := child["id"].(string)

	// kb_search finds the parent by keyword.
	searchResult, err := s.handleSearch(ctx, callRequest(map[string]interface{}{
		"query": "rollback image",
	}))
	require.NoError(t, err)
	searchOut := resultJSON(t, searchResult)
	results := searchOut["results"].([]interface{})
	require.NotEmpty(t, results)
	metadata := searchOut["metadata"].(map[string]interface{})
	assert.NotEmpty(t, metadata["correlation_id"])

	// kb_get_related from the parent sees the child.
	relResult, err := s.handleGetRelated(ctx, callRequest(map[string]interface{}{
		"entry_id": parentID,
	}))
	require.NoError(t, err)
	related := resultJSON(t, relResult)["related"].([]interface{})
	require.Len(t, related, 1)
	rel := related[0].(map[string]interface{})
	assert.Equal(t, "child", rel["relationship"])
	assert.Equal(t, childID, rel["entry"].(map[string]interface{})["id"])

	// kb_get round-trips the entry.
	getResult, err := s.handleGet(ctx, callRequest(map[string]interface{}{"id": parentID}))
	require.NoError(t, err)
	getOut := resultJSON(t, getResult)
	assert.Equal(t, true, getOut["found"])

	// kb_update changes the child's role and leaves its content alone.
	updResult, err := s.handleUpdate(ctx, callRequest(map[string]interface{}{
		"id":   childID,
		"role": "qa",
	}))
	require.NoError(t, err)
	updated := resultJSON(t, updResult)["entry"].(map[string]interface{})
	assert.Equal(t, "qa", updated["role"])
	assert.Equal(t, "Database migrations must be rolled back first.", updated["content"])

	// kb_list sees both entries.
	listResult, err := s.handleList(ctx, callRequest(map[string]interface{}{}))
	require.NoError(t, err)
	listOut := resultJSON(t, listResult)
	assert.EqualValues(t, 2, listOut["count"])

	// kb_delete twice: both succeed.
	for i := 0; i < 2; i++ {
		delResult, err := s.handleDelete(ctx, callRequest(map[string]interface{}{"id": parentID}))
		require.NoError(t, err, "delete attempt %d", i+1)
		assert.Equal(t, true, resultJSON(t, delResult)["deleted"])
	}

	// And the entry is gone.
	getResult, err = s.handleGet(ctx, callRequest(map[string]interface{}{"id": parentID}))
	require.NoError(t, err)
	assert.Equal(t, false, resultJSON(t, getResult)["found"])
}

func TestToolErrors(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	t.Run("empty query", func(t *testing.T) {
		_, err := s.handleSearch(ctx, callRequest(map[string]interface{}{"query": ""}))
		require.Error(t, err)
		mcpErr := &MCPError{}
		require.ErrorAs(t, err, &mcpErr)
		assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
	})

	t.Run("malformed entry id", func(t *testing.T) {
		_, err := s.handleGet(ctx, callRequest(map[string]interface{}{"id": "not-a-uuid"}))
		require.Error(t, err)
		mcpErr := &MCPError{}
		require.ErrorAs(t, err, &mcpErr)
		assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
	})

	t.Run("related of missing entry", func(t *testing.T) {
		_, err := s.handleGetRelated(ctx, callRequest(map[string]interface{}{
			"entry_id": "3b1f8a04-58b8-4c1b-8ef5-48e8c0f2a111",
		}))
		require.Error(t, err)
		mcpErr := &MCPError{}
		require.ErrorAs(t, err, &mcpErr)
		assert.Equal(t, ErrorCodeNotFound, mcpErr.Code)
	})

	t.Run("limit out of bounds", func(t *testing.T) {
		_, err := s.handleSearch(ctx, callRequest(map[string]interface{}{
			"query": "anything",
			"limit": float64(500),
		}))
		require.Error(t, err)
		mcpErr := &MCPError{}
		require.ErrorAs(t, err, &mcpErr)
		assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
	})

	t.Run("missing content on add", func(t *testing.T) {
		_, err := s.handleAdd(ctx, callRequest(map[string]interface{}{}))
		require.Error(t, err)
		mcpErr := &MCPError{}
		require.ErrorAs(t, err, &mcpErr)
		assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
	})
}

func TestStatusTool(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleAdd(ctx, callRequest(map[string]interface{}{"content": "one entry"}))
	require.NoError(t, err)

	statusResult, err := s.handleStatus(ctx, callRequest(map[string]interface{}{}))
	require.NoError(t, err)
	out := resultJSON(t, statusResult)

	assert.EqualValues(t, 1, out["entries"])
	assert.Equal(t, ServerVersion, out["server_version"])
	storageOut := out["storage"].(map[string]interface{})
	assert.NotEmpty(t, storageOut["driver"])

	// The add above is the only audit activity so far.
	recent := out["recent_audit"].([]interface{})
	require.Len(t, recent, 1)
	rec := recent[0].(map[string]interface{})
	assert.Equal(t, "add", rec["operation"])
	assert.NotEmpty(t, rec["entry_id"])
	assert.NotEmpty(t, rec["created_at"])
}

func TestRebuildTool(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleRebuildEmbeddings(ctx, callRequest(map[string]interface{}{
		"dry_run": true,
	}))
	require.NoError(t, err)
	out := resultJSON(t, result)
	assert.EqualValues(t, 0, out["scanned"])
}
