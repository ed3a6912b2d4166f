package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/avaine/kbcontext-mcp/internal/embedder"
	"github.com/avaine/kbcontext-mcp/internal/search"
	"github.com/avaine/kbcontext-mcp/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "kbcontext-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"

	// EnvDBPath overrides the database location
	EnvDBPath = "KBCONTEXT_DB_PATH"

	// Per-tool timeout environment variables, in milliseconds
	EnvSearchTimeoutMs     = "KB_SEARCH_TIMEOUT_MS"
	EnvGetRelatedTimeoutMs = "KB_GET_RELATED_TIMEOUT_MS"
	EnvEmbeddingTimeoutMs  = "KB_EMBEDDING_TIMEOUT_MS"
	EnvSlowQueryMs         = "LOG_SLOW_QUERIES_MS"

	DefaultSearchTimeout     = 10 * time.Second
	DefaultGetRelatedTimeout = 5 * time.Second
	DefaultSlowQueryWarn     = 1 * time.Second
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	storage  storage.Storage
	searcher *search.Searcher

	searchTimeout     time.Duration
	getRelatedTimeout time.Duration
	slowQueryWarn     time.Duration
}

// NewServer creates a new MCP server instance
func NewServer(dbPath string) (*Server, error) {
	if dbPath == "" {
		dbPath = os.Getenv(EnvDBPath)
	}
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".kbcontext")
	}

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	dbFile := filepath.Join(dbPath, "kbcontext.db")

	store, err := storage.NewSQLiteStorage(dbFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// The storage layer doubles as the persistent embedding cache tier.
	emb, err := embedder.NewFromEnv(store)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	srch := search.NewSearcher(store, emb)
	if d := msFromEnv(EnvEmbeddingTimeoutMs, 0); d > 0 {
		srch.SetEmbeddingTimeout(d)
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
	)

	s := &Server{
		mcp:               mcpServer,
		storage:           store,
		searcher:          srch,
		searchTimeout:     msFromEnv(EnvSearchTimeoutMs, DefaultSearchTimeout),
		getRelatedTimeout: msFromEnv(EnvGetRelatedTimeoutMs, DefaultGetRelatedTimeout),
		slowQueryWarn:     msFromEnv(EnvSlowQueryMs, DefaultSlowQueryWarn),
	}

	s.registerTools()
	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.storage.Close() }()
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(kbSearchTool(), s.handleSearch)
	s.mcp.AddTool(kbGetRelatedTool(), s.handleGetRelated)
	s.mcp.AddTool(kbGetTool(), s.handleGet)
	s.mcp.AddTool(kbDeleteTool(), s.handleDelete)
	s.mcp.AddTool(kbAddTool(), s.handleAdd)
	s.mcp.AddTool(kbUpdateTool(), s.handleUpdate)
	s.mcp.AddTool(kbListTool(), s.handleList)
	s.mcp.AddTool(kbRebuildEmbeddingsTool(), s.handleRebuildEmbeddings)
	s.mcp.AddTool(kbStatusTool(), s.handleStatus)
}

// msFromEnv reads a millisecond duration from the environment
func msFromEnv(name string, fallback time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
