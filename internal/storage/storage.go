package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/avaine/kbcontext-mcp/pkg/types"
)

// Storage defines the interface for persisting and querying knowledge entries
type Storage interface {
	// Entry operations
	UpsertEntry(ctx context.Context, entry *types.KnowledgeEntry) error
	GetEntry(ctx context.Context, id uuid.UUID) (*types.KnowledgeEntry, error)
	DeleteEntry(ctx context.Context, id uuid.UUID) error
	ListEntries(ctx context.Context, opts ListOptions) ([]*types.KnowledgeEntry, error)
	ListEntriesByParent(ctx context.Context, parentID uuid.UUID) ([]*types.KnowledgeEntry, error)
	ListEntriesMissingEmbedding(ctx context.Context, limit int) ([]*types.KnowledgeEntry, error)
	CountEntries(ctx context.Context) (int, error)

	// Search candidate operations
	SearchSemantic(ctx context.Context, queryVector []float32, limit int, filters *SearchFilters) ([]SemanticResult, error)
	SearchKeywordCandidates(ctx context.Context, terms []string, limit int, filters *SearchFilters) ([]*types.KnowledgeEntry, error)

	// Embedding cache operations
	GetCachedEmbedding(ctx context.Context, contentHash, model string) ([]float32, error)
	PutCachedEmbedding(ctx context.Context, contentHash, model string, vector []float32) error
	CountCachedEmbeddings(ctx context.Context) (int, error)

	// Audit operations
	AppendAudit(ctx context.Context, record *AuditRecord) error
	ListAudit(ctx context.Context, limit int) ([]*AuditRecord, error)

	// Database operations
	Close() error
}

// SearchFilters narrows search candidates before ranking
type SearchFilters struct {
	Role      types.Role      // Matches entries with this role or role "all"
	Tags      []string        // Entries carrying ANY of these tags
	EntryType types.EntryType // Exact entry type match
}

// ListOptions controls filtered entry listing
type ListOptions struct {
	Role      types.Role
	Tags      []string
	EntryType types.EntryType
	Limit     int
	Offset    int
}

// SemanticResult is a candidate from vector similarity search.
// Entries without a stored embedding never appear here.
type SemanticResult struct {
	EntryID    uuid.UUID
	Similarity float64
}

// AuditOperation identifies the kind of mutation recorded in the audit log
type AuditOperation string

const (
	AuditAdd    AuditOperation = "add"
	AuditUpdate AuditOperation = "update"
	AuditDelete AuditOperation = "delete"
)

// AuditRecord is an audit-trail row for an entry mutation.
// EntryID survives entry deletion so the trail outlives the entry.
type AuditRecord struct {
	ID        int64
	EntryID   *uuid.UUID
	Operation AuditOperation
	Snapshot  string // JSON snapshot of the entry, embedding excluded
	CreatedAt time.Time
}
