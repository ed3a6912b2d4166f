package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avaine/kbcontext-mcp/internal/embedder"
	"github.com/avaine/kbcontext-mcp/internal/storage"
	"github.com/avaine/kbcontext-mcp/pkg/types"
)

// List limits
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// AddRequest contains the fields for a new knowledge entry
type AddRequest struct {
	Content   string
	Title     string
	Role      types.Role
	EntryType types.EntryType
	Tags      []string
	ParentID  *uuid.UUID
}

// Get fetches an entry by ID. A missing entry returns (nil, nil): the
// caller distinguishes "not there" from a lookup failure.
func (s *Searcher) Get(ctx context.Context, id uuid.UUID) (*types.KnowledgeEntry, error) {
	entry, err := s.storage.GetEntry(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: get entry: %v", ErrDB, err)
	}
	return entry, nil
}

// Delete removes an entry. Idempotent: deleting a missing entry
// succeeds. Child entries keep their (now dangling) parent reference.
func (s *Searcher) Delete(ctx context.Context, id uuid.UUID) error {
	entry, err := s.storage.GetEntry(ctx, id)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: load entry for delete: %v", ErrDB, err)
	}

	if err := s.storage.DeleteEntry(ctx, id); err != nil {
		return fmt.Errorf("%w: delete entry: %v", ErrDB, err)
	}

	// Audit only actual deletions, not no-op repeats.
	if entry != nil {
		s.appendAudit(ctx, storage.AuditDelete, entry)
		s.InvalidateCache()
	}
	return nil
}

// Add validates, embeds, and stores a new entry. An embedding failure
// does not block the write: the entry is stored without a vector and
// stays reachable through keyword search until a rebuild backfills it.
func (s *Searcher) Add(ctx context.Context, req AddRequest) (*types.KnowledgeEntry, error) {
	now := time.Now().UTC()
	entry := &types.KnowledgeEntry{
		ID:        uuid.New(),
		Content:   req.Content,
		Title:     req.Title,
		Role:      req.Role,
		EntryType: req.EntryType,
		Tags:      req.Tags,
		ParentID:  req.ParentID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if entry.Role == "" {
		entry.Role = types.RoleAll
	}
	if entry.EntryType == "" {
		entry.EntryType = types.EntryNote
	}
	if err := entry.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if req.ParentID != nil {
		if _, err := s.storage.GetEntry(ctx, *req.ParentID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("%w: parent %s", ErrNotFound, *req.ParentID)
			}
			return nil, fmt.Errorf("%w: check parent: %v", ErrDB, err)
		}
	}

	entry.Embedding = s.embedEntry(ctx, entry)

	if err := s.storage.UpsertEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("%w: insert entry: %v", ErrDB, err)
	}

	s.appendAudit(ctx, storage.AuditAdd, entry)
	s.InvalidateCache()
	return entry, nil
}

// UpdateRequest carries partial changes to an existing entry.
// Nil fields are left untouched.
type UpdateRequest struct {
	ID        uuid.UUID
	Content   *string
	Title     *string
	Role      *types.Role
	EntryType *types.EntryType
	Tags      *[]string
	ParentID  *uuid.UUID
}

// Update applies a partial update to an entry. Text changes re-generate
// the embedding with the same best-effort rule as Add: a provider
// failure stores the entry without a vector rather than failing the
// write.
func (s *Searcher) Update(ctx context.Context, req UpdateRequest) (*types.KnowledgeEntry, error) {
	entry, err := s.storage.GetEntry(ctx, req.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, req.ID)
		}
		return nil, fmt.Errorf("%w: load entry for update: %v", ErrDB, err)
	}

	textChanged := false
	if req.Content != nil && *req.Content != entry.Content {
		entry.Content = *req.Content
		textChanged = true
	}
	if req.Title != nil && *req.Title != entry.Title {
		entry.Title = *req.Title
		textChanged = true
	}
	if req.Role != nil {
		entry.Role = *req.Role
	}
	if req.EntryType != nil {
		entry.EntryType = *req.EntryType
	}
	if req.Tags != nil {
		entry.Tags = *req.Tags
	}
	if req.ParentID != nil {
		if *req.ParentID == entry.ID {
			return nil, fmt.Errorf("%w: entry cannot be its own parent", ErrValidation)
		}
		if _, err := s.storage.GetEntry(ctx, *req.ParentID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("%w: parent %s", ErrNotFound, *req.ParentID)
			}
			return nil, fmt.Errorf("%w: check parent: %v", ErrDB, err)
		}
		pid := *req.ParentID
		entry.ParentID = &pid
	}

	if err := entry.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	// The embedding tracks title+content; other fields don't affect it.
	if textChanged {
		entry.Embedding = s.embedEntry(ctx, entry)
	}
	entry.UpdatedAt = time.Now().UTC()

	if err := s.storage.UpsertEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("%w: update entry: %v", ErrDB, err)
	}

	s.appendAudit(ctx, storage.AuditUpdate, entry)
	s.InvalidateCache()
	return entry, nil
}

// List returns entries matching the filters, newest first
func (s *Searcher) List(ctx context.Context, opts storage.ListOptions) ([]*types.KnowledgeEntry, error) {
	if opts.Limit <= 0 {
		opts.Limit = DefaultListLimit
	}
	if opts.Limit > MaxListLimit {
		return nil, fmt.Errorf("%w: limit must be at most %d", ErrValidation, MaxListLimit)
	}
	if opts.Offset < 0 {
		return nil, fmt.Errorf("%w: offset cannot be negative", ErrValidation)
	}

	entries, err := s.storage.ListEntries(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: list entries: %v", ErrDB, err)
	}
	return entries, nil
}

// embedEntry produces the entry's vector from its title and content,
// or nil when the provider is unavailable.
func (s *Searcher) embedEntry(ctx context.Context, entry *types.KnowledgeEntry) []float32 {
	if s.embedder == nil {
		return nil
	}

	text := entry.Content
	if entry.Title != "" {
		text = entry.Title + "\n" + entry.Content
	}

	embedCtx, cancel := context.WithTimeout(ctx, s.embeddingTimeout)
	defer cancel()

	emb, err := s.embedder.GenerateEmbedding(embedCtx, embedder.EmbeddingRequest{Text: text})
	if err != nil {
		log.Printf("WARN entry embedding failed, storing without vector (id=%s): %v", entry.ID, err)
		return nil
	}
	return emb.Vector
}

// appendAudit records an entry mutation. Audit failures are logged,
// never propagated: the mutation already happened.
func (s *Searcher) appendAudit(ctx context.Context, op storage.AuditOperation, entry *types.KnowledgeEntry) {
	snapshot, err := json.Marshal(map[string]interface{}{
		"id":         entry.ID.String(),
		"title":      entry.Title,
		"content":    entry.Content,
		"role":       entry.Role,
		"entry_type": entry.EntryType,
		"tags":       entry.Tags,
	})
	if err != nil {
		log.Printf("WARN audit snapshot marshal failed (id=%s): %v", entry.ID, err)
		return
	}

	id := entry.ID
	record := &storage.AuditRecord{
		EntryID:   &id,
		Operation: op,
		Snapshot:  string(snapshot),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.storage.AppendAudit(ctx, record); err != nil {
		log.Printf("WARN audit append failed (id=%s op=%s): %v", entry.ID, op, err)
	}
}

// ParseEntryID validates and parses a caller-supplied entry ID
func ParseEntryID(raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, fmt.Errorf("%w: id cannot be empty", ErrValidation)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: malformed id %q", ErrValidation, raw)
	}
	return id, nil
}
