package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avaine/kbcontext-mcp/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

const entryColumns = `id, content, title, role, entry_type, tags, parent_id, embedding, created_at, updated_at`

// rowScanner abstracts *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanEntry reads one knowledge entry row
func scanEntry(row rowScanner) (*types.KnowledgeEntry, error) {
	var entry types.KnowledgeEntry
	var id string
	var tagsJSON string
	var parentID sql.NullString
	var embedding []byte

	err := row.Scan(
		&id, &entry.Content, &entry.Title, &entry.Role, &entry.EntryType,
		&tagsJSON, &parentID, &embedding, &entry.CreatedAt, &entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid entry id %q: %w", id, err)
	}

	if err := json.Unmarshal([]byte(tagsJSON), &entry.Tags); err != nil {
		return nil, fmt.Errorf("invalid tags for entry %s: %w", id, err)
	}

	if parentID.Valid {
		pid, err := uuid.Parse(parentID.String)
		if err != nil {
			return nil, fmt.Errorf("invalid parent id %q: %w", parentID.String, err)
		}
		entry.ParentID = &pid
	}

	if len(embedding) > 0 {
		entry.Embedding = deserializeVector(embedding)
	}

	return &entry, nil
}

// UpsertEntry inserts or updates a knowledge entry
func (s *SQLiteStorage) UpsertEntry(ctx context.Context, entry *types.KnowledgeEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	tagsJSON, err := json.Marshal(nonNilTags(entry.Tags))
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	var parentID interface{}
	if entry.ParentID != nil {
		parentID = entry.ParentID.String()
	}

	var embedding interface{}
	var dimension interface{}
	if len(entry.Embedding) > 0 {
		embedding = serializeVector(entry.Embedding)
		dimension = len(entry.Embedding)
	}

	query := `
		INSERT INTO knowledge_entries (id, content, title, role, entry_type, tags, parent_id, embedding, dimension, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			title = excluded.title,
			role = excluded.role,
			entry_type = excluded.entry_type,
			tags = excluded.tags,
			parent_id = excluded.parent_id,
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			updated_at = excluded.updated_at
	`
	now := time.Now().UTC()
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err = s.db.ExecContext(ctx, query,
		entry.ID.String(), entry.Content, entry.Title, string(entry.Role), string(entry.EntryType),
		string(tagsJSON), parentID, embedding, dimension, createdAt, now)
	if err != nil {
		return fmt.Errorf("failed to upsert entry: %w", err)
	}

	entry.CreatedAt = createdAt
	entry.UpdatedAt = now
	return nil
}

// GetEntry retrieves an entry by ID, returning ErrNotFound when missing
func (s *SQLiteStorage) GetEntry(ctx context.Context, id uuid.UUID) (*types.KnowledgeEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM knowledge_entries WHERE id = ?`
	entry, err := scanEntry(s.db.QueryRowContext(ctx, query, id.String()))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// DeleteEntry removes an entry by ID. Deleting a missing entry is not an error.
func (s *SQLiteStorage) DeleteEntry(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM knowledge_entries WHERE id = ?`, id.String())
	return err
}

// ListEntries returns entries matching the list options, newest first
func (s *SQLiteStorage) ListEntries(ctx context.Context, opts ListOptions) ([]*types.KnowledgeEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM knowledge_entries WHERE 1=1`
	args := make([]interface{}, 0, 4)
	query, args = applyEntryFilters(query, args, &SearchFilters{
		Role:      opts.Role,
		Tags:      opts.Tags,
		EntryType: opts.EntryType,
	})

	query += ` ORDER BY created_at DESC, id ASC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, opts.Offset)
		}
	}

	return s.queryEntries(ctx, query, args...)
}

// ListEntriesByParent returns all entries whose parent_id equals parentID, ordered by id
func (s *SQLiteStorage) ListEntriesByParent(ctx context.Context, parentID uuid.UUID) ([]*types.KnowledgeEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM knowledge_entries WHERE parent_id = ? ORDER BY id ASC`
	return s.queryEntries(ctx, query, parentID.String())
}

// ListEntriesMissingEmbedding returns entries whose embedding has not been computed
func (s *SQLiteStorage) ListEntriesMissingEmbedding(ctx context.Context, limit int) ([]*types.KnowledgeEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM knowledge_entries WHERE embedding IS NULL ORDER BY id ASC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryEntries(ctx, query, args...)
}

// CountEntries returns the total number of stored entries
func (s *SQLiteStorage) CountEntries(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledge_entries`).Scan(&count)
	return count, err
}

// queryEntries executes an entry query and scans all rows
func (s *SQLiteStorage) queryEntries(ctx context.Context, query string, args ...interface{}) ([]*types.KnowledgeEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	entries := make([]*types.KnowledgeEntry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// applyEntryFilters adds WHERE clause filters shared by search and list queries
func applyEntryFilters(query string, args []interface{}, filters *SearchFilters) (string, []interface{}) {
	if filters == nil {
		return query, args
	}

	if filters.Role != "" {
		// Role-scoped queries also see universal entries
		query += ` AND (role = ? OR role = ?)`
		args = append(args, string(filters.Role), string(types.RoleAll))
	}

	if filters.EntryType != "" {
		query += ` AND entry_type = ?`
		args = append(args, string(filters.EntryType))
	}

	if len(filters.Tags) > 0 {
		placeholders := make([]string, len(filters.Tags))
		for i, tag := range filters.Tags {
			placeholders[i] = "?"
			args = append(args, tag)
		}
		query += ` AND EXISTS (SELECT 1 FROM json_each(knowledge_entries.tags) WHERE json_each.value IN (` +
			strings.Join(placeholders, ",") + `))`
	}

	return query, args
}

// Embedding cache operations

// GetCachedEmbedding looks up a cached vector by content hash and model.
// Returns ErrNotFound on a cache miss.
func (s *SQLiteStorage) GetCachedEmbedding(ctx context.Context, contentHash, model string) ([]float32, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT vector FROM embedding_cache WHERE content_hash = ? AND model = ?`,
		contentHash, model).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return deserializeVector(blob), nil
}

// PutCachedEmbedding stores a vector keyed by content hash and model.
// Writes are idempotent upserts; last writer wins.
func (s *SQLiteStorage) PutCachedEmbedding(ctx context.Context, contentHash, model string, vector []float32) error {
	query := `
		INSERT INTO embedding_cache (content_hash, model, vector, dimension, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(content_hash, model) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension
	`
	_, err := s.db.ExecContext(ctx, query, contentHash, model, serializeVector(vector), len(vector), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to cache embedding: %w", err)
	}
	return nil
}

// CountCachedEmbeddings returns the number of persisted cache rows
func (s *SQLiteStorage) CountCachedEmbeddings(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embedding_cache`).Scan(&count)
	return count, err
}

// Audit operations

// AppendAudit records an entry mutation in the audit log
func (s *SQLiteStorage) AppendAudit(ctx context.Context, record *AuditRecord) error {
	var entryID interface{}
	if record.EntryID != nil {
		entryID = record.EntryID.String()
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (entry_id, operation, snapshot, created_at) VALUES (?, ?, ?, ?)`,
		entryID, string(record.Operation), record.Snapshot, now)
	if err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		record.ID = id
	}
	record.CreatedAt = now
	return nil
}

// ListAudit returns the most recent audit records, newest first
func (s *SQLiteStorage) ListAudit(ctx context.Context, limit int) ([]*AuditRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, entry_id, operation, snapshot, created_at FROM audit_log ORDER BY id DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var records []*AuditRecord
	for rows.Next() {
		record := &AuditRecord{}
		var entryID sql.NullString
		var operation string
		if err := rows.Scan(&record.ID, &entryID, &operation, &record.Snapshot, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		record.Operation = AuditOperation(operation)
		if entryID.Valid {
			id, err := uuid.Parse(entryID.String)
			if err == nil {
				record.EntryID = &id
			}
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// nonNilTags normalizes a nil tag slice so it encodes as [] instead of null
func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
