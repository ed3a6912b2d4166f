package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/avaine/kbcontext-mcp/pkg/types"
)

// SearchSemantic performs vector similarity search using cosine similarity.
// Entries without a stored embedding are excluded, not scored as zero.
func (s *SQLiteStorage) SearchSemantic(ctx context.Context, queryVector []float32, limit int, filters *SearchFilters) ([]SemanticResult, error) {
	if VectorExtensionAvailable {
		return s.searchSemanticOptimized(ctx, queryVector, limit, filters)
	}
	// Fall back to Go-based computation for purego builds
	return s.searchSemanticFallback(ctx, queryVector, limit, filters)
}

// searchSemanticOptimized uses sqlite-vec for SQL-based similarity search
func (s *SQLiteStorage) searchSemanticOptimized(ctx context.Context, queryVector []float32, limit int, filters *SearchFilters) ([]SemanticResult, error) {
	queryVectorBlob := serializeVector(queryVector)

	// sqlite-vec returns distance (lower is better); convert to similarity
	query := `
		SELECT
			id,
			1.0 - vec_distance_cosine(embedding, ?) as similarity
		FROM knowledge_entries
		WHERE embedding IS NOT NULL
		AND dimension = ?
	`
	args := []interface{}{queryVectorBlob, len(queryVector)}
	query, args = applyEntryFilters(query, args, filters)

	// Deterministic: similarity descending, id ascending on ties
	query += ` ORDER BY similarity DESC, id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute semantic search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	if limit <= 0 {
		return []SemanticResult{}, nil
	}
	results := make([]SemanticResult, 0, limit)
	for rows.Next() {
		var id string
		var similarity float64
		if err := rows.Scan(&id, &similarity); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		entryID, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("invalid entry id %q: %w", id, err)
		}
		results = append(results, SemanticResult{EntryID: entryID, Similarity: similarity})
	}

	return results, rows.Err()
}

// searchSemanticFallback computes cosine similarity in Go.
// Used when the sqlite-vec extension is not available (purego builds).
func (s *SQLiteStorage) searchSemanticFallback(ctx context.Context, queryVector []float32, limit int, filters *SearchFilters) ([]SemanticResult, error) {
	query := `
		SELECT id, embedding
		FROM knowledge_entries
		WHERE embedding IS NOT NULL
	`
	args := []interface{}{}
	query, args = applyEntryFilters(query, args, filters)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates, err := computeSimilarityScores(rows, queryVector)
	if err != nil {
		return nil, err
	}

	sortCandidates(candidates)
	return buildSemanticResults(candidates, limit), nil
}

// candidate pairs an entry with its similarity score
type candidate struct {
	entryID uuid.UUID
	score   float64
}

// computeSimilarityScores processes rows and computes cosine similarity
func computeSimilarityScores(rows *sql.Rows, queryVector []float32) ([]candidate, error) {
	candidates := make([]candidate, 0, 256)

	for rows.Next() {
		var id string
		var vectorBlob []byte
		if err := rows.Scan(&id, &vectorBlob); err != nil {
			return nil, err
		}

		entryID, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("invalid entry id %q: %w", id, err)
		}

		vector := deserializeVector(vectorBlob)
		if len(vector) != len(queryVector) {
			continue // Dimension mismatch, skip
		}

		candidates = append(candidates, candidate{
			entryID: entryID,
			score:   cosineSimilarity(queryVector, vector),
		})
	}

	return candidates, rows.Err()
}

// sortCandidates orders by score descending with id-ascending tie-break
func sortCandidates(candidates []candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].entryID.String() < candidates[j].entryID.String()
	})
}

// buildSemanticResults converts the top candidates into SemanticResult values
func buildSemanticResults(candidates []candidate, limit int) []SemanticResult {
	if limit <= 0 || limit > len(candidates) {
		limit = len(candidates)
	}

	results := make([]SemanticResult, limit)
	for i := 0; i < limit; i++ {
		results[i] = SemanticResult{
			EntryID:    candidates[i].entryID,
			Similarity: candidates[i].score,
		}
	}
	return results
}

// SearchKeywordCandidates returns entries whose content or title matches any
// of the given terms. Scoring happens in the search layer; this query only
// narrows the candidate pool.
func (s *SQLiteStorage) SearchKeywordCandidates(ctx context.Context, terms []string, limit int, filters *SearchFilters) ([]*types.KnowledgeEntry, error) {
	if len(terms) == 0 {
		return []*types.KnowledgeEntry{}, nil
	}

	conditions := make([]string, 0, len(terms))
	args := make([]interface{}, 0, len(terms)*2)
	for _, term := range terms {
		pattern := "%" + escapeLike(term) + "%"
		conditions = append(conditions, `(content LIKE ? ESCAPE '\' OR title LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}

	query := `SELECT ` + entryColumns + ` FROM knowledge_entries WHERE (` +
		strings.Join(conditions, " OR ") + `)`
	query, args = applyEntryFilters(query, args, filters)

	query += ` ORDER BY id ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	return s.queryEntries(ctx, query, args...)
}

// escapeLike escapes LIKE wildcards in a raw search term
func escapeLike(term string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(term)
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// SerializeVector is an exported helper for testing
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector is an exported helper for testing
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// CosineSimilarity is an exported helper for testing
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}
