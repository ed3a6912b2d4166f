package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/avaine/kbcontext-mcp/internal/search"
	"github.com/avaine/kbcontext-mcp/internal/storage"
	"github.com/avaine/kbcontext-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams = -32602 // Invalid method parameters
	ErrorCodeInternalError = -32603 // Internal JSON-RPC error
	ErrorCodeNotFound      = -32001 // Referenced entry does not exist
)

// recentAuditLimit caps the audit records reported by kb_status.
const recentAuditLimit = 5

// handleSearch handles the kb_search tool invocation
func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	correlationID := uuid.New().String()
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", 0)
	filters := parseFilters(args)

	ctx, cancel := context.WithTimeout(ctx, s.searchTimeout)
	defer cancel()

	start := time.Now()
	resp, err := s.searcher.Search(ctx, search.SearchRequest{
		Query:    query,
		Limit:    limit,
		Filters:  filters,
		UseCache: true,
	})
	if err != nil {
		return nil, mapSearchError(err, correlationID)
	}
	s.warnSlow("kb_search", correlationID, time.Since(start))

	results := make([]map[string]interface{}, len(resp.Results))
	for i, r := range resp.Results {
		results[i] = rankedJSON(r)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"results": results,
		"metadata": map[string]interface{}{
			"total":              resp.Metadata.Total,
			"semantic_count":     resp.Metadata.SemanticCount,
			"keyword_count":      resp.Metadata.KeywordCount,
			"semantic_available": resp.Metadata.SemanticAvailable,
			"query_time_ms":      resp.Metadata.QueryTimeMs,
			"cache_hit":          resp.Metadata.CacheHit,
			"correlation_id":     correlationID,
		},
	})), nil
}

// handleGetRelated handles the kb_get_related tool invocation
func (s *Server) handleGetRelated(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	correlationID := uuid.New().String()
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	entryID, err := requireEntryID(args, "entry_id")
	if err != nil {
		return nil, err
	}
	limit := getIntDefault(args, "limit", 0)

	ctx, cancel := context.WithTimeout(ctx, s.getRelatedTimeout)
	defer cancel()

	start := time.Now()
	related, err := s.searcher.GetRelated(ctx, entryID, limit)
	if err != nil {
		return nil, mapSearchError(err, correlationID)
	}
	s.warnSlow("kb_get_related", correlationID, time.Since(start))

	results := make([]map[string]interface{}, len(related))
	for i, re := range related {
		results[i] = map[string]interface{}{
			"entry":        entryJSON(re.Entry),
			"relationship": string(re.Relationship),
		}
		if re.Relationship == types.RelationTagOverlap {
			results[i]["overlap_score"] = re.OverlapScore
		}
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"entry_id":       entryID.String(),
		"related":        results,
		"correlation_id": correlationID,
	})), nil
}

// handleGet handles the kb_get tool invocation
func (s *Server) handleGet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	correlationID := uuid.New().String()
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	id, err := requireEntryID(args, "id")
	if err != nil {
		return nil, err
	}

	entry, err := s.searcher.Get(ctx, id)
	if err != nil {
		return nil, mapSearchError(err, correlationID)
	}

	response := map[string]interface{}{
		"found":          entry != nil,
		"correlation_id": correlationID,
	}
	if entry != nil {
		response["entry"] = entryJSON(entry)
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleDelete handles the kb_delete tool invocation
func (s *Server) handleDelete(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	correlationID := uuid.New().String()
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	id, err := requireEntryID(args, "id")
	if err != nil {
		return nil, err
	}

	if err := s.searcher.Delete(ctx, id); err != nil {
		return nil, mapSearchError(err, correlationID)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"deleted":        true,
		"id":             id.String(),
		"correlation_id": correlationID,
	})), nil
}

// handleAdd handles the kb_add tool invocation
func (s *Server) handleAdd(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	correlationID := uuid.New().String()
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	content, ok := args["content"].(string)
	if !ok || content == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "content parameter is required and cannot be empty", map[string]interface{}{
			"param":  "content",
			"reason": "missing or empty",
		})
	}

	req := search.AddRequest{
		Content:   content,
		Title:     getStringDefault(args, "title", ""),
		Role:      types.Role(getStringDefault(args, "role", "")),
		EntryType: types.EntryType(getStringDefault(args, "entry_type", "")),
		Tags:      getStringSlice(args, "tags"),
	}
	if raw := getStringDefault(args, "parent_id", ""); raw != "" {
		parentID, err := search.ParseEntryID(raw)
		if err != nil {
			return nil, mapSearchError(err, correlationID)
		}
		req.ParentID = &parentID
	}

	entry, err := s.searcher.Add(ctx, req)
	if err != nil {
		return nil, mapSearchError(err, correlationID)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"entry":               entryJSON(entry),
		"embedding_generated": len(entry.Embedding) > 0,
		"correlation_id":      correlationID,
	})), nil
}

// handleUpdate handles the kb_update tool invocation
func (s *Server) handleUpdate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	correlationID := uuid.New().String()
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	id, err := requireEntryID(args, "id")
	if err != nil {
		return nil, err
	}

	req := search.UpdateRequest{ID: id}
	if v, ok := args["content"].(string); ok {
		req.Content = &v
	}
	if v, ok := args["title"].(string); ok {
		req.Title = &v
	}
	if v, ok := args["role"].(string); ok {
		role := types.Role(v)
		req.Role = &role
	}
	if v, ok := args["entry_type"].(string); ok {
		entryType := types.EntryType(v)
		req.EntryType = &entryType
	}
	if _, ok := args["tags"]; ok {
		tags := getStringSlice(args, "tags")
		if tags == nil {
			tags = []string{}
		}
		req.Tags = &tags
	}
	if raw := getStringDefault(args, "parent_id", ""); raw != "" {
		parentID, err := search.ParseEntryID(raw)
		if err != nil {
			return nil, mapSearchError(err, correlationID)
		}
		req.ParentID = &parentID
	}

	entry, err := s.searcher.Update(ctx, req)
	if err != nil {
		return nil, mapSearchError(err, correlationID)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"entry":               entryJSON(entry),
		"embedding_generated": len(entry.Embedding) > 0,
		"correlation_id":      correlationID,
	})), nil
}

// handleList handles the kb_list tool invocation
func (s *Server) handleList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	correlationID := uuid.New().String()
	args, _ := request.Params.Arguments.(map[string]interface{})
	if args == nil {
		args = map[string]interface{}{}
	}

	entries, err := s.searcher.List(ctx, storage.ListOptions{
		Role:      types.Role(getStringDefault(args, "role", "")),
		EntryType: types.EntryType(getStringDefault(args, "entry_type", "")),
		Tags:      getStringSlice(args, "tags"),
		Limit:     getIntDefault(args, "limit", 0),
		Offset:    getIntDefault(args, "offset", 0),
	})
	if err != nil {
		return nil, mapSearchError(err, correlationID)
	}

	results := make([]map[string]interface{}, len(entries))
	for i, e := range entries {
		results[i] = entryJSON(e)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"entries":        results,
		"count":          len(results),
		"correlation_id": correlationID,
	})), nil
}

// handleRebuildEmbeddings handles the kb_rebuild_embeddings tool invocation
func (s *Server) handleRebuildEmbeddings(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	correlationID := uuid.New().String()
	args, _ := request.Params.Arguments.(map[string]interface{})
	if args == nil {
		args = map[string]interface{}{}
	}

	stats, err := s.searcher.RebuildEmbeddings(ctx, search.RebuildOptions{
		Force:  getBoolDefault(args, "force", false),
		DryRun: getBoolDefault(args, "dry_run", false),
	})
	if err != nil {
		return nil, mapSearchError(err, correlationID)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"scanned":        stats.Scanned,
		"rebuilt":        stats.Rebuilt,
		"failed":         stats.Failed,
		"duration_ms":    stats.Duration.Milliseconds(),
		"correlation_id": correlationID,
	})), nil
}

// handleStatus handles the kb_status tool invocation
func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	correlationID := uuid.New().String()

	entries, err := s.storage.CountEntries(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to count entries", map[string]interface{}{
			"error": err.Error(),
		})
	}
	cached, err := s.storage.CountCachedEmbeddings(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to count cached embeddings", map[string]interface{}{
			"error": err.Error(),
		})
	}
	missing, err := s.storage.ListEntriesMissingEmbedding(ctx, search.MaxListLimit)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to scan embeddings", map[string]interface{}{
			"error": err.Error(),
		})
	}
	auditRecords, err := s.storage.ListAudit(ctx, recentAuditLimit)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to read audit log", map[string]interface{}{
			"error": err.Error(),
		})
	}

	recentAudit := make([]map[string]interface{}, len(auditRecords))
	for i, rec := range auditRecords {
		recentAudit[i] = map[string]interface{}{
			"operation":  string(rec.Operation),
			"created_at": rec.CreatedAt.Format(time.RFC3339),
		}
		if rec.EntryID != nil {
			recentAudit[i]["entry_id"] = rec.EntryID.String()
		}
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"server_version":     ServerVersion,
		"entries":            entries,
		"cached_embeddings":  cached,
		"missing_embeddings": len(missing),
		"recent_audit":       recentAudit,
		"storage": map[string]interface{}{
			"driver":           storage.DriverName,
			"build_mode":       storage.BuildMode,
			"vector_extension": storage.VectorExtensionAvailable,
		},
		"correlation_id": correlationID,
	})), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// mapSearchError converts search-layer sentinels to protocol errors
func mapSearchError(err error, correlationID string) error {
	data := map[string]interface{}{
		"error":          err.Error(),
		"correlation_id": correlationID,
	}
	switch {
	case errors.Is(err, search.ErrValidation):
		return newMCPError(ErrorCodeInvalidParams, "invalid parameters", data)
	case errors.Is(err, search.ErrNotFound):
		return newMCPError(ErrorCodeNotFound, "entry not found", data)
	default:
		return newMCPError(ErrorCodeInternalError, "operation failed", data)
	}
}

// warnSlow logs operations that exceed the slow-query threshold
func (s *Server) warnSlow(tool, correlationID string, elapsed time.Duration) {
	if s.slowQueryWarn > 0 && elapsed >= s.slowQueryWarn {
		log.Printf("WARN slow query tool=%s elapsed_ms=%d correlation_id=%s", tool, elapsed.Milliseconds(), correlationID)
	}
}

// requireEntryID extracts and parses a required UUID argument
func requireEntryID(args map[string]interface{}, key string) (uuid.UUID, error) {
	raw, ok := args[key].(string)
	if !ok || raw == "" {
		return uuid.Nil, newMCPError(ErrorCodeInvalidParams, key+" parameter is required", map[string]interface{}{
			"param":  key,
			"reason": "missing or empty",
		})
	}
	id, err := search.ParseEntryID(raw)
	if err != nil {
		return uuid.Nil, newMCPError(ErrorCodeInvalidParams, "malformed "+key, map[string]interface{}{
			"param": key,
			"value": raw,
		})
	}
	return id, nil
}

// parseFilters builds storage filters from tool arguments
func parseFilters(args map[string]interface{}) *storage.SearchFilters {
	role := getStringDefault(args, "role", "")
	entryType := getStringDefault(args, "entry_type", "")
	tags := getStringSlice(args, "tags")

	if role == "" && entryType == "" && len(tags) == 0 {
		return nil
	}
	return &storage.SearchFilters{
		Role:      types.Role(role),
		EntryType: types.EntryType(entryType),
		Tags:      tags,
	}
}

// entryJSON serializes an entry for tool responses, embedding excluded
func entryJSON(e *types.KnowledgeEntry) map[string]interface{} {
	out := map[string]interface{}{
		"id":         e.ID.String(),
		"content":    e.Content,
		"title":      e.Title,
		"role":       string(e.Role),
		"entry_type": string(e.EntryType),
		"tags":       e.Tags,
		"created_at": e.CreatedAt.Format(time.RFC3339),
		"updated_at": e.UpdatedAt.Format(time.RFC3339),
	}
	if e.ParentID != nil {
		out["parent_id"] = e.ParentID.String()
	}
	return out
}

// rankedJSON serializes a fused search result
func rankedJSON(r types.RankedEntry) map[string]interface{} {
	out := map[string]interface{}{
		"entry":       entryJSON(r.Entry),
		"fused_score": r.FusedScore,
	}
	if r.SemanticRank != nil {
		out["semantic_rank"] = *r.SemanticRank
	}
	if r.KeywordRank != nil {
		out["keyword_rank"] = *r.KeywordRank
	}
	return out
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts a string array parameter
func getStringSlice(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
