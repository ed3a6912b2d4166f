package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// kbSearchTool returns the tool definition for kb_search
func kbSearchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "kb_search",
		Description: "Search the knowledge base with hybrid semantic + keyword retrieval",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-50)",
					"default":     10,
					"minimum":     1,
					"maximum":     50,
				},
				"role": map[string]interface{}{
					"type":        "string",
					"description": "Restrict to entries for this role (entries with role 'all' always match)",
					"enum":        []string{"pm", "dev", "qa", "all"},
				},
				"entry_type": map[string]interface{}{
					"type":        "string",
					"description": "Restrict to one entry type",
					"enum":        []string{"note", "decision", "constraint", "runbook", "lesson"},
				},
				"tags": map[string]interface{}{
					"type":        "array",
					"description": "Restrict to entries carrying any of these tags",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
			},
			Required: []string{"query"},
		},
	}
}

// kbGetRelatedTool returns the tool definition for kb_get_related
func kbGetRelatedTool() mcp.Tool {
	return mcp.Tool{
		Name:        "kb_get_related",
		Description: "Find entries related to a given entry through parent/child/sibling links and tag overlap",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"entry_id": map[string]interface{}{
					"type":        "string",
					"description": "UUID of the source entry",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of related entries (1-20)",
					"default":     5,
					"minimum":     1,
					"maximum":     20,
				},
			},
			Required: []string{"entry_id"},
		},
	}
}

// kbGetTool returns the tool definition for kb_get
func kbGetTool() mcp.Tool {
	return mcp.Tool{
		Name:        "kb_get",
		Description: "Fetch a single knowledge entry by ID",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id": map[string]interface{}{
					"type":        "string",
					"description": "UUID of the entry",
				},
			},
			Required: []string{"id"},
		},
	}
}

// kbDeleteTool returns the tool definition for kb_delete
func kbDeleteTool() mcp.Tool {
	return mcp.Tool{
		Name:        "kb_delete",
		Description: "Delete a knowledge entry by ID (idempotent; deleting a missing entry succeeds)",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id": map[string]interface{}{
					"type":        "string",
					"description": "UUID of the entry",
				},
			},
			Required: []string{"id"},
		},
	}
}

// kbAddTool returns the tool definition for kb_add
func kbAddTool() mcp.Tool {
	return mcp.Tool{
		Name:        "kb_add",
		Description: "Add a knowledge entry; the embedding is generated automatically when a provider is configured",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"content": map[string]interface{}{
					"type":        "string",
					"description": "Entry body",
				},
				"title": map[string]interface{}{
					"type":        "string",
					"description": "Optional title, boosted in keyword search",
				},
				"role": map[string]interface{}{
					"type":        "string",
					"description": "Audience for this entry",
					"enum":        []string{"pm", "dev", "qa", "all"},
					"default":     "all",
				},
				"entry_type": map[string]interface{}{
					"type":        "string",
					"description": "Kind of knowledge",
					"enum":        []string{"note", "decision", "constraint", "runbook", "lesson"},
					"default":     "note",
				},
				"tags": map[string]interface{}{
					"type":        "array",
					"description": "Free-form tags used for relatedness",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"parent_id": map[string]interface{}{
					"type":        "string",
					"description": "Optional UUID of a parent entry",
				},
			},
			Required: []string{"content"},
		},
	}
}

// kbUpdateTool returns the tool definition for kb_update
func kbUpdateTool() mcp.Tool {
	return mcp.Tool{
		Name:        "kb_update",
		Description: "Update fields of an existing entry; the embedding is regenerated when content or title change",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id": map[string]interface{}{
					"type":        "string",
					"description": "UUID of the entry to update",
				},
				"content": map[string]interface{}{
					"type":        "string",
					"description": "Replacement entry body",
				},
				"title": map[string]interface{}{
					"type":        "string",
					"description": "Replacement title",
				},
				"role": map[string]interface{}{
					"type":        "string",
					"description": "Replacement audience",
					"enum":        []string{"pm", "dev", "qa", "all"},
				},
				"entry_type": map[string]interface{}{
					"type":        "string",
					"description": "Replacement kind of knowledge",
					"enum":        []string{"note", "decision", "constraint", "runbook", "lesson"},
				},
				"tags": map[string]interface{}{
					"type":        "array",
					"description": "Replacement tag set",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"parent_id": map[string]interface{}{
					"type":        "string",
					"description": "UUID of the new parent entry",
				},
			},
			Required: []string{"id"},
		},
	}
}

// kbListTool returns the tool definition for kb_list
func kbListTool() mcp.Tool {
	return mcp.Tool{
		Name:        "kb_list",
		Description: "List knowledge entries, newest first, with optional filters",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"role": map[string]interface{}{
					"type": "string",
					"enum": []string{"pm", "dev", "qa", "all"},
				},
				"entry_type": map[string]interface{}{
					"type": "string",
					"enum": []string{"note", "decision", "constraint", "runbook", "lesson"},
				},
				"tags": map[string]interface{}{
					"type": "array",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of entries (1-1000)",
					"default":     100,
					"minimum":     1,
					"maximum":     1000,
				},
				"offset": map[string]interface{}{
					"type":        "integer",
					"description": "Number of entries to skip",
					"default":     0,
					"minimum":     0,
				},
			},
		},
	}
}

// kbRebuildEmbeddingsTool returns the tool definition for kb_rebuild_embeddings
func kbRebuildEmbeddingsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "kb_rebuild_embeddings",
		Description: "Backfill embeddings for entries stored without one",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"force": map[string]interface{}{
					"type":        "boolean",
					"description": "Re-embed every entry, not just those missing a vector",
					"default":     false,
				},
				"dry_run": map[string]interface{}{
					"type":        "boolean",
					"description": "Report what would be rebuilt without writing",
					"default":     false,
				},
			},
		},
	}
}

// kbStatusTool returns the tool definition for kb_status
func kbStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "kb_status",
		Description: "Report knowledge base statistics and embedding provider health",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
