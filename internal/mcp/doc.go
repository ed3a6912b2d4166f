// Package mcp wires the knowledge-base engine to the Model Context
// Protocol over stdio.
//
// Nine tools are exposed:
//
//   - kb_search: hybrid semantic + keyword retrieval
//   - kb_get_related: relationship-graph traversal around an entry
//   - kb_get, kb_add, kb_update, kb_delete, kb_list: entry CRUD
//   - kb_rebuild_embeddings: backfills missing vectors
//   - kb_status: store statistics, recent audit activity, build-mode health
//
// Handlers translate the search layer's error sentinels to JSON-RPC
// codes: validation failures map to -32602, missing entries to -32001,
// everything else to -32603. Every response carries a correlation_id
// that is also attached to slow-query warnings, so a log line can be
// tied back to the call that produced it.
//
// Timeouts are environment-driven (KB_SEARCH_TIMEOUT_MS,
// KB_GET_RELATED_TIMEOUT_MS, KB_EMBEDDING_TIMEOUT_MS) with the
// slow-query threshold in LOG_SLOW_QUERIES_MS.
package mcp
