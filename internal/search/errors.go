package search

import "errors"

// Error taxonomy for search operations. Handlers map these to protocol
// error codes; everything else is an internal error.
var (
	// ErrValidation indicates malformed input: empty query, bad UUID,
	// unknown role or entry type, out-of-range limit.
	ErrValidation = errors.New("validation error")

	// ErrNotFound indicates a referenced entry does not exist.
	ErrNotFound = errors.New("entry not found")

	// ErrEmbeddingUnavailable indicates no query vector could be produced.
	// Search absorbs this into keyword-only fallback; it only surfaces
	// from operations that require a vector.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrStore indicates a search source failure. One source failing is
	// absorbed; ErrStore propagates only when both sources fail.
	ErrStore = errors.New("storage error")

	// ErrDB indicates a CRUD-path database failure. Surfaced directly,
	// never retried here.
	ErrDB = errors.New("database error")
)
