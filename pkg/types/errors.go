package types

import "errors"

// Domain errors for type validation
var (
	ErrInvalidEntryID   = errors.New("invalid entry ID")
	ErrInvalidRole      = errors.New("invalid role")
	ErrInvalidEntryType = errors.New("invalid entry type")
	ErrEmptyContent     = errors.New("content cannot be empty")
	ErrMissingEntry     = errors.New("entry is required")
	ErrMissingRank      = errors.New("at least one source rank is required")
	ErrInvalidRank      = errors.New("rank must be >= 1")
	ErrInvalidScore     = errors.New("fused score must be >= 0")
)
