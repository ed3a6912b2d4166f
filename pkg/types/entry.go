package types

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role restricts which audience a knowledge entry applies to
type Role string

const (
	RolePM  Role = "pm"
	RoleDev Role = "dev"
	RoleQA  Role = "qa"
	RoleAll Role = "all"
)

// EntryType classifies the kind of knowledge an entry holds
type EntryType string

const (
	EntryNote       EntryType = "note"
	EntryDecision   EntryType = "decision"
	EntryConstraint EntryType = "constraint"
	EntryRunbook    EntryType = "runbook"
	EntryLesson     EntryType = "lesson"
)

// KnowledgeEntry is the unit of retrieval
type KnowledgeEntry struct {
	// Identification
	ID uuid.UUID

	// Content
	Content string
	Title   string // Secondary match field, boosted in keyword search

	// Classification
	Role      Role
	EntryType EntryType
	Tags      []string

	// Relationships
	ParentID *uuid.UUID // Weak reference; deleting a parent does not cascade

	// Embedding vector, nil until computed
	Embedding []float32

	// Timestamps, mutated by CRUD accessors only
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateRole checks if the role is one of the known values
func (e *KnowledgeEntry) ValidateRole() error {
	switch e.Role {
	case RolePM, RoleDev, RoleQA, RoleAll:
		return nil
	default:
		return ErrInvalidRole
	}
}

// ValidateEntryType checks if the entry type is one of the known values
func (e *KnowledgeEntry) ValidateEntryType() error {
	switch e.EntryType {
	case EntryNote, EntryDecision, EntryConstraint, EntryRunbook, EntryLesson:
		return nil
	default:
		return ErrInvalidEntryType
	}
}

// Validate performs comprehensive validation of the entry
func (e *KnowledgeEntry) Validate() error {
	if e.ID == uuid.Nil {
		return ErrInvalidEntryID
	}
	if strings.TrimSpace(e.Content) == "" {
		return ErrEmptyContent
	}
	if err := e.ValidateRole(); err != nil {
		return err
	}
	return e.ValidateEntryType()
}

// HasTag reports whether the entry carries the given tag
func (e *KnowledgeEntry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// SharedTags returns the number of tags the entry shares with other
func (e *KnowledgeEntry) SharedTags(other *KnowledgeEntry) int {
	if other == nil {
		return 0
	}
	count := 0
	for _, t := range e.Tags {
		if other.HasTag(t) {
			count++
		}
	}
	return count
}
