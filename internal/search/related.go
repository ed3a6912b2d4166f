package search

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/avaine/kbcontext-mcp/internal/storage"
	"github.com/avaine/kbcontext-mcp/pkg/types"
)

// Related-entry limits
const (
	DefaultRelatedLimit = 5
	MaxRelatedLimit     = 20
)

// GetRelated resolves entries connected to the given entry through the
// relationship graph: its parent, its children, its siblings (same
// parent), and entries sharing at least one tag. An entry reachable
// through more than one rule keeps only its strongest relation
// (parent > child > sibling > tag overlap). The source entry itself is
// never included.
func (s *Searcher) GetRelated(ctx context.Context, entryID uuid.UUID, limit int) ([]types.RelatedEntry, error) {
	if limit <= 0 {
		limit = DefaultRelatedLimit
	}
	if limit > MaxRelatedLimit {
		limit = MaxRelatedLimit
	}

	source, err := s.storage.GetEntry(ctx, entryID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, entryID)
		}
		return nil, fmt.Errorf("%w: load source entry: %v", ErrDB, err)
	}

	// Collect candidates keyed by ID, keeping the strongest relation.
	related := make(map[uuid.UUID]types.RelatedEntry)
	add := func(entry *types.KnowledgeEntry, rel types.Relationship, overlap int) {
		if entry == nil || entry.ID == source.ID {
			return
		}
		if existing, ok := related[entry.ID]; ok && existing.Relationship.Priority() <= rel.Priority() {
			return
		}
		related[entry.ID] = types.RelatedEntry{
			Entry:        entry,
			Relationship: rel,
			OverlapScore: overlap,
		}
	}

	if source.ParentID != nil {
		parent, err := s.storage.GetEntry(ctx, *source.ParentID)
		if err == nil {
			add(parent, types.RelationParent, 0)
		} else if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: load parent: %v", ErrDB, err)
		}
		// A dangling parent reference is fine: parent deletion does
		// not cascade.
	}

	children, err := s.storage.ListEntriesByParent(ctx, source.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: load children: %v", ErrDB, err)
	}
	for _, child := range children {
		add(child, types.RelationChild, 0)
	}

	if source.ParentID != nil {
		siblings, err := s.storage.ListEntriesByParent(ctx, *source.ParentID)
		if err != nil {
			return nil, fmt.Errorf("%w: load siblings: %v", ErrDB, err)
		}
		for _, sib := range siblings {
			add(sib, types.RelationSibling, 0)
		}
	}

	if len(source.Tags) > 0 {
		overlapping, err := s.FindByTagOverlap(ctx, source, limit+len(related))
		if err != nil {
			return nil, err
		}
		for _, re := range overlapping {
			add(re.Entry, types.RelationTagOverlap, re.OverlapScore)
		}
	}

	results := make([]types.RelatedEntry, 0, len(related))
	for _, re := range related {
		results = append(results, re)
	}
	sortRelated(results)

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// FindByTagOverlap returns entries sharing at least one tag with the
// source, scored by shared-tag count descending with ID tie-breaks.
func (s *Searcher) FindByTagOverlap(ctx context.Context, source *types.KnowledgeEntry, limit int) ([]types.RelatedEntry, error) {
	if len(source.Tags) == 0 {
		return nil, nil
	}

	candidates, err := s.storage.ListEntries(ctx, storage.ListOptions{
		Tags:  source.Tags,
		Limit: limit * candidateMultiplier,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: tag overlap candidates: %v", ErrDB, err)
	}

	results := make([]types.RelatedEntry, 0, len(candidates))
	for _, entry := range candidates {
		if entry.ID == source.ID {
			continue
		}
		overlap := source.SharedTags(entry)
		if overlap < 1 {
			continue
		}
		results = append(results, types.RelatedEntry{
			Entry:        entry,
			Relationship: types.RelationTagOverlap,
			OverlapScore: overlap,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].OverlapScore != results[j].OverlapScore {
			return results[i].OverlapScore > results[j].OverlapScore
		}
		return results[i].Entry.ID.String() < results[j].Entry.ID.String()
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// sortRelated orders by relation strength, then overlap score, then ID
func sortRelated(results []types.RelatedEntry) {
	sort.Slice(results, func(i, j int) bool {
		pi, pj := results[i].Relationship.Priority(), results[j].Relationship.Priority()
		if pi != pj {
			return pi < pj
		}
		if results[i].OverlapScore != results[j].OverlapScore {
			return results[i].OverlapScore > results[j].OverlapScore
		}
		return results[i].Entry.ID.String() < results[j].Entry.ID.String()
	})
}
