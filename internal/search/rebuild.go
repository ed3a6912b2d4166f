package search

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/avaine/kbcontext-mcp/internal/embedder"
	"github.com/avaine/kbcontext-mcp/internal/storage"
	"github.com/avaine/kbcontext-mcp/pkg/types"
)

// Rebuild defaults
const (
	DefaultRebuildBatchSize = 20
	rebuildConcurrency      = 4
)

// RebuildOptions controls an embedding rebuild pass
type RebuildOptions struct {
	// Force re-embeds every entry, not just those missing a vector
	Force bool
	// BatchSize is the number of entries per worker batch
	BatchSize int
	// DryRun reports what would be rebuilt without writing
	DryRun bool
}

// RebuildStats reports the outcome of a rebuild pass
type RebuildStats struct {
	Scanned  int
	Rebuilt  int
	Failed   int
	Duration time.Duration
}

// RebuildEmbeddings backfills vectors for entries stored without one
// (or all entries with Force). Entries are processed in concurrent
// batches; a single entry failing to embed is counted and skipped, not
// fatal.
func (s *Searcher) RebuildEmbeddings(ctx context.Context, opts RebuildOptions) (*RebuildStats, error) {
	startTime := time.Now()

	if s.embedder == nil {
		return nil, ErrEmbeddingUnavailable
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultRebuildBatchSize
	}

	entries, err := s.collectRebuildTargets(ctx, opts.Force)
	if err != nil {
		return nil, err
	}

	stats := &RebuildStats{Scanned: len(entries)}
	if opts.DryRun || len(entries) == 0 {
		stats.Duration = time.Since(startTime)
		return stats, nil
	}

	var rebuilt, failed int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rebuildConcurrency)

	for i := 0; i < len(entries); i += opts.BatchSize {
		end := i + opts.BatchSize
		if end > len(entries) {
			end = len(entries)
		}
		batch := entries[i:end]

		g.Go(func() error {
			return s.rebuildBatch(gctx, batch, &rebuilt, &failed)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats.Rebuilt = int(rebuilt)
	stats.Failed = int(failed)
	stats.Duration = time.Since(startTime)

	if stats.Rebuilt > 0 {
		s.InvalidateCache()
	}
	return stats, nil
}

func (s *Searcher) collectRebuildTargets(ctx context.Context, force bool) ([]*types.KnowledgeEntry, error) {
	if force {
		entries, err := s.storage.ListEntries(ctx, storage.ListOptions{Limit: MaxListLimit})
		if err != nil {
			return nil, fmt.Errorf("%w: list entries for rebuild: %v", ErrDB, err)
		}
		return entries, nil
	}

	entries, err := s.storage.ListEntriesMissingEmbedding(ctx, MaxListLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: list entries missing embedding: %v", ErrDB, err)
	}
	return entries, nil
}

func (s *Searcher) rebuildBatch(ctx context.Context, batch []*types.KnowledgeEntry, rebuilt, failed *int32) error {
	for _, entry := range batch {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		text := entry.Content
		if entry.Title != "" {
			text = entry.Title + "\n" + entry.Content
		}

		emb, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: text})
		if err != nil {
			log.Printf("WARN rebuild embedding failed (id=%s): %v", entry.ID, err)
			atomic.AddInt32(failed, 1)
			continue
		}

		entry.Embedding = emb.Vector
		entry.UpdatedAt = time.Now().UTC()
		if err := s.storage.UpsertEntry(ctx, entry); err != nil {
			log.Printf("WARN rebuild upsert failed (id=%s): %v", entry.ID, err)
			atomic.AddInt32(failed, 1)
			continue
		}
		atomic.AddInt32(rebuilt, 1)
	}
	return nil
}
