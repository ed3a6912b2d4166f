package search

import (
	"context"
	"errors"
	"testing"

	"github.com/avaine/kbcontext-mcp/internal/embedder"
	"github.com/avaine/kbcontext-mcp/pkg/types"
)

func TestRebuildEmbeddings(t *testing.T) {
	s, store, _ := setupTestSearcher(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		seedEntry(t, store, &types.KnowledgeEntry{Content: "missing vector"})
	}
	seedEntry(t, store, &types.KnowledgeEntry{
		Content:   "already embedded",
		Embedding: []float32{1, 0, 0},
	})

	stats, err := s.RebuildEmbeddings(ctx, RebuildOptions{})
	if err != nil {
		t.Fatalf("RebuildEmbeddings() error = %v", err)
	}
	if stats.Scanned != 5 {
		t.Errorf("scanned = %d, want 5", stats.Scanned)
	}
	if stats.Rebuilt != 5 {
		t.Errorf("rebuilt = %d, want 5", stats.Rebuilt)
	}
	if stats.Failed != 0 {
		t.Errorf("failed = %d, want 0", stats.Failed)
	}

	missing, err := store.ListEntriesMissingEmbedding(ctx, 10)
	if err != nil {
		t.Fatalf("ListEntriesMissingEmbedding() error = %v", err)
	}
	if len(missing) != 0 {
		t.Errorf("expected no entries left without embeddings, got %d", len(missing))
	}
}

func TestRebuildDryRun(t *testing.T) {
	s, store, _ := setupTestSearcher(t)
	ctx := context.Background()

	seedEntry(t, store, &types.KnowledgeEntry{Content: "missing vector"})

	stats, err := s.RebuildEmbeddings(ctx, RebuildOptions{DryRun: true})
	if err != nil {
		t.Fatalf("RebuildEmbeddings() error = %v", err)
	}
	if stats.Scanned != 1 || stats.Rebuilt != 0 {
		t.Errorf("dry run stats = %+v, want scanned 1 rebuilt 0", stats)
	}

	missing, err := store.ListEntriesMissingEmbedding(ctx, 10)
	if err != nil {
		t.Fatalf("ListEntriesMissingEmbedding() error = %v", err)
	}
	if len(missing) != 1 {
		t.Error("dry run must not write embeddings")
	}
}

func TestRebuildCountsFailures(t *testing.T) {
	s, store, embed := setupTestSearcher(t)
	ctx := context.Background()

	seedEntry(t, store, &types.KnowledgeEntry{Content: "will fail"})
	seedEntry(t, store, &types.KnowledgeEntry{Content: "will succeed"})

	embed.generateFunc = func(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
		if req.Text == "will fail" {
			return nil, errors.New("provider hiccup")
		}
		return &embedder.Embedding{Vector: []float32{1, 0, 0}, Dimension: 3, Provider: "mock", Model: "mock-model"}, nil
	}

	stats, err := s.RebuildEmbeddings(ctx, RebuildOptions{})
	if err != nil {
		t.Fatalf("RebuildEmbeddings() error = %v", err)
	}
	if stats.Rebuilt != 1 || stats.Failed != 1 {
		t.Errorf("stats = %+v, want rebuilt 1 failed 1", stats)
	}
}

func TestRebuildNoEmbedder(t *testing.T) {
	s, _, _ := setupTestSearcher(t)
	s.embedder = nil

	_, err := s.RebuildEmbeddings(context.Background(), RebuildOptions{})
	if !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Errorf("expected ErrEmbeddingUnavailable, got %v", err)
	}
}
