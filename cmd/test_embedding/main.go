// Standalone diagnostic for the embedding pipeline: exercises the
// configured provider (or the local fallback) against in-memory
// storage and reports whether vectors survive a store/search round
// trip. Useful when wiring up API keys.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/avaine/kbcontext-mcp/internal/embedder"
	"github.com/avaine/kbcontext-mcp/internal/search"
	"github.com/avaine/kbcontext-mcp/internal/storage"
	"github.com/avaine/kbcontext-mcp/pkg/types"
)

func main() {
	fmt.Println("Testing embedding integration...")

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		log.Fatalf("Failed to create storage: %v", err)
	}
	defer store.Close()

	emb, err := embedder.NewFromEnv(store)
	if err != nil {
		log.Fatalf("Failed to create embedder: %v", err)
	}
	defer emb.Close()

	fmt.Printf("Provider: %s, Model: %s, Dimension: %d\n", emb.Provider(), emb.Model(), emb.Dimension())

	searcher := search.NewSearcher(store, emb)
	ctx := context.Background()

	// Store a few entries through the normal add path.
	seed := []search.AddRequest{
		{
			Title:     "Deploy rollback",
			Content:   "Rollback by redeploying the previous image tag and reverting migrations.",
			Role:      types.RoleDev,
			EntryType: types.EntryRunbook,
			Tags:      []string{"deploy"},
		},
		{
			Title:     "Retro lesson",
			Content:   "Feature flags must be removed within two sprints of full rollout.",
			Role:      types.RoleAll,
			EntryType: types.EntryLesson,
			Tags:      []string{"flags"},
		},
	}

	stored := 0
	embedded := 0
	for _, req := range seed {
		entry, err := searcher.Add(ctx, req)
		if err != nil {
			log.Fatalf("Failed to add entry: %v", err)
		}
		stored++
		if len(entry.Embedding) > 0 {
			embedded++
		}
	}

	fmt.Printf("\nWrite path:\n")
	fmt.Printf("  Entries stored: %d\n", stored)
	fmt.Printf("  Embeddings generated: %d\n", embedded)

	// Search must round-trip; with a healthy provider it is hybrid,
	// otherwise keyword-only.
	resp, err := searcher.Search(ctx, search.SearchRequest{Query: "rollback deploy"})
	if err != nil {
		log.Fatalf("Search failed: %v", err)
	}

	fmt.Printf("\nSearch path:\n")
	fmt.Printf("  Results: %d\n", resp.Metadata.Total)
	fmt.Printf("  Semantic available: %v\n", resp.Metadata.SemanticAvailable)
	fmt.Printf("  Semantic candidates: %d\n", resp.Metadata.SemanticCount)
	fmt.Printf("  Keyword candidates: %d\n", resp.Metadata.KeywordCount)

	cached, err := store.CountCachedEmbeddings(ctx)
	if err != nil {
		log.Fatalf("Failed to count cached embeddings: %v", err)
	}
	fmt.Printf("  Persistent cache rows: %d\n", cached)

	if embedded == stored && resp.Metadata.SemanticAvailable && resp.Metadata.Total > 0 {
		fmt.Println("\n✓ SUCCESS: Embeddings generated, stored, and searchable!")
	} else if resp.Metadata.Total > 0 {
		fmt.Println("\n⚠ DEGRADED: Search works but semantic retrieval is unavailable.")
	} else {
		fmt.Println("\n✗ FAILURE: No results returned!")
		os.Exit(1)
	}
}
