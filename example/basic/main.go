package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/siherrmann/securerag"
	"github.com/siherrmann/securerag/helper"
	"github.com/siherrmann/securerag/model"
)

const sampleContent = `Contact John Doe at john@doe.com or 555-000-1111 regarding the merger agreement.

The merger agreement must be signed by both boards before the end of the quarter.
Questions about the timeline go to the legal team, not to the press office.`

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "database",
		Username: "user",
		Password: "password",
		Schema:   "public",
		SSLMode:  "disable",
	}

	// The offline embedder needs no model download, results are lexical only
	config := model.DefaultConfig()
	config.Embedding.Provider = model.EmbeddingProviderOffline

	ctx := context.Background()
	logger := helper.NewLogger(os.Stdout, slog.LevelInfo)
	s, err := securerag.Open(ctx, dbConfig, config, logger)
	if err != nil {
		log.Fatalf("Failed to open securerag: %v", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Close(closeCtx)
	}()

	alice, err := s.EnsureUser(ctx, "alice@example.com", "Alice")
	if err != nil {
		log.Fatalf("Failed to create user: %v", err)
	}
	bob, err := s.EnsureUser(ctx, "bob@example.com", "Bob")
	if err != nil {
		log.Fatalf("Failed to create user: %v", err)
	}

	fmt.Println("Ingesting document as alice...")
	result, err := s.Ingest(ctx, alice, model.IngestRequest{
		Title:     "Policy A",
		Text:      sampleContent,
		SourceKey: "example/policy-a",
	})
	if err != nil {
		log.Fatalf("Failed to ingest: %v", err)
	}
	fmt.Printf("Document %s %s with %d chunks, redactions: %v\n", result.DocumentID, result.Status, result.ChunkCount, result.Redactions)

	query := model.SearchRequest{Query: "merger agreement", TopK: 3}
	printSearch(ctx, s, "alice", alice, query)
	printSearch(ctx, s, "bob (no grant)", bob, query)

	if err := s.Grant(ctx, result.DocumentID, bob.UserID, model.RoleReader); err != nil {
		log.Fatalf("Failed to grant: %v", err)
	}
	printSearch(ctx, s, "bob (reader)", bob, query)

	fmt.Println("\nBasic example completed successfully!")
}

func printSearch(ctx context.Context, s *securerag.SecureRAG, name string, principal model.Principal, req model.SearchRequest) {
	resp, err := s.Search(ctx, principal, req)
	if err != nil {
		log.Fatalf("Failed to search: %v", err)
	}

	fmt.Printf("\nSearch as %s: %d hits (trace %s)\n", name, len(resp.Hits), resp.TraceID)
	for _, hit := range resp.Hits {
		fmt.Printf("  %d. [%.4f] %s: %s\n", hit.Rank, hit.Score, hit.DocumentTitle, hit.Snippet)
	}
}
