package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/siherrmann/securerag"
	"github.com/siherrmann/securerag/helper"
	"github.com/siherrmann/securerag/model"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startPostgresContainer starts a pgvector container whose data directory is mounted
// from ./data, so ingested documents survive between runs.
func startPostgresContainer() (func(ctx context.Context, opts ...testcontainers.TerminateOption) error, string, error) {
	ctx := context.Background()

	dataDir := "./data"
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, "", fmt.Errorf("failed to create data directory: %w", err)
	}
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get absolute path for data directory: %w", err)
	}

	// An initialized data directory logs the ready message once instead of twice
	waitOccurrences := 2
	if _, err := os.Stat(filepath.Join(absDataDir, "PG_VERSION")); err == nil {
		waitOccurrences = 1
		fmt.Printf("Using existing persistent database in: %s\n", absDataDir)
	} else {
		fmt.Printf("Creating new persistent database in: %s\n", absDataDir)
	}

	pgContainer, err := postgres.Run(
		ctx,
		"pgvector/pgvector:pg17",
		postgres.WithDatabase("database"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(waitOccurrences),
		),
		testcontainers.WithHostConfigModifier(func(hc *container.HostConfig) {
			hc.Mounts = append(hc.Mounts, mount.Mount{
				Type:   mount.TypeBind,
				Source: absDataDir,
				Target: "/var/lib/postgresql/data",
			})
		}),
	)
	if err != nil {
		return nil, "", fmt.Errorf("error starting postgres container: %w", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, "", fmt.Errorf("error getting connection string: %w", err)
	}
	u, err := url.Parse(connStr)
	if err != nil {
		return nil, "", fmt.Errorf("error parsing connection string: %v", err)
	}

	return pgContainer.Terminate, u.Port(), nil
}

func main() {
	dir := flag.String("dir", "", "directory with .txt, .md and .pdf files")
	owner := flag.String("owner", "alice@example.com", "identity the documents are ingested as")
	query := flag.String("query", "", "optional query to run after ingesting")
	skipExisting := flag.Bool("skip-existing", true, "skip files whose source key is already stored")
	flag.Parse()

	if *dir == "" {
		log.Fatal("usage: bulk -dir ./corpus [-query \"...\"]")
	}

	teardown, dbPort, err := startPostgresContainer()
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

	config, err := model.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

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

	principal, err := s.EnsureUser(ctx, *owner, *owner)
	if err != nil {
		log.Fatalf("Failed to create user: %v", err)
	}

	var files []string
	err = filepath.WalkDir(*dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".txt", ".md", ".pdf":
			if !d.IsDir() {
				files = append(files, path)
			}
		}
		return nil
	})
	if err != nil {
		log.Fatalf("Failed to walk %s: %v", *dir, err)
	}

	totalChunks, processed, skipped := 0, 0, 0
	for i, path := range files {
		sourceKey := model.UploadSourceKey(filepath.Base(path))
		if *skipExisting {
			if _, err := s.Documents.SelectDocumentBySourceKey(ctx, sourceKey); err == nil {
				fmt.Printf("Skipping %s (%d/%d) - already ingested\n", path, i+1, len(files))
				skipped++
				continue
			}
		}

		result, err := ingestPath(ctx, s, principal, path)
		if err != nil {
			log.Printf("Warning: failed to ingest %s: %v, skipping...", path, err)
			continue
		}

		fmt.Printf("  ✓ %s: %d chunks, redactions %v\n", path, result.ChunkCount, result.Redactions)
		totalChunks += result.ChunkCount
		processed++
	}

	fmt.Printf("\nIngested %d files (%d chunks), skipped %d, total %d\n", processed, totalChunks, skipped, len(files))

	if *query == "" {
		return
	}

	resp, err := s.Search(ctx, principal, model.SearchRequest{Query: *query, TopK: config.Retrieval.DefaultTopK})
	if err != nil {
		log.Fatalf("Search failed: %v", err)
	}
	fmt.Printf("\nSearching: %q (trace %s)\n", *query, resp.TraceID)
	fmt.Println(strings.Repeat("=", 20))
	for _, hit := range resp.Hits {
		fmt.Printf("\n[%d] Score: %.4f | %s\n", hit.Rank, hit.Score, hit.DocumentTitle)
		fmt.Printf("    %s\n", strings.ReplaceAll(hit.Snippet, "\n", "\n    "))
	}
}

// ingestPath ingests text files directly and extracts PDFs first.
func ingestPath(ctx context.Context, s *securerag.SecureRAG, principal model.Principal, path string) (*model.IngestResult, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return s.IngestFile(ctx, principal, data, "application/pdf", filepath.Base(path), "")
	}

	req, err := model.NewIngestRequestFromFile(path)
	if err != nil {
		return nil, err
	}
	return s.Ingest(ctx, principal, *req)
}
