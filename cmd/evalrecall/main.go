package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/siherrmann/securerag"
	"github.com/siherrmann/securerag/client"
	"github.com/siherrmann/securerag/core/evaluation"
	"github.com/siherrmann/securerag/database"
	"github.com/siherrmann/securerag/helper"
	"github.com/siherrmann/securerag/model"
	loadSql "github.com/siherrmann/securerag/sql"
)

// evalrecall replays a gold file and stores recall@k per query.
// With -api the queries go through a running server, otherwise through an in-process instance.
func main() {
	goldPath := flag.String("gold", "", "path to a JSON array of gold items")
	apiURL := flag.String("api", os.Getenv("API_URL"), "base URL of a running server; empty evaluates in process")
	user := flag.String("user", "alice@example.com", "identity the queries run as")
	concurrency := flag.Int("concurrency", 1, "number of queries replayed at once")
	flag.Parse()

	if *goldPath == "" {
		log.Fatal("usage: evalrecall -gold gold.json [-api http://localhost:8080] [-user alice@example.com]")
	}

	_ = godotenv.Load()

	config, err := model.LoadConfig()
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	logger := helper.NewLogger(os.Stderr, slog.LevelInfo)

	items, err := evaluation.LoadGoldFile(*goldPath)
	if err != nil {
		log.Fatalf("load gold file failed: %v", err)
	}

	dbConfig, err := helper.NewDatabaseConfiguration()
	if err != nil {
		log.Fatalf("load database configuration failed: %v", err)
	}

	ctx := context.Background()
	var evaluator *evaluation.RecallEvaluator
	var principal model.Principal

	if *apiURL != "" {
		db, err := helper.NewDatabase("evalrecall", dbConfig, logger)
		if err != nil {
			log.Fatalf("open database failed: %v", err)
		}
		defer db.Close()

		evaluator, err = newRemoteEvaluator(db, client.NewClient(*apiURL, nil), logger)
		if err != nil {
			log.Fatalf("create evaluator failed: %v", err)
		}
		evaluator.DefaultTopK = config.Retrieval.DefaultTopK
		principal = model.Principal{ExternalID: *user}
	} else {
		s, err := securerag.Open(ctx, dbConfig, config, logger)
		if err != nil {
			log.Fatalf("bootstrap failed: %v", err)
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = s.Close(closeCtx)
		}()

		evaluator = s.RecallEvaluator(nil)
		principal, err = s.EnsureUser(ctx, *user, *user)
		if err != nil {
			log.Fatalf("ensure user failed: %v", err)
		}
	}
	evaluator.Concurrency = *concurrency

	report, err := evaluator.Run(ctx, principal, items)
	if err != nil {
		log.Fatalf("evaluation failed: %v", err)
	}

	fmt.Printf("Recall@K: %.2f\n", report.AvgRecall)
	for _, eval := range report.Evals {
		fmt.Printf("%-40s %.1f\n", eval.Query, eval.RecallAtK)
	}
}

func newRemoteEvaluator(db *helper.Database, searcher evaluation.Searcher, logger *slog.Logger) (*evaluation.RecallEvaluator, error) {
	if err := loadSql.Init(db.Instance); err != nil {
		return nil, err
	}
	chunks, err := database.NewChunksDBHandler(db, false)
	if err != nil {
		return nil, err
	}
	evals, err := database.NewEvalsDBHandler(db, false)
	if err != nil {
		return nil, err
	}
	return evaluation.NewRecallEvaluator(searcher, chunks, evals, logger), nil
}
