package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/siherrmann/securerag/core/evaluation"
	"github.com/siherrmann/securerag/core/pipeline"
	"github.com/siherrmann/securerag/database"
	"github.com/siherrmann/securerag/helper"
	"github.com/siherrmann/securerag/model"
	loadSql "github.com/siherrmann/securerag/sql"
)

// evalpii measures the configured redactor on seeded synthetic samples and stores the run.
func main() {
	samples := flag.Int("samples", envInt("PII_EVAL_SAMPLES", evaluation.DefaultSampleCount), "number of generated samples")
	seed := flag.Uint64("seed", evaluation.DefaultSeed, "generator seed")
	notes := flag.String("notes", "synthetic PII eval", "notes stored with the run")
	dryRun := flag.Bool("dry-run", false, "print the metrics without storing the run")
	flag.Parse()

	_ = godotenv.Load()

	config, err := model.LoadConfig()
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	logger := helper.NewLogger(os.Stderr, slog.LevelInfo)

	recognizer, closeRecognizer, err := pipeline.NewRecognizerFromConfig(config, logger)
	if err != nil {
		log.Fatalf("create recognizer failed: %v", err)
	}
	defer closeRecognizer()

	var runs evaluation.RunWriter
	if !*dryRun {
		dbConfig, err := helper.NewDatabaseConfiguration()
		if err != nil {
			log.Fatalf("load database configuration failed: %v", err)
		}
		db, err := helper.NewDatabase("evalpii", dbConfig, logger)
		if err != nil {
			log.Fatalf("open database failed: %v", err)
		}
		defer db.Close()

		if err := loadSql.Init(db.Instance); err != nil {
			log.Fatalf("initialize database failed: %v", err)
		}
		pii, err := database.NewPIIDBHandler(db, false)
		if err != nil {
			log.Fatalf("create pii handler failed: %v", err)
		}
		runs = pii
	}

	entities := config.Pipeline.Entities
	generated := evaluation.NewPIIGenerator(*seed, entities).Samples(*samples)
	evaluator := evaluation.NewPIIEvaluator(
		pipeline.NewRedactor(recognizer),
		entities,
		runs,
		logger,
		evaluation.WithNotes(*notes),
		evaluation.WithSeed(*seed),
	)

	run, err := evaluator.Run(context.Background(), generated)
	if err != nil {
		log.Fatalf("evaluation failed: %v", err)
	}

	fmt.Printf("%-16s %5s %5s %5s %9s %7s %6s\n", "entity", "tp", "fp", "fn", "precision", "recall", "f1")
	for _, m := range run.Entities {
		fmt.Printf("%-16s %5d %5d %5d %9.3f %7.3f %6.3f\n", m.EntityType, m.TP, m.FP, m.FN, m.Precision, m.Recall, m.F1)
	}
	fmt.Printf("%-16s %5d %5d %5d %9.3f %7.3f %6.3f\n", "overall", run.Overall.TP, run.Overall.FP, run.Overall.FN, run.Overall.Precision, run.Overall.Recall, run.Overall.F1)
}

func envInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return fallback
}
