package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/siherrmann/securerag"
	"github.com/siherrmann/securerag/api"
	"github.com/siherrmann/securerag/helper"
	"github.com/siherrmann/securerag/model"
)

var _ api.Service = (*securerag.SecureRAG)(nil)

func main() {
	reindex := flag.Bool("reindex", false, "rebuild the vector index with retrieval.index_type before serving")
	flag.Parse()

	_ = godotenv.Load()

	config, err := model.LoadConfig()
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	logger := helper.NewLogger(os.Stdout, parseLevel(config.Server.LogLevel))

	dbConfig, err := helper.NewDatabaseConfiguration()
	if err != nil {
		log.Fatalf("load database configuration failed: %v", err)
	}

	ctx := context.Background()
	s, err := securerag.Open(ctx, dbConfig, config, logger)
	if err != nil {
		log.Fatalf("bootstrap failed: %v", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Close(closeCtx); err != nil {
			logger.Error("Close resources failed", slog.String("error", err.Error()))
		}
	}()

	if *reindex {
		if err := s.Embeddings.ChangeIndexType(ctx, config.Retrieval.IndexType, nil); err != nil {
			logger.Error("Rebuilding vector index failed", slog.String("error", err.Error()))
			return
		}
		logger.Info("Rebuilt vector index", slog.String("type", config.Retrieval.IndexType))
	}

	router := api.NewRouter(s, logger, config.Server.GinMode, config.Server.MaxUploadSize)
	server := &http.Server{
		Addr:              config.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	waitForShutdown(server, logger)
}

func waitForShutdown(server *http.Server, logger *slog.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", slog.String("error", err.Error()))
	}
}

func parseLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo
	}
	return level
}
