package api

import (
	"context"

	"github.com/siherrmann/securerag/model"
)

// Service is the part of SecureRAG the HTTP surface calls.
type Service interface {
	EnsureUser(ctx context.Context, externalID string, displayName string) (model.Principal, error)
	Ingest(ctx context.Context, principal model.Principal, req model.IngestRequest) (*model.IngestResult, error)
	IngestFile(ctx context.Context, principal model.Principal, data []byte, contentType string, filename string, title string) (*model.IngestResult, error)
	Search(ctx context.Context, principal model.Principal, req model.SearchRequest) (*model.SearchResponse, error)
	Leaderboard(ctx context.Context, limit int) (*model.Leaderboard, error)
	SecurityStats(ctx context.Context) (*model.SecurityStats, error)
	SecurityRuns(ctx context.Context, limit int) ([]*model.PIIEvalRun, error)
	ModelName() string
	Ping(ctx context.Context) error
}
