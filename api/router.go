package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
)

// NewRouter wires all routes. Everything except healthz and the read-only
// evaluation views requires an identity.
func NewRouter(service Service, logger *slog.Logger, ginMode string, maxUploadSize int64) *gin.Engine {
	if ginMode != "" {
		gin.SetMode(ginMode)
	}
	router := gin.New()
	router.Use(RequestLogger(logger), gin.Recovery())
	if maxUploadSize > 0 {
		router.MaxMultipartMemory = maxUploadSize
	}

	h := NewHandler(service, maxUploadSize)

	router.GET("/healthz", h.Health)
	router.GET("/leaderboard", h.Leaderboard)
	router.GET("/security_stats", h.SecurityStats)
	router.GET("/security_runs", h.SecurityRuns)

	authed := router.Group("/")
	authed.Use(Authenticate(service))
	authed.POST("/ingest", h.Ingest)
	authed.POST("/ingest_file", h.IngestFile)
	authed.POST("/search", h.Search)

	return router
}
