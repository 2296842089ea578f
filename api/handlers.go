package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/siherrmann/securerag/model"
)

const defaultListLimit = 20

type Handler struct {
	service       Service
	maxUploadSize int64
}

func NewHandler(service Service, maxUploadSize int64) *Handler {
	return &Handler{service: service, maxUploadSize: maxUploadSize}
}

func (h *Handler) Health(c *gin.Context) {
	if err := h.service.Ping(c.Request.Context()); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "model": h.service.ModelName()})
		return
	}
	RespondOK(c, gin.H{"ok": true, "model": h.service.ModelName()})
}

func (h *Handler) Ingest(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		RespondError(c, model.ErrNotAuthenticated)
		return
	}

	var req model.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, fmt.Errorf("%w: invalid request payload: %v", model.ErrValidation, err))
		return
	}

	result, err := h.service.Ingest(c.Request.Context(), principal, req)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, result)
}

// IngestFile accepts a multipart form with "file" and an optional "title".
func (h *Handler) IngestFile(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		RespondError(c, model.ErrNotAuthenticated)
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		RespondError(c, fmt.Errorf("%w: missing file", model.ErrValidation))
		return
	}
	if h.maxUploadSize > 0 && file.Size > h.maxUploadSize {
		RespondError(c, fmt.Errorf("%w: file too large (max %d bytes)", model.ErrValidation, h.maxUploadSize))
		return
	}

	f, err := file.Open()
	if err != nil {
		RespondError(c, err)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		RespondError(c, err)
		return
	}

	result, err := h.service.IngestFile(c.Request.Context(), principal, data, file.Header.Get("Content-Type"), file.Filename, c.PostForm("title"))
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, result)
}

func (h *Handler) Search(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		RespondError(c, model.ErrNotAuthenticated)
		return
	}

	var req model.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, fmt.Errorf("%w: invalid request payload: %v", model.ErrValidation, err))
		return
	}

	resp, err := h.service.Search(c.Request.Context(), principal, req)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, resp)
}

func (h *Handler) Leaderboard(c *gin.Context) {
	limit, err := parseLimit(c)
	if err != nil {
		RespondError(c, err)
		return
	}

	board, err := h.service.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, board)
}

func (h *Handler) SecurityStats(c *gin.Context) {
	stats, err := h.service.SecurityStats(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, stats)
}

func (h *Handler) SecurityRuns(c *gin.Context) {
	limit, err := parseLimit(c)
	if err != nil {
		RespondError(c, err)
		return
	}

	runs, err := h.service.SecurityRuns(c.Request.Context(), limit)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"runs": runs})
}

func parseLimit(c *gin.Context) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("%w: limit must be a positive integer", model.ErrValidation)
	}
	return limit, nil
}
