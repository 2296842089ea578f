package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/siherrmann/securerag/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	users       map[string]model.Principal
	ingested    []model.IngestRequest
	files       []string
	searches    []model.SearchRequest
	lastLimit   int
	searchErr   error
	pingErr     error
	lastContent string
}

func newFakeService() *fakeService {
	return &fakeService{users: map[string]model.Principal{}}
}

func (f *fakeService) EnsureUser(ctx context.Context, externalID string, displayName string) (model.Principal, error) {
	if p, ok := f.users[externalID]; ok {
		return p, nil
	}
	p := model.Principal{UserID: uuid.New(), ExternalID: externalID}
	f.users[externalID] = p
	return p, nil
}

func (f *fakeService) Ingest(ctx context.Context, principal model.Principal, req model.IngestRequest) (*model.IngestResult, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("%w: text is empty", model.ErrValidation)
	}
	f.ingested = append(f.ingested, req)
	return &model.IngestResult{DocumentID: uuid.New(), ChunkCount: 1, Status: model.IngestStatusCreated}, nil
}

func (f *fakeService) IngestFile(ctx context.Context, principal model.Principal, data []byte, contentType string, filename string, title string) (*model.IngestResult, error) {
	if strings.HasSuffix(filename, ".zip") {
		return nil, model.ErrUnsupportedFormat
	}
	f.files = append(f.files, filename)
	f.lastContent = string(data)
	return &model.IngestResult{DocumentID: uuid.New(), ChunkCount: 1, Status: model.IngestStatusCreated}, nil
}

func (f *fakeService) Search(ctx context.Context, principal model.Principal, req model.SearchRequest) (*model.SearchResponse, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	f.searches = append(f.searches, req)
	return &model.SearchResponse{
		TraceID: uuid.New(),
		Hits:    []model.SearchHit{{Rank: 1, ChunkID: uuid.New(), DocumentTitle: "Doc", Snippet: "text", Score: 0.9}},
	}, nil
}

func (f *fakeService) Leaderboard(ctx context.Context, limit int) (*model.Leaderboard, error) {
	f.lastLimit = limit
	return &model.Leaderboard{Summary: model.LeaderboardSummary{AvgRecall: 0.5, NumEvals: 2}}, nil
}

func (f *fakeService) SecurityStats(ctx context.Context) (*model.SecurityStats, error) {
	return &model.SecurityStats{Totals: []model.EntityCount{{EntityType: model.EntityEmail, Total: 3}}}, nil
}

func (f *fakeService) SecurityRuns(ctx context.Context, limit int) ([]*model.PIIEvalRun, error) {
	f.lastLimit = limit
	return []*model.PIIEvalRun{{ID: uuid.New(), Samples: 100}}, nil
}

func (f *fakeService) ModelName() string { return "fake-model" }

func (f *fakeService) Ping(ctx context.Context) error { return f.pingErr }

func newTestRouter(service Service) *gin.Engine {
	return NewRouter(service, slog.New(slog.NewTextHandler(io.Discard, nil)), gin.TestMode, 1<<20)
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthenticate(t *testing.T) {
	service := newFakeService()
	router := newTestRouter(service)

	t.Run("Missing identity is rejected", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/search", model.SearchRequest{Query: "q"}, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		var env ErrorEnvelope
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
		assert.Equal(t, CodeUnauthenticated, env.Error.Code)
	})

	t.Run("Bearer token identifies the user", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/search", model.SearchRequest{Query: "q"}, map[string]string{"Authorization": "Bearer alice@example.com"})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, service.users, "alice@example.com")
	})

	t.Run("Header identifies the user", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/search", model.SearchRequest{Query: "q"}, map[string]string{HeaderUserEmail: "bob@example.com"})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, service.users, "bob@example.com")
	})

	t.Run("Empty bearer falls back to header", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/search", model.SearchRequest{Query: "q"}, map[string]string{"Authorization": "Bearer  ", HeaderUserEmail: "carol@example.com"})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, service.users, "carol@example.com")
	})
}

func TestIngestHandlers(t *testing.T) {
	service := newFakeService()
	router := newTestRouter(service)
	auth := map[string]string{HeaderUserEmail: "alice@example.com"}

	t.Run("Ingest returns the result", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/ingest", model.IngestRequest{Title: "Policy A", Text: "Some text."}, auth)
		require.Equal(t, http.StatusOK, w.Code)

		var result model.IngestResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		assert.Equal(t, 1, result.ChunkCount)
		assert.Equal(t, model.IngestStatusCreated, result.Status)
		require.Len(t, service.ingested, 1)
		assert.Equal(t, "Policy A", service.ingested[0].Title)
	})

	t.Run("Validation error maps to 400", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/ingest", model.IngestRequest{Title: "Empty", Text: " "}, auth)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Malformed body maps to 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader("{"))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(HeaderUserEmail, "alice@example.com")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("File upload is passed through", func(t *testing.T) {
		w := uploadFile(t, router, "notes.txt", "Travel policy.", auth)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{"notes.txt"}, service.files)
		assert.Equal(t, "Travel policy.", service.lastContent)
	})

	t.Run("Unsupported upload maps to 400", func(t *testing.T) {
		w := uploadFile(t, router, "archive.zip", "PK", auth)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		var env ErrorEnvelope
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
		assert.Equal(t, CodeUnsupported, env.Error.Code)
	})

	t.Run("Missing file maps to 400", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/ingest_file", nil, auth)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func uploadFile(t *testing.T, router http.Handler, filename string, content string, headers map[string]string) *httptest.ResponseRecorder {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/ingest_file", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSearchHandler(t *testing.T) {
	service := newFakeService()
	router := newTestRouter(service)
	auth := map[string]string{HeaderUserEmail: "alice@example.com"}

	t.Run("Search returns hits and trace id", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/search", model.SearchRequest{Query: "merger", TopK: 3}, auth)
		require.Equal(t, http.StatusOK, w.Code)

		var resp model.SearchResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.NotEqual(t, uuid.Nil, resp.TraceID)
		require.Len(t, resp.Hits, 1)
		assert.Equal(t, 1, resp.Hits[0].Rank)
		assert.Equal(t, 3, service.searches[0].TopK)
	})

	t.Run("Provider failure maps to 500 without details", func(t *testing.T) {
		service.searchErr = fmt.Errorf("%w: connection refused to embedding host", model.ErrProviderFailure)
		defer func() { service.searchErr = nil }()

		w := doJSON(t, router, http.MethodPost, "/search", model.SearchRequest{Query: "merger"}, auth)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "embedding host")
	})
}

func TestReadHandlers(t *testing.T) {
	service := newFakeService()
	router := newTestRouter(service)

	t.Run("Leaderboard uses the limit parameter", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/leaderboard?limit=7", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 7, service.lastLimit)

		var board model.Leaderboard
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &board))
		assert.Equal(t, 2, board.Summary.NumEvals)
	})

	t.Run("Default limit", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/security_runs", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, defaultListLimit, service.lastLimit)
		assert.Contains(t, w.Body.String(), `"runs"`)
	})

	t.Run("Invalid limit maps to 400", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/leaderboard?limit=abc", nil, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Security stats", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/security_stats", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var stats model.SecurityStats
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
		require.Len(t, stats.Totals, 1)
		assert.Equal(t, 3, stats.Totals[0].Total)
	})

	t.Run("Healthz reports the model", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/healthz", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "fake-model")
	})

	t.Run("Healthz reports an unreachable database", func(t *testing.T) {
		service.pingErr = errors.New("connection refused")
		defer func() { service.pingErr = nil }()

		w := doJSON(t, router, http.MethodGet, "/healthz", nil, nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}
