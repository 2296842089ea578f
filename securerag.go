package securerag

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/siherrmann/securerag/core/audit"
	"github.com/siherrmann/securerag/core/evaluation"
	"github.com/siherrmann/securerag/core/extract"
	"github.com/siherrmann/securerag/core/pipeline"
	"github.com/siherrmann/securerag/core/retrieval"
	"github.com/siherrmann/securerag/database"
	"github.com/siherrmann/securerag/helper"
	"github.com/siherrmann/securerag/model"
	loadSql "github.com/siherrmann/securerag/sql"
)

// SecureRAG is the canonical ingest and search pipeline. HTTP handlers, command line
// tools and evaluators all go through it.
type SecureRAG struct {
	DB         *helper.Database
	Users      *database.UsersDBHandler
	Documents  *database.DocumentsDBHandler
	Chunks     *database.ChunksDBHandler
	Embeddings *database.EmbeddingsDBHandler
	ACL        *database.ACLDBHandler
	Redactions *database.RedactionsDBHandler
	Traces     *database.TracesDBHandler
	Evals      *database.EvalsDBHandler
	PII        *database.PIIDBHandler

	Pipeline    *pipeline.Pipeline
	Engine      *retrieval.Engine
	TraceLogger *audit.TraceLogger

	config  *model.Config
	closers []func() error
	log     *slog.Logger
}

// Option configures a SecureRAG.
type Option func(*options)

type options struct {
	traceWriter audit.TraceWriter
	closers     []func() error
}

// WithTraceWriter replaces the default postgres trace writer, for example with an AMQPPublisher.
func WithTraceWriter(w audit.TraceWriter) Option {
	return func(o *options) {
		o.traceWriter = w
	}
}

// WithCloser registers a function that Close runs after the trace logger is drained.
func WithCloser(fn func() error) Option {
	return func(o *options) {
		o.closers = append(o.closers, fn)
	}
}

// NewSecureRAG creates all database handlers, the retrieval engine and the trace logger
// around the injected providers. The embeddings table is created with the embedder dimension.
func NewSecureRAG(db *helper.Database, config *model.Config, recognizer pipeline.Recognizer, embedder pipeline.Embedder, opts ...Option) (*SecureRAG, error) {
	if db == nil || config == nil || recognizer == nil || embedder == nil {
		return nil, helper.NewError("create securerag", fmt.Errorf("%w: database, config and providers are required", model.ErrValidation))
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if err := loadSql.Init(db.Instance); err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	s := &SecureRAG{DB: db, config: config, closers: o.closers, log: db.Logger}

	// Create all handlers in foreign key order
	// force=false to not reload if functions already exist
	var err error
	if s.Users, err = database.NewUsersDBHandler(db, false); err != nil {
		return nil, helper.NewError("create users handler", err)
	}
	if s.Documents, err = database.NewDocumentsDBHandler(db, false); err != nil {
		return nil, helper.NewError("create documents handler", err)
	}
	if s.Chunks, err = database.NewChunksDBHandler(db, false); err != nil {
		return nil, helper.NewError("create chunks handler", err)
	}
	if s.Embeddings, err = database.NewEmbeddingsDBHandler(db, embedder.Dimension(), false); err != nil {
		return nil, helper.NewError("create embeddings handler", err)
	}
	if s.ACL, err = database.NewACLDBHandler(db, false); err != nil {
		return nil, helper.NewError("create acl handler", err)
	}
	if s.Redactions, err = database.NewRedactionsDBHandler(db, false); err != nil {
		return nil, helper.NewError("create redactions handler", err)
	}
	if s.Traces, err = database.NewTracesDBHandler(db, false); err != nil {
		return nil, helper.NewError("create traces handler", err)
	}
	if s.Evals, err = database.NewEvalsDBHandler(db, false); err != nil {
		return nil, helper.NewError("create evals handler", err)
	}
	if s.PII, err = database.NewPIIDBHandler(db, false); err != nil {
		return nil, helper.NewError("create pii handler", err)
	}

	policy, err := retrieval.NewScorePolicy(config.Retrieval.ScorePolicy)
	if err != nil {
		return nil, helper.NewError("create score policy", err)
	}

	s.Pipeline = pipeline.NewPipelineFromConfig(config, recognizer, embedder)
	s.Engine = retrieval.NewEngine(
		s.Embeddings,
		embedder.Model(),
		policy,
		retrieval.WithSnippetLength(config.Retrieval.SnippetLength),
		retrieval.WithMaxTopK(config.Retrieval.MaxTopK),
	)

	var traceWriter audit.TraceWriter = s.Traces
	if o.traceWriter != nil {
		traceWriter = o.traceWriter
	}
	s.TraceLogger = audit.NewTraceLogger(traceWriter, config.Trace.Workers, config.Trace.QueueSize, s.log)

	s.log.Info("SecureRAG ready",
		slog.String("model", embedder.Model()),
		slog.Int("dimension", embedder.Dimension()),
		slog.String("score_policy", policy.Name()),
	)

	return s, nil
}

// Config returns the configuration the instance was created with.
func (s *SecureRAG) Config() *model.Config {
	return s.config
}

// ModelName returns the name of the embedding model all vectors are stored under.
func (s *SecureRAG) ModelName() string {
	return s.Pipeline.Embedder.Model()
}

// Ping checks the database connection.
func (s *SecureRAG) Ping(ctx context.Context) error {
	if err := s.DB.Instance.PingContext(ctx); err != nil {
		return helper.NewError("ping database", err)
	}
	return nil
}

// Close drains the trace logger, runs the registered closers and closes the database.
func (s *SecureRAG) Close(ctx context.Context) error {
	var errs []error
	if s.TraceLogger != nil {
		errs = append(errs, s.TraceLogger.Close(ctx))
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	if s.DB != nil {
		errs = append(errs, s.DB.Close())
	}
	return errors.Join(errs...)
}

// EnsureUser upserts the user with the stable external identifier and returns its principal.
func (s *SecureRAG) EnsureUser(ctx context.Context, externalID string, displayName string) (model.Principal, error) {
	user, err := s.Users.UpsertUser(ctx, externalID, displayName)
	if err != nil {
		return model.Principal{}, helper.NewError("ensure user", err)
	}
	return user.Principal(), nil
}

// Ingest redacts, chunks and embeds the text and stores it as the document with the
// request's source key, replacing all chunks of a previous version. Providers run before
// the transaction, the writes happen atomically under an advisory lock on the source key.
// The ingesting user is granted the owner role. Only an owner may replace an existing document.
func (s *SecureRAG) Ingest(ctx context.Context, principal model.Principal, req model.IngestRequest) (*model.IngestResult, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, helper.NewError("ingest", fmt.Errorf("%w: title is empty", model.ErrValidation))
	}
	if principal.UserID == uuid.Nil {
		return nil, helper.NewError("ingest", model.ErrNotAuthenticated)
	}

	sourceKey := req.SourceKey
	if sourceKey == "" {
		sourceKey = model.AdhocSourceKey(title)
	}

	processed, err := s.Pipeline.Process(ctx, req.Text)
	if err != nil {
		return nil, helper.NewError("ingest", err)
	}

	result := &model.IngestResult{Redactions: processed.Counts()}

	err = s.DB.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.Documents.LockSourceKey(ctx, tx, sourceKey); err != nil {
			return err
		}

		doc, isNew, err := s.Documents.CreateOrGetDocument(ctx, tx, principal.UserID, title, sourceKey, req.Metadata)
		if err != nil {
			return err
		}
		result.DocumentID = doc.ID
		result.Status = model.IngestStatusCreated

		if !isNew {
			isOwner, err := s.ACL.HasRole(ctx, tx, doc.ID, principal.UserID, model.RoleOwner)
			if err != nil {
				return err
			}
			if !isOwner {
				return fmt.Errorf("%w: source key %q is already in use", model.ErrValidation, sourceKey)
			}

			result.Status = model.IngestStatusReplaced
			if _, err := s.Chunks.DeleteChunksByDocument(ctx, tx, doc.ID); err != nil {
				return err
			}
		}

		chunks, err := s.Chunks.InsertChunks(ctx, tx, doc.ID, processed.Texts())
		if err != nil {
			return err
		}
		result.ChunkCount = len(chunks)

		chunkIDs := make([]uuid.UUID, len(chunks))
		for i, c := range chunks {
			chunkIDs[i] = c.ID
		}
		if err := s.Embeddings.UpsertEmbeddings(ctx, tx, s.Pipeline.Embedder.Model(), chunkIDs, processed.Vectors); err != nil {
			return err
		}

		if err := s.ACL.Grant(ctx, tx, doc.ID, principal.UserID, model.RoleOwner); err != nil {
			return err
		}

		var entries []*model.RedactionLogEntry
		for i, c := range processed.Chunks {
			for entityType, count := range c.Counts {
				entries = append(entries, &model.RedactionLogEntry{
					DocumentID: doc.ID,
					ChunkID:    chunkIDs[i],
					EntityType: entityType,
					Count:      count,
				})
			}
		}
		if _, err := s.Redactions.InsertRedactions(ctx, tx, doc.ID, entries); err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		return nil, helper.NewError("ingest transaction", err)
	}

	s.log.Info("Ingested document",
		slog.String("document_id", result.DocumentID.String()),
		slog.String("source_key", sourceKey),
		slog.String("status", string(result.Status)),
		slog.Int("chunks", result.ChunkCount),
	)

	return result, nil
}

// IngestFile extracts the text of an uploaded file and ingests it. An empty title
// defaults to the file name without extension, the source key is derived from the file name.
func (s *SecureRAG) IngestFile(ctx context.Context, principal model.Principal, data []byte, contentType string, filename string, title string) (*model.IngestResult, error) {
	text, err := extract.ExtractText(data, contentType, filename)
	if err != nil {
		return nil, helper.NewError("ingest file", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, helper.NewError("ingest file", fmt.Errorf("%w: no text could be extracted from %q", model.ErrValidation, filename))
	}

	base := filepath.Base(filename)
	if strings.TrimSpace(title) == "" {
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}

	return s.Ingest(ctx, principal, model.IngestRequest{
		Title:     title,
		Text:      text,
		SourceKey: model.UploadSourceKey(base),
		Metadata: model.Metadata{
			"filename":     base,
			"content_type": contentType,
		},
	})
}

// Search embeds the query and returns the ranked hits the principal may see.
// The trace is written asynchronously; a failed trace write never fails the search.
func (s *SecureRAG) Search(ctx context.Context, principal model.Principal, req model.SearchRequest) (*model.SearchResponse, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, helper.NewError("search", fmt.Errorf("%w: query is empty", model.ErrValidation))
	}
	if principal.UserID == uuid.Nil {
		return nil, helper.NewError("search", model.ErrNotAuthenticated)
	}

	topK := req.TopK
	if topK == 0 {
		topK = s.config.Retrieval.DefaultTopK
	}

	vectors, err := pipeline.EmbedChecked(ctx, s.Pipeline.Embedder, []string{query})
	if err != nil {
		return nil, helper.NewError("embed query", err)
	}

	hits, err := s.Engine.Search(ctx, principal, vectors[0], topK)
	if err != nil {
		return nil, err
	}

	trace := model.NewRetrievalTrace(principal.UserID, query, topK, hits)
	traceID := s.TraceLogger.Log(ctx, trace)

	return &model.SearchResponse{TraceID: traceID, Hits: hits}, nil
}

// Grant gives userID the role on the document.
func (s *SecureRAG) Grant(ctx context.Context, documentID uuid.UUID, userID uuid.UUID, role model.Role) error {
	return s.ACL.Grant(ctx, nil, documentID, userID, role)
}

// Leaderboard returns the recall summary and the latest limit evaluation rows.
func (s *SecureRAG) Leaderboard(ctx context.Context, limit int) (*model.Leaderboard, error) {
	return s.Evals.SelectLeaderboard(ctx, limit)
}

// SecurityStats returns the redaction counts per entity type.
func (s *SecureRAG) SecurityStats(ctx context.Context) (*model.SecurityStats, error) {
	return s.Redactions.SelectRedactionStats(ctx)
}

// SecurityRuns returns the latest limit PII evaluation runs.
func (s *SecureRAG) SecurityRuns(ctx context.Context, limit int) ([]*model.PIIEvalRun, error) {
	return s.PII.SelectRecentRuns(ctx, limit)
}

// RecallEvaluator returns an evaluator replaying gold queries through searcher.
// A nil searcher evaluates this instance in process.
func (s *SecureRAG) RecallEvaluator(searcher evaluation.Searcher) *evaluation.RecallEvaluator {
	if searcher == nil {
		searcher = s
	}
	evaluator := evaluation.NewRecallEvaluator(searcher, s.Chunks, s.Evals, s.log)
	evaluator.DefaultTopK = s.config.Retrieval.DefaultTopK
	return evaluator
}

// PIIEvaluator returns a harness measuring the configured redactor and persisting runs.
func (s *SecureRAG) PIIEvaluator(opts ...evaluation.PIIEvaluatorOption) *evaluation.PIIEvaluator {
	return evaluation.NewPIIEvaluator(s.Pipeline.Redactor, s.Pipeline.Entities, s.PII, s.log, opts...)
}
