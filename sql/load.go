package sql

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
)

//go:embed init.sql
var initSQL string

//go:embed users.sql
var usersSQL string

//go:embed documents.sql
var documentsSQL string

//go:embed chunks.sql
var chunksSQL string

//go:embed embeddings.sql
var embeddingsSQL string

//go:embed acl.sql
var aclSQL string

//go:embed traces.sql
var tracesSQL string

//go:embed redactions.sql
var redactionsSQL string

//go:embed evals.sql
var evalsSQL string

//go:embed pii.sql
var piiSQL string

// Function lists for verification
var UsersFunctions = []string{
	"init_users",
	"upsert_user",
	"select_user_by_external_id",
}

var DocumentsFunctions = []string{
	"init_documents",
	"upsert_document",
	"select_document",
	"select_document_by_source_key",
	"lock_source_key",
	"delete_document",
}

var ChunksFunctions = []string{
	"init_chunks",
	"insert_chunks",
	"delete_chunks_by_document",
	"select_chunks_by_document",
	"select_chunk_ids_by_documents",
}

var EmbeddingsFunctions = []string{
	"init_embeddings",
	"embedding_dimension",
	"upsert_embedding",
	"select_embedding",
	"select_chunks_by_similarity",
}

var ACLFunctions = []string{
	"init_acl",
	"upsert_acl",
	"has_access",
	"has_role",
	"select_acl_by_document",
	"delete_acl",
}

var TracesFunctions = []string{
	"init_traces",
	"insert_trace",
	"select_trace",
	"select_trace_hits",
}

var RedactionsFunctions = []string{
	"init_redactions",
	"insert_redactions",
	"select_redaction_counts",
}

var EvalsFunctions = []string{
	"init_evals",
	"insert_eval",
	"select_eval_summary",
	"select_recent_evals",
}

var PIIFunctions = []string{
	"init_pii",
	"insert_pii_run",
	"insert_pii_entity_metric",
	"insert_pii_overall",
	"select_recent_pii_runs",
	"select_pii_entity_metrics",
}

// Init intializes db extensions
func Init(db *sql.DB) error {
	_, err := db.Exec(initSQL)
	if err != nil {
		return fmt.Errorf("error executing schema SQL: %w", err)
	}

	slog.Debug("Database extensions initialized successfully")
	return nil
}

// LoadUsersSql loads user-related SQL functions
func LoadUsersSql(db *sql.DB, force bool) error {
	return loadSql(db, "users", usersSQL, UsersFunctions, force)
}

// LoadDocumentsSql loads document-related SQL functions
func LoadDocumentsSql(db *sql.DB, force bool) error {
	return loadSql(db, "documents", documentsSQL, DocumentsFunctions, force)
}

// LoadChunksSql loads chunk-related SQL functions
func LoadChunksSql(db *sql.DB, force bool) error {
	return loadSql(db, "chunks", chunksSQL, ChunksFunctions, force)
}

// LoadEmbeddingsSql loads embedding and similarity search SQL functions
func LoadEmbeddingsSql(db *sql.DB, force bool) error {
	return loadSql(db, "embeddings", embeddingsSQL, EmbeddingsFunctions, force)
}

// LoadACLSql loads access control SQL functions
func LoadACLSql(db *sql.DB, force bool) error {
	return loadSql(db, "acl", aclSQL, ACLFunctions, force)
}

// LoadTracesSql loads retrieval trace SQL functions
func LoadTracesSql(db *sql.DB, force bool) error {
	return loadSql(db, "traces", tracesSQL, TracesFunctions, force)
}

// LoadRedactionsSql loads redaction log SQL functions
func LoadRedactionsSql(db *sql.DB, force bool) error {
	return loadSql(db, "redactions", redactionsSQL, RedactionsFunctions, force)
}

// LoadEvalsSql loads recall evaluation SQL functions
func LoadEvalsSql(db *sql.DB, force bool) error {
	return loadSql(db, "evals", evalsSQL, EvalsFunctions, force)
}

// LoadPIISql loads PII evaluation SQL functions
func LoadPIISql(db *sql.DB, force bool) error {
	return loadSql(db, "pii", piiSQL, PIIFunctions, force)
}

// LoadAllSql loads all SQL functions in dependency order
func LoadAllSql(db *sql.DB, force bool) error {
	loaders := []func(*sql.DB, bool) error{
		LoadUsersSql,
		LoadDocumentsSql,
		LoadChunksSql,
		LoadEmbeddingsSql,
		LoadACLSql,
		LoadTracesSql,
		LoadRedactionsSql,
		LoadEvalsSql,
		LoadPIISql,
	}
	for _, load := range loaders {
		if err := load(db, force); err != nil {
			return err
		}
	}
	return nil
}

// loadSql executes script unless all functions already exist and force is false.
// Afterwards it verifies that every function was created.
func loadSql(db *sql.DB, name string, script string, functions []string, force bool) error {
	if !force {
		exist, err := checkFunctions(db, functions)
		if err != nil {
			return fmt.Errorf("error checking existing %s functions: %w", name, err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(script)
	if err != nil {
		return fmt.Errorf("error executing %s SQL: %w", name, err)
	}

	exist, err := checkFunctions(db, functions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required %s SQL functions were created", name)
	}

	slog.Debug("SQL functions loaded successfully", slog.String("group", name))
	return nil
}

// checkFunctions verifies that all required functions exist in the database
func checkFunctions(db *sql.DB, sqlFunctions []string) (bool, error) {
	var allExist bool
	for _, f := range sqlFunctions {
		err := db.QueryRow(
			`SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1);`,
			f,
		).Scan(&allExist)
		if err != nil {
			return false, fmt.Errorf("error checking existence of function %s: %w", f, err)
		}
		if !allExist {
			slog.Debug("Function does not exist", slog.String("function", f))
			break
		}
	}
	return allExist, nil
}
