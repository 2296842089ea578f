package helper

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// DatabaseConfiguration holds the connection settings for PostgreSQL.
type DatabaseConfiguration struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
	Schema   string
	SSLMode  string
}

// NewDatabaseConfiguration reads the configuration from the environment.
// A .env file in the working directory is loaded first if present;
// variables already set in the environment take precedence.
func NewDatabaseConfiguration() (*DatabaseConfiguration, error) {
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		return nil, NewError("load .env", err)
	}

	config := &DatabaseConfiguration{
		Host:     os.Getenv("DB_HOST"),
		Port:     os.Getenv("DB_PORT"),
		Database: os.Getenv("DB_DATABASE"),
		Username: os.Getenv("DB_USERNAME"),
		Password: os.Getenv("DB_PASSWORD"),
		Schema:   envOr("DB_SCHEMA", "public"),
		SSLMode:  envOr("DB_SSLMODE", "disable"),
	}

	var missing []string
	if config.Host == "" {
		missing = append(missing, "DB_HOST")
	}
	if config.Port == "" {
		missing = append(missing, "DB_PORT")
	}
	if config.Database == "" {
		missing = append(missing, "DB_DATABASE")
	}
	if config.Username == "" {
		missing = append(missing, "DB_USERNAME")
	}
	if len(missing) > 0 {
		return nil, NewError("database configuration", fmt.Errorf("missing environment variables: %s", strings.Join(missing, ", ")))
	}

	return config, nil
}

// DSN returns the lib/pq connection string.
func (c *DatabaseConfiguration) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Username, c.Password),
		Host:   c.Host + ":" + c.Port,
		Path:   "/" + c.Database,
	}
	q := u.Query()
	q.Set("sslmode", c.SSLMode)
	if c.Schema != "" {
		q.Set("search_path", c.Schema)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Database wraps the connection pool with a name and a logger.
type Database struct {
	Name     string
	Logger   *slog.Logger
	Instance *sql.DB
}

// Querier is implemented by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// NewDatabase opens the connection pool and waits until the database answers.
func NewDatabase(name string, dbConfig *DatabaseConfiguration, logger *slog.Logger) (*Database, error) {
	if dbConfig == nil {
		return nil, NewError("database configuration validation", fmt.Errorf("database configuration is nil"))
	}
	if logger == nil {
		logger = slog.Default()
	}

	instance, err := sql.Open("postgres", dbConfig.DSN())
	if err != nil {
		return nil, NewError("open database", err)
	}
	instance.SetMaxOpenConns(25)
	instance.SetMaxIdleConns(5)
	instance.SetConnMaxLifetime(30 * time.Minute)

	db := &Database{
		Name:     name,
		Logger:   logger,
		Instance: instance,
	}

	if err := db.waitForConnection(10, 500*time.Millisecond); err != nil {
		_ = instance.Close()
		return nil, NewError("connect database", err)
	}

	logger.Info("Connected to database", slog.String("name", name), slog.String("host", dbConfig.Host), slog.String("database", dbConfig.Database))

	return db, nil
}

// NewTestDatabase connects to the test database and panics on failure.
func NewTestDatabase(config *DatabaseConfiguration) *Database {
	db, err := NewDatabase("test", config, NewLogger(os.Stdout, slog.LevelWarn))
	if err != nil {
		panic(err)
	}
	return db
}

// WithTx runs fn inside a transaction. The transaction is rolled back if fn
// returns an error or panics and committed otherwise.
func (d *Database) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := d.Instance.BeginTx(ctx, nil)
	if err != nil {
		return NewError("begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				d.Logger.Error("Rollback failed", slog.Any("error", rbErr))
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return NewError("commit transaction", err)
	}
	return nil
}

// Close closes the connection pool.
func (d *Database) Close() error {
	if d == nil || d.Instance == nil {
		return nil
	}
	return d.Instance.Close()
}

func (d *Database) waitForConnection(attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = d.Instance.PingContext(ctx)
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(delay)
	}
	return err
}

func envOr(key string, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
