package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/siherrmann/securerag/helper"
	"github.com/siherrmann/securerag/model"
	"github.com/siherrmann/securerag/sql"
)

// UsersDBHandlerFunctions defines the interface for Users database operations.
type UsersDBHandlerFunctions interface {
	UpsertUser(ctx context.Context, externalID string, displayName string) (*model.User, error)
	SelectUserByExternalID(ctx context.Context, externalID string) (*model.User, error)
}

// UsersDBHandler handles user-related database operations
type UsersDBHandler struct {
	db *helper.Database
}

// NewUsersDBHandler creates a new users database handler.
// If force is true, it will reload the SQL functions even if they already exist.
func NewUsersDBHandler(db *helper.Database, force bool) (*UsersDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	usersDbHandler := &UsersDBHandler{
		db: db,
	}

	err := sql.LoadUsersSql(usersDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load users sql", err)
	}

	err = usersDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized UsersDBHandler")

	return usersDbHandler, nil
}

// CreateTable creates the 'users' table in the database if it does not exist.
func (h *UsersDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_users();`)
	if err != nil {
		return helper.NewError("init users", err)
	}

	h.db.Logger.Info("Checked/created table users")

	return nil
}

// UpsertUser inserts the user or returns the existing one with the same external id.
// An empty display name never overwrites a stored one.
func (h *UsersDBHandler) UpsertUser(ctx context.Context, externalID string, displayName string) (*model.User, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, helper.NewError("validate external id", fmt.Errorf("%w: external id is empty", model.ErrValidation))
	}

	user := &model.User{}
	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM upsert_user($1, $2)`,
		externalID,
		displayName,
	)

	err := row.Scan(
		&user.ID,
		&user.ExternalID,
		&user.DisplayName,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return user, nil
}

// SelectUserByExternalID retrieves a user by external id.
func (h *UsersDBHandler) SelectUserByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	user := &model.User{}
	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM select_user_by_external_id($1)`,
		externalID,
	)

	err := row.Scan(
		&user.ID,
		&user.ExternalID,
		&user.DisplayName,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return user, nil
}
