package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/securerag/helper"
	"github.com/siherrmann/securerag/model"
	"github.com/siherrmann/securerag/sql"
)

// ACLDBHandlerFunctions defines the interface for ACL database operations.
type ACLDBHandlerFunctions interface {
	Grant(ctx context.Context, tx helper.Querier, documentID uuid.UUID, userID uuid.UUID, role model.Role) error
	Revoke(ctx context.Context, documentID uuid.UUID, userID uuid.UUID) error
	HasAccess(ctx context.Context, documentID uuid.UUID, userID uuid.UUID) (bool, error)
	HasRole(ctx context.Context, tx helper.Querier, documentID uuid.UUID, userID uuid.UUID, role model.Role) (bool, error)
	SelectACLByDocument(ctx context.Context, documentID uuid.UUID) ([]*model.ACLEntry, error)
}

// ACLDBHandler handles document access control entries.
type ACLDBHandler struct {
	db *helper.Database
}

// NewACLDBHandler creates a new ACL database handler.
// If force is true, it will reload the SQL functions even if they already exist.
func NewACLDBHandler(db *helper.Database, force bool) (*ACLDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	aclDbHandler := &ACLDBHandler{
		db: db,
	}

	err := sql.LoadACLSql(aclDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load acl sql", err)
	}

	err = aclDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized ACLDBHandler")

	return aclDbHandler, nil
}

// CreateTable creates the 'acl' table in the database if it does not exist.
func (h *ACLDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_acl();`)
	if err != nil {
		return helper.NewError("init acl", err)
	}

	h.db.Logger.Info("Checked/created table acl")

	return nil
}

// Grant gives the user a role on the document. Granting again updates the role.
func (h *ACLDBHandler) Grant(ctx context.Context, tx helper.Querier, documentID uuid.UUID, userID uuid.UUID, role model.Role) error {
	if role == "" {
		return helper.NewError("validate role", fmt.Errorf("%w: role is empty", model.ErrValidation))
	}

	_, err := querier(h.db, tx).ExecContext(
		ctx,
		`SELECT upsert_acl($1, $2, $3)`,
		documentID,
		userID,
		string(role),
	)
	if err != nil {
		return helper.NewError("exec", err)
	}

	return nil
}

// Revoke removes any role the user holds on the document.
func (h *ACLDBHandler) Revoke(ctx context.Context, documentID uuid.UUID, userID uuid.UUID) error {
	_, err := h.db.Instance.ExecContext(ctx, `SELECT delete_acl($1, $2)`, documentID, userID)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// HasAccess reports whether the user holds any role on the document.
func (h *ACLDBHandler) HasAccess(ctx context.Context, documentID uuid.UUID, userID uuid.UUID) (bool, error) {
	var allowed bool
	err := h.db.Instance.QueryRowContext(ctx, `SELECT has_access($1, $2)`, documentID, userID).Scan(&allowed)
	if err != nil {
		return false, helper.NewError("scan", err)
	}
	return allowed, nil
}

// HasRole reports whether the user holds exactly role on the document.
func (h *ACLDBHandler) HasRole(ctx context.Context, tx helper.Querier, documentID uuid.UUID, userID uuid.UUID, role model.Role) (bool, error) {
	var allowed bool
	err := querier(h.db, tx).QueryRowContext(ctx, `SELECT has_role($1, $2, $3)`, documentID, userID, string(role)).Scan(&allowed)
	if err != nil {
		return false, helper.NewError("scan", err)
	}
	return allowed, nil
}

// SelectACLByDocument lists the entries of a document.
func (h *ACLDBHandler) SelectACLByDocument(ctx context.Context, documentID uuid.UUID) ([]*model.ACLEntry, error) {
	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM select_acl_by_document($1)`,
		documentID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var entries []*model.ACLEntry
	for rows.Next() {
		entry := &model.ACLEntry{}
		var role string
		err := rows.Scan(
			&entry.DocumentID,
			&entry.UserID,
			&role,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		entry.Role = model.Role(role)

		entries = append(entries, entry)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return entries, nil
}
