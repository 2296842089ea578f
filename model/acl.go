package model

import (
	"time"

	"github.com/google/uuid"
)

// Role is the access role a user holds on a document.
// Holding any role grants read access.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleReader Role = "reader"
)

// ACLEntry grants a role on a document to a user.
type ACLEntry struct {
	DocumentID uuid.UUID `json:"doc_id"`
	UserID     uuid.UUID `json:"user_id"`
	Role       Role      `json:"role"`
	CreatedAt  time.Time `json:"created_at"`
}
