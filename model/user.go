package model

import (
	"time"

	"github.com/google/uuid"
)

// User is a caller known to the system, keyed by a stable external identifier.
type User struct {
	ID          uuid.UUID `json:"id"`
	ExternalID  string    `json:"external_id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// Principal is the authenticated identity a request runs as.
type Principal struct {
	UserID     uuid.UUID `json:"user_id"`
	ExternalID string    `json:"external_id"`
}

// Principal returns the identity of the user.
func (u *User) Principal() Principal {
	return Principal{UserID: u.ID, ExternalID: u.ExternalID}
}
