package user

import (
	"time"

	"coursehub/internal/apperr"
	"coursehub/internal/auth"
)

// User is the read model of an account. Accounts are created and
// authenticated elsewhere; this service only looks them up.
type User struct {
	ID        int       `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Name      string    `db:"name" json:"name"`
	Role      auth.Role `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

var ErrNotFound = apperr.NotFound("user_not_found", "user not found")
