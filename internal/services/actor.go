package services

import (
	"time"

	"github.com/isdelr/rewear-be/internal/models"
)

// Actor is the authenticated caller of a service operation.
type Actor struct {
	ID   string
	Role string
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// now is the timestamp written to created_at/updated_at columns. Microsecond
// precision keeps values identical across SQLite and Postgres.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
