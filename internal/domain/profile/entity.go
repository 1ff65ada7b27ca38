package profile

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Profile is the directory row behind every relationship participant (matches profiles table)
type Profile struct {
	ID        uuid.UUID      `db:"id"`
	UserID    uuid.UUID      `db:"user_id"`
	Username  string         `db:"username"`
	FirstName sql.NullString `db:"first_name"`
	LastName  sql.NullString `db:"last_name"`
	AvatarURL sql.NullString `db:"avatar_url"`
	City      sql.NullString `db:"city"`
	CreatedAt time.Time      `db:"created_at"`
}

// DisplayName returns "First Last", falling back to the username.
func (p *Profile) DisplayName() string {
	name := p.FirstName.String
	if p.LastName.Valid && p.LastName.String != "" {
		if name != "" {
			name += " "
		}
		name += p.LastName.String
	}
	if name == "" {
		return p.Username
	}
	return name
}
