package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Repository is the read-only profile directory consumed by the relationship engine.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Profile, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Profile, error)
	GetByUsername(ctx context.Context, username string) (*Profile, error)
	// GetByIDs returns the profiles that exist, keyed by id. Missing ids are absent from the map.
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Profile, error)
}

const profileColumns = `id, user_id, username, first_name, last_name, avatar_url, city, created_at`

type repository struct {
	db *sqlx.DB
}

// NewRepository creates the PostgreSQL-backed profile directory
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Profile, error) {
	return r.getOne(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
}

func (r *repository) GetByUserID(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	return r.getOne(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, userID)
}

func (r *repository) GetByUsername(ctx context.Context, username string) (*Profile, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrProfileNotFound
	}
	return r.getOne(ctx, `SELECT `+profileColumns+` FROM profiles WHERE LOWER(username) = LOWER($1)`, username)
}

func (r *repository) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Profile, error) {
	result := make(map[uuid.UUID]*Profile, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}

	var rows []*Profile
	q := `SELECT ` + profileColumns + ` FROM profiles WHERE id = ANY($1::uuid[])`
	if err := r.db.SelectContext(ctx, &rows, q, pq.StringArray(keys)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}

	for _, p := range rows {
		result[p.ID] = p
	}
	return result, nil
}

func (r *repository) getOne(ctx context.Context, q string, arg any) (*Profile, error) {
	var p Profile
	if err := r.db.GetContext(ctx, &p, q, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}
	return &p, nil
}
