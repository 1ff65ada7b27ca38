package profile

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/mwork/socialgraph-api/internal/middleware"
)

// Resolver maps the authenticated user to their profile id.
type Resolver struct {
	repo Repository
}

// NewResolver creates the caller identity resolver
func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// CurrentProfileID returns the caller's profile id. A request without an
// authenticated user, or whose user has no profile, is unauthenticated.
func (r *Resolver) CurrentProfileID(ctx context.Context) (uuid.UUID, error) {
	userID := middleware.GetUserID(ctx)
	if userID == uuid.Nil {
		return uuid.Nil, ErrUnauthenticated
	}

	p, err := r.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return uuid.Nil, ErrUnauthenticated
		}
		return uuid.Nil, err
	}
	return p.ID, nil
}
