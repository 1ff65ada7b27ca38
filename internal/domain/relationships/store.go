package relationships

import (
	"context"

	"github.com/google/uuid"
)

// EdgeTx is the edge access available inside an atomic unit.
type EdgeTx interface {
	// FindEdge returns the edge in exactly the sender->receiver direction, or nil when absent.
	FindEdge(ctx context.Context, sender, receiver uuid.UUID, kind EdgeKind) (*Edge, error)
	// UpsertEdge inserts e or overwrites status and timestamps of the existing edge.
	UpsertEdge(ctx context.Context, e *Edge) error
	// DeleteEdge removes the edge and reports whether it existed.
	DeleteEdge(ctx context.Context, sender, receiver uuid.UUID, kind EdgeKind) (bool, error)
}

// Store persists relationship edges. Implementations report every
// persistence failure wrapped in ErrStoreUnavailable.
type Store interface {
	EdgeTx

	PageFriends(ctx context.Context, userID uuid.UUID, p Pagination) (*Page[uuid.UUID], error)
	PageFollowers(ctx context.Context, userID uuid.UUID, p Pagination) (*Page[uuid.UUID], error)
	PageFollowing(ctx context.Context, userID uuid.UUID, p Pagination) (*Page[uuid.UUID], error)
	PagePendingReceived(ctx context.Context, userID uuid.UUID, p Pagination) (*Page[uuid.UUID], error)
	PagePendingSent(ctx context.Context, userID uuid.UUID, p Pagination) (*Page[uuid.UUID], error)
	PageMutualFriends(ctx context.Context, a, b uuid.UUID, p Pagination) (*Page[uuid.UUID], error)

	// RankedSuggestions returns friends-of-friends of userID that are not the
	// user, an accepted friend, or a pending counterpart in either direction,
	// ordered by shared friend count desc then profile id asc.
	RankedSuggestions(ctx context.Context, userID uuid.UUID, limit int) ([]Suggestion, error)

	// Atomic runs fn serialized against every other Atomic call on the
	// unordered pair {a, b}. fn's writes commit together or not at all.
	Atomic(ctx context.Context, a, b uuid.UUID, fn func(ctx context.Context, tx EdgeTx) error) error

	// EnsureSchema creates tables, indexes or constraints. It is idempotent.
	EnsureSchema(ctx context.Context) error
}
