package relationships

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/mwork/socialgraph-api/internal/pkg/errorhandler"
)

const edgeColumns = `sender_id, receiver_id, kind, status, created_at, updated_at`

// friendsOf selects the accepted friends of $1 as profile_id.
const friendsOf = `
	SELECT CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END AS profile_id, updated_at
	FROM relationship_edges
	WHERE kind = 'FRIEND_REQUEST' AND status = 'ACCEPTED' AND (sender_id = $1 OR receiver_id = $1)`

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS relationship_edges (
		sender_id   UUID        NOT NULL,
		receiver_id UUID        NOT NULL,
		kind        TEXT        NOT NULL,
		status      TEXT        NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (sender_id, receiver_id, kind),
		CONSTRAINT relationship_edges_no_self CHECK (sender_id <> receiver_id),
		CONSTRAINT relationship_edges_kind_status CHECK (
			(kind = 'FOLLOW' AND status = '') OR
			(kind = 'FRIEND_REQUEST' AND status IN ('PENDING', 'ACCEPTED', 'REJECTED'))
		)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_relationship_edges_receiver ON relationship_edges (receiver_id, kind, status)`,
	`CREATE INDEX IF NOT EXISTS idx_relationship_edges_sender_status ON relationship_edges (sender_id, kind, status)`,
}

// PostgresStore keeps edges in the relationship_edges adjacency table.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore creates the relational relationship store
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return storeError(ctx, "ensure schema", err)
		}
	}
	return nil
}

func (s *PostgresStore) FindEdge(ctx context.Context, sender, receiver uuid.UUID, kind EdgeKind) (*Edge, error) {
	return findEdge(ctx, s.db, sender, receiver, kind)
}

func (s *PostgresStore) UpsertEdge(ctx context.Context, e *Edge) error {
	return upsertEdge(ctx, s.db, e)
}

func (s *PostgresStore) DeleteEdge(ctx context.Context, sender, receiver uuid.UUID, kind EdgeKind) (bool, error) {
	return deleteEdge(ctx, s.db, sender, receiver, kind)
}

// Atomic holds a transaction-scoped advisory lock on the canonical pair, so
// units touching either direction of {a, b} run one at a time.
func (s *PostgresStore) Atomic(ctx context.Context, a, b uuid.UUID, fn func(ctx context.Context, tx EdgeTx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return storeError(ctx, "begin tx", err)
	}
	defer tx.Rollback()

	lo, hi := canonicalPair(a, b)
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lo.String()+":"+hi.String()); err != nil {
		return storeError(ctx, "lock pair", err)
	}

	if err := fn(ctx, &postgresTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return storeError(ctx, "commit", err)
	}
	return nil
}

type postgresTx struct {
	tx *sqlx.Tx
}

func (t *postgresTx) FindEdge(ctx context.Context, sender, receiver uuid.UUID, kind EdgeKind) (*Edge, error) {
	return findEdge(ctx, t.tx, sender, receiver, kind)
}

func (t *postgresTx) UpsertEdge(ctx context.Context, e *Edge) error {
	return upsertEdge(ctx, t.tx, e)
}

func (t *postgresTx) DeleteEdge(ctx context.Context, sender, receiver uuid.UUID, kind EdgeKind) (bool, error) {
	return deleteEdge(ctx, t.tx, sender, receiver, kind)
}

func findEdge(ctx context.Context, q sqlx.QueryerContext, sender, receiver uuid.UUID, kind EdgeKind) (*Edge, error) {
	query := `SELECT ` + edgeColumns + ` FROM relationship_edges WHERE sender_id = $1 AND receiver_id = $2 AND kind = $3`
	var e Edge
	if err := sqlx.GetContext(ctx, q, &e, query, sender, receiver, kind); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storeError(ctx, "find edge", err)
	}
	return &e, nil
}

func upsertEdge(ctx context.Context, q sqlx.ExecerContext, e *Edge) error {
	query := `
		INSERT INTO relationship_edges (` + edgeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (sender_id, receiver_id, kind) DO UPDATE
		SET status = EXCLUDED.status, created_at = EXCLUDED.created_at, updated_at = EXCLUDED.updated_at`
	_, err := q.ExecContext(ctx, query, e.SenderID, e.ReceiverID, e.Kind, e.Status, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return mapWriteError(ctx, err)
	}
	return nil
}

func deleteEdge(ctx context.Context, q sqlx.ExecerContext, sender, receiver uuid.UUID, kind EdgeKind) (bool, error) {
	query := `DELETE FROM relationship_edges WHERE sender_id = $1 AND receiver_id = $2 AND kind = $3`
	res, err := q.ExecContext(ctx, query, sender, receiver, kind)
	if err != nil {
		return false, storeError(ctx, "delete edge", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeError(ctx, "delete edge", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) PageFriends(ctx context.Context, userID uuid.UUID, p Pagination) (*Page[uuid.UUID], error) {
	countQuery := `SELECT COUNT(*) FROM (` + friendsOf + `) f`
	pageQuery := `SELECT profile_id FROM (` + friendsOf + `) f ORDER BY updated_at DESC, profile_id ASC LIMIT $2 OFFSET $3`
	return s.page(ctx, "page friends", countQuery, pageQuery, p, userID)
}

func (s *PostgresStore) PageFollowers(ctx context.Context, userID uuid.UUID, p Pagination) (*Page[uuid.UUID], error) {
	countQuery := `SELECT COUNT(*) FROM relationship_edges WHERE kind = 'FOLLOW' AND receiver_id = $1`
	pageQuery := `
		SELECT sender_id FROM relationship_edges
		WHERE kind = 'FOLLOW' AND receiver_id = $1
		ORDER BY created_at DESC, sender_id ASC LIMIT $2 OFFSET $3`
	return s.page(ctx, "page followers", countQuery, pageQuery, p, userID)
}

func (s *PostgresStore) PageFollowing(ctx context.Context, userID uuid.UUID, p Pagination) (*Page[uuid.UUID], error) {
	countQuery := `SELECT COUNT(*) FROM relationship_edges WHERE kind = 'FOLLOW' AND sender_id = $1`
	pageQuery := `
		SELECT receiver_id FROM relationship_edges
		WHERE kind = 'FOLLOW' AND sender_id = $1
		ORDER BY created_at DESC, receiver_id ASC LIMIT $2 OFFSET $3`
	return s.page(ctx, "page following", countQuery, pageQuery, p, userID)
}

func (s *PostgresStore) PagePendingReceived(ctx context.Context, userID uuid.UUID, p Pagination) (*Page[uuid.UUID], error) {
	countQuery := `SELECT COUNT(*) FROM relationship_edges WHERE kind = 'FRIEND_REQUEST' AND status = 'PENDING' AND receiver_id = $1`
	pageQuery := `
		SELECT sender_id FROM relationship_edges
		WHERE kind = 'FRIEND_REQUEST' AND status = 'PENDING' AND receiver_id = $1
		ORDER BY created_at DESC, sender_id ASC LIMIT $2 OFFSET $3`
	return s.page(ctx, "page pending received", countQuery, pageQuery, p, userID)
}

func (s *PostgresStore) PagePendingSent(ctx context.Context, userID uuid.UUID, p Pagination) (*Page[uuid.UUID], error) {
	countQuery := `SELECT COUNT(*) FROM relationship_edges WHERE kind = 'FRIEND_REQUEST' AND status = 'PENDING' AND sender_id = $1`
	pageQuery := `
		SELECT receiver_id FROM relationship_edges
		WHERE kind = 'FRIEND_REQUEST' AND status = 'PENDING' AND sender_id = $1
		ORDER BY created_at DESC, receiver_id ASC LIMIT $2 OFFSET $3`
	return s.page(ctx, "page pending sent", countQuery, pageQuery, p, userID)
}

func (s *PostgresStore) PageMutualFriends(ctx context.Context, a, b uuid.UUID, p Pagination) (*Page[uuid.UUID], error) {
	mutual := `
		WITH fa AS (
			SELECT CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END AS profile_id
			FROM relationship_edges
			WHERE kind = 'FRIEND_REQUEST' AND status = 'ACCEPTED' AND (sender_id = $1 OR receiver_id = $1)
		), fb AS (
			SELECT CASE WHEN sender_id = $2 THEN receiver_id ELSE sender_id END AS profile_id
			FROM relationship_edges
			WHERE kind = 'FRIEND_REQUEST' AND status = 'ACCEPTED' AND (sender_id = $2 OR receiver_id = $2)
		)`
	countQuery := mutual + ` SELECT COUNT(*) FROM fa JOIN fb ON fa.profile_id = fb.profile_id`
	pageQuery := mutual + ` SELECT fa.profile_id FROM fa JOIN fb ON fa.profile_id = fb.profile_id ORDER BY fa.profile_id ASC LIMIT $3 OFFSET $4`
	return s.page(ctx, "page mutual friends", countQuery, pageQuery, p, a, b)
}

// RankedSuggestions ranks friends-of-friends by distinct shared friends. The
// exclusion set is applied before LIMIT so truncation never drops a valid candidate.
func (s *PostgresStore) RankedSuggestions(ctx context.Context, userID uuid.UUID, limit int) ([]Suggestion, error) {
	query := `
		WITH friends AS (
			SELECT CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END AS profile_id
			FROM relationship_edges
			WHERE kind = 'FRIEND_REQUEST' AND status = 'ACCEPTED' AND (sender_id = $1 OR receiver_id = $1)
		), excluded AS (
			SELECT $1::uuid AS profile_id
			UNION
			SELECT CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END
			FROM relationship_edges
			WHERE kind = 'FRIEND_REQUEST' AND status IN ('ACCEPTED', 'PENDING') AND (sender_id = $1 OR receiver_id = $1)
		), fof AS (
			SELECT f.profile_id AS via,
			       CASE WHEN e.sender_id = f.profile_id THEN e.receiver_id ELSE e.sender_id END AS candidate
			FROM friends f
			JOIN relationship_edges e
			  ON e.kind = 'FRIEND_REQUEST' AND e.status = 'ACCEPTED'
			 AND (e.sender_id = f.profile_id OR e.receiver_id = f.profile_id)
		)
		SELECT candidate AS profile_id, COUNT(DISTINCT via) AS mutual_count
		FROM fof
		WHERE candidate NOT IN (SELECT profile_id FROM excluded)
		GROUP BY candidate
		ORDER BY mutual_count DESC, candidate ASC
		LIMIT $2`

	start := time.Now()
	suggestions := []Suggestion{}
	err := s.db.SelectContext(ctx, &suggestions, query, userID, limit)
	observeStore("ranked suggestions", start)
	if err != nil {
		return nil, storeError(ctx, "ranked suggestions", err)
	}
	return suggestions, nil
}

// page runs the count and the page query concurrently. Page query
// placeholders for LIMIT and OFFSET follow the shared args.
func (s *PostgresStore) page(ctx context.Context, op, countQuery, pageQuery string, p Pagination, args ...any) (*Page[uuid.UUID], error) {
	start := time.Now()
	defer observeStore(op, start)

	var (
		total int
		ids   []uuid.UUID
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.db.GetContext(gctx, &total, countQuery, args...)
	})
	g.Go(func() error {
		pageArgs := append(append([]any{}, args...), p.Size, p.Offset())
		return s.db.SelectContext(gctx, &ids, pageQuery, pageArgs...)
	})
	if err := g.Wait(); err != nil {
		return nil, storeError(ctx, op, err)
	}

	if ids == nil {
		ids = []uuid.UUID{}
	}
	return &Page[uuid.UUID]{Items: ids, Total: total}, nil
}

func mapWriteError(ctx context.Context, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23514" && pqErr.Constraint == "relationship_edges_no_self" {
		return ErrSelfRelationship
	}
	return storeError(ctx, "upsert edge", err)
}

func storeError(ctx context.Context, op string, err error) error {
	errorhandler.LogDatabaseError(ctx, op, err)
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
