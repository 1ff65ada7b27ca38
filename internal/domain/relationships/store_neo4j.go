package relationships

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mwork/socialgraph-api/internal/pkg/errorhandler"
	"github.com/mwork/socialgraph-api/internal/pkg/graph"
)

const (
	relFriendRequest = "FRIEND_REQUEST"
	relFollows       = "FOLLOWS"
)

// Neo4jStore keeps edges as relationships between (:Profile {id}) nodes.
// Timestamps are stored as epoch milliseconds.
type Neo4jStore struct {
	client graph.Client
}

// NewNeo4jStore creates the graph relationship store
func NewNeo4jStore(client graph.Client) *Neo4jStore {
	return &Neo4jStore{client: client}
}

type cypherRunner func(ctx context.Context, cypher string, params map[string]any) (graph.Result, error)

func relType(kind EdgeKind) string {
	if kind == KindFollow {
		return relFollows
	}
	return relFriendRequest
}

func (s *Neo4jStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE CONSTRAINT profile_id_unique IF NOT EXISTS FOR (p:Profile) REQUIRE p.id IS UNIQUE`,
		`CREATE INDEX friend_request_status IF NOT EXISTS FOR ()-[r:FRIEND_REQUEST]-() ON (r.status)`,
	}
	for _, stmt := range stmts {
		if _, err := s.client.ExecuteWrite(ctx, stmt, nil); err != nil {
			return graphError(ctx, "ensure schema", err)
		}
	}
	return nil
}

func (s *Neo4jStore) FindEdge(ctx context.Context, sender, receiver uuid.UUID, kind EdgeKind) (*Edge, error) {
	return graphFindEdge(ctx, s.client.ExecuteRead, sender, receiver, kind)
}

func (s *Neo4jStore) UpsertEdge(ctx context.Context, e *Edge) error {
	return graphUpsertEdge(ctx, s.client.ExecuteWrite, e)
}

func (s *Neo4jStore) DeleteEdge(ctx context.Context, sender, receiver uuid.UUID, kind EdgeKind) (bool, error) {
	return graphDeleteEdge(ctx, s.client.ExecuteWrite, sender, receiver, kind)
}

// Atomic write-locks both profile nodes in canonical order as the first
// statement of the transaction. Neo4j holds the locks until commit.
func (s *Neo4jStore) Atomic(ctx context.Context, a, b uuid.UUID, fn func(ctx context.Context, tx EdgeTx) error) error {
	lo, hi := canonicalPair(a, b)
	var fnErr error
	err := s.client.ExecuteWriteTx(ctx, func(ctx context.Context, tx graph.Tx) error {
		fnErr = nil
		lock := `
			MERGE (lo:Profile {id: $lo})
			SET lo._lock = coalesce(lo._lock, 0) + 1
			WITH lo
			MERGE (hi:Profile {id: $hi})
			SET hi._lock = coalesce(hi._lock, 0) + 1`
		if _, err := tx.Run(ctx, lock, map[string]any{"lo": lo.String(), "hi": hi.String()}); err != nil {
			return graphError(ctx, "lock pair", err)
		}
		fnErr = fn(ctx, &neo4jTx{run: tx.Run})
		return fnErr
	})
	switch {
	case fnErr != nil:
		return fnErr
	case err == nil:
		return nil
	case errors.Is(err, ErrStoreUnavailable):
		return err
	default:
		return graphError(ctx, "atomic", err)
	}
}

type neo4jTx struct {
	run cypherRunner
}

func (t *neo4jTx) FindEdge(ctx context.Context, sender, receiver uuid.UUID, kind EdgeKind) (*Edge, error) {
	return graphFindEdge(ctx, t.run, sender, receiver, kind)
}

func (t *neo4jTx) UpsertEdge(ctx context.Context, e *Edge) error {
	return graphUpsertEdge(ctx, t.run, e)
}

func (t *neo4jTx) DeleteEdge(ctx context.Context, sender, receiver uuid.UUID, kind EdgeKind) (bool, error) {
	return graphDeleteEdge(ctx, t.run, sender, receiver, kind)
}

func graphFindEdge(ctx context.Context, run cypherRunner, sender, receiver uuid.UUID, kind EdgeKind) (*Edge, error) {
	cypher := fmt.Sprintf(`
		MATCH (:Profile {id: $sender})-[r:%s]->(:Profile {id: $receiver})
		RETURN coalesce(r.status, '') AS status, r.created_at AS created_at, r.updated_at AS updated_at`, relType(kind))
	res, err := run(ctx, cypher, map[string]any{"sender": sender.String(), "receiver": receiver.String()})
	if err != nil {
		return nil, graphError(ctx, "find edge", err)
	}
	rec := res.First()
	if rec == nil {
		return nil, nil
	}

	status, _ := rec.String("status")
	created, _ := rec.Int("created_at")
	updated, _ := rec.Int("updated_at")
	return &Edge{
		SenderID:   sender,
		ReceiverID: receiver,
		Kind:       kind,
		Status:     RequestStatus(status),
		CreatedAt:  time.UnixMilli(created).UTC(),
		UpdatedAt:  time.UnixMilli(updated).UTC(),
	}, nil
}

func graphUpsertEdge(ctx context.Context, run cypherRunner, e *Edge) error {
	if e.SenderID == e.ReceiverID {
		return ErrSelfRelationship
	}
	cypher := fmt.Sprintf(`
		MERGE (a:Profile {id: $sender})
		MERGE (b:Profile {id: $receiver})
		MERGE (a)-[r:%s]->(b)
		SET r.status = $status, r.created_at = $createdAt, r.updated_at = $updatedAt`, relType(e.Kind))
	params := map[string]any{
		"sender":    e.SenderID.String(),
		"receiver":  e.ReceiverID.String(),
		"status":    string(e.Status),
		"createdAt": e.CreatedAt.UnixMilli(),
		"updatedAt": e.UpdatedAt.UnixMilli(),
	}
	if e.Kind == KindFollow {
		params["status"] = nil
	}
	if _, err := run(ctx, cypher, params); err != nil {
		return graphError(ctx, "upsert edge", err)
	}
	return nil
}

func graphDeleteEdge(ctx context.Context, run cypherRunner, sender, receiver uuid.UUID, kind EdgeKind) (bool, error) {
	cypher := fmt.Sprintf(`
		OPTIONAL MATCH (:Profile {id: $sender})-[r:%s]->(:Profile {id: $receiver})
		WITH r, count(r) AS deleted
		DELETE r
		RETURN deleted`, relType(kind))
	res, err := run(ctx, cypher, map[string]any{"sender": sender.String(), "receiver": receiver.String()})
	if err != nil {
		return false, graphError(ctx, "delete edge", err)
	}
	rec := res.First()
	if rec == nil {
		return false, nil
	}
	deleted, _ := rec.Int("deleted")
	return deleted > 0, nil
}

const acceptedFriends = `(u:Profile {id: $userId})-[r:FRIEND_REQUEST {status: 'ACCEPTED'}]-(other:Profile)`

func (s *Neo4jStore) PageFriends(ctx context.Context, userID uuid.UUID, p Pagination) (*Page[uuid.UUID], error) {
	return s.page(ctx, "page friends",
		`MATCH `+acceptedFriends+` RETURN count(DISTINCT other) AS total`,
		`MATCH `+acceptedFriends+`
		 RETURN other.id AS profile_id ORDER BY r.updated_at DESC, profile_id ASC SKIP $skip LIMIT $limit`,
		map[string]any{"userId": userID.String()}, p)
}

func (s *Neo4jStore) PageFollowers(ctx context.Context, userID uuid.UUID, p Pagination) (*Page[uuid.UUID], error) {
	match := `MATCH (other:Profile)-[r:FOLLOWS]->(:Profile {id: $userId})`
	return s.page(ctx, "page followers",
		match+` RETURN count(r) AS total`,
		match+` RETURN other.id AS profile_id ORDER BY r.created_at DESC, profile_id ASC SKIP $skip LIMIT $limit`,
		map[string]any{"userId": userID.String()}, p)
}

func (s *Neo4jStore) PageFollowing(ctx context.Context, userID uuid.UUID, p Pagination) (*Page[uuid.UUID], error) {
	match := `MATCH (:Profile {id: $userId})-[r:FOLLOWS]->(other:Profile)`
	return s.page(ctx, "page following",
		match+` RETURN count(r) AS total`,
		match+` RETURN other.id AS profile_id ORDER BY r.created_at DESC, profile_id ASC SKIP $skip LIMIT $limit`,
		map[string]any{"userId": userID.String()}, p)
}

func (s *Neo4jStore) PagePendingReceived(ctx context.Context, userID uuid.UUID, p Pagination) (*Page[uuid.UUID], error) {
	match := `MATCH (other:Profile)-[r:FRIEND_REQUEST {status: 'PENDING'}]->(:Profile {id: $userId})`
	return s.page(ctx, "page pending received",
		match+` RETURN count(r) AS total`,
		match+` RETURN other.id AS profile_id ORDER BY r.created_at DESC, profile_id ASC SKIP $skip LIMIT $limit`,
		map[string]any{"userId": userID.String()}, p)
}

func (s *Neo4jStore) PagePendingSent(ctx context.Context, userID uuid.UUID, p Pagination) (*Page[uuid.UUID], error) {
	match := `MATCH (:Profile {id: $userId})-[r:FRIEND_REQUEST {status: 'PENDING'}]->(other:Profile)`
	return s.page(ctx, "page pending sent",
		match+` RETURN count(r) AS total`,
		match+` RETURN other.id AS profile_id ORDER BY r.created_at DESC, profile_id ASC SKIP $skip LIMIT $limit`,
		map[string]any{"userId": userID.String()}, p)
}

func (s *Neo4jStore) PageMutualFriends(ctx context.Context, a, b uuid.UUID, p Pagination) (*Page[uuid.UUID], error) {
	match := `
		MATCH (:Profile {id: $a})-[:FRIEND_REQUEST {status: 'ACCEPTED'}]-(other:Profile)
		      -[:FRIEND_REQUEST {status: 'ACCEPTED'}]-(:Profile {id: $b})
		WITH DISTINCT other`
	return s.page(ctx, "page mutual friends",
		match+` RETURN count(other) AS total`,
		match+` RETURN other.id AS profile_id ORDER BY profile_id ASC SKIP $skip LIMIT $limit`,
		map[string]any{"a": a.String(), "b": b.String()}, p)
}

func (s *Neo4jStore) RankedSuggestions(ctx context.Context, userID uuid.UUID, limit int) ([]Suggestion, error) {
	cypher := `
		MATCH (u:Profile {id: $userId})-[:FRIEND_REQUEST {status: 'ACCEPTED'}]-(f:Profile)
		      -[:FRIEND_REQUEST {status: 'ACCEPTED'}]-(c:Profile)
		WHERE c <> u
		  AND NOT (u)-[:FRIEND_REQUEST {status: 'ACCEPTED'}]-(c)
		  AND NOT (u)-[:FRIEND_REQUEST {status: 'PENDING'}]-(c)
		WITH c, count(DISTINCT f) AS mutual_count
		RETURN c.id AS profile_id, mutual_count
		ORDER BY mutual_count DESC, profile_id ASC
		LIMIT $limit`

	start := time.Now()
	res, err := s.client.ExecuteRead(ctx, cypher, map[string]any{"userId": userID.String(), "limit": int64(limit)})
	observeStore("ranked suggestions", start)
	if err != nil {
		return nil, graphError(ctx, "ranked suggestions", err)
	}

	out := make([]Suggestion, 0, len(res.Records))
	for _, rec := range res.Records {
		id, err := recordID(rec, "profile_id")
		if err != nil {
			return nil, graphError(ctx, "ranked suggestions", err)
		}
		count, _ := rec.Int("mutual_count")
		out = append(out, Suggestion{ProfileID: id, MutualCount: int(count)})
	}
	return out, nil
}

func (s *Neo4jStore) page(ctx context.Context, op, countCypher, pageCypher string, params map[string]any, p Pagination) (*Page[uuid.UUID], error) {
	start := time.Now()
	defer observeStore(op, start)

	countRes, err := s.client.ExecuteRead(ctx, countCypher, params)
	if err != nil {
		return nil, graphError(ctx, op, err)
	}
	var total int64
	if rec := countRes.First(); rec != nil {
		total, _ = rec.Int("total")
	}

	page := &Page[uuid.UUID]{Items: []uuid.UUID{}, Total: int(total)}
	if int64(p.Offset()) >= total || p.Size <= 0 {
		return page, nil
	}

	pageParams := make(map[string]any, len(params)+2)
	for k, v := range params {
		pageParams[k] = v
	}
	pageParams["skip"] = int64(p.Offset())
	pageParams["limit"] = int64(p.Size)

	res, err := s.client.ExecuteRead(ctx, pageCypher, pageParams)
	if err != nil {
		return nil, graphError(ctx, op, err)
	}
	for _, rec := range res.Records {
		id, err := recordID(rec, "profile_id")
		if err != nil {
			return nil, graphError(ctx, op, err)
		}
		page.Items = append(page.Items, id)
	}
	return page, nil
}

func recordID(rec graph.Record, key string) (uuid.UUID, error) {
	raw, ok := rec.String(key)
	if !ok {
		return uuid.Nil, fmt.Errorf("record field %q is not a string", key)
	}
	return uuid.Parse(raw)
}

func graphError(ctx context.Context, op string, err error) error {
	errorhandler.LogDatabaseError(ctx, op, err)
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
