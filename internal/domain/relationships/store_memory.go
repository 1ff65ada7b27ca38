package relationships

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type edgeKey struct {
	sender, receiver uuid.UUID
	kind             EdgeKind
}

type pairKey struct {
	lo, hi uuid.UUID
}

// MemoryStore keeps edges in process memory. It backs local development and
// the package tests; data is lost on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	edges map[edgeKey]Edge

	locksMu sync.Mutex
	locks   map[pairKey]*sync.Mutex

	failMu sync.RWMutex
	fail   error
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		edges: make(map[edgeKey]Edge),
		locks: make(map[pairKey]*sync.Mutex),
	}
}

// Fail makes every subsequent call return err wrapped in ErrStoreUnavailable.
// Pass nil to recover.
func (s *MemoryStore) Fail(err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	s.fail = err
}

func (s *MemoryStore) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	s.failMu.RLock()
	defer s.failMu.RUnlock()
	if s.fail != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, s.fail)
	}
	return nil
}

func (s *MemoryStore) EnsureSchema(ctx context.Context) error {
	return s.check(ctx)
}

func (s *MemoryStore) FindEdge(ctx context.Context, sender, receiver uuid.UUID, kind EdgeKind) (*Edge, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.edges[edgeKey{sender, receiver, kind}]; ok {
		return &e, nil
	}
	return nil, nil
}

func (s *MemoryStore) UpsertEdge(ctx context.Context, e *Edge) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if e.SenderID == e.ReceiverID {
		return ErrSelfRelationship
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges[edgeKey{e.SenderID, e.ReceiverID, e.Kind}] = *e
	return nil
}

func (s *MemoryStore) DeleteEdge(ctx context.Context, sender, receiver uuid.UUID, kind EdgeKind) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := edgeKey{sender, receiver, kind}
	if _, ok := s.edges[k]; !ok {
		return false, nil
	}
	delete(s.edges, k)
	return true, nil
}

func (s *MemoryStore) pairLock(a, b uuid.UUID) *sync.Mutex {
	lo, hi := canonicalPair(a, b)
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	k := pairKey{lo, hi}
	m, ok := s.locks[k]
	if !ok {
		m = &sync.Mutex{}
		s.locks[k] = m
	}
	return m
}

// Atomic buffers fn's writes and applies them only when fn succeeds.
func (s *MemoryStore) Atomic(ctx context.Context, a, b uuid.UUID, fn func(ctx context.Context, tx EdgeTx) error) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	lock := s.pairLock(a, b)
	lock.Lock()
	defer lock.Unlock()

	tx := &memoryTx{store: s, writes: make(map[edgeKey]*Edge)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := s.check(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range tx.writes {
		if e == nil {
			delete(s.edges, k)
			continue
		}
		s.edges[k] = *e
	}
	return nil
}

type memoryTx struct {
	store  *MemoryStore
	writes map[edgeKey]*Edge
}

func (t *memoryTx) FindEdge(ctx context.Context, sender, receiver uuid.UUID, kind EdgeKind) (*Edge, error) {
	if e, ok := t.writes[edgeKey{sender, receiver, kind}]; ok {
		if e == nil {
			return nil, nil
		}
		cp := *e
		return &cp, nil
	}
	return t.store.FindEdge(ctx, sender, receiver, kind)
}

func (t *memoryTx) UpsertEdge(ctx context.Context, e *Edge) error {
	if err := t.store.check(ctx); err != nil {
		return err
	}
	if e.SenderID == e.ReceiverID {
		return ErrSelfRelationship
	}
	cp := *e
	t.writes[edgeKey{e.SenderID, e.ReceiverID, e.Kind}] = &cp
	return nil
}

func (t *memoryTx) DeleteEdge(ctx context.Context, sender, receiver uuid.UUID, kind EdgeKind) (bool, error) {
	existing, err := t.FindEdge(ctx, sender, receiver, kind)
	if err != nil {
		return false, err
	}
	t.writes[edgeKey{sender, receiver, kind}] = nil
	return existing != nil, nil
}

type rankedID struct {
	id uuid.UUID
	at time.Time
}

// collect returns the counterpart ids of matching edges, newest first, ties by id.
func (s *MemoryStore) collect(ctx context.Context, match func(Edge) (uuid.UUID, bool)) ([]uuid.UUID, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var ranked []rankedID
	for _, e := range s.edges {
		if id, ok := match(e); ok {
			at := e.CreatedAt
			if e.Kind == KindFriendRequest && e.Status == StatusAccepted {
				at = e.UpdatedAt
			}
			ranked = append(ranked, rankedID{id: id, at: at})
		}
	}
	s.mu.RUnlock()

	sort.Slice(ranked, func(i, j int) bool {
		if !ranked[i].at.Equal(ranked[j].at) {
			return ranked[i].at.After(ranked[j].at)
		}
		return uuidLess(ranked[i].id, ranked[j].id)
	})

	ids := make([]uuid.UUID, len(ranked))
	for i, r := range ranked {
		ids[i] = r.id
	}
	return ids, nil
}

func (s *MemoryStore) friendIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	return s.collect(ctx, func(e Edge) (uuid.UUID, bool) {
		if !e.IsAccepted() {
			return uuid.Nil, false
		}
		if e.SenderID == userID || e.ReceiverID == userID {
			return e.Counterpart(userID), true
		}
		return uuid.Nil, false
	})
}

func (s *MemoryStore) PageFriends(ctx context.Context, userID uuid.UUID, p Pagination) (*Page[uuid.UUID], error) {
	ids, err := s.friendIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	return paginate(ids, p), nil
}

func (s *MemoryStore) PageFollowers(ctx context.Context, userID uuid.UUID, p Pagination) (*Page[uuid.UUID], error) {
	ids, err := s.collect(ctx, func(e Edge) (uuid.UUID, bool) {
		return e.SenderID, e.Kind == KindFollow && e.ReceiverID == userID
	})
	if err != nil {
		return nil, err
	}
	return paginate(ids, p), nil
}

func (s *MemoryStore) PageFollowing(ctx context.Context, userID uuid.UUID, p Pagination) (*Page[uuid.UUID], error) {
	ids, err := s.collect(ctx, func(e Edge) (uuid.UUID, bool) {
		return e.ReceiverID, e.Kind == KindFollow && e.SenderID == userID
	})
	if err != nil {
		return nil, err
	}
	return paginate(ids, p), nil
}

func (s *MemoryStore) PagePendingReceived(ctx context.Context, userID uuid.UUID, p Pagination) (*Page[uuid.UUID], error) {
	ids, err := s.collect(ctx, func(e Edge) (uuid.UUID, bool) {
		return e.SenderID, e.IsPending() && e.ReceiverID == userID
	})
	if err != nil {
		return nil, err
	}
	return paginate(ids, p), nil
}

func (s *MemoryStore) PagePendingSent(ctx context.Context, userID uuid.UUID, p Pagination) (*Page[uuid.UUID], error) {
	ids, err := s.collect(ctx, func(e Edge) (uuid.UUID, bool) {
		return e.ReceiverID, e.IsPending() && e.SenderID == userID
	})
	if err != nil {
		return nil, err
	}
	return paginate(ids, p), nil
}

func (s *MemoryStore) PageMutualFriends(ctx context.Context, a, b uuid.UUID, p Pagination) (*Page[uuid.UUID], error) {
	friendsA, err := s.friendIDs(ctx, a)
	if err != nil {
		return nil, err
	}
	friendsB, err := s.friendIDs(ctx, b)
	if err != nil {
		return nil, err
	}

	inB := make(map[uuid.UUID]struct{}, len(friendsB))
	for _, id := range friendsB {
		inB[id] = struct{}{}
	}
	var mutual []uuid.UUID
	for _, id := range friendsA {
		if _, ok := inB[id]; ok {
			mutual = append(mutual, id)
		}
	}
	sort.Slice(mutual, func(i, j int) bool { return uuidLess(mutual[i], mutual[j]) })
	return paginate(mutual, p), nil
}

func (s *MemoryStore) RankedSuggestions(ctx context.Context, userID uuid.UUID, limit int) ([]Suggestion, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	adjacency := make(map[uuid.UUID][]uuid.UUID)
	excluded := map[uuid.UUID]struct{}{userID: {}}
	for _, e := range s.edges {
		switch {
		case e.IsAccepted():
			adjacency[e.SenderID] = append(adjacency[e.SenderID], e.ReceiverID)
			adjacency[e.ReceiverID] = append(adjacency[e.ReceiverID], e.SenderID)
			if e.SenderID == userID || e.ReceiverID == userID {
				excluded[e.Counterpart(userID)] = struct{}{}
			}
		case e.IsPending():
			if e.SenderID == userID || e.ReceiverID == userID {
				excluded[e.Counterpart(userID)] = struct{}{}
			}
		}
	}
	s.mu.RUnlock()

	mutual := make(map[uuid.UUID]map[uuid.UUID]struct{})
	for _, friend := range adjacency[userID] {
		for _, candidate := range adjacency[friend] {
			if _, skip := excluded[candidate]; skip {
				continue
			}
			if mutual[candidate] == nil {
				mutual[candidate] = make(map[uuid.UUID]struct{})
			}
			mutual[candidate][friend] = struct{}{}
		}
	}

	out := make([]Suggestion, 0, len(mutual))
	for id, via := range mutual {
		out = append(out, Suggestion{ProfileID: id, MutualCount: len(via)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MutualCount != out[j].MutualCount {
			return out[i].MutualCount > out[j].MutualCount
		}
		return uuidLess(out[i].ProfileID, out[j].ProfileID)
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func paginate(ids []uuid.UUID, p Pagination) *Page[uuid.UUID] {
	page := &Page[uuid.UUID]{Items: []uuid.UUID{}, Total: len(ids)}
	start := p.Offset()
	if p.Size <= 0 || start >= len(ids) {
		return page
	}
	end := len(ids)
	if p.Size < end-start {
		end = start + p.Size
	}
	page.Items = append(page.Items, ids[start:end]...)
	return page
}

func uuidLess(a, b uuid.UUID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}
