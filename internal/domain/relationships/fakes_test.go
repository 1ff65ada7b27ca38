package relationships

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mwork/socialgraph-api/internal/domain/profile"
)

type fakeDirectory struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]*profile.Profile
	err      error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{profiles: make(map[uuid.UUID]*profile.Profile)}
}

func (d *fakeDirectory) add(username string) uuid.UUID {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := uuid.New()
	d.profiles[id] = &profile.Profile{
		ID:        id,
		UserID:    uuid.New(),
		Username:  username,
		FirstName: sql.NullString{String: username, Valid: true},
	}
	return id
}

func (d *fakeDirectory) remove(id uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.profiles, id)
}

func (d *fakeDirectory) fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

func (d *fakeDirectory) GetByID(_ context.Context, id uuid.UUID) (*profile.Profile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	if p, ok := d.profiles[id]; ok {
		return p, nil
	}
	return nil, profile.ErrProfileNotFound
}

func (d *fakeDirectory) GetByUsername(_ context.Context, username string) (*profile.Profile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	for _, p := range d.profiles {
		if p.Username == username {
			return p, nil
		}
	}
	return nil, profile.ErrProfileNotFound
}

func (d *fakeDirectory) GetByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*profile.Profile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	out := make(map[uuid.UUID]*profile.Profile, len(ids))
	for _, id := range ids {
		if p, ok := d.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []RelationshipEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e RelationshipEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) types() []EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type memoryCache struct {
	mu          sync.Mutex
	entries     map[uuid.UUID]map[int][]Suggestion
	invalidated []uuid.UUID
	gets, sets  int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[uuid.UUID]map[int][]Suggestion)}
}

func (c *memoryCache) Get(_ context.Context, id uuid.UUID, limit int) ([]Suggestion, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	s, ok := c.entries[id][limit]
	return s, ok, nil
}

func (c *memoryCache) Set(_ context.Context, id uuid.UUID, limit int, s []Suggestion) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	if c.entries[id] == nil {
		c.entries[id] = make(map[int][]Suggestion)
	}
	c.entries[id][limit] = s
	return nil
}

func (c *memoryCache) Invalidate(_ context.Context, ids ...uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.entries, id)
		c.invalidated = append(c.invalidated, id)
	}
	return nil
}

// blockingStore waits for the context to expire on every Atomic call.
type blockingStore struct {
	*MemoryStore
}

func (s blockingStore) Atomic(ctx context.Context, _, _ uuid.UUID, _ func(context.Context, EdgeTx) error) error {
	<-ctx.Done()
	return ctx.Err()
}

type fixture struct {
	store     *MemoryStore
	dir       *fakeDirectory
	publisher *recordingPublisher
	cache     *memoryCache
	engine    *Engine
	queries   *QueryService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     NewMemoryStore(),
		dir:       newFakeDirectory(),
		publisher: &recordingPublisher{},
		cache:     newMemoryCache(),
	}
	f.engine = NewEngine(f.store, f.dir, f.publisher, f.cache, time.Second)
	f.queries = NewQueryService(f.store, f.dir, f.cache, time.Second)

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	f.engine.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}
	return f
}

func (f *fixture) befriend(t *testing.T, a, b uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.engine.SendFriendRequest(ctx, a, b); err != nil {
		t.Fatalf("send %s->%s: %v", a, b, err)
	}
	if _, err := f.engine.AcceptFriendRequest(ctx, b, a); err != nil {
		t.Fatalf("accept %s->%s: %v", a, b, err)
	}
}

// friendRequestEdges returns every FRIEND_REQUEST edge between a and b in either direction.
func (f *fixture) friendRequestEdges(t *testing.T, a, b uuid.UUID) []*Edge {
	t.Helper()
	var out []*Edge
	for _, dir := range [][2]uuid.UUID{{a, b}, {b, a}} {
		e, err := f.store.FindEdge(context.Background(), dir[0], dir[1], KindFriendRequest)
		if err != nil {
			t.Fatalf("find edge: %v", err)
		}
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

func ids(items []*profile.Summary) []uuid.UUID {
	out := make([]uuid.UUID, len(items))
	for i, s := range items {
		out[i] = s.ID
	}
	return out
}

func containsID(list []uuid.UUID, id uuid.UUID) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
