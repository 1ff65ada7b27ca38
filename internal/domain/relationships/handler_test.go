package relationships

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwork/socialgraph-api/internal/middleware"
	"github.com/mwork/socialgraph-api/internal/pkg/response"
)

const testProfileHeader = "X-Test-Profile"

// headerIdentity treats the authenticated user id as the profile id.
type headerIdentity struct{}

func (headerIdentity) CurrentProfileID(ctx context.Context) (uuid.UUID, error) {
	id := middleware.GetUserID(ctx)
	if id == uuid.Nil {
		return uuid.Nil, ErrUnauthenticated
	}
	return id, nil
}

func testAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, err := uuid.Parse(r.Header.Get(testProfileHeader)); err == nil {
			r = r.WithContext(middleware.WithUserID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func passthrough(next http.Handler) http.Handler { return next }

type envelope struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

type server struct {
	*fixture
	router chi.Router
}

func newServer(t *testing.T) *server {
	t.Helper()
	f := newFixture(t)
	h := NewHandler(f.engine, f.queries, headerIdentity{}, Limits{
		PageSizeDefault: 20,
		PageSizeMax:     50,
		SuggestionsMax:  10,
		RetryAfter:      5 * time.Second,
	})

	r := chi.NewRouter()
	r.Mount("/relationships", h.Routes(testAuth, passthrough))
	r.Mount("/internal/relationships", h.InternalRoutes(passthrough))
	return &server{fixture: f, router: r}
}

func (s *server) do(t *testing.T, method, path string, caller uuid.UUID) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if caller != uuid.Nil {
		req.Header.Set(testProfileHeader, caller.String())
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestHandlerFriendRequestFlow(t *testing.T) {
	s := newServer(t)
	a, b := s.dir.add("alice"), s.dir.add("bob")

	rec, env := s.do(t, http.MethodPost, "/relationships/friend-requests/"+b.String(), a)
	require.Equal(t, http.StatusOK, rec.Code)
	var sent RelationshipResultResponse
	require.NoError(t, json.Unmarshal(env.Data, &sent))
	assert.Equal(t, StatusPending, sent.Status)
	assert.Equal(t, a, sent.SenderID)
	assert.Equal(t, b, sent.TargetID)

	rec, env = s.do(t, http.MethodGet, "/relationships/pending-requests", b)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, env.Meta)
	assert.Equal(t, 1, env.Meta.Total)

	rec, env = s.do(t, http.MethodPost, "/relationships/friend-requests/"+a.String()+"/accept", b)
	require.Equal(t, http.StatusOK, rec.Code)
	var accepted RelationshipResultResponse
	require.NoError(t, json.Unmarshal(env.Data, &accepted))
	assert.Equal(t, StatusAccepted, accepted.Status)
	assert.Equal(t, a, accepted.TargetID)

	rec, env = s.do(t, http.MethodGet, "/internal/relationships/are-friends?userId1="+b.String()+"&userId2="+a.String(), uuid.Nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var friends AreFriendsResponse
	require.NoError(t, json.Unmarshal(env.Data, &friends))
	assert.True(t, friends.AreFriends)

	rec, env = s.do(t, http.MethodDelete, "/relationships/friends/"+a.String(), b)
	require.Equal(t, http.StatusOK, rec.Code)
	var removed ActionResponse
	require.NoError(t, json.Unmarshal(env.Data, &removed))
	assert.True(t, removed.Result)
}

func TestHandlerErrorMapping(t *testing.T) {
	s := newServer(t)
	a, b, c := s.dir.add("alice"), s.dir.add("bob"), s.dir.add("carol")
	s.befriend(t, a, b)

	tests := []struct {
		name       string
		method     string
		path       string
		caller     uuid.UUID
		wantStatus int
		wantCode   string
	}{
		{name: "unauthenticated", method: http.MethodGet, path: "/relationships/friends", caller: uuid.Nil, wantStatus: http.StatusUnauthorized, wantCode: "UNAUTHORIZED"},
		{name: "malformed target", method: http.MethodPost, path: "/relationships/friend-requests/not-a-uuid", caller: a, wantStatus: http.StatusBadRequest, wantCode: "BAD_REQUEST"},
		{name: "unknown target", method: http.MethodPost, path: "/relationships/friend-requests/" + uuid.NewString(), caller: a, wantStatus: http.StatusNotFound, wantCode: "TARGET_NOT_FOUND"},
		{name: "self request", method: http.MethodPost, path: "/relationships/friend-requests/" + a.String(), caller: a, wantStatus: http.StatusBadRequest, wantCode: "SELF_RELATIONSHIP"},
		{name: "missing request", method: http.MethodPost, path: "/relationships/friend-requests/" + c.String() + "/accept", caller: a, wantStatus: http.StatusNotFound, wantCode: "REQUEST_NOT_FOUND"},
		{name: "reject a friendship", method: http.MethodPost, path: "/relationships/friend-requests/" + a.String() + "/reject", caller: b, wantStatus: http.StatusConflict, wantCode: "ALREADY_FRIENDS"},
		{name: "accept a friendship", method: http.MethodPost, path: "/relationships/friend-requests/" + a.String() + "/accept", caller: b, wantStatus: http.StatusConflict, wantCode: "REQUEST_ALREADY_PROCESSED"},
		{name: "remove non-friend", method: http.MethodDelete, path: "/relationships/friends/" + c.String(), caller: a, wantStatus: http.StatusConflict, wantCode: "NOT_FRIENDS"},
		{name: "negative page", method: http.MethodGet, path: "/relationships/friends?page=-1", caller: a, wantStatus: http.StatusUnprocessableEntity, wantCode: "VALIDATION_ERROR"},
		{name: "non-numeric size", method: http.MethodGet, path: "/relationships/friends?size=big", caller: a, wantStatus: http.StatusUnprocessableEntity, wantCode: "VALIDATION_ERROR"},
		{name: "bad internal friends id", method: http.MethodGet, path: "/internal/relationships/users/x/friends", caller: uuid.Nil, wantStatus: http.StatusBadRequest, wantCode: "BAD_REQUEST"},
		{name: "unknown internal friends id", method: http.MethodGet, path: "/internal/relationships/users/" + uuid.NewString() + "/friends", caller: uuid.Nil, wantStatus: http.StatusNotFound, wantCode: "TARGET_NOT_FOUND"},
		{name: "bad internal query", method: http.MethodGet, path: "/internal/relationships/are-friends?userId1=x", caller: uuid.Nil, wantStatus: http.StatusBadRequest, wantCode: "BAD_REQUEST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := s.do(t, tt.method, tt.path, tt.caller)
			assert.Equal(t, tt.wantStatus, rec.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantCode, env.Error.Code)
			assert.False(t, env.Success)
		})
	}
}

func TestHandlerInternalFriends(t *testing.T) {
	s := newServer(t)
	a, b, c := s.dir.add("alice"), s.dir.add("bob"), s.dir.add("carol")
	s.befriend(t, a, b)
	s.befriend(t, a, c)

	rec, env := s.do(t, http.MethodGet, "/internal/relationships/users/"+a.String()+"/friends?size=1", uuid.Nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, env.Meta)
	assert.Equal(t, 2, env.Meta.Total)
	assert.True(t, env.Meta.HasNext)

	var friends []struct {
		ID uuid.UUID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &friends))
	require.Len(t, friends, 1)
	assert.Contains(t, []uuid.UUID{b, c}, friends[0].ID)
}

func TestHandlerStoreUnavailable(t *testing.T) {
	s := newServer(t)
	a, b := s.dir.add("alice"), s.dir.add("bob")
	s.store.Fail(errors.New("connection reset"))

	rec, env := s.do(t, http.MethodPost, "/relationships/follows/"+b.String(), a)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))
	require.NotNil(t, env.Error)
	assert.Equal(t, "STORE_UNAVAILABLE", env.Error.Code)
}

func TestHandlerPageSizeIsClamped(t *testing.T) {
	s := newServer(t)
	a := s.dir.add("alice")

	rec, env := s.do(t, http.MethodGet, "/relationships/friends?page=0&size=1000", a)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, env.Meta)
	assert.Equal(t, 50, env.Meta.Size)
	assert.Equal(t, 0, env.Meta.Total)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestHandlerPageFarPastTheEndIsEmpty(t *testing.T) {
	s := newServer(t)
	a := s.dir.add("alice")
	for i := 0; i < 5; i++ {
		s.befriend(t, a, s.dir.add("friend"))
	}

	rec, env := s.do(t, http.MethodGet, "/relationships/friends?page=4611686018427387904&size=4", a)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, env.Meta)
	assert.Equal(t, 5, env.Meta.Total)
	assert.Equal(t, 4611686018427387904, env.Meta.Page)
	assert.False(t, env.Meta.HasNext)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestHandlerFollowSelfReturnsFalse(t *testing.T) {
	s := newServer(t)
	a := s.dir.add("alice")

	rec, env := s.do(t, http.MethodPost, "/relationships/follows/"+a.String(), a)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"result":false}`, string(env.Data))
}

func TestHandlerSuggestionsAndStatus(t *testing.T) {
	s := newServer(t)
	a, b, c := s.dir.add("alice"), s.dir.add("bob"), s.dir.add("carol")
	s.befriend(t, a, b)
	s.befriend(t, b, c)

	rec, env := s.do(t, http.MethodGet, "/relationships/suggestions?limit=500", a)
	require.Equal(t, http.StatusOK, rec.Code)
	var suggestions []SuggestionResponse
	require.NoError(t, json.Unmarshal(env.Data, &suggestions))
	require.Len(t, suggestions, 1)
	assert.Equal(t, c, suggestions[0].Profile.ID)
	assert.Equal(t, 1, suggestions[0].MutualFriends)

	rec, env = s.do(t, http.MethodGet, "/relationships/users/by-username/bob/status", a)
	require.Equal(t, http.StatusOK, rec.Code)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, b, status.ProfileID)
	assert.True(t, status.Friends)

	rec, env = s.do(t, http.MethodGet, "/relationships/users/"+c.String()+"/mutual-friends", a)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, env.Meta)
	assert.Equal(t, 1, env.Meta.Total)
}

func TestHandlerSuggestionsRejectsZeroLimit(t *testing.T) {
	s := newServer(t)
	a := s.dir.add("alice")

	rec, env := s.do(t, http.MethodGet, "/relationships/suggestions?limit=0", a)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.NotNil(t, env.Error)
	assert.Contains(t, env.Error.Details, "limit")
}
