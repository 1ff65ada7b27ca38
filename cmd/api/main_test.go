package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mwork/socialgraph-api/internal/config"
	"github.com/mwork/socialgraph-api/internal/domain/relationships"
	"github.com/mwork/socialgraph-api/internal/middleware"
	"github.com/mwork/socialgraph-api/internal/pkg/jwt"
)

type staticIdentity struct{ id uuid.UUID }

func (s staticIdentity) CurrentProfileID(context.Context) (uuid.UUID, error) { return s.id, nil }

func testRouter(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	store, cleanup, err := openStore(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	t.Cleanup(cleanup)

	engine := relationships.NewEngine(store, nil, nil, nil, time.Second)
	queries := relationships.NewQueryService(store, nil, nil, time.Second)
	h := relationships.NewHandler(engine, queries, staticIdentity{id: uuid.New()}, relationships.Limits{
		PageSizeDefault: 20,
		PageSizeMax:     100,
		SuggestionsMax:  50,
		RetryAfter:      time.Second,
	})
	return newRouter(cfg, h, jwt.NewService("test-secret", time.Minute), middleware.NewLocalLimiter(60, 10))
}

func testConfig() *config.Config {
	return &config.Config{
		StoreBackend:     config.BackendMemory,
		AllowedOrigins:   []string{"http://localhost:3000"},
		InternalAPIToken: "internal-secret",
		MetricsEnabled:   true,
	}
}

func TestOpenStoreRejectsUnknownBackend(t *testing.T) {
	cfg := testConfig()
	cfg.StoreBackend = "cassandra"

	if _, _, err := openStore(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected an error for an unknown backend")
	}
}

func TestOpenStorePostgresRequiresDatabase(t *testing.T) {
	cfg := testConfig()
	cfg.StoreBackend = config.BackendPostgres

	if _, _, err := openStore(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected an error without a database connection")
	}
}

func TestRouterMountsRoutes(t *testing.T) {
	router := testRouter(t, testConfig())
	other := uuid.NewString()

	tests := []struct {
		name   string
		method string
		path   string
		header map[string]string
		want   int
	}{
		{name: "health", method: http.MethodGet, path: "/health", want: http.StatusOK},
		{name: "ping", method: http.MethodGet, path: "/api/v1/ping", want: http.StatusOK},
		{name: "metrics", method: http.MethodGet, path: "/metrics", want: http.StatusOK},
		{name: "relationships require auth", method: http.MethodGet, path: "/api/v1/relationships/friends", want: http.StatusUnauthorized},
		{name: "send requires auth", method: http.MethodPost, path: "/api/v1/relationships/friend-requests/" + other, want: http.StatusUnauthorized},
		{name: "internal requires token", method: http.MethodGet, path: "/api/v1/internal/relationships/are-friends?userId1=" + other + "&userId2=" + other, want: http.StatusUnauthorized},
		{
			name:   "internal with token",
			method: http.MethodGet,
			path:   "/api/v1/internal/relationships/are-friends?userId1=" + other + "&userId2=" + uuid.NewString(),
			header: map[string]string{middleware.InternalTokenHeader: "internal-secret"},
			want:   http.StatusOK,
		},
		{name: "internal friends requires token", method: http.MethodGet, path: "/api/v1/internal/relationships/users/" + other + "/friends", want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Fatalf("expected status %d, got %d: %s", tt.want, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestRouterWithoutMetrics(t *testing.T) {
	cfg := testConfig()
	cfg.MetricsEnabled = false
	router := testRouter(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when metrics are disabled, got %d", rr.Code)
	}
}
