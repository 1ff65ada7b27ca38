package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/mwork/socialgraph-api/internal/config"
	"github.com/mwork/socialgraph-api/internal/domain/profile"
	"github.com/mwork/socialgraph-api/internal/domain/relationships"
	"github.com/mwork/socialgraph-api/internal/middleware"
	"github.com/mwork/socialgraph-api/internal/pkg/database"
	"github.com/mwork/socialgraph-api/internal/pkg/graph"
	"github.com/mwork/socialgraph-api/internal/pkg/jwt"
	"github.com/mwork/socialgraph-api/internal/pkg/logger"
	pkgresponse "github.com/mwork/socialgraph-api/internal/pkg/response"
)

func main() {
	cfg := config.Load()
	logger.Init(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Env,
		LogFile:     os.Getenv("LOG_FILE"),
	})

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Str("store", cfg.StoreBackend).
		Msg("Starting social graph API")

	db, err := database.NewPostgres(cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	redis, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redis)

	store, closeStore, err := openStore(context.Background(), cfg, db)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("Failed to open relationship store")
	}
	defer closeStore()

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)

	// ---------- Relationships ----------
	profileRepo := profile.NewRepository(db)
	publisher := relationships.NewRedisPublisher(redis, cfg.EventsChannel)
	suggestionCache := relationships.NewRedisSuggestionCache(redis, cfg.SuggestionsCacheTTL)

	engine := relationships.NewEngine(store, profileRepo, publisher, suggestionCache, cfg.StoreTimeout)
	queries := relationships.NewQueryService(store, profileRepo, suggestionCache, cfg.StoreTimeout)
	handler := relationships.NewHandler(engine, queries, profile.NewResolver(profileRepo), relationships.Limits{
		PageSizeDefault: cfg.PageSizeDefault,
		PageSizeMax:     cfg.PageSizeMax,
		SuggestionsMax:  cfg.SuggestionsMax,
		RetryAfter:      cfg.StoreTimeout,
	})

	sendLimiter := middleware.NewLimiter(redis, "friend_request", cfg.FriendRequestRate, cfg.FriendRequestBurst)

	r := newRouter(cfg, handler, jwtService, sendLimiter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
		return
	}

	log.Info().Msg("Server exited properly")
}

// openStore builds the configured relationship store and prepares its schema.
// The returned func releases backend resources.
func openStore(ctx context.Context, cfg *config.Config, db *sqlx.DB) (relationships.Store, func(), error) {
	var (
		store   relationships.Store
		cleanup = func() {}
	)

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		if db == nil {
			return nil, nil, errors.New("postgres store requires a database connection")
		}
		store = relationships.NewPostgresStore(db)
	case config.BackendNeo4j:
		client, err := database.NewNeo4j(graph.Options{
			URI:            cfg.Neo4jURI,
			Database:       cfg.Neo4jDatabase,
			Username:       cfg.Neo4jUser,
			Password:       cfg.Neo4jPassword,
			MaxConnections: cfg.Neo4jMaxConnections,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect neo4j: %w", err)
		}
		store = relationships.NewNeo4jStore(client)
		cleanup = func() { database.CloseNeo4j(client) }
	case config.BackendMemory:
		log.Warn().Msg("Using in-memory relationship store; data is lost on restart")
		store = relationships.NewMemoryStore()
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	schemaCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := store.EnsureSchema(schemaCtx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, cleanup, nil
}

func newRouter(cfg *config.Config, h *relationships.Handler, jwtService *jwt.Service, sendLimiter middleware.Limiter) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status": "ok",
			"store":  cfg.StoreBackend,
		})
	})

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	authMiddleware := middleware.Auth(jwtService)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			pkgresponse.OK(w, map[string]string{"message": "pong"})
		})

		r.Mount("/relationships", h.Routes(authMiddleware, middleware.RateLimitPerUser(sendLimiter)))
		r.Mount("/internal/relationships", h.InternalRoutes(middleware.InternalToken(cfg.InternalAPIToken)))
	})

	return r
}
