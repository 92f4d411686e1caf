// Converse - Conversational Commerce Server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/raqibtech/converse/internal/api"
	"github.com/raqibtech/converse/internal/catalog"
	"github.com/raqibtech/converse/internal/checkout"
	"github.com/raqibtech/converse/internal/config"
	"github.com/raqibtech/converse/internal/engine"
	"github.com/raqibtech/converse/internal/identity"
	"github.com/raqibtech/converse/internal/memory"
	"github.com/raqibtech/converse/internal/middleware"
	"github.com/raqibtech/converse/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	if err := catalog.SeedIfEmpty(context.Background(), repo, cfg.CatalogPath); err != nil {
		slog.Error("Failed to seed catalog", "error", err)
		os.Exit(1)
	}

	// Conversation memory: session blobs and tier records live in the
	// database cache table, with an in-process cache taking over reads
	// and writes when the database is unavailable.
	dbStore := memory.NewRepositoryStore(repo)
	localStore, err := memory.NewRistrettoStore()
	if err != nil {
		slog.Error("Failed to initialize local memory cache", "error", err)
		os.Exit(1)
	}
	kv := memory.NewCompositeStore(dbStore, localStore)

	sessions := memory.NewSessionStore(kv, cfg.Memory.SessionTTL)
	semantic := memory.NewSemanticIndex(nil)
	coordinator := memory.NewCoordinator(sessions, kv, semantic, cfg.Memory)

	// Conversation engine.
	resolver := catalog.NewResolver(repo)
	orchestrator := checkout.NewOrchestrator(repo)
	eng := engine.New(sessions, coordinator, resolver, orchestrator)

	// Initialize handlers.
	chatHandler := api.NewHandler(eng, cfg.FrontendURL)
	healthHandler := api.NewHealthHandler(repo)
	wsHandler := api.NewWebSocketHandler(eng, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(identity.Middleware(repo, cfg.IsDevelopment()))

	// Routes.
	healthHandler.RegisterHealth(r)
	chatHandler.RegisterRoutes(r)
	r.Get("/ws/chat", wsHandler.ServeHTTP)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket chat connections stay open
		IdleTimeout:  120 * time.Second,
	}

	// Start memory sweeper.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	memory.StartSweeper(ctx, repo, cfg.Memory.SweepInterval)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
