package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jharjadi/pro-rag/highlight-api/internal/config"
	"github.com/jharjadi/pro-rag/highlight-api/internal/db"
	"github.com/jharjadi/pro-rag/highlight-api/internal/handler"
	"github.com/jharjadi/pro-rag/highlight-api/internal/metrics"
	authmw "github.com/jharjadi/pro-rag/highlight-api/internal/middleware"
	"github.com/jharjadi/pro-rag/highlight-api/internal/service"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Connect to database with retry
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.CheckSchema(ctx, pool); err != nil {
		slog.Error("document schema check failed", "error", err)
		os.Exit(1)
	}

	// Initialize services
	appMetrics := metrics.New()
	authSvc := service.NewAuthService(cfg.JWTSecret, cfg.JWTExpiryHours)
	matcher := service.NewHighlightMatcher(service.HighlightOptions{
		MaxSpan:       cfg.HighlightMaxSpan,
		MinWordLength: cfg.HighlightMinWordLen,
		StopWords:     cfg.HighlightStopWords,
	})
	sessions := service.NewSessionStore(matcher, cfg.SessionIdleTTL(), cfg.HighlightMaxFragments)
	appMetrics.TrackSessions(sessions.Len)

	// Initialize handlers
	authHandler := handler.NewAuthHandler(service.NewUserStore(pool), authSvc)
	highlightHandler := handler.NewHighlightHandler(cfg, matcher, service.NewChunkStore(pool), appMetrics)
	sessionHandler := handler.NewSessionHandler(cfg, sessions, appMetrics)

	// Build router
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	// Health check (no auth required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"status":"unhealthy","error":%q}`, err.Error())
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok"}`)
	})
	r.Handle("/metrics", appMetrics.Handler())

	// Auth endpoints (no auth required, these issue tokens)
	r.Post("/v1/auth/login", authHandler.Login)

	// Protected endpoints: JWT when AUTH_ENABLED=true, tenant_id param or X-Tenant-ID header when false
	r.Group(func(r chi.Router) {
		r.Use(authmw.AuthMiddleware(authSvc, cfg.AuthEnabled))

		r.Post("/v1/highlights/match", highlightHandler.Match)
		// Reads stored chunk text, so it is limited to tenant members
		r.With(authmw.RequireRole("admin", "user")).
			Post("/v1/documents/{id}/highlights", highlightHandler.DocumentHighlights)

		r.Route("/v1/viewer-sessions", func(r chi.Router) {
			r.Post("/", sessionHandler.Create)
			r.Delete("/{id}", sessionHandler.Delete)
			r.Get("/{id}/matches", sessionHandler.Matches)
			r.Put("/{id}/targets", sessionHandler.PutTargets)
			r.Put("/{id}/pages/{page}", sessionHandler.PutPage)
			r.Delete("/{id}/pages/{page}", sessionHandler.DeletePage)
		})
	})

	slog.Info("highlight configuration",
		"auth_enabled", cfg.AuthEnabled,
		"max_span", matcher.MaxSpan(),
		"min_word_len", cfg.HighlightMinWordLen,
		"custom_stop_words", len(cfg.HighlightStopWords) > 0,
		"session_idle_ttl", cfg.SessionIdleTTL().String(),
	)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Graceful shutdown
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sessions.RunSweeper(shutdownCtx, cfg.SessionSweepInterval())

	go func() {
		slog.Info("starting server", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-shutdownCtx.Done()
	slog.Info("shutting down server...")

	cancelCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(cancelCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}
