// internal/httpserver/server.go
//
// HTTP server wiring for the Static Frontier backend.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs).
//   - Public endpoints: "/", "/health".
//   - Game endpoints (optional auth): /api/game/*.
//   - Puzzle catalog, submission, and moderation endpoints.
//   - Creator / echo-points leaderboards and daily puzzle endpoints.
//   - Auth endpoints backed by the SQLite users table.
//
// Notes:
//   - CORS is origin-aware and credentials-enabled (so cookies work).
//   - Optional auth decorates requests with user context when a valid token
//     is present; guests play as "Anonymous".
//   - Community and post identifiers are explicit request parameters.

package httpserver

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/AswinBehera/staticfrontier/internal/game"
	"github.com/AswinBehera/staticfrontier/internal/notify"
	"github.com/AswinBehera/staticfrontier/internal/points"
	"github.com/AswinBehera/staticfrontier/internal/puzzles"
	"github.com/AswinBehera/staticfrontier/internal/store"
	"github.com/AswinBehera/staticfrontier/internal/territory"
)

// Server bundles the router, the KV-backed game services, and the DB handle
// used for auth.
type Server struct {
	r        *chi.Mux
	db       *sql.DB
	kv       store.KV
	engine   *game.Engine
	catalog  *puzzles.Catalog
	subs     *puzzles.Submissions
	maps     *territory.Allocator
	ledger   *points.Ledger
	notifier notify.Notifier
}

// New constructs a Server, installs middleware, and registers routes.
func New(kv store.KV, db *sql.DB, notifier notify.Notifier) *Server {
	catalog := puzzles.NewCatalog(kv)
	ledger := points.NewLedger(kv)
	maps := territory.NewAllocator(kv)
	s := &Server{
		r:        chi.NewRouter(),
		db:       db,
		kv:       kv,
		engine:   game.NewEngine(kv, catalog, maps, ledger, notifier),
		catalog:  catalog,
		subs:     puzzles.NewSubmissions(kv, ledger, notifier),
		maps:     maps,
		ledger:   ledger,
		notifier: notifier,
	}

	// --- middleware ---
	s.r.Use(chimw.RequestID)
	s.r.Use(chimw.RealIP)
	s.r.Use(chimw.Recoverer)
	s.r.Use(chimw.Timeout(10 * time.Second))
	s.r.Use(jsonContentType)
	s.r.Use(corsFromEnv)

	// --- diagnostics ---
	s.r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"service":"static-frontier","endpoints":["/health","/api/game/init","POST /api/game/phrase-check","POST /api/game/meta-solve","/api/puzzles","/auth/*"]}`))
	})
	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	s.r.Get("/debug/puzzles", func(w http.ResponseWriter, r *http.Request) {
		total, byCat, byDiff := puzzles.Stats()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"total": total, "byCategory": byCat, "byDifficulty": byDiff,
		})
	})

	// Game endpoints — OPTIONAL AUTH (guests can play)
	s.r.Route("/api/game", func(r chi.Router) {
		r.Use(s.withOptionalAuth())
		r.Get("/init", s.handleGameInit)
		r.Post("/phrase-check", s.handlePhraseCheck)
		r.Post("/meta-solve", s.handleMetaSolve)
		r.Get("/map", s.handleMap)
		r.Get("/plot/{row}/{col}", s.handlePlot)
	})

	s.mountPuzzles()
	s.mountDaily()
	s.mountAuthRoutes()

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not_found","path":"`+r.URL.Path+`"}`, http.StatusNotFound)
	})

	return s
}

// Start begins serving HTTP on addr.
func (s *Server) Start(addr string) error { return http.ListenAndServe(addr, s.r) }

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// corsFromEnv enables credentialed CORS for a single origin.
// Uses CLIENT_ORIGIN env var; defaults to http://localhost:5173.
func corsFromEnv(next http.Handler) http.Handler {
	origin := os.Getenv("CLIENT_ORIGIN")
	if origin == "" {
		origin = "http://localhost:5173"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ------------------------------- small util --------------------------------

// getEnv returns the value of k or def if unset/empty.
func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// envInt returns the integer value of k or def if unset/invalid.
func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// community resolves the community parameter with an env-driven default.
func community(r *http.Request) string {
	if c := r.URL.Query().Get("community"); c != "" {
		return c
	}
	return getEnv("DEFAULT_COMMUNITY", "frontier")
}

// writeJSON encodes v to the response.
func writeJSON(w http.ResponseWriter, v any) {
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr emits the standard structured failure shape.
func writeErr(w http.ResponseWriter, code int, msg string) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "message": msg})
}
