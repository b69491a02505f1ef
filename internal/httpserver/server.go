// internal/httpserver/server.go
//
// HTTP server wiring for the wordly backend.
// Responsibilities:
//   - Router + middleware (request IDs, access logs, CORS, timeouts, panic recovery).
//   - Proxy headers are trusted only when Options.TrustProxy is set.
//   - Public endpoints: "/", "/health".
//   - Game endpoints under /api: config, guess, state, scores.
//   - Admin endpoints under /api/admin: verify, reset.
//   - Mapping service errors to status codes and JSON bodies.
//
// Notes:
//   - CORS is origin-aware and credentials-enabled.
//   - Handlers are thin: decode, call the service, encode.

package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/wordly/internal/game"
	"github.com/robalobadob/wordly/internal/service"
	"github.com/robalobadob/wordly/internal/store"
)

// maxBodyBytes bounds request bodies; every payload here is tiny.
const maxBodyBytes = 1 << 16

var endpoints = []string{
	"/health", "GET /api/config", "POST /api/guess", "GET|POST /api/state",
	"GET /api/scores", "POST /api/admin/verify", "POST /api/admin/reset",
}

// Options configures the router.
type Options struct {
	Origins []string
	Timeout time.Duration

	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Enable only behind a proxy that overwrites those headers.
	TrustProxy bool
}

// Server bundles the router and the services it exposes.
type Server struct {
	r     *chi.Mux
	game  *service.Game
	admin *service.Admin
}

// New constructs a Server, installs middleware, and registers routes.
func New(g *service.Game, a *service.Admin, opts Options) *Server {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	s := &Server{r: chi.NewRouter(), game: g, admin: a}

	// --- middleware ---
	s.r.Use(chimw.RequestID) // add X-Request-ID
	if opts.TrustProxy {
		s.r.Use(chimw.RealIP) // set RemoteAddr from X-Forwarded-For etc.
	}
	s.r.Use(requestLogger(log.Logger))   // structured access log
	s.r.Use(chimw.Recoverer)             // recover from panics
	s.r.Use(chimw.Timeout(opts.Timeout)) // bound handler time
	s.r.Use(jsonContentType)             // default JSON responses
	s.r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.Origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// --- diagnostics ---
	s.r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"service":   "wordly",
			"endpoints": endpoints,
		})
	})
	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	s.r.Route("/api", func(r chi.Router) {
		s.mountGame(r)
		s.mountAdmin(r)
	})

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "path": r.URL.Path})
	})

	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.r.ServeHTTP(w, r) }

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// ------------------------------- encoding ----------------------------------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("encode response")
	}
}

// decodeJSON reads a bounded JSON body into v, answering 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_json", "code": "invalid_json"})
		return false
	}
	return true
}

type errorBody struct {
	Error       string `json:"error"`
	Code        string `json:"code,omitempty"`
	NextGameUID string `json:"nextGameUid,omitempty"`
	WordLength  int    `json:"wordLength,omitempty"`
	MaxGuesses  int    `json:"maxGuesses,omitempty"`
}

// writeError maps service errors onto HTTP responses.
//
//	ValidationError      → 400
//	ErrUnauthorized      → 403
//	ConflictError        → 409 name_taken
//	ErrGameOver/TooMany  → 409 game_over
//	EpochMismatchError   → 409 game_reset (+ next game dimensions)
//	RateLimitError       → 429 (+ Retry-After)
//	no active game       → 503
//	anything else        → 500 server_error
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		invalid  *game.ValidationError
		conflict *game.ConflictError
		mismatch *game.EpochMismatchError
		limited  *game.RateLimitError
	)
	switch {
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: invalid.Message, Code: invalid.Code})
	case errors.Is(err, game.ErrUnauthorized):
		writeJSON(w, http.StatusForbidden, errorBody{Error: err.Error(), Code: "unauthorized"})
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: conflict.Error(), Code: "name_taken"})
	case errors.Is(err, game.ErrGameOver), errors.Is(err, game.ErrTooManyGuesses):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Code: "game_over"})
	case errors.As(err, &mismatch):
		writeJSON(w, http.StatusConflict, errorBody{
			Error:       mismatch.Error(),
			Code:        "game_reset",
			NextGameUID: mismatch.Epoch.GameUID,
			WordLength:  mismatch.Epoch.WordLength,
			MaxGuesses:  mismatch.Epoch.MaxGuesses,
		})
	case errors.As(err, &limited):
		w.Header().Set("Retry-After", strconv.Itoa(limited.RetryAfterSeconds))
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: limited.Error(), Code: "rate_limited"})
	case errors.Is(err, store.ErrNoEpoch):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "no_active_game"})
	default:
		log.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("requestId", chimw.GetReqID(r.Context())).
			Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "server_error"})
	}
}
