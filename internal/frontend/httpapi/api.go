// Package httpapi serves the REST endpoints used by clients before they open
// a WebSocket: account registration, login, the leaderboard and match
// history.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/cory-johannsen/tictactoe/internal/auth"
	"github.com/cory-johannsen/tictactoe/internal/gameserver"
	"github.com/cory-johannsen/tictactoe/internal/observability"
	"github.com/cory-johannsen/tictactoe/internal/protocol"
	"github.com/cory-johannsen/tictactoe/internal/storage"
)

// Options tunes API responses.
type Options struct {
	LeaderboardSize int
	HistoryLimit    int
	// WSPath mounts the WebSocket handler when non-empty.
	WSPath string
}

// ReadinessFunc reports whether backing services are reachable.
type ReadinessFunc func(ctx context.Context) error

// API holds the collaborators shared by the HTTP handlers.
type API struct {
	accounts *auth.Service
	store    storage.Store
	ready    ReadinessFunc
	opts     Options
	logger   *zap.Logger
}

// New creates an API. A nil ready function always reports ready.
//
// Precondition: accounts, store and logger must be non-nil.
func New(accounts *auth.Service, store storage.Store, ready ReadinessFunc, opts Options, logger *zap.Logger) *API {
	if opts.LeaderboardSize <= 0 {
		opts.LeaderboardSize = 10
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = storage.DefaultHistoryLimit
	}
	if ready == nil {
		ready = func(context.Context) error { return nil }
	}
	return &API{accounts: accounts, store: store, ready: ready, opts: opts, logger: logger}
}

// Router builds the chi router. sockets is mounted at Options.WSPath
// outside the request logger so long-lived connections do not log as one
// request.
func (a *API) Router(sockets http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.Recoverer(a.logger))

	if sockets != nil && a.opts.WSPath != "" {
		r.Handle(a.opts.WSPath, sockets)
	}

	r.Group(func(r chi.Router) {
		r.Use(observability.RequestLogger(a.logger))
		r.Get("/healthz", a.healthz)
		r.Get("/readyz", a.readyz)
		r.Route("/api", func(r chi.Router) {
			r.Post("/auth/register", a.register)
			r.Post("/auth/login", a.login)
			r.Get("/users/leaderboard", a.leaderboard)
			r.Get("/games/history/{userId}", a.history)
		})
	})
	return r
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	User  storage.User `json:"user"`
	Token string       `json:"token"`
}

type errorResponse struct {
	Message string `json:"message"`
}

func (a *API) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) readyz(w http.ResponseWriter, r *http.Request) {
	if err := a.ready(r.Context()); err != nil {
		a.logger.Warn("readiness check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Message: "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user data")
		return
	}
	u, err := a.accounts.Register(r.Context(), body.Username, body.Password)
	switch {
	case errors.Is(err, storage.ErrUserExists):
		writeError(w, http.StatusBadRequest, "Username already exists")
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "Invalid user data")
	case err != nil:
		a.logger.Error("registering user", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error creating user")
	default:
		writeJSON(w, http.StatusCreated, u)
	}
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}
	u, token, err := a.accounts.Login(r.Context(), body.Username, body.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "Username and password are required")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid username or password")
	case err != nil:
		a.logger.Error("logging in", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error during login")
	default:
		writeJSON(w, http.StatusOK, loginResponse{User: u, Token: token})
	}
}

func (a *API) leaderboard(w http.ResponseWriter, r *http.Request) {
	rows, err := a.store.GetLeaderboard(r.Context(), a.opts.LeaderboardSize)
	if err != nil {
		a.logger.Error("fetching leaderboard", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error fetching leaderboard")
		return
	}
	if rows == nil {
		rows = []storage.PlayerStats{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) history(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}
	entries, err := gameserver.LoadHistory(r.Context(), a.store, userID, a.opts.HistoryLimit)
	if err != nil {
		a.logger.Error("fetching game history", zap.Int64("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error fetching game history")
		return
	}
	if entries == nil {
		entries = []protocol.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Message: msg})
}
