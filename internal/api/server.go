// Package api exposes the read API over stored campgrounds and a
// trigger endpoint for on-demand harvests.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/opencamp/harvester/internal/harvest"
	"github.com/opencamp/harvester/internal/model"
	"github.com/opencamp/harvester/internal/store"
)

// Runner starts a harvest sweep. *harvest.Harvester satisfies it.
type Runner interface {
	Run(ctx context.Context) (harvest.Result, error)
}

// Server wires the chi router over the store and an optional Runner.
type Server struct {
	store  store.Store
	runner Runner
	log    *zap.Logger

	mu      sync.Mutex
	running bool
	last    *runStatus
}

type runStatus struct {
	RunID      string     `json:"run_id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Stored     int        `json:"stored"`
	Error      string     `json:"error,omitempty"`
}

func NewServer(st store.Store, runner Runner) *Server {
	return &Server{
		store:  st,
		runner: runner,
		log:    zap.L().With(zap.String("service", "api")),
	}
}

// Handler builds the routed handler with CORS and request logging.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/campgrounds", s.handleListCampgrounds)
	r.Get("/campgrounds/{id}", s.handleGetCampground)
	r.Post("/harvest/run", s.handleHarvestRun)
	r.Get("/harvest/status", s.handleHarvestStatus)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.CountCampgrounds(r.Context())
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "campgrounds": n})
}

func (s *Server) handleListCampgrounds(w http.ResponseWriter, r *http.Request) {
	f := store.Filter{State: r.URL.Query().Get("state")}

	if raw := r.URL.Query().Get("min_rating"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "min_rating must be a number")
			return
		}
		f.MinRating = &v
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		f.Limit = v
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			s.writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		f.Offset = v
	}

	campgrounds, err := s.store.ListCampgrounds(r.Context(), f)
	if err != nil {
		s.log.Error("list campgrounds", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if campgrounds == nil {
		campgrounds = []model.StoredCampground{}
	}
	s.writeJSON(w, http.StatusOK, campgrounds)
}

func (s *Server) handleGetCampground(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	cg, err := s.store.GetCampground(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "campground not found")
			return
		}
		s.log.Error("get campground", zap.String("id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	s.writeJSON(w, http.StatusOK, cg)
}

func (s *Server) handleHarvestRun(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		s.writeError(w, http.StatusNotImplemented, "harvesting is not enabled on this server")
		return
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.writeError(w, http.StatusConflict, "a harvest is already running")
		return
	}
	s.running = true
	status := &runStatus{StartedAt: time.Now().UTC()}
	s.last = status
	s.mu.Unlock()

	// The sweep outlives the request, so it runs on the background
	// context rather than the request's.
	go func() {
		res, err := s.runner.Run(context.Background())
		now := time.Now().UTC()

		s.mu.Lock()
		defer s.mu.Unlock()
		s.running = false
		status.FinishedAt = &now
		status.RunID = res.RunID
		status.Stored = res.Stored
		if err != nil {
			status.Error = err.Error()
			s.log.Error("triggered harvest failed", zap.Error(err))
			return
		}
		s.log.Info("triggered harvest finished", zap.Int("stored", res.Stored))
	}()

	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleHarvestStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.last == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"running": false})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"running": s.running, "last": s.last})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"error": msg})
}
