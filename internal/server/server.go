package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/pefman/critsim/internal/config"
	"github.com/pefman/critsim/internal/engine"
	"github.com/pefman/critsim/internal/game"
	"github.com/pefman/critsim/internal/models"
	"github.com/pefman/critsim/internal/session"
)

// Server wires the estimator and the session store to HTTP.
type Server struct {
	cfg      config.Server
	sessions *session.Store
	log      *slog.Logger
	router   *mux.Router
}

func New(cfg config.Server, sessions *session.Store, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{cfg: cfg, sessions: sessions, log: log, router: mux.NewRouter()}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(s.withCORS, s.withLogging)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/simulate", s.handleSimulate).Methods(http.MethodPost)
	api.HandleFunc("/trace", s.handleTrace).Methods(http.MethodPost)

	api.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/patterns", s.handleListPatterns).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/patterns", s.handleAddPattern).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/patterns/{index:[0-9]+}", s.handleRemovePattern).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/simulate", s.handleSimulateSession).Methods(http.MethodPost)

	// Preflight for every path; withCORS answers it.
	r.Methods(http.MethodOptions).HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	r.HandleFunc("/ws", s.handleWS)
}

// ServeHTTP exposes the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

// SweepLoop removes idle sessions until ctx is done.
func (s *Server) SweepLoop(ctx context.Context) error {
	t := time.NewTicker(s.cfg.Sessions.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if n := s.sessions.Sweep(s.cfg.Sessions.MaxIdle); n > 0 {
				s.log.Info("swept idle sessions", "removed", n, "remaining", s.sessions.Len())
			}
		}
	}
}

// ================= Helpers =================

func writeJSON(w http.ResponseWriter, v any) { writeJSONStatus(w, http.StatusOK, v) }

func writeJSONStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(map[string]any{
		"error":   http.StatusText(code),
		"message": msg,
		"status":  code,
	})
}

// writeWarning reports a run that was refused without being an error.
func writeWarning(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnprocessableEntity)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"warning": msg,
		"status":  http.StatusUnprocessableEntity,
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.cfg.AllowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The websocket upgrade needs the raw writer for Hijack.
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("http", "method", r.Method, "path", r.URL.Path, "status", rec.status, "dur", time.Since(start))
	})
}

// ================= Simulation =================

// simulateReq is the body of both simulate endpoints. Patterns are ignored
// for the session variant.
type simulateReq struct {
	Patterns     []models.AttackPattern `json:"patterns,omitempty"`
	TargetDamage float64                `json:"target_damage"`
	Trials       int                    `json:"trials"`
	Seed         *int64                 `json:"seed,omitempty"`
	BatchSize    int                    `json:"batch_size,omitempty"`
	SessionID    string                 `json:"session_id,omitempty"`
}

// errTooManyRolls rejects runs whose trials x hits exceed the configured budget.
var errTooManyRolls = errors.New("run too large")

// hitsWithin sums hits per trial, stopping with false once the sum passes limit.
func hitsWithin(patterns []models.AttackPattern, limit int64) (int64, bool) {
	var total int64
	for _, p := range patterns {
		if int64(p.Hits) > limit-total {
			return 0, false
		}
		total += int64(p.Hits)
	}
	return total, true
}

func (s *Server) checkRolls(req models.SimulationRequest) error {
	limit := s.cfg.Simulation.MaxRolls
	hits, ok := hitsWithin(req.Patterns, limit)
	if !ok || hits > limit/int64(req.Trials) {
		return fmt.Errorf("%w: trials x hits must stay within %d hit rolls", errTooManyRolls, limit)
	}
	return nil
}

// request fills defaults and enforces the server's trial and roll caps.
func (s *Server) request(in simulateReq, patterns []models.AttackPattern) (models.SimulationRequest, error) {
	req := models.SimulationRequest{Patterns: patterns, TargetDamage: in.TargetDamage, Trials: in.Trials}
	if req.Trials == 0 {
		req.Trials = s.cfg.Simulation.DefaultTrials
	}
	if req.Trials > s.cfg.Simulation.MaxTrials {
		return req, fmt.Errorf("%w: at most %d trials per run", models.ErrInvalidTrialCount, s.cfg.Simulation.MaxTrials)
	}
	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, s.checkRolls(req)
}

func (s *Server) options(in simulateReq, progress engine.ProgressFunc) []engine.Option {
	batch := s.cfg.Simulation.BatchSize
	if in.BatchSize > 0 {
		batch = in.BatchSize
	}
	opts := []engine.Option{engine.WithBatchSize(batch)}
	if in.Seed != nil {
		opts = append(opts, engine.WithSeed(*in.Seed))
	}
	if progress != nil {
		opts = append(opts, engine.WithProgress(progress))
	}
	return opts
}

func (s *Server) run(ctx context.Context, req models.SimulationRequest, opts []engine.Option) (models.SimulationResult, error) {
	res, err := engine.Estimate(ctx, req, opts...)
	if err != nil {
		return res, err
	}
	s.log.Info("simulation finished",
		"patterns", len(req.Patterns),
		"hits", models.TotalHits(req.Patterns),
		"target", req.TargetDamage,
		"trials", res.Trials,
		"probability", res.Probability,
		"elapsed_ms", res.ElapsedMS)
	return res, nil
}

// writeRunError maps validation failures to a status code.
func (s *Server) writeRunError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrEmptyDataset):
		s.log.Warn("simulation refused", "reason", err)
		writeWarning(w, "add at least one attack pattern")
	case errors.Is(err, models.ErrInvalidPattern),
		errors.Is(err, models.ErrInvalidTrialCount),
		errors.Is(err, models.ErrInvalidTarget),
		errors.Is(err, errTooManyRolls):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "simulation cancelled")
	default:
		s.log.Error("simulation failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"ok": true, "sessions": s.sessions.Len()})
}

// POST /api/simulate
func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var in simulateReq
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req, err := s.request(in, in.Patterns)
	if err != nil {
		s.writeRunError(w, err)
		return
	}
	res, err := s.run(r.Context(), req, s.options(in, nil))
	if err != nil {
		s.writeRunError(w, err)
		return
	}
	writeJSON(w, res)
}

// POST /api/trace
//
// Plays a single trial and returns every roll. Uses the session's patterns
// when session_id is set.
func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	var in simulateReq
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	patterns := in.Patterns
	if in.SessionID != "" {
		sess, ok := s.sessions.Get(in.SessionID)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown session "+in.SessionID)
			return
		}
		sess.Touch()
		patterns = sess.Patterns()
	}
	if _, ok := hitsWithin(patterns, int64(s.cfg.Simulation.MaxTraceHits)); !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("a trace covers at most %d hits", s.cfg.Simulation.MaxTraceHits))
		return
	}
	var rng *rand.Rand
	if in.Seed != nil {
		rng = rand.New(rand.NewSource(*in.Seed))
	}
	tr, err := game.TraceTrial(engine.NewRoller(rng), patterns, in.TargetDamage)
	if err != nil {
		s.writeRunError(w, err)
		return
	}
	writeJSON(w, tr)
}

// ================= Sessions =================

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := mux.Vars(r)["id"]
	sess, ok := s.sessions.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session "+id)
		return nil, false
	}
	sess.Touch()
	return sess, true
}

// POST /api/sessions
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Create()
	s.log.Info("session created", "session", sess.ID)
	w.Header().Set("Location", "/api/sessions/"+sess.ID)
	writeJSONStatus(w, http.StatusCreated, sess.Summary())
}

// GET /api/sessions/{id}
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, sess.Summary())
}

// DELETE /api/sessions/{id}
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.sessions.Delete(id) {
		writeError(w, http.StatusNotFound, "unknown session "+id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/sessions/{id}/patterns
func (s *Server) handleListPatterns(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, sess.Patterns())
}

// POST /api/sessions/{id}/patterns
func (s *Server) handleAddPattern(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var p models.AttackPattern
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	idx, err := sess.Add(p)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.log.Debug("pattern added", "session", sess.ID, "index", idx)
	writeJSONStatus(w, http.StatusCreated, map[string]any{"index": idx, "pattern": p})
}

// DELETE /api/sessions/{id}/patterns/{index}
func (s *Server) handleRemovePattern(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	idx, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid index")
		return
	}
	if err := sess.Remove(idx); err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no pattern at index %d", idx))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/sessions/{id}/simulate
func (s *Server) handleSimulateSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var in simulateReq
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req, err := s.request(in, sess.Patterns())
	if err != nil {
		s.writeRunError(w, err)
		return
	}
	res, err := s.run(r.Context(), req, s.options(in, nil))
	if err != nil {
		s.writeRunError(w, err)
		return
	}
	sess.SetLastResult(res)
	writeJSON(w, res)
}
