// Package api provides the HTTP surface for a trane daemon: batch requests,
// trial and reward recording, unit score lookups, health, and metrics.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trane-project/trane/internal/domain"
	"github.com/trane-project/trane/internal/graph"
	"github.com/trane-project/trane/internal/infra/observability"
	"github.com/trane-project/trane/internal/propagate"
	"github.com/trane-project/trane/internal/scheduler"
	"github.com/trane-project/trane/internal/unitcache"
)

// Server is the trane HTTP API server.
type Server struct {
	g          *graph.Graph
	sched      *scheduler.Scheduler
	cache      *unitcache.Cache
	propagator *propagate.Propagator
	trials     domain.TrialLog
	rewards    domain.RewardLog
	tracer     *observability.Tracer

	metricsEnabled bool
}

// Config wires the server's collaborators.
type Config struct {
	Graph      *graph.Graph
	Scheduler  *scheduler.Scheduler
	Cache      *unitcache.Cache
	Propagator *propagate.Propagator
	Trials     domain.TrialLog
	Rewards    domain.RewardLog
	Tracer     *observability.Tracer
}

// NewServer creates a new API server.
func NewServer(cfg Config) *Server {
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = observability.NewTracer(observability.DefaultTracerConfig())
	}
	return &Server{
		g:          cfg.Graph,
		sched:      cfg.Scheduler,
		cache:      cfg.Cache,
		propagator: cfg.Propagator,
		trials:     cfg.Trials,
		rewards:    cfg.Rewards,
		tracer:     tracer,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/batch", s.handleGetBatch)
		r.Post("/trials", s.handleRecordTrial)
		r.Post("/rewards", s.handleRecordReward)
		r.Get("/units/{handle}/score", s.handleUnitScore)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// batchRequest is the wire shape of a POST /v1/batch request.
type batchRequest struct {
	CourseIDs []string `json:"course_ids,omitempty"`
	LessonIDs []string `json:"lesson_ids,omitempty"`
}

// batchCandidate is the wire shape of one returned exercise.
type batchCandidate struct {
	ExerciseID     string `json:"exercise_id"`
	ManifestDigest string `json:"manifest_digest,omitempty"`
	ManifestPath   string `json:"manifest_path,omitempty"`
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	span := s.tracer.StartSpan(r.Context(), "get_exercise_batch", nil)
	var err error
	defer func() { s.tracer.EndSpan(span, err) }()

	var req batchRequest
	if r.Body != nil {
		if decErr := json.NewDecoder(r.Body).Decode(&req); decErr != nil && decErr.Error() != "EOF" {
			writeError(w, http.StatusBadRequest, "invalid request body: "+decErr.Error())
			return
		}
	}

	filter, ferr := s.filterFromRequest(req)
	if ferr != nil {
		writeError(w, http.StatusBadRequest, ferr.Error())
		return
	}

	start := time.Now()
	candidates, cerr := s.sched.GetExerciseBatch(r.Context(), filter)
	observability.TraversalDuration.Observe(time.Since(start).Seconds())
	if cerr != nil {
		err = cerr
		writeSchedulerError(w, cerr)
		return
	}
	observability.BatchesServed.Inc()

	out := make([]batchCandidate, 0, len(candidates))
	for _, c := range candidates {
		bc := batchCandidate{ExerciseID: s.g.Interner().String(c.Exercise)}
		bc.ManifestDigest = c.Manifest.Digest
		bc.ManifestPath = c.Manifest.Path
		out = append(out, bc)
	}
	writeJSON(w, http.StatusOK, map[string]any{"exercises": out})
}

func (s *Server) filterFromRequest(req batchRequest) (scheduler.Filter, error) {
	if len(req.CourseIDs) == 0 && len(req.LessonIDs) == 0 {
		return scheduler.NoFilter(), nil
	}
	if len(req.CourseIDs) > 0 {
		handles, err := s.resolveHandles(req.CourseIDs)
		if err != nil {
			return nil, err
		}
		return scheduler.CourseFilter{Handles: handles}, nil
	}
	handles, err := s.resolveHandles(req.LessonIDs)
	if err != nil {
		return nil, err
	}
	return scheduler.LessonFilter{Handles: handles}, nil
}

func (s *Server) resolveHandles(ids []string) ([]domain.UnitHandle, error) {
	out := make([]domain.UnitHandle, 0, len(ids))
	for _, id := range ids {
		h, ok := s.g.Interner().Lookup(id)
		if !ok {
			return nil, domain.NewError(domain.KindGraphError, domain.ErrUnknownUnit)
		}
		out = append(out, h)
	}
	return out, nil
}

// trialRequest is the wire shape of a POST /v1/trials request.
type trialRequest struct {
	ExerciseID string    `json:"exercise_id"`
	Score      int       `json:"score"`
	Timestamp  time.Time `json:"timestamp"`
}

func (s *Server) handleRecordTrial(w http.ResponseWriter, r *http.Request) {
	span := s.tracer.StartSpan(r.Context(), "record_trial", nil)
	var err error
	defer func() { s.tracer.EndSpan(span, err) }()

	var req trialRequest
	if decErr := json.NewDecoder(r.Body).Decode(&req); decErr != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+decErr.Error())
		return
	}
	h, ok := s.g.Interner().Lookup(req.ExerciseID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown exercise "+req.ExerciseID)
		return
	}
	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	err = s.sched.RecordTrial(r.Context(), domain.Trial{Exercise: h, Score: req.Score, Timestamp: ts})
	if err != nil {
		writeSchedulerError(w, err)
		return
	}
	observability.TrialsRecorded.Inc()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

// rewardRequest is the wire shape of a POST /v1/rewards request: a direct
// caller-recorded reward event, bypassing trial-triggered propagation.
type rewardRequest struct {
	UnitID          string    `json:"unit_id"`
	SignedMagnitude float32   `json:"signed_magnitude"`
	Timestamp       time.Time `json:"timestamp"`
}

func (s *Server) handleRecordReward(w http.ResponseWriter, r *http.Request) {
	span := s.tracer.StartSpan(r.Context(), "record_reward", nil)
	var err error
	defer func() { s.tracer.EndSpan(span, err) }()

	var req rewardRequest
	if decErr := json.NewDecoder(r.Body).Decode(&req); decErr != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+decErr.Error())
		return
	}
	h, ok := s.g.Interner().Lookup(req.UnitID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown unit "+req.UnitID)
		return
	}
	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	if err = s.rewards.Append(r.Context(), domain.RewardEvent{Unit: h, SignedMagnitude: req.SignedMagnitude, Timestamp: ts}); err != nil {
		writeSchedulerError(w, err)
		return
	}
	s.cache.InvalidateReward(h)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

func (s *Server) handleUnitScore(w http.ResponseWriter, r *http.Request) {
	span := s.tracer.StartSpan(r.Context(), "unit_score", nil)
	var err error
	defer func() { s.tracer.EndSpan(span, err) }()

	id := chi.URLParam(r, "handle")
	h, ok := s.g.Interner().Lookup(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown unit "+id)
		return
	}
	score, known, cerr := s.cache.Score(r.Context(), h)
	if cerr != nil {
		err = cerr
		writeSchedulerError(w, cerr)
		return
	}
	if known {
		observability.CacheHits.Inc()
	} else {
		observability.CacheMisses.Inc()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"unit_id": id,
		"score":   score,
		"known":   known,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

// writeSchedulerError maps a domain.SchedulerError kind to an HTTP status.
func writeSchedulerError(w http.ResponseWriter, err error) {
	serr, ok := err.(*domain.SchedulerError)
	if !ok {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	switch serr.Kind {
	case domain.KindInvalidConfig:
		writeError(w, http.StatusBadRequest, serr.Error())
	case domain.KindGraphError:
		writeError(w, http.StatusNotFound, serr.Error())
	case domain.KindCancelled:
		writeError(w, http.StatusRequestTimeout, serr.Error())
	default:
		writeError(w, http.StatusInternalServerError, serr.Error())
	}
}
