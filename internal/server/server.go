// Package server exposes the batch research API over HTTP: job submission,
// status, retry, control acknowledgements, a job-less NDJSON streaming mode,
// and the WebSocket progress relay.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/jobs"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/relay"
)

// Server hosts the research API.
type Server struct {
	orch   *jobs.Orchestrator
	relay  *relay.Relay
	router chi.Router

	// baseCtx outlives individual requests; submitted jobs run against it so
	// a client disconnect does not kill the batch.
	baseCtx context.Context
}

// New builds the API server around an orchestrator. baseCtx bounds the
// lifetime of background job processing.
func New(baseCtx context.Context, orch *jobs.Orchestrator, allowedOrigins []string) *Server {
	s := &Server{
		orch:    orch,
		relay:   relay.New(orch.Store(), orch.Emitter()),
		baseCtx: baseCtx,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api/research", func(r chi.Router) {
		r.Post("/batch", s.handleSubmit)
		r.Get("/batch/{jobID}", s.handleStatus)
		r.Post("/batch/{jobID}/contacts/{contactID}/retry", s.handleRetry)
		r.Post("/batch/{jobID}/pause", s.handleControl(model.ControlPause))
		r.Post("/batch/{jobID}/resume", s.handleControl(model.ControlResume))
		r.Post("/batch/{jobID}/cancel", s.handleControl(model.ControlCancel))
		r.Post("/stream", s.handleStream)
		r.Post("/prune", s.handlePrune)
		r.Get("/ws", s.relay.ServeHTTP)
	})
	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe runs the server until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	zap.L().Info("api server listening", zap.Int("port", port))

	select {
	case err := <-errCh:
		return eris.Wrap(err, "server: listen")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server: shutdown")
	}
	return nil
}

type submitRequest struct {
	Contacts []model.Contact `json:"contacts"`
}

type submitResponse struct {
	JobID        string `json:"jobId"`
	ContactCount int    `json:"contactCount"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Contacts) == 0 {
		writeError(w, http.StatusBadRequest, "contacts list is required")
		return
	}
	for _, c := range req.Contacts {
		if c.ID == "" || c.Name == "" {
			writeError(w, http.StatusBadRequest, "every contact needs an id and a name")
			return
		}
	}

	snap, err := s.orch.Submit(s.baseCtx, req.Contacts)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, submitResponse{
		JobID:        snap.JobID,
		ContactCount: snap.TotalContacts,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.orch.Store().Snapshot(chi.URLParam(r, "jobID"))
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	contactID := chi.URLParam(r, "contactID")

	res, err := s.orch.RetryContact(r.Context(), jobID, contactID)
	if err != nil {
		switch {
		case errors.Is(err, jobs.ErrJobNotFound):
			writeError(w, http.StatusNotFound, "job not found")
		case errors.Is(err, jobs.ErrContactNotFound):
			writeError(w, http.StatusNotFound, "contact not found in job")
		case errors.Is(err, jobs.ErrNotRetryable):
			writeError(w, http.StatusConflict, "contact is not in failed state")
		default:
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleControl(action model.ControlAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobID")
		if err := s.orch.Control(jobID, action); err != nil {
			if errors.Is(err, jobs.ErrJobNotFound) {
				writeError(w, http.StatusNotFound, "job not found")
				return
			}
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"jobId":  jobID,
			"action": string(action),
			"status": "acknowledged",
		})
	}
}

// handleStream runs enrichment without a job and writes one NDJSON line per
// contact outcome as it arrives.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Contacts) == 0 {
		writeError(w, http.StatusBadRequest, "contacts list is required")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	err := s.orch.Stream(r.Context(), req.Contacts, func(res jobs.StreamResult) error {
		if err := enc.Encode(res); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if err != nil && r.Context().Err() == nil {
		zap.L().Warn("stream ended early", zap.Error(err))
	}
}

type pruneRequest struct {
	// MaxAgeSecs removes terminal jobs created more than this many seconds ago.
	MaxAgeSecs int `json:"maxAgeSecs"`
}

// handlePrune drops terminal jobs older than the requested age from the
// in-memory table. Operator-driven; nothing prunes on a timer.
func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	var req pruneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MaxAgeSecs <= 0 {
		writeError(w, http.StatusBadRequest, "maxAgeSecs must be positive")
		return
	}

	removed := s.orch.Store().PruneBefore(time.Now().Add(-time.Duration(req.MaxAgeSecs) * time.Second))
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// requestLogger logs each request through the global zap logger instead of
// chi's default stdlib logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
