package api

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"StratFlow-Chain/internal/auth"
	xerrors "StratFlow-Chain/internal/errors"
	"StratFlow-Chain/internal/observability/metrics"
	"StratFlow-Chain/internal/run"
	"StratFlow-Chain/internal/storage"
	"StratFlow-Chain/internal/strategy"
)

// Server exposes the REST API.
type Server struct {
	addr       string
	strategies storage.Repository
	runs       *run.Service
	middleware *auth.Middleware
}

// NewServer builds the API server. authToken may be empty to disable auth.
func NewServer(addr string, strategies storage.Repository, runs *run.Service, authToken string) *Server {
	return &Server{
		addr:       addr,
		strategies: strategies,
		runs:       runs,
		middleware: auth.NewMiddleware(authToken),
	}
}

// Handler assembles the routed and instrumented handler tree.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/strategies", s.handleCreateStrategy)
	mux.HandleFunc("GET /api/v1/strategies", s.handleListStrategies)
	mux.HandleFunc("GET /api/v1/strategies/{id}", s.handleGetStrategy)
	mux.HandleFunc("PUT /api/v1/strategies/{id}", s.handleUpdateStrategy)
	mux.HandleFunc("DELETE /api/v1/strategies/{id}", s.handleDeleteStrategy)
	mux.HandleFunc("POST /api/v1/strategies/{id}/executions", s.handleSubmitRun)
	mux.HandleFunc("GET /api/v1/executions", s.handleListRuns)
	mux.HandleFunc("GET /api/v1/executions/{id}", s.handleGetRun)
	mux.HandleFunc("GET /api/v1/executions/stats", s.handleRunStats)

	protected := s.middleware.Wrap(instrument(mux))

	root := http.NewServeMux()
	root.Handle("/api/", protected)
	root.Handle("/metrics", metrics.Handler())
	root.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return root
}

// Start serves HTTP until the context is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

type strategyRequest struct {
	ID          string            `json:"id,omitempty"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Graph       strategy.Snapshot `json:"graph"`
}

func (s *Server) handleCreateStrategy(w http.ResponseWriter, r *http.Request) {
	if s.strategies == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "strategy store not configured"))
		return
	}
	var req strategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "decode strategy request"))
		return
	}
	record := &storage.Record{
		ID:          strings.TrimSpace(req.ID),
		Name:        req.Name,
		Description: req.Description,
		Graph:       req.Graph,
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if err := s.strategies.Create(r.Context(), record); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	records, err := s.strategies.List(r.Context(), queryInt(r, "limit", 20))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGetStrategy(w http.ResponseWriter, r *http.Request) {
	record, err := s.strategies.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleUpdateStrategy(w http.ResponseWriter, r *http.Request) {
	var req strategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "decode strategy request"))
		return
	}
	record := &storage.Record{
		ID:          r.PathValue("id"),
		Name:        req.Name,
		Description: req.Description,
		Graph:       req.Graph,
	}
	if err := s.strategies.Update(r.Context(), record); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleDeleteStrategy(w http.ResponseWriter, r *http.Request) {
	if err := s.strategies.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type submitRunRequest struct {
	RunID string `json:"run_id,omitempty"`
}

func (s *Server) handleSubmitRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, xerrors.New(xerrors.CodeInitializationFailure, "run service not configured"))
		return
	}
	strategyID := r.PathValue("id")
	if _, err := s.strategies.Get(r.Context(), strategyID); err != nil {
		writeError(w, err)
		return
	}

	var req submitRunRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "decode run request"))
			return
		}
	}

	submitted, err := s.runs.Submit(r.Context(), req.RunID, strategyID)
	if err != nil {
		writeError(w, err)
		return
	}

	// ?wait=true turns the submission synchronous: the response carries the
	// terminal run instead of the pending one. Bounded by wait_seconds
	// (default 30) and the request context.
	if parseBool(r, "wait") {
		waitCtx, cancel := context.WithTimeout(r.Context(), time.Duration(queryInt(r, "wait_seconds", 30))*time.Second)
		defer cancel()
		finished, err := s.runs.WaitUntilCompleted(waitCtx, submitted.ID, 500*time.Millisecond)
		if err == nil {
			writeJSON(w, http.StatusOK, finished)
			return
		}
		// Timeout is not a failure; the run keeps going in the workers.
	}
	writeJSON(w, http.StatusAccepted, submitted)
}

func parseBool(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	record, err := s.runs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	opts := []run.ListOption{run.WithLimit(queryInt(r, "limit", 20))}
	if strategyID := r.URL.Query().Get("strategy_id"); strategyID != "" {
		opts = append(opts, run.WithStrategy(strategyID))
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		statuses := make([]run.Status, 0, 4)
		for _, value := range strings.Split(raw, ",") {
			statuses = append(statuses, run.Status(strings.TrimSpace(value)))
		}
		opts = append(opts, run.WithStatuses(statuses...))
	}
	records, err := s.runs.List(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleRunStats(w http.ResponseWriter, r *http.Request) {
	var opts []run.ListOption
	if strategyID := r.URL.Query().Get("strategy_id"); strategyID != "" {
		opts = append(opts, run.WithStrategy(strategyID))
	}
	stats, err := s.runs.Stats(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func queryInt(r *http.Request, name string, fallback int) int {
	if raw := r.URL.Query().Get(name); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	code := xerrors.CodeOf(err)
	writeJSON(w, statusFor(code), errorResponse{Code: string(code), Message: err.Error()})
}

func statusFor(code xerrors.Code) int {
	switch code {
	case xerrors.CodeNotFound, run.CodeRunNotFound:
		return http.StatusNotFound
	case xerrors.CodeConflict, run.CodeRunConflict:
		return http.StatusConflict
	case xerrors.CodeInvalidArgument, run.CodeRunValidation,
		strategy.CodeNoWalletNode, strategy.CodeStepNotConfigured:
		return http.StatusBadRequest
	case run.CodeRunCompleted:
		return http.StatusConflict
	case xerrors.CodeInitializationFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// instrument records request metrics per route pattern.
func instrument(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		mux.ServeHTTP(sw, r)
		pattern := r.Pattern
		if pattern == "" {
			pattern = "unmatched"
		}
		metrics.ObserveHTTPRequest(pattern, r.Method, sw.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// withContext makes request handling aware of root context cancellation.
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "server shutting down", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
