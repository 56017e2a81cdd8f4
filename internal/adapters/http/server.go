// Package http exposes compiled graphs, their threads and runs over a JSON
// API built on chi.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/flowgraph/agentgraph/internal/app/dto"
	"github.com/flowgraph/agentgraph/internal/app/usecases"
	"github.com/flowgraph/agentgraph/internal/infrastructure/logging"
	"github.com/flowgraph/agentgraph/internal/infrastructure/metrics"
	"github.com/flowgraph/agentgraph/internal/presentation/mermaid"
	"github.com/flowgraph/agentgraph/pkg/agentgraph"
	"github.com/flowgraph/agentgraph/pkg/validation"
)

var (
	// ErrGraphNotFound is returned for an unknown graph ID in the path
	ErrGraphNotFound = errors.New("graph not found")
	// ErrDuplicateGraph is returned by NewServer for two graphs with one ID
	ErrDuplicateGraph = errors.New("duplicate graph ID")
)

type graphEntry struct {
	runnable agentgraph.Runnable
	runs     *usecases.RunManager
}

// Server routes requests to graphs and their run managers.
// PRINCIPLES:
// - SRP: Transport only; run semantics live in usecases.RunManager
// - KISS: One run manager per graph, created up front
type Server struct {
	graphs  map[string]*graphEntry
	order   []string
	logger  *slog.Logger
	metrics *metrics.Recorder
	runOpts []usecases.RunManagerOption
	router  chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and run logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records request counts on rec and serves it on /metrics.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(s *Server) { s.metrics = rec }
}

// WithRunOptions passes options to every run manager, typically a locker.
func WithRunOptions(opts ...usecases.RunManagerOption) Option {
	return func(s *Server) { s.runOpts = append(s.runOpts, opts...) }
}

// NewServer serves graphs. Graph IDs must be unique.
func NewServer(graphs []agentgraph.Runnable, opts ...Option) (*Server, error) {
	s := &Server{
		graphs: make(map[string]*graphEntry, len(graphs)),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	runOpts := append([]usecases.RunManagerOption{
		usecases.WithRunLogger(s.logger),
		usecases.WithRunMetrics(s.metrics),
	}, s.runOpts...)
	for _, g := range graphs {
		id := g.ID()
		if _, exists := s.graphs[id]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateGraph, id)
		}
		s.graphs[id] = &graphEntry{runnable: g, runs: agentgraph.NewRunManager(g, runOpts...)}
		s.order = append(s.order, id)
	}
	sort.Strings(s.order)

	s.router = s.routes()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Shutdown cancels active runs on every graph and waits for them.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	for _, id := range s.order {
		if err := s.graphs[id].runs.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/graphs", func(r chi.Router) {
		r.Get("/", s.listGraphs)
		r.Route("/{graph}", func(r chi.Router) {
			r.Get("/", s.getGraph)
			r.Post("/invoke", s.invoke)
			r.Post("/threads", s.createThread)
			r.Route("/threads/{thread}", func(r chi.Router) {
				r.Get("/", s.getThread)
				r.Get("/state", s.threadState)
				r.Post("/runs", s.createRun)
				r.Get("/runs", s.listRuns)
				r.Get("/runs/{run}", s.getRun)
				r.Post("/runs/{run}/join", s.joinRun)
				r.Post("/runs/{run}/cancel", s.cancelRun)
			})
		})
	})
	return r
}

// instrument logs and counts requests by route pattern, keeping label
// cardinality independent of path IDs.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.HTTPRequest(r.Method, route, strconv.Itoa(status))
		s.logger.Debug("request served",
			"method", r.Method, "route", route, "status", status,
			"duration", time.Since(start), "request_id", middleware.GetReqID(r.Context()))
	})
}

type graphSummary struct {
	ID          string   `json:"id"`
	Description string   `json:"description,omitempty"`
	Nodes       []string `json:"nodes"`
	Channels    []string `json:"channels"`
}

type graphDetail struct {
	graphSummary
	EntryPoint string      `json:"entry_point"`
	Edges      interface{} `json:"edges"`
}

func summarize(g agentgraph.Runnable) graphSummary {
	def := g.Definition()
	nodes := make([]string, 0, len(def.Nodes))
	for id := range def.Nodes {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)
	return graphSummary{
		ID:          g.ID(),
		Description: def.Config.Description,
		Nodes:       nodes,
		Channels:    g.Channels(),
	}
}

func (s *Server) listGraphs(w http.ResponseWriter, _ *http.Request) {
	out := make([]graphSummary, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, summarize(s.graphs[id].runnable))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getGraph(w http.ResponseWriter, r *http.Request) {
	g, err := s.graph(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	def := g.runnable.Definition()
	if r.URL.Query().Get("format") == "mermaid" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(mermaid.Generate(def, nil)))
		return
	}
	writeJSON(w, http.StatusOK, graphDetail{
		graphSummary: summarize(g.runnable),
		EntryPoint:   def.EntryPoint,
		Edges:        def.Edges,
	})
}

type invokeRequest struct {
	Input          map[string]interface{} `json:"input"`
	Configurable   map[string]interface{} `json:"configurable,omitempty"`
	ThreadID       string                 `json:"thread_id,omitempty"`
	RecursionLimit int                    `json:"recursion_limit,omitempty" validate:"gte=0"`
}

func (s *Server) invoke(w http.ResponseWriter, r *http.Request) {
	g, err := s.graph(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req invokeRequest
	if err := validation.DecodeRequest(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.ThreadID != "" {
		s.invokeOnThread(w, r, g, req)
		return
	}
	resp, err := g.runnable.Execute(r.Context(), &dto.ExecutionRequest{
		Input:    req.Input,
		Config: dto.ExecutionConfig{
			RecursionLimit: req.RecursionLimit,
			Configurable:   req.Configurable,
		},
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// invokeOnThread queues the invocation behind the thread's runs and answers
// with the finished run, exactly like POST .../runs?wait=true.
func (s *Server) invokeOnThread(w http.ResponseWriter, r *http.Request, g *graphEntry, req invokeRequest) {
	run, err := g.runs.CreateRun(r.Context(), req.ThreadID, dto.RunRequest{
		Input:          req.Input,
		Configurable:   req.Configurable,
		Strategy:       dto.StrategyEnqueue,
		RecursionLimit: req.RecursionLimit,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	run, err = g.runs.JoinRun(r.Context(), req.ThreadID, run.RunID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

type createThreadRequest struct {
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

func (s *Server) createThread(w http.ResponseWriter, r *http.Request) {
	g, err := s.graph(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req createThreadRequest
	if err := validation.DecodeRequest(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	thread, err := g.runs.CreateThread(r.Context(), req.Metadata)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, thread)
}

func (s *Server) getThread(w http.ResponseWriter, r *http.Request) {
	g, err := s.graph(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	thread, err := g.runs.GetThread(r.Context(), chi.URLParam(r, "thread"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, thread)
}

func (s *Server) threadState(w http.ResponseWriter, r *http.Request) {
	g, err := s.graph(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	state, err := g.runs.ThreadState(r.Context(), chi.URLParam(r, "thread"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// createRun starts a run. With ?wait=true the response is sent once the run
// has finished.
func (s *Server) createRun(w http.ResponseWriter, r *http.Request) {
	g, err := s.graph(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req dto.RunRequest
	if err := validation.DecodeRequest(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	threadID := chi.URLParam(r, "thread")
	run, err := g.runs.CreateRun(r.Context(), threadID, req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		run, err = g.runs.JoinRun(r.Context(), threadID, run.RunID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, run)
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	g, err := s.graph(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	runs, err := g.runs.ListRuns(r.Context(), chi.URLParam(r, "thread"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	s.runAction(w, r, (*usecases.RunManager).GetRun)
}

func (s *Server) joinRun(w http.ResponseWriter, r *http.Request) {
	s.runAction(w, r, (*usecases.RunManager).JoinRun)
}

func (s *Server) cancelRun(w http.ResponseWriter, r *http.Request) {
	s.runAction(w, r, (*usecases.RunManager).CancelRun)
}

type runFunc func(m *usecases.RunManager, ctx context.Context, threadID, runID string) (*dto.Run, error)

func (s *Server) runAction(w http.ResponseWriter, r *http.Request, fn runFunc) {
	g, err := s.graph(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	run, err := fn(g.runs, r.Context(), chi.URLParam(r, "thread"), chi.URLParam(r, "run"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) graph(r *http.Request) (*graphEntry, error) {
	id := chi.URLParam(r, "graph")
	g, ok := s.graphs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGraphNotFound, id)
	}
	return g, nil
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, validation.ErrMalformedRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrGraphNotFound),
		errors.Is(err, dto.ErrThreadNotFound),
		errors.Is(err, dto.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, dto.ErrThreadBusy):
		return http.StatusConflict
	case errors.Is(err, dto.ErrInvalidInput),
		errors.Is(err, dto.ErrInvalidConfig),
		errors.Is(err, dto.ErrUnknownStrategy),
		errors.Is(err, validation.ErrInvalidConfig):
		return http.StatusUnprocessableEntity
	case errors.Is(err, dto.ErrExecutionTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", status, "error", err)
	}
	validation.WriteErrors(w, status, validation.AsErrors(err, "request"))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
