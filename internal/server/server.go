// Package server implements the Server / Scheduler (C9): the HTTP
// surface hosting platform webhooks, health checks, and direct workflow
// invocation, behind a concurrency gate and graceful shutdown. Grounded
// on the teacher's internal/gateway/http_server.go (mux assembly,
// graceful Shutdown, /healthz, promhttp.Handler()) before that package
// was trimmed from the tree, re-routed through github.com/go-chi/chi/v5
// for the path-parameterized /webhook/{platform} and /workflow/{name}
// routes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aof-dev/aof/internal/observability"
	"github.com/aof-dev/aof/pkg/kernel/trigger"
	"github.com/aof-dev/aof/pkg/kernel/workflow"
)

// Config bounds the HTTP server's behavior (spec §4.9).
type Config struct {
	Addr               string
	MaxConcurrentTasks int
	MaxBodyBytes       int64
	RequestTimeout     time.Duration
	TaskTimeoutSecs    int
	CORS               bool
}

func (c *Config) sanitize() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.MaxConcurrentTasks <= 0 {
		c.MaxConcurrentTasks = 10
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 10 << 20
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.TaskTimeoutSecs <= 0 {
		c.TaskTimeoutSecs = 30
	}
}

// Deps are the collaborators the HTTP surface dispatches into.
type Deps struct {
	Triggers  map[string]*trigger.Handler
	Workflows map[string]*workflow.Runner
	// Verifiers holds one signature-verification function per
	// platform, keyed the same as Triggers (spec §6: HMAC-SHA256 for
	// Slack/PagerDuty/GitHub, JWT Bearer for Teams). A platform with no
	// entry skips verification.
	Verifiers map[string]func(r *http.Request, body []byte) error
	Logger    *slog.Logger
	// Metrics records per-request Prometheus series; nil disables
	// recording without disabling the /metrics endpoint itself (an
	// empty registry is still valid scrape target).
	Metrics *observability.Metrics
}

// Server hosts the webhook/health/workflow HTTP surface behind a
// semaphore-based concurrency gate (spec §4.9).
type Server struct {
	cfg    Config
	deps   Deps
	gate   chan struct{}
	http   *http.Server
	logger *slog.Logger
}

// New builds a Server; call Run to start accepting connections.
func New(cfg Config, deps Deps) *Server {
	cfg.sanitize()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "server")

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		gate:   make(chan struct{}, cfg.MaxConcurrentTasks),
		logger: logger,
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(cfg.RequestTimeout))
	if cfg.CORS {
		router.Use(corsMiddleware)
	}
	router.Get("/health", s.handleHealth)
	router.Handle("/metrics", promhttp.Handler())
	router.Post("/webhook/{platform}", s.handleWebhook)
	router.Post("/workflow/{name}", s.handleWorkflow)

	s.http = &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
	}
	return s
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// acquire implements the concurrency gate; the caller is rejected with
// an "overloaded" response when the gate is saturated rather than
// queued indefinitely (spec §4.9).
func (s *Server) acquire() (func(), bool) {
	select {
	case s.gate <- struct{}{}:
		return func() { <-s.gate }, true
	default:
		return nil, false
	}
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	platform := chi.URLParam(r, "platform")
	var handleErr error
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordWebhookReceived(platform, "inbound")
		defer func() {
			s.deps.Metrics.RecordWebhookProcessed(platform, "inbound", time.Since(started).Seconds(), handleErr)
		}()
	}

	handler, ok := s.deps.Triggers[platform]
	if !ok {
		handleErr = fmt.Errorf("unknown platform: %s", platform)
		http.Error(w, handleErr.Error(), http.StatusNotFound)
		return
	}

	release, ok := s.acquire()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "overloaded"})
		return
	}
	defer release()

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		handleErr = err
		http.Error(w, "reading body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if verify, ok := s.deps.Verifiers[platform]; ok {
		if err := verify(r, body); err != nil {
			handleErr = err
			s.logger.Warn("webhook signature rejected", "platform", platform, "error", err)
			if s.deps.Metrics != nil {
				s.deps.Metrics.RecordError("server", "signature_rejected")
			}
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	var payload trigger.Message
	if err := json.Unmarshal(body, &payload); err != nil {
		handleErr = err
		http.Error(w, "invalid payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	payload.Platform = platform

	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(s.cfg.TaskTimeoutSecs)*time.Second)
	defer cancel()

	if err := handler.Handle(ctx, payload); err != nil {
		handleErr = err
		s.logger.Error("webhook handling failed", "platform", platform, "error", err)
		if s.deps.Metrics != nil {
			s.deps.Metrics.RecordError("server", "webhook_handling_failed")
		}
		http.Error(w, "handling failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (s *Server) handleWorkflow(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	statusCode := http.StatusOK
	if s.deps.Metrics != nil {
		defer func() {
			s.deps.Metrics.RecordHTTPRequest(r.Method, "/workflow/{name}", strconv.Itoa(statusCode), time.Since(started).Seconds())
		}()
	}

	name := chi.URLParam(r, "name")
	runner, ok := s.deps.Workflows[name]
	if !ok {
		statusCode = http.StatusNotFound
		http.Error(w, "unknown workflow: "+name, statusCode)
		return
	}

	release, ok := s.acquire()
	if !ok {
		statusCode = http.StatusServiceUnavailable
		writeJSON(w, statusCode, map[string]string{"status": "overloaded"})
		return
	}
	defer release()

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	var input map[string]any
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil && err.Error() != "EOF" {
		statusCode = http.StatusBadRequest
		http.Error(w, "invalid payload: "+err.Error(), statusCode)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(s.cfg.TaskTimeoutSecs)*time.Second)
	defer cancel()

	run, err := runner.Start(ctx, input)
	if err != nil {
		statusCode = http.StatusInternalServerError
		s.logger.Error("workflow run failed", "workflow", name, "error", err)
		if s.deps.Metrics != nil {
			s.deps.Metrics.RecordError("server", "workflow_run_failed")
		}
		http.Error(w, "run failed: "+err.Error(), statusCode)
		return
	}
	snap := run.Snapshot()
	writeJSON(w, statusCode, map[string]any{"run_id": snap.RunID, "status": snap.Status, "data": snap.Data})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Run starts the server and blocks until ctx is cancelled, then drains
// in-flight requests for up to TaskTimeoutSecs before forcing shutdown
// (spec §4.9).
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.cfg.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(s.cfg.TaskTimeoutSecs)*time.Second)
	defer cancel()
	s.logger.Info("server shutting down")
	return s.http.Shutdown(shutdownCtx)
}
