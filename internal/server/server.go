// Package server exposes the HTTP surface: turn triggers, approval
// resolution, health, and the websocket event feed.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/billowhq/billow/internal/metrics"
	"github.com/billowhq/billow/internal/tracing"
	"github.com/billowhq/billow/pkg/convqueue"
	"github.com/billowhq/billow/pkg/orchestrator"
	"github.com/billowhq/billow/pkg/store"
)

// TurnRunner is the orchestrator surface the server drives
type TurnRunner interface {
	RunTurn(ctx context.Context, agentID, conversationID, userText string) error
	Approve(ctx context.Context, actionID string) error
	Reject(ctx context.Context, actionID, reason string) error
}

// Options configures the HTTP server
type Options struct {
	Host string
	Port int
	// Metrics, when set, exposes /metrics and counts requests
	Metrics *metrics.Metrics
}

// Server is the Billow HTTP server
type Server struct {
	options   Options
	server    *http.Server
	store     *store.Store
	runner    TurnRunner
	queue     *convqueue.Queue
	wsHandler http.HandlerFunc
	logger    zerolog.Logger
	startTime time.Time

	shutdownMu     sync.RWMutex
	isShuttingDown bool
	inFlightTurns  sync.WaitGroup
}

// NewServer creates a new HTTP server
func NewServer(options Options, st *store.Store, runner TurnRunner, queue *convqueue.Queue, wsHandler http.HandlerFunc, logger zerolog.Logger) (*Server, error) {
	if options.Port == 0 {
		options.Port = 3001
	}
	if options.Host == "" {
		options.Host = "0.0.0.0"
	}
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("turn runner is required")
	}
	if queue == nil {
		return nil, fmt.Errorf("conversation queue is required")
	}

	return &Server{
		options:   options,
		store:     st,
		runner:    runner,
		queue:     queue,
		wsHandler: wsHandler,
		logger:    logger,
		startTime: time.Now(),
	}, nil
}

// Handler builds the route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/agents/{agentID}/execute", s.handleExecute)
	mux.HandleFunc("POST /api/agents/actions/{actionID}/approve", s.handleApprove)
	mux.HandleFunc("POST /api/agents/actions/{actionID}/reject", s.handleReject)
	if s.wsHandler != nil {
		mux.HandleFunc("GET /ws", s.wsHandler)
	}
	if s.options.Metrics != nil {
		mux.Handle("GET /metrics", s.options.Metrics.Handler())
		return s.countRequests(mux)
	}
	return mux
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.options.Metrics.HTTPRequestsTotal.
			WithLabelValues(r.URL.Path, strconv.Itoa(sw.status)).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Hijack keeps websocket upgrades working through the counting wrapper
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return h.Hijack()
}

// Start starts the HTTP server and blocks until shutdown
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.options.Host, s.options.Port),
		Handler: s.Handler(),
	}

	s.logger.Info().
		Str("host", s.options.Host).
		Int("port", s.options.Port).
		Msg("Starting HTTP server")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully stops the server, waiting for in-flight turns
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.inFlightTurns.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Timed out waiting for in-flight turns")
	}

	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) shuttingDown() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	return s.isShuttingDown
}

type executeRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

// handleExecute triggers a turn. The turn runs asynchronously on the
// conversation's lane; the response only acknowledges acceptance.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown() {
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}

	agentID := r.PathValue("agentID")

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ConversationID == "" || strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "conversation_id and message are required")
		return
	}

	ctx := r.Context()
	if _, err := s.store.GetAgent(ctx, agentID); err != nil {
		s.notFoundOr500(w, err, "agent not found")
		return
	}
	if _, err := s.store.GetConversation(ctx, req.ConversationID); err != nil {
		s.notFoundOr500(w, err, "conversation not found")
		return
	}

	turnCtx, traceID := tracing.EnsureTraceID(context.Background())
	s.logger.Debug().
		Str("traceId", traceID).
		Str("agentId", agentID).
		Str("conversationId", req.ConversationID).
		Msg("Turn accepted")

	s.inFlightTurns.Add(1)
	go func() {
		defer s.inFlightTurns.Done()
		err := s.queue.Enqueue(turnCtx, req.ConversationID, func(ctx context.Context) error {
			return s.runner.RunTurn(ctx, agentID, req.ConversationID, req.Message)
		})
		if err != nil {
			s.logger.Error().Err(err).
				Str("traceId", traceID).
				Str("agentId", agentID).
				Str("conversationId", req.ConversationID).
				Msg("Turn failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{"success": true})
}

// handleApprove resolves a pending action and resumes the paused turn. Runs
// on the conversation lane so it cannot interleave with a fresh user message.
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	s.resolveAction(w, r, func(ctx context.Context, actionID string) error {
		return s.runner.Approve(ctx, actionID)
	})
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// handleReject resolves a pending action without executing it
func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if r.Body != nil {
		// Body is optional for rejections
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	s.resolveAction(w, r, func(ctx context.Context, actionID string) error {
		return s.runner.Reject(ctx, actionID, req.Reason)
	})
}

func (s *Server) resolveAction(w http.ResponseWriter, r *http.Request, resolve func(ctx context.Context, actionID string) error) {
	if s.shuttingDown() {
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}

	actionID := r.PathValue("actionID")

	entry, err := s.store.GetAction(r.Context(), actionID)
	if err != nil {
		s.notFoundOr500(w, err, "action not found")
		return
	}

	s.inFlightTurns.Add(1)
	defer s.inFlightTurns.Done()

	err = s.queue.Enqueue(r.Context(), entry.ConversationID, func(ctx context.Context) error {
		return resolve(ctx, actionID)
	})
	if errors.Is(err, orchestrator.ErrActionNotFound) {
		writeError(w, http.StatusNotFound, "action not found or already resolved")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("actionId", actionID).Msg("Action resolution failed")
		writeError(w, http.StatusInternalServerError, "failed to resolve action")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startTime).Seconds(),
	})
}

func (s *Server) notFoundOr500(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, msg)
		return
	}
	s.logger.Error().Err(err).Msg("Lookup failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "error": message})
}
