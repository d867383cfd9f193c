// Package server is the HTTP boundary: a blocking chat endpoint, a
// websocket endpoint that streams answer tokens, health, and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ikaris-ai/ikaris/internal/agent"
	"github.com/ikaris-ai/ikaris/internal/compress"
	"github.com/ikaris-ai/ikaris/internal/config"
	"github.com/ikaris-ai/ikaris/internal/session"
)

// ChatRequest is one user utterance bound to a thread.
type ChatRequest struct {
	ThreadID string `json:"thread_id"`
	Message  string `json:"message"`
}

// ChatResponse is the final assistant reply.
type ChatResponse struct {
	ThreadID string `json:"thread_id"`
	Reply    string `json:"reply"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// wsEvent frames websocket traffic: delta while the answer streams,
// final when the invocation completes, error otherwise.
type wsEvent struct {
	Type    string `json:"type"` // delta | final | error
	Content string `json:"content"`
}

// Server owns the HTTP listener and builds one engine per invocation
// so websocket connections can attach their own delta sink.
type Server struct {
	cfg         config.ServiceConfig
	deps        agent.Deps
	compressor  *compress.Compressor
	checkpoints agent.Checkpointer
	guard       *session.Guard
	logger      *zap.Logger

	httpSrv  *http.Server
	upgrader websocket.Upgrader
}

// New builds the server and its routes.
func New(
	cfg config.ServiceConfig,
	deps agent.Deps,
	compressor *compress.Compressor,
	checkpoints agent.Checkpointer,
	guard *session.Guard,
	logger *zap.Logger,
) *Server {
	s := &Server{
		cfg:         cfg,
		deps:        deps,
		compressor:  compressor,
		checkpoints: checkpoints,
		guard:       guard,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Single-user local service.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler exposes the route table. Used by tests.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// ListenAndServe blocks until the listener fails or Shutdown runs.
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP server listening", zap.String("addr", s.httpSrv.Addr))
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	req.ThreadID = strings.TrimSpace(req.ThreadID)
	if req.ThreadID == "" || strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "thread_id and message are required"})
		return
	}

	release, err := s.guard.Acquire(r.Context(), req.ThreadID)
	if errors.Is(err, session.ErrSessionBusy) {
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	defer release()

	reply, err := s.invoke(r.Context(), req, nil)
	if err != nil {
		s.logger.Error("Invocation failed",
			zap.String("thread_id", req.ThreadID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "invocation failed"})
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{ThreadID: req.ThreadID, Reply: reply})
}

// handleWS serves a persistent conversation socket. Each inbound frame
// is one utterance; answer tokens stream back as delta events.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	for {
		var req ChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("Websocket read failed", zap.Error(err))
			}
			return
		}
		if strings.TrimSpace(req.ThreadID) == "" || strings.TrimSpace(req.Message) == "" {
			conn.WriteJSON(wsEvent{Type: "error", Content: "thread_id and message are required"})
			continue
		}

		release, err := s.guard.Acquire(r.Context(), req.ThreadID)
		if err != nil {
			conn.WriteJSON(wsEvent{Type: "error", Content: err.Error()})
			continue
		}

		onDelta := func(delta string) error {
			return conn.WriteJSON(wsEvent{Type: "delta", Content: delta})
		}
		reply, err := s.invoke(r.Context(), req, onDelta)
		release()
		if err != nil {
			s.logger.Error("Invocation failed",
				zap.String("thread_id", req.ThreadID),
				zap.Error(err),
			)
			conn.WriteJSON(wsEvent{Type: "error", Content: "invocation failed"})
			continue
		}
		if err := conn.WriteJSON(wsEvent{Type: "final", Content: reply}); err != nil {
			return
		}
	}
}

// invoke runs one engine invocation end to end. The engine itself is
// stateless between calls; per-call construction lets each websocket
// frame carry its own delta sink.
func (s *Server) invoke(ctx context.Context, req ChatRequest, onDelta func(string) error) (string, error) {
	deps := s.deps
	deps.OnDelta = onDelta
	engine := agent.NewEngine(deps, s.compressor, s.checkpoints, s.logger)

	conv, err := engine.Load(ctx, req.ThreadID)
	if err != nil {
		return "", err
	}
	return engine.Invoke(ctx, conv, req.Message)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
