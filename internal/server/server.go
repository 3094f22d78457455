// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"embed"
	"encoding/json"
	"io/fs"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/streamchat/internal/conversation"
	"github.com/jeranaias/streamchat/internal/export"
	"github.com/jeranaias/streamchat/internal/model"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:8787"

	// MaxRequestBodySize is the maximum size of a JSON request body (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// MaxMessageLength is the maximum length of a submitted message.
	MaxMessageLength = 100000

	// shutdownTimeout bounds graceful shutdown.
	shutdownTimeout = 5 * time.Second
)

//go:embed static/*
var staticFS embed.FS

// Conversation is the conversation service the server drives.
type Conversation interface {
	Submit(ctx context.Context, me string) (int, error)
	Stop()
	Regenerate(ctx context.Context, index int) error
	Remove(index int) error
	Clear()
	Reset(ctx context.Context) error
	Status() conversation.Status
	Snapshot() []model.Turn
	Turn(index int) (model.Turn, bool)
}

// Config wires a Server.
type Config struct {
	Addr         string
	RateLimit    float64
	RateBurst    int
	Version      string
	Conversation Conversation
	Events       Subscriber
	Logger       zerolog.Logger
}

// ============================================================================
// SERVER
// ============================================================================

// Server is the HTTP server for the browser client and JSON API.
type Server struct {
	addr    string
	version string
	conv    Conversation
	log     zerolog.Logger

	router   *http.ServeMux
	hub      *Hub
	limiter  *RateLimiter
	upgrader websocket.Upgrader
	assets   fs.FS
}

// New creates a Server.
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	assets, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	log := cfg.Logger.With().Str("component", "server").Logger()

	s := &Server{
		addr:    cfg.Addr,
		version: cfg.Version,
		conv:    cfg.Conversation,
		log:     log,
		router:  http.NewServeMux(),
		hub:     NewHub(cfg.Conversation, cfg.Events, cfg.Logger),
		limiter: NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
		assets:  assets,
	}
	s.setupRoutes()
	return s
}

// Hub returns the WebSocket hub. It must be running for /ws to accept
// clients.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return Chain(
		RecoveryMiddleware(s.log),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(s.log),
		RateLimitMiddleware(s.limiter, s.log),
	)(s.router)
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /{$}", s.handleAsset("index.html"))
	s.router.HandleFunc("GET /app.js", s.handleAsset("app.js"))

	s.router.HandleFunc("GET /api/conversation", s.handleConversation)
	s.router.HandleFunc("DELETE /api/conversation", s.handleClear)
	s.router.HandleFunc("POST /api/conversation/reset", s.handleReset)
	s.router.HandleFunc("GET /api/conversation/export", s.handleExport)

	s.router.HandleFunc("POST /api/turns", s.handleSubmit)
	s.router.HandleFunc("DELETE /api/turns/{index}", s.handleRemove)
	s.router.HandleFunc("POST /api/turns/{index}/regenerate", s.handleRegenerate)
	s.router.HandleFunc("POST /api/stop", s.handleStop)
	s.router.HandleFunc("GET /api/status", s.handleStatus)

	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ws", s.handleWebSocket)
}

// ============================================================================
// TYPES
// ============================================================================

// ConversationResponse is the body of GET /api/conversation.
type ConversationResponse struct {
	Turns   []model.Turn `json:"turns"`
	Version uint64       `json:"version"`
}

// SubmitRequest is the body of POST /api/turns.
type SubmitRequest struct {
	Me string `json:"me"`
}

// TurnResponse names the turn an action started streaming into.
type TurnResponse struct {
	Index int `json:"index"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ============================================================================
// HANDLERS
// ============================================================================

func (s *Server) handleAsset(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.ServeFileFS(w, r, s.assets, name)
	}
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	turns := s.conv.Snapshot()
	if turns == nil {
		turns = []model.Turn{}
	}
	writeJSON(w, http.StatusOK, ConversationResponse{
		Turns:   turns,
		Version: s.conv.Status().Version,
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.conv.Clear()
	writeJSON(w, http.StatusOK, s.conv.Status())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.conv.Reset(r.Context()); err != nil {
		s.log.Error().Err(err).Msg("reset conversation")
		writeError(w, http.StatusInternalServerError, "reset failed")
		return
	}
	writeJSON(w, http.StatusOK, s.conv.Status())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	exporter, err := export.ForFormat(format, export.DefaultOptions())
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown export format "+strconv.Quote(format))
		return
	}

	data, err := exporter.Export(export.Conversation{
		Title: "streamchat conversation",
		Turns: s.conv.Snapshot(),
	})
	if err != nil {
		s.log.Error().Err(err).Str("format", format).Msg("export conversation")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", exporter.MimeType())
	w.Header().Set("Content-Disposition", `attachment; filename="conversation`+exporter.FileExtension()+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Me) > MaxMessageLength {
		writeError(w, http.StatusBadRequest, "message too long")
		return
	}

	// The fetch outlives the request.
	index, err := s.conv.Submit(context.WithoutCancel(r.Context()), req.Me)
	if errors.Is(err, conversation.ErrEmptyMessage) {
		writeError(w, http.StatusBadRequest, "message is empty")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("submit message")
		writeError(w, http.StatusInternalServerError, "submit failed")
		return
	}
	writeJSON(w, http.StatusAccepted, TurnResponse{Index: index})
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	if err := s.conv.Remove(index); err != nil {
		s.writeTurnError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	if err := s.conv.Regenerate(context.WithoutCancel(r.Context()), index); err != nil {
		s.writeTurnError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, TurnResponse{Index: index})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.conv.Stop()
	writeJSON(w, http.StatusOK, s.conv.Status())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.conv.Status())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: s.version})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket upgrade")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	if !s.hub.join(r.Context(), c) {
		_ = conn.Close()
		return
	}
	go c.writePump()
	c.readPump()
	s.hub.leave(c)
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Run serves on the configured address until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.addr)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.hub.Run(ctx)
	})
	g.Go(func() error {
		s.log.Info().Str("addr", ln.Addr().String()).Str("version", s.version).Msg("server started")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "serve")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		s.log.Info().Msg("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Wrap(srv.Shutdown(shutdownCtx), "shutdown")
	})
	return g.Wait()
}

// ============================================================================
// HELPERS
// ============================================================================

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func (s *Server) writeTurnError(w http.ResponseWriter, err error) {
	if errors.Is(err, conversation.ErrTurnOutOfRange) {
		writeError(w, http.StatusNotFound, "turn not found")
		return
	}
	s.log.Error().Err(err).Msg("turn action")
	writeError(w, http.StatusInternalServerError, "action failed")
}

// pathIndex parses the {index} path value, answering 400 when it is not a
// non-negative integer.
func pathIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, "invalid turn index")
		return 0, false
	}
	return index, true
}
