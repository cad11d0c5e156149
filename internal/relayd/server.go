package relayd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/matheus3301/meshchat/internal/config"
	"github.com/matheus3301/meshchat/internal/hub"
	"go.uber.org/zap"
)

const (
	wsPath        = "/ws"
	writeTimeout  = 10 * time.Second
	readLimitSize = 1 << 20
)

// Server exposes the hub over HTTP: the WebSocket endpoint plus the
// read-only diagnostics under /api.
type Server struct {
	hub      *hub.Hub
	cfg      *config.Relay
	logger   *zap.Logger
	http     *http.Server
	listener net.Listener
}

// NewServer binds the relay's HTTP listener.
func NewServer(cfg *config.Relay, h *hub.Hub, logger *zap.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.ListenAddr, err)
	}
	s := &Server{
		hub:      h,
		cfg:      cfg,
		logger:   logger,
		listener: listener,
	}
	s.http = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Router builds the relay's HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get(wsPath, s.handleWS)

	r.Route("/api", func(r chi.Router) {
		r.Use(requestLogger(s.logger))
		r.Get("/health", s.handleHealth)
		r.Get("/peers", s.handlePeers)
	})
	return r
}

// Start serves HTTP until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("relay listening", zap.String("addr", s.listener.Addr().String()))
	err := s.http.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the HTTP server down. Hijacked WebSocket connections are not
// tracked by net/http, their read loops end when the process exits.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("relay stopping")
	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Warn("relay shutdown", zap.Error(err))
	}
}

// handleWS runs one connection: a write pump goroutine draining the client's
// queue, and this goroutine reading frames and dispatching them to the hub.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.AllowedOrigins,
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimitSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	client := hub.NewClient(uuid.NewString(), s.cfg.SendQueue)
	defer s.hub.Disconnect(client)

	go client.WritePump(ctx, func(ctx context.Context, data []byte) error {
		wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
		defer wcancel()
		return conn.Write(wctx, websocket.MessageText, data)
	})

	s.logger.Debug("connection accepted", zap.String("conn_id", client.ConnID()), zap.String("remote", r.RemoteAddr))
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status == -1 {
				s.logger.Debug("connection read error", zap.String("conn_id", client.ConnID()), zap.Error(err))
			}
			return
		}
		s.hub.Handle(client, data)
	}
}

type healthResponse struct {
	Status         string `json:"status"`
	ConnectedPeers int    `json:"connectedPeers"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", ConnectedPeers: s.hub.ConnectedPeers()})
}

func (s *Server) handlePeers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.hub.PeerSnapshot())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)))
		})
	}
}
