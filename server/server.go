// Package server exposes the agent over a WebSocket endpoint plus health
// and Prometheus metrics handlers.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/becomeliminal/ragent/app"
	"github.com/becomeliminal/ragent/core"
	"github.com/becomeliminal/ragent/retriever"
)

// Message types.
const (
	TypeQuery    = "query"
	TypeStats    = "stats"
	TypeHistory  = "history"
	TypeClear    = "clear"
	TypeIngest   = "ingest"
	TypeResponse = "response"
	TypeError    = "error"
)

const (
	defaultHistoryLimit = 10
	maxMessageBytes     = 64 * 1024
)

// Agent is the control surface the server drives. *app.App implements it.
type Agent interface {
	Query(ctx context.Context, text string) *core.AgentResponse
	Stats(ctx context.Context) (*app.Stats, error)
	History(ctx context.Context, limit int) ([]*core.TaskLog, error)
	Ingest(ctx context.Context) (*retriever.Summary, error)
	Clear()
}

// Config configures the server.
type Config struct {
	Agent  Agent
	Logger *zap.Logger
}

// ClientMessage is a request read from the socket.
type ClientMessage struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Content string `json:"content,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// ServerMessage is a reply written to the socket. ID echoes the request.
// Empty fields are omitted, so a history reply with no tasks carries no
// history key.
type ServerMessage struct {
	Type     string              `json:"type"`
	ID       string              `json:"id,omitempty"`
	Response *core.AgentResponse `json:"response,omitempty"`
	Stats    *app.Stats          `json:"stats,omitempty"`
	History  []*core.TaskLog     `json:"history,omitempty"`
	Summary  *retriever.Summary  `json:"summary,omitempty"`
	Error    string              `json:"error,omitempty"`
}

// Server serves the agent over HTTP.
type Server struct {
	agent    Agent
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// New creates a server.
func New(cfg Config) (*Server, error) {
	if cfg.Agent == nil {
		return nil, errors.New("server: agent is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Server{
		agent:  cfg.Agent,
		logger: cfg.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Local tool: accept any origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}, nil
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Run listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen on %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageBytes)

	logger := s.logger.With(zap.String("remote", r.RemoteAddr))
	logger.Debug("client connected")

	for {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		reply := s.dispatch(r.Context(), msg)
		if err := conn.WriteJSON(reply); err != nil {
			logger.Warn("websocket write failed", zap.Error(err))
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, msg ClientMessage) ServerMessage {
	switch msg.Type {
	case TypeQuery:
		return ServerMessage{Type: TypeResponse, ID: msg.ID, Response: s.agent.Query(ctx, msg.Content)}

	case TypeStats:
		st, err := s.agent.Stats(ctx)
		if err != nil {
			return errorMessage(msg.ID, err)
		}
		return ServerMessage{Type: TypeStats, ID: msg.ID, Stats: st}

	case TypeHistory:
		limit := msg.Limit
		if limit <= 0 {
			limit = defaultHistoryLimit
		}
		logs, err := s.agent.History(ctx, limit)
		if err != nil {
			return errorMessage(msg.ID, err)
		}
		return ServerMessage{Type: TypeHistory, ID: msg.ID, History: logs}

	case TypeIngest:
		summary, err := s.agent.Ingest(ctx)
		if err != nil {
			return errorMessage(msg.ID, err)
		}
		return ServerMessage{Type: TypeIngest, ID: msg.ID, Summary: summary}

	case TypeClear:
		s.agent.Clear()
		s.logger.Info("index cleared")
		return ServerMessage{Type: TypeClear, ID: msg.ID}

	default:
		return errorMessage(msg.ID, fmt.Errorf("unknown message type %q", msg.Type))
	}
}

func errorMessage(id string, err error) ServerMessage {
	return ServerMessage{Type: TypeError, ID: id, Error: err.Error()}
}
