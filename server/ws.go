package server

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

// WSServer carries the same TYPE:::payload frames over websocket text
// messages; the sentinel is unnecessary because websocket frames are already
// delimited.
type WSServer struct {
	agent    Agent
	logger   *log.Logger
	upgrader websocket.Upgrader

	mu   sync.Mutex
	open map[*websocket.Conn]struct{}
}

// NewWS builds the websocket transport over agent.
func NewWS(agent Agent, logger *log.Logger) *WSServer {
	return &WSServer{
		agent:  agent,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		open: make(map[*websocket.Conn]struct{}),
	}
}

// ListenAndServe serves the websocket endpoint at /ws until ctx is canceled.
// http.Server.Shutdown does not touch hijacked connections, so open websocket
// clients are closed explicitly to unblock their readers.
func (s *WSServer) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		s.handle(ctx, w, r)
	})
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		for conn := range s.open {
			conn.Close()
		}
		s.mu.Unlock()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("websocket listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *WSServer) handle(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.open[conn] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.open, conn)
		s.mu.Unlock()
	}()
	logger := s.logger.With("remote", conn.RemoteAddr().String())
	logger.Info("websocket client connected")

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			logger.Info("websocket client disconnected")
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			continue
		}
		// Inbound frames may carry a type prefix; only the payload matters.
		_, payload := ParseFrame(msg)

		frameType, reply := s.processMessage(ctx, logger, payload)
		out := frameType + frameSeparator + reply
		if err := conn.WriteMessage(websocket.TextMessage, []byte(out)); err != nil {
			logger.Warn("websocket write failed", "error", err)
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (s *WSServer) processMessage(ctx context.Context, logger *log.Logger, msg string) (frameType, payload string) {
	if reply, handled, err := HandleCommand(ctx, s.agent, msg); handled {
		if err != nil {
			return FrameError, err.Error()
		}
		return FrameSystem, reply
	}
	response, err := s.agent.HandleImpulse(ctx, msg)
	if err != nil {
		logger.Error("cycle failed", "error", err)
		return FrameError, "The agent could not process this message."
	}
	return FrameResponse, response
}
