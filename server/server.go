// Package server exposes the agent over a sentinel-framed TCP protocol and
// the same framing over websocket.
package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/charmbracelet/log"
)

// Server accepts client connections and feeds their messages through the
// command processor and the cognitive cycle. One impulse is processed at a
// time per connection; distinct connections run concurrently.
type Server struct {
	agent  Agent
	logger *log.Logger

	mu       sync.Mutex
	listener net.Listener
	open     map[net.Conn]struct{}
	conns    sync.WaitGroup
}

// New builds a server over agent.
func New(agent Agent, logger *log.Logger) *Server {
	return &Server{agent: agent, logger: logger, open: make(map[net.Conn]struct{})}
}

// Addr returns the bound listener address, or nil before ListenAndServe.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ListenAndServe accepts connections on addr until ctx is canceled. Open
// connections are closed on cancellation so readers blocked on idle clients
// unblock; the call returns once every connection handler has finished.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	s.logger.Info("listening", "addr", addr)

	go func() {
		<-ctx.Done()
		listener.Close()
		s.mu.Lock()
		for conn := range s.open {
			conn.Close()
		}
		s.mu.Unlock()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.conns.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if !s.track(ctx, conn) {
			continue
		}
		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			defer s.untrack(conn)
			s.handleConn(ctx, conn)
		}()
	}
}

// track registers a connection for shutdown closing. A connection accepted
// in the same instant the context is canceled is closed immediately.
func (s *Server) track(ctx context.Context, conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		conn.Close()
		return false
	}
	s.open[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.open, conn)
	s.mu.Unlock()
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	logger := s.logger.With("remote", conn.RemoteAddr().String())
	logger.Info("client connected")

	reader := bufio.NewReader(conn)
	for {
		msg, err := ReadMessage(reader)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				logger.Warn("read failed", "error", err)
			}
			logger.Info("client disconnected")
			return
		}
		if msg == "" {
			continue
		}
		frameType, payload := s.process(ctx, logger, msg)
		if err := WriteFrame(conn, frameType, payload); err != nil {
			logger.Warn("write failed", "error", err)
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// process runs one inbound message and returns the reply frame.
func (s *Server) process(ctx context.Context, logger *log.Logger, msg string) (frameType, payload string) {
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
