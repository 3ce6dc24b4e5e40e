// Package server implements the connection acceptor and the per-connection
// client session.
package server

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/config"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/connection"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/database"
	e "github.com/life-stream-dev/life-stream-go-chat-broker/internal/errors"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/registry"
)

type Options struct {
	MaxConnections int
	WriteTimeout   time.Duration
}

// OptionsFromConfig reads the acceptor settings out of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxConnections: cfg.ConnectionLimit(),
		WriteTimeout:   cfg.WriteTimeoutDuration(),
	}
}

// SessionInfo is a snapshot of one active session.
type SessionInfo struct {
	ID          string
	Transport   string
	ConnectedAt time.Time
	Topics      []string
}

// Server accepts connections and runs one Session per connection.
type Server struct {
	options  Options
	registry *registry.TopicRegistry
	manager  *connection.ConnectionManager
	store    database.SessionStore

	sem      chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	stopping atomic.Bool

	mu         sync.Mutex
	listener   net.Listener
	wsListener net.Listener
	wsServer   *http.Server

	sessions sync.WaitGroup
}

// New builds a server. store may be nil to disable session history.
func New(options Options, reg *registry.TopicRegistry, manager *connection.ConnectionManager, store database.SessionStore) *Server {
	if options.MaxConnections <= 0 {
		options.MaxConnections = config.DefaultMaxConnections
	}
	if options.WriteTimeout <= 0 {
		options.WriteTimeout = config.DefaultWriteTimeout
	}
	return &Server{
		options:  options,
		registry: reg,
		manager:  manager,
		store:    store,
		sem:      make(chan struct{}, options.MaxConnections),
		stopCh:   make(chan struct{}),
	}
}

// Listen opens the TCP listening endpoint.
func (s *Server) Listen(ip string, port int) error {
	address := net.JoinHostPort(ip, strconv.Itoa(port))
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return e.Wrap("listen", address, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	logger.InfoF("Chat Server Listen On %s", ln.Addr().String())
	return nil
}

// Addr returns the TCP listening address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve runs the accept loop. It returns nil after StopAccepting or StopAll
// and a ConnectionError for any other accept failure.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return e.Wrap("accept", "", e.ErrNotConnected)
	}

	for {
		if !s.acquire(nil) {
			return nil
		}

		conn, err := ln.Accept()
		if err != nil {
			<-s.sem
			if s.stopping.Load() || errors.Is(err, net.ErrClosed) {
				logger.InfoF("Stop accepting connections on %s", ln.Addr().String())
				return nil
			}
			return e.Wrap("accept", ln.Addr().String(), err)
		}

		logger.DebugF("Accepted new connection from %s", conn.RemoteAddr().String())

		session := s.startSession(connection.NewTCPTransport(conn, s.options.WriteTimeout), "tcp")
		if session == nil {
			<-s.sem
			continue
		}

		s.sessions.Add(1)
		go func() {
			defer s.sessions.Done()
			defer func() { <-s.sem }()
			session.Serve()
		}()
	}
}

// acquire takes a connection slot, giving up when the server stops or done
// is closed.
func (s *Server) acquire(done <-chan struct{}) bool {
	select {
	case s.sem <- struct{}{}:
		return true
	case <-s.stopCh:
		return false
	case <-done:
		return false
	}
}

func (s *Server) startSession(transport connection.Transport, transportName string) *Session {
	session := newSession(transport, transportName, s.registry, s.manager, s.store, s.options.WriteTimeout)

	if !s.registry.Add(session) {
		logger.WarnF("[%s] Duplicate session identity, closing connection", session.ID())
		session.refuse()
		return nil
	}
	if !s.manager.AddConnection(session) {
		logger.WarnF("[%s] Duplicate connection, closing connection", session.ID())
		s.registry.Remove(session)
		session.refuse()
		return nil
	}
	go session.saveOpenRecord()

	// Raced with StopAll: the sweep may already have passed this session.
	if s.stopping.Load() {
		go session.Shutdown()
	}
	return session
}

// StopAccepting closes the listening endpoints. Active sessions keep running.
func (s *Server) StopAccepting() {
	s.stopping.Store(true)
	s.stopOnce.Do(func() { close(s.stopCh) })

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !connection.IsNetClosedError(err) {
			logger.ErrorF("Server close error: %v", err)
		}
	}
	if s.wsServer != nil {
		if err := s.wsServer.Close(); err != nil {
			logger.ErrorF("WebSocket gateway close error: %v", err)
		}
	}
}

// StopAll sends a close acknowledgement to every active session, tears each
// one down, then closes the listening endpoints.
func (s *Server) StopAll() {
	s.stopping.Store(true)

	var g errgroup.Group
	for _, conn := range s.manager.Connections() {
		conn := conn
		g.Go(func() error {
			conn.Shutdown()
			return nil
		})
	}
	_ = g.Wait()

	s.StopAccepting()
	logger.InfoF("All connections stopped")
}

// Wait blocks until every session started by Serve has returned.
func (s *Server) Wait() {
	s.sessions.Wait()
}

// Sessions lists the active sessions sorted by id.
func (s *Server) Sessions() []SessionInfo {
	var infos []SessionInfo
	for _, conn := range s.manager.Connections() {
		session, ok := conn.(*Session)
		if !ok {
			continue
		}
		infos = append(infos, SessionInfo{
			ID:          session.ID(),
			Transport:   session.Transport(),
			ConnectedAt: session.ConnectedAt(),
			Topics:      session.Topics(),
		})
	}
	return infos
}

// History returns up to limit recorded sessions, newest first.
func (s *Server) History(limit int) ([]*database.SessionRecord, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.ListSessions(limit)
}
