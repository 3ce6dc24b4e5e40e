package server

import (
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/connection"
	e "github.com/life-stream-dev/life-stream-go-chat-broker/internal/errors"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/logger"
)

const WebSocketPath = "/chat"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ListenWebSocket starts the WebSocket gateway. Each text frame carries one
// protocol line; sessions share the registry and connection cap with TCP.
func (s *Server) ListenWebSocket(ip string, port int) error {
	address := net.JoinHostPort(ip, strconv.Itoa(port))
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return e.Wrap("listen", address, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(WebSocketPath, s.handleWebSocket)
	srv := &http.Server{Handler: mux}

	s.mu.Lock()
	s.wsListener = ln
	s.wsServer = srv
	s.mu.Unlock()

	logger.InfoF("WebSocket Gateway Listen On ws://%s%s", ln.Addr().String(), WebSocketPath)

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorF("WebSocket gateway error: %v", err)
		}
	}()
	return nil
}

// WebSocketAddr returns the gateway address, or nil when it is not running.
func (s *Server) WebSocketAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wsListener == nil {
		return nil
	}
	return s.wsListener.Addr()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.stopping.Load() {
		http.Error(w, "server is stopping", http.StatusServiceUnavailable)
		return
	}
	if !s.acquire(r.Context().Done()) {
		http.Error(w, "server is stopping", http.StatusServiceUnavailable)
		return
	}
	defer func() { <-s.sem }()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnF("[%s] WebSocket upgrade failed: %v", r.RemoteAddr, err)
		return
	}

	logger.DebugF("Accepted new WebSocket connection from %s", r.RemoteAddr)

	session := s.startSession(connection.NewWebSocketTransport(conn, r.RemoteAddr, s.options.WriteTimeout), "ws")
	if session == nil {
		return
	}
	s.sessions.Add(1)
	defer s.sessions.Done()
	session.Serve()
}
