// Package connection tracks active sessions and moves lines over the wire.
package connection

import (
	"errors"
	"io"
	"net"
	"os"
	"sort"
	"sync"

	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/logger"
)

// Connection is what the manager needs from a live session.
type Connection interface {
	ID() string
	// Shutdown sends the close acknowledgement and tears the session down.
	Shutdown()
}

// ConnectionManager is the acceptor's active-session set.
type ConnectionManager struct {
	connections sync.Map
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{}
}

// AddConnection stores conn under its id. It returns false if the id is taken.
func (cm *ConnectionManager) AddConnection(conn Connection) bool {
	if _, loaded := cm.connections.LoadOrStore(conn.ID(), conn); loaded {
		return false
	}
	logger.InfoF("Client %s connected", conn.ID())
	return true
}

// RemoveConnection drops conn. It is a no-op when conn is absent or its id
// is held by another connection.
func (cm *ConnectionManager) RemoveConnection(conn Connection) {
	if cm.connections.CompareAndDelete(conn.ID(), conn) {
		logger.InfoF("Client %s disconnected", conn.ID())
	}
}

// Connections returns the current connections sorted by id.
func (cm *ConnectionManager) Connections() []Connection {
	var result []Connection
	cm.connections.Range(func(_, value any) bool {
		result = append(result, value.(Connection))
		return true
	})
	sort.Slice(result, func(i, j int) bool { return result[i].ID() < result[j].ID() })
	return result
}

func (cm *ConnectionManager) Count() int {
	n := 0
	cm.connections.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func IsNetClosedError(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	var opErr *net.OpError
	ok := errors.As(err, &opErr)
	return ok && opErr.Timeout()
}

// HandleReadError logs a read failure with the severity it deserves.
func HandleReadError(connID string, err error) {
	switch {
	case errors.Is(err, io.EOF):
		logger.InfoF("[%s] Client close connection", connID)
	case IsNetClosedError(err):
		logger.DebugF("[%s] Connection closed locally", connID)
	case os.IsTimeout(err):
		logger.WarnF("[%s] Reading timeout", connID)
	default:
		logger.ErrorF("[%s] Error occured while reading line, details: %v", connID, err)
	}
}
