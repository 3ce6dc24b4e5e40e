package server

import (
	"errors"
	"io"
	"syscall"

	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/connection"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/database"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/logger"
)

// closeCause maps a read failure to the reason the session ends.
func closeCause(err error) database.CloseCause {
	switch {
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return database.CausePeerDisconnected
	default:
		return database.CauseIOError
	}
}

func closeTransport(connID string, transport connection.Transport) {
	if err := transport.Close(); err != nil && !connection.IsNetClosedError(err) {
		logger.WarnF("[%s] Error occured while closing connection, details: %v", connID, err)
	}
}
