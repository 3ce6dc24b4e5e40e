package client

import (
	"errors"
	"io"

	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/connection"
	e "github.com/life-stream-dev/life-stream-go-chat-broker/internal/errors"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/protocol"
)

type lineSource interface {
	ReadLine() (string, error)
	Close() error
}

// Listener reads server lines, renders each one and releases the bridge.
type Listener struct {
	source   lineSource
	bridge   *Bridge
	renderer *Renderer
	done     chan struct{}
	err      error
}

func NewListener(source lineSource, bridge *Bridge, renderer *Renderer) *Listener {
	return &Listener{
		source:   source,
		bridge:   bridge,
		renderer: renderer,
		done:     make(chan struct{}),
	}
}

// Run loops until end of stream, a read error or a close acknowledgement,
// then closes the source.
func (l *Listener) Run() {
	defer close(l.done)
	defer l.bridge.Close(e.ErrDisconnected)
	defer func() {
		if err := l.source.Close(); err != nil && !connection.IsNetClosedError(err) {
			logger.DebugF("Error occured while closing connection, details: %v", err)
		}
	}()

	for {
		line, err := l.source.ReadLine()
		if err != nil {
			if !errors.Is(err, io.EOF) && !connection.IsNetClosedError(err) {
				l.err = e.Wrap("read", "", err)
				logger.WarnF("Connection lost: %v", err)
			}
			return
		}
		if line == "" {
			continue
		}

		reply := protocol.ParseReply(line)
		l.renderer.Render(reply, l.bridge.Peek())
		l.bridge.Resolve(reply)

		if reply.Type == protocol.ClosedAck {
			return
		}
	}
}

// Done is closed when Run returns.
func (l *Listener) Done() <-chan struct{} { return l.done }

// Err returns the read error that ended Run, nil for a clean end. Valid
// after Done is closed.
func (l *Listener) Err() error { return l.err }
