package client

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	e "github.com/life-stream-dev/life-stream-go-chat-broker/internal/errors"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/protocol"
)

type scriptedSource struct {
	lines  []string
	closed int
}

func (s *scriptedSource) ReadLine() (string, error) {
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func (s *scriptedSource) Close() error {
	s.closed++
	return nil
}

func TestListenerClosesSourceOnServerClose(t *testing.T) {
	color.NoColor = true
	source := &scriptedSource{lines: []string{"OK", "CLOSE", "( t ) a:1 10:00:00 - never read"}}
	bridge := NewBridge()
	p, err := bridge.Begin(Register, protocol.Ok, protocol.Error)
	require.NoError(t, err)

	var out bytes.Buffer
	l := NewListener(source, bridge, NewRenderer(&out))
	l.Run()

	<-l.Done()
	assert.Equal(t, 1, source.closed)
	assert.Len(t, source.lines, 1)
	assert.NoError(t, l.Err())
	assert.Equal(t, "OK - topic registered successfully\nConnection closed by server\n", out.String())

	reply, completed := p.WaitFor(time.Second)
	assert.True(t, completed)
	assert.Equal(t, protocol.Ok, reply.Type)

	_, err = bridge.Begin(None)
	assert.ErrorIs(t, err, e.ErrDisconnected)
}

func TestListenerClosesSourceOnEOF(t *testing.T) {
	source := &scriptedSource{}
	l := NewListener(source, NewBridge(), NewRenderer(io.Discard))
	l.Run()
	assert.Equal(t, 1, source.closed)
}
