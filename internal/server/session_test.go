package server

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/connection"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/database"
	e "github.com/life-stream-dev/life-stream-go-chat-broker/internal/errors"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/registry"
)

// stuckTransport never completes a write until released.
type stuckTransport struct {
	release chan struct{}
	closed  chan struct{}
	once    sync.Once
}

func newStuckTransport() *stuckTransport {
	return &stuckTransport{release: make(chan struct{}), closed: make(chan struct{})}
}

func (t *stuckTransport) ReadLine() (string, error) {
	<-t.closed
	return "", io.EOF
}

func (t *stuckTransport) WriteLine(string) error {
	select {
	case <-t.release:
		return nil
	case <-t.closed:
		return io.ErrClosedPipe
	}
}

func (t *stuckTransport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}

func (t *stuckTransport) RemoteAddr() string { return "10.0.0.1:4000" }

func TestDeliverToSlowSubscriber(t *testing.T) {
	transport := newStuckTransport()
	reg := registry.New()
	manager := connection.NewConnectionManager()
	s := newSession(transport, "tcp", reg, manager, nil, 50*time.Millisecond)
	require.True(t, reg.Add(s))

	var err error
	for i := 0; i <= outboundQueueSize+1; i++ {
		if err = s.Deliver("line\n"); err != nil {
			break
		}
	}
	assert.ErrorIs(t, err, e.ErrSlowSubscriber)

	s.terminate(database.CauseServerShutdown)
	assert.Equal(t, StateClosed, s.State())
	assert.ErrorIs(t, s.Deliver("late\n"), e.ErrSessionClosed)
	assert.Equal(t, 0, reg.Len())
}

func TestTerminateIsIdempotent(t *testing.T) {
	transport := newStuckTransport()
	close(transport.release)
	reg := registry.New()
	manager := connection.NewConnectionManager()
	store := database.NewMemoryStore(8, time.Hour)
	s := newSession(transport, "tcp", reg, manager, store, time.Second)
	require.True(t, reg.Add(s))
	require.True(t, manager.AddConnection(s))
	require.True(t, reg.Register(s, "a"))

	var wg sync.WaitGroup
	for _, cause := range []database.CloseCause{database.CauseClientRequested, database.CauseIOError, database.CauseServerShutdown} {
		cause := cause
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.terminate(cause)
		}()
	}
	wg.Wait()

	<-s.Closed()
	assert.Equal(t, 0, reg.Len())
	assert.Equal(t, 0, manager.Count())

	record, err := store.GetSession(s.record.RecordID)
	require.NoError(t, err)
	assert.True(t, record.Closed())
	assert.Equal(t, []string{"a"}, record.Topics)
}

func TestDuplicateIdentityLeavesLiveSessionAlone(t *testing.T) {
	reg := registry.New()
	manager := connection.NewConnectionManager()
	srv := New(Options{WriteTimeout: 50 * time.Millisecond}, reg, manager, nil)

	first := newStuckTransport()
	close(first.release)
	live := srv.startSession(first, "tcp")
	require.NotNil(t, live)
	t.Cleanup(func() { live.terminate(database.CauseServerShutdown) })
	require.True(t, reg.Register(live, "sports"))

	second := newStuckTransport()
	close(second.release)
	assert.Nil(t, srv.startSession(second, "ws"))

	select {
	case <-second.closed:
	case <-time.After(time.Second):
		t.Fatal("refused transport was not closed")
	}
	assert.Equal(t, StateActive, live.State())
	assert.Equal(t, []string{"sports"}, live.Topics())
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, 1, manager.Count())
}
