package server

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/connection"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/database"
	e "github.com/life-stream-dev/life-stream-go-chat-broker/internal/errors"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/protocol"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/registry"
)

type SessionState int32

const (
	StateActive SessionState = iota
	StateClosing
	StateClosed
)

var SessionStateMap = map[SessionState]string{
	StateActive:  "ACTIVE",
	StateClosing: "CLOSING",
	StateClosed:  "CLOSED",
}

func (s SessionState) String() string {
	return SessionStateMap[s]
}

const outboundQueueSize = 64

// Session serves one client connection. The read loop runs in Serve; every
// line bound for the client, replies and forwarded publishes alike, goes
// through the outbound queue drained by a single writer goroutine.
//
// SEND is not acknowledged on the wire. The sender only sees its own
// message if it is subscribed to the topic.
type Session struct {
	id           string
	transport    connection.Transport
	registry     *registry.TopicRegistry
	manager      *connection.ConnectionManager
	store        database.SessionStore
	record       *database.SessionRecord
	writeTimeout time.Duration

	outbound   chan string
	done       chan struct{}
	writerDone chan struct{}
	closed     chan struct{}

	state     atomic.Int32
	published atomic.Int64
	closeOnce sync.Once

	recordMu   sync.Mutex
	recordDone bool
}

func newSession(transport connection.Transport, transportName string, reg *registry.TopicRegistry,
	manager *connection.ConnectionManager, store database.SessionStore, writeTimeout time.Duration) *Session {
	id := transport.RemoteAddr()
	s := &Session{
		id:           id,
		transport:    transport,
		registry:     reg,
		manager:      manager,
		store:        store,
		record:       database.NewSessionRecord(id, transportName),
		writeTimeout: writeTimeout,
		outbound:     make(chan string, outboundQueueSize),
		done:         make(chan struct{}),
		writerDone:   make(chan struct{}),
		closed:       make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Topics returns the session's current subscriptions.
func (s *Session) Topics() []string {
	return s.registry.TopicsOf(s)
}

func (s *Session) ConnectedAt() time.Time {
	return s.record.ConnectedAt
}

func (s *Session) Transport() string {
	return s.record.Transport
}

// Closed is closed once teardown has completed.
func (s *Session) Closed() <-chan struct{} {
	return s.closed
}

// Deliver queues line for the writer. It waits at most the write timeout
// for room in the queue.
func (s *Session) Deliver(line string) error {
	if s.State() != StateActive {
		return e.ErrSessionClosed
	}
	select {
	case s.outbound <- line:
		return nil
	default:
	}

	timer := time.NewTimer(s.writeTimeout)
	defer timer.Stop()
	select {
	case s.outbound <- line:
		return nil
	case <-s.done:
		return e.ErrSessionClosed
	case <-s.writerDone:
		return e.ErrSessionClosed
	case <-timer.C:
		return e.ErrSlowSubscriber
	}
}

func (s *Session) writeLoop() {
	defer close(s.writerDone)
	for {
		select {
		case line := <-s.outbound:
			if !s.write(line) {
				return
			}
		case <-s.done:
			for {
				select {
				case line := <-s.outbound:
					if !s.write(line) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (s *Session) write(line string) bool {
	if err := s.transport.WriteLine(line); err != nil {
		logger.WarnF("[%s] %v", s.id, e.Wrap("write", s.id, err))
		// Unblocks the read loop, which then tears the session down.
		closeTransport(s.id, s.transport)
		return false
	}
	return true
}

func (s *Session) reply(r protocol.Reply) {
	if err := s.Deliver(r.Encode()); err != nil {
		logger.WarnF("[%s] Fail to queue %s reply, details: %v", s.id, r.Type, err)
	}
}

// Serve reads and executes commands until the session closes.
func (s *Session) Serve() {
	for s.State() == StateActive {
		line, err := s.transport.ReadLine()
		if err != nil {
			if s.State() == StateActive {
				connection.HandleReadError(s.id, err)
			}
			s.terminate(closeCause(err))
			return
		}

		if strings.TrimSpace(line) == "" {
			continue
		}

		if !s.handle(line) {
			return
		}
	}
}

// handle executes one line and reports whether the loop should continue.
func (s *Session) handle(line string) bool {
	cmd := protocol.Decode(line)
	logger.DebugF("[%s] Receive %s command", s.id, cmd.Type)

	switch cmd.Type {
	case protocol.ListTopics:
		s.reply(protocol.NewTopicList(s.registry.TopicsOf(s)))
	case protocol.Register:
		if s.registry.Register(s, cmd.Topic) {
			logger.InfoF("[%s] Registered topic %s", s.id, cmd.Topic)
			s.reply(protocol.NewOk())
		} else {
			s.reply(protocol.NewError())
		}
	case protocol.Leave:
		if s.registry.Leave(s, cmd.Topic) {
			logger.InfoF("[%s] Left topic %s", s.id, cmd.Topic)
			s.reply(protocol.NewOk())
		} else {
			s.reply(protocol.NewError())
		}
	case protocol.Send:
		s.published.Add(1)
		msg := protocol.NewForwarded(cmd.Topic, s.id, time.Now(), cmd.Content)
		delivered := s.registry.Publish(msg)
		logger.DebugF("[%s] Published to ( %s ), %d subscribers", s.id, cmd.Topic, len(delivered))
	case protocol.Close:
		logger.InfoF("[%s] Client requested close", s.id)
		s.reply(protocol.NewClosedAck())
		s.terminate(database.CauseClientRequested)
		return false
	default:
		logger.WarnF("[%s] %v", s.id, cmd.Err)
		s.reply(protocol.NewError())
	}
	return true
}

// Shutdown sends the close acknowledgement and tears the session down.
func (s *Session) Shutdown() {
	s.reply(protocol.NewClosedAck())
	s.terminate(database.CauseServerShutdown)
}

// terminate runs the cleanup exactly once, whichever path gets here first.
// Lines queued before it was called are flushed before the transport closes.
func (s *Session) terminate(cause database.CloseCause) {
	s.teardown(cause, true)
}

// refuse closes a session whose identity is held by another live session.
// The registry and manager entries under that id belong to the other
// session and are left alone.
func (s *Session) refuse() {
	s.teardown(database.CauseIOError, false)
}

func (s *Session) teardown(cause database.CloseCause, owned bool) {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosing))
		var topics []string
		if owned {
			topics = s.registry.TopicsOf(s)
			s.registry.Remove(s)
			s.manager.RemoveConnection(s)
		}

		close(s.done)
		select {
		case <-s.writerDone:
		case <-time.After(s.writeTimeout):
			logger.WarnF("[%s] Outbound flush timed out", s.id)
			closeTransport(s.id, s.transport)
			<-s.writerDone
		}
		closeTransport(s.id, s.transport)
		s.state.Store(int32(StateClosed))
		logger.DebugF("[%s] Session closed, cause %s", s.id, cause)
		close(s.closed)

		if owned {
			record := *s.record
			record.Published = s.published.Load()
			record.Finish(cause, topics)
			s.saveFinalRecord(&record)
		}
	})
}

// saveOpenRecord stores the connect-time record unless the final one has
// already been written.
func (s *Session) saveOpenRecord() {
	s.recordMu.Lock()
	defer s.recordMu.Unlock()
	if s.recordDone {
		return
	}
	s.saveRecord(s.record)
}

func (s *Session) saveFinalRecord(record *database.SessionRecord) {
	s.recordMu.Lock()
	defer s.recordMu.Unlock()
	s.recordDone = true
	s.saveRecord(record)
}

func (s *Session) saveRecord(record *database.SessionRecord) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveSession(record); err != nil {
		logger.WarnF("[%s] Fail to save session record, details: %v", s.id, err)
	}
}
