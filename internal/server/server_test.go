package server

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/connection"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/database"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/registry"
)

type testServer struct {
	*Server
	registry *registry.TopicRegistry
	manager  *connection.ConnectionManager
	store    *database.MemoryStore
	served   chan error
}

func startServer(t *testing.T, options Options) *testServer {
	t.Helper()
	store := database.NewMemoryStore(64, time.Hour)
	ts := startServerWithStore(t, options, store)
	ts.store = store
	return ts
}

func startServerWithStore(t *testing.T, options Options, store database.SessionStore) *testServer {
	t.Helper()
	reg := registry.New()
	manager := connection.NewConnectionManager()
	srv := New(options, reg, manager, store)
	require.NoError(t, srv.Listen("127.0.0.1", 0))

	ts := &testServer{Server: srv, registry: reg, manager: manager, served: make(chan error, 1)}
	go func() { ts.served <- srv.Serve() }()
	t.Cleanup(func() {
		srv.StopAll()
		srv.Wait()
	})
	return ts
}

// blockingStore holds every save until released.
type blockingStore struct {
	*database.MemoryStore
	release chan struct{}
}

func (b *blockingStore) SaveSession(record *database.SessionRecord) error {
	<-b.release
	return b.MemoryStore.SaveSession(record)
}

type testClient struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

func dial(t *testing.T, addr net.Addr) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &testClient{t: t, conn: conn, reader: bufio.NewReader(conn)}
}

func (c *testClient) send(line string) {
	c.t.Helper()
	_, err := c.conn.Write([]byte(line + "\n"))
	require.NoError(c.t, err)
}

func (c *testClient) read() string {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := c.reader.ReadString('\n')
	require.NoError(c.t, err)
	return strings.TrimRight(line, "\n")
}

func (c *testClient) expectSilence(d time.Duration) {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(d))
	line, err := c.reader.ReadString('\n')
	require.Error(c.t, err, "unexpected line %q", line)
	var netErr net.Error
	require.ErrorAs(c.t, err, &netErr)
	require.True(c.t, netErr.Timeout())
}

func (c *testClient) request(line string) string {
	c.t.Helper()
	c.send(line)
	return c.read()
}

func (c *testClient) addr() string {
	return c.conn.LocalAddr().String()
}

func TestRegisterTwice(t *testing.T) {
	ts := startServer(t, Options{})
	a := dial(t, ts.Addr())

	assert.Equal(t, "OK", a.request("REGISTER sports"))
	assert.Equal(t, "ERROR", a.request("REGISTER sports"))
	assert.Equal(t, "*topics-sports", a.request("getRegisterTopics"))
}

func TestTopicsQuery(t *testing.T) {
	ts := startServer(t, Options{})
	a := dial(t, ts.Addr())

	assert.Equal(t, "*topics-empty", a.request("getRegisterTopics"))
	require.Equal(t, "OK", a.request("REGISTER b"))
	require.Equal(t, "OK", a.request("REGISTER a"))
	assert.Equal(t, "*topics-a,b", a.request("getRegisterTopics"))

	assert.Equal(t, "OK", a.request("LEAVE a"))
	assert.Equal(t, "ERROR", a.request("LEAVE a"))
	assert.Equal(t, "*topics-b", a.request("getRegisterTopics"))
}

func TestUnknownVerbKeepsSessionActive(t *testing.T) {
	ts := startServer(t, Options{})
	a := dial(t, ts.Addr())

	assert.Equal(t, "ERROR", a.request("FOO bar"))
	assert.Equal(t, "ERROR", a.request("REGISTER"))
	a.send("")
	assert.Equal(t, "OK", a.request("REGISTER x"))
}

func TestPublishScenario(t *testing.T) {
	ts := startServer(t, Options{})
	a := dial(t, ts.Addr())
	b := dial(t, ts.Addr())
	c := dial(t, ts.Addr())

	require.Equal(t, "OK", a.request("REGISTER sports"))
	require.Equal(t, "OK", b.request("REGISTER sports"))
	require.Equal(t, "OK", b.request("REGISTER news"))
	require.Equal(t, "*topics-empty", c.request("getRegisterTopics"))

	c.send("SEND sports Hello")

	prefix := "( sports ) " + c.addr() + " "
	for _, sub := range []*testClient{a, b} {
		line := sub.read()
		assert.True(t, strings.HasPrefix(line, prefix), "got %q", line)
		assert.True(t, strings.HasSuffix(line, " - Hello"), "got %q", line)
		sub.expectSilence(100 * time.Millisecond)
	}
	c.expectSilence(100 * time.Millisecond)
}

func TestPublisherSubscribedToOwnTopic(t *testing.T) {
	ts := startServer(t, Options{})
	a := dial(t, ts.Addr())

	require.Equal(t, "OK", a.request("REGISTER news"))
	a.send("SEND news big   news")
	line := a.read()
	assert.True(t, strings.HasSuffix(line, " - big   news"), "got %q", line)
}

func TestClientCloseCleansUp(t *testing.T) {
	ts := startServer(t, Options{})
	a := dial(t, ts.Addr())
	b := dial(t, ts.Addr())

	require.Equal(t, "OK", a.request("REGISTER sports"))
	require.Equal(t, "OK", b.request("REGISTER sports"))
	assert.Equal(t, "CLOSE", a.request("CLOSE"))

	_ = a.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := a.reader.ReadString('\n')
	assert.Error(t, err)

	require.Eventually(t, func() bool {
		return ts.registry.Len() == 1 && ts.manager.Count() == 1
	}, 2*time.Second, 10*time.Millisecond)

	b.send("SEND sports after")
	assert.True(t, strings.HasSuffix(b.read(), " - after"))

	require.Eventually(t, func() bool {
		records, err := ts.History(10)
		if err != nil {
			return false
		}
		for _, r := range records {
			if r.SessionID == a.addr() && r.Closed() {
				return r.Cause == database.CauseClientRequested && len(r.Topics) == 1 && r.Topics[0] == "sports"
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPeerDisconnectCleansUp(t *testing.T) {
	ts := startServer(t, Options{})
	a := dial(t, ts.Addr())
	require.Equal(t, "OK", a.request("REGISTER sports"))
	require.Equal(t, 1, ts.registry.Len())

	require.NoError(t, a.conn.Close())

	require.Eventually(t, func() bool {
		return ts.registry.Len() == 0 && ts.manager.Count() == 0
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		records, err := ts.History(10)
		if err != nil || len(records) != 1 {
			return false
		}
		return records[0].SessionID == a.addr() && records[0].Cause == database.CausePeerDisconnected
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStopAll(t *testing.T) {
	ts := startServer(t, Options{})
	clients := []*testClient{dial(t, ts.Addr()), dial(t, ts.Addr())}
	for _, c := range clients {
		require.Equal(t, "OK", c.request("REGISTER t"))
	}

	ts.StopAll()

	for _, c := range clients {
		assert.Equal(t, "CLOSE", c.read())
	}
	select {
	case err := <-ts.served:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("accept loop did not stop")
	}
	assert.Equal(t, 0, ts.registry.Len())
	assert.Empty(t, ts.Sessions())

	_, err := net.DialTimeout("tcp", ts.Addr().String(), 200*time.Millisecond)
	assert.Error(t, err)
}

func TestStopAcceptingKeepsSessions(t *testing.T) {
	ts := startServer(t, Options{})
	a := dial(t, ts.Addr())
	require.Equal(t, "OK", a.request("REGISTER t"))

	ts.StopAccepting()
	select {
	case err := <-ts.served:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("accept loop did not stop")
	}

	assert.Equal(t, "*topics-t", a.request("getRegisterTopics"))
	sessions := ts.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, []string{"t"}, sessions[0].Topics)
	assert.Equal(t, "tcp", sessions[0].Transport)
}

func TestConnectionLimit(t *testing.T) {
	ts := startServer(t, Options{MaxConnections: 1})
	a := dial(t, ts.Addr())
	require.Equal(t, "OK", a.request("REGISTER t"))

	b := dial(t, ts.Addr())
	b.send("REGISTER t")
	b.expectSilence(200 * time.Millisecond)

	a.send("CLOSE")
	assert.Equal(t, "OK", b.read())
}

func TestSlowHistoryStoreDoesNotStallAccept(t *testing.T) {
	store := &blockingStore{MemoryStore: database.NewMemoryStore(8, time.Hour), release: make(chan struct{})}
	ts := startServerWithStore(t, Options{}, store)
	t.Cleanup(func() { close(store.release) })

	for i := 0; i < 2; i++ {
		c := dial(t, ts.Addr())
		_ = c.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		c.send("getRegisterTopics")
		line, err := c.reader.ReadString('\n')
		require.NoError(t, err, "session %d was not served while the store was blocked", i)
		assert.Equal(t, "*topics-empty\n", line)
	}
}

func TestReconnectFromSameAddressKeepsBothRecords(t *testing.T) {
	ts := startServer(t, Options{})

	first := dial(t, ts.Addr())
	require.Equal(t, "OK", first.request("REGISTER a"))
	require.Equal(t, "CLOSE", first.request("CLOSE"))
	require.Eventually(t, func() bool { return ts.manager.Count() == 0 }, 2*time.Second, 10*time.Millisecond)

	local, err := net.ResolveTCPAddr("tcp", first.addr())
	require.NoError(t, err)
	require.NoError(t, first.conn.Close())
	var dialer net.Dialer
	dialer.LocalAddr = local
	conn, err := dialer.Dial("tcp", ts.Addr().String())
	if err != nil {
		t.Skipf("local port %s not reusable yet: %v", first.addr(), err)
	}
	second := &testClient{t: t, conn: conn, reader: bufio.NewReader(conn)}
	t.Cleanup(func() { _ = conn.Close() })
	require.Equal(t, "OK", second.request("REGISTER b"))
	require.Equal(t, "CLOSE", second.request("CLOSE"))

	require.Eventually(t, func() bool {
		records, err := ts.History(10)
		if err != nil || len(records) != 2 {
			return false
		}
		return records[0].Closed() && records[1].Closed() &&
			records[0].SessionID == records[1].SessionID &&
			records[0].RecordID != records[1].RecordID
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConcurrentSessions(t *testing.T) {
	ts := startServer(t, Options{})
	const sessions = 16

	var g errgroup.Group
	for i := 0; i < sessions; i++ {
		g.Go(func() error {
			c := dial(t, ts.Addr())
			for _, line := range []string{"REGISTER room", "LEAVE room"} {
				c.send(line)
				if got := c.read(); got != "OK" {
					return assert.AnError
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestWebSocketGateway(t *testing.T) {
	ts := startServer(t, Options{})
	require.NoError(t, ts.ListenWebSocket("127.0.0.1", 0))

	url := "ws://" + ts.WebSocketAddr().String() + WebSocketPath
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	tcp := dial(t, ts.Addr())
	require.Equal(t, "OK", tcp.request("REGISTER mixed"))

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("REGISTER mixed")))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "OK", string(data))

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("SEND mixed from ws")))
	assert.True(t, strings.HasSuffix(tcp.read(), " - from ws"))

	_, data, err = ws.ReadMessage()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(data), " - from ws"))
}
