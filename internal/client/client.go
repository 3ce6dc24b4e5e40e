package client

import (
	"context"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/config"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/connection"
	e "github.com/life-stream-dev/life-stream-go-chat-broker/internal/errors"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/protocol"
)

type Options struct {
	// SendGrace bounds how long Send waits for a line to print.
	SendGrace    time.Duration
	WriteTimeout time.Duration
	Output       io.Writer
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		SendGrace:    cfg.SendGraceDuration(),
		WriteTimeout: cfg.WriteTimeoutDuration(),
		Output:       os.Stdout,
	}
}

func (o Options) withDefaults() Options {
	if o.SendGrace <= 0 {
		o.SendGrace = config.DefaultSendGracePeriod
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = config.DefaultWriteTimeout
	}
	if o.Output == nil {
		o.Output = os.Stdout
	}
	return o
}

// Client is one connection to the broker. Requests are issued from a single
// goroutine at a time; the listener runs on its own goroutine.
type Client struct {
	transport connection.Transport
	bridge    *Bridge
	listener  *Listener
	options   Options
	writeMu   sync.Mutex
}

// Dial connects to the TCP endpoint ip:port.
func Dial(ctx context.Context, ip string, port int, options Options) (*Client, error) {
	options = options.withDefaults()
	address := net.JoinHostPort(ip, strconv.Itoa(port))

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, e.Wrap("dial", address, err)
	}
	logger.InfoF("Connected to %s", address)
	return newClient(connection.NewTCPTransport(conn, options.WriteTimeout), options), nil
}

// DialWebSocket connects to the broker's WebSocket gateway at url.
func DialWebSocket(ctx context.Context, url string, options Options) (*Client, error) {
	options = options.withDefaults()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, e.Wrap("dial", url, err)
	}
	logger.InfoF("Connected to %s", url)
	return newClient(connection.NewWebSocketTransport(conn, conn.RemoteAddr().String(), options.WriteTimeout), options), nil
}

func newClient(transport connection.Transport, options Options) *Client {
	bridge := NewBridge()
	c := &Client{
		transport: transport,
		bridge:    bridge,
		listener:  NewListener(transport, bridge, NewRenderer(options.Output)),
		options:   options,
	}
	go c.listener.Run()
	return c
}

func (c *Client) write(cmd protocol.Command) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.transport.WriteLine(protocol.EncodeCommand(cmd)); err != nil {
		return e.Wrap("write", c.transport.RemoteAddr(), err)
	}
	return nil
}

// request writes cmd and waits for a reply of one of the expected types.
func (c *Client) request(ctx context.Context, cmd protocol.Command, action Action, expects ...protocol.ReplyType) (protocol.Reply, error) {
	pending, err := c.bridge.Begin(action, expects...)
	if err != nil {
		return protocol.Reply{}, err
	}
	if err := c.write(cmd); err != nil {
		c.bridge.Cancel(pending)
		return protocol.Reply{}, err
	}
	reply, err := pending.Wait(ctx)
	if err != nil {
		c.bridge.Cancel(pending)
		return protocol.Reply{}, err
	}
	return reply, nil
}

// Topics asks the server for this connection's subscriptions.
func (c *Client) Topics(ctx context.Context) ([]string, error) {
	reply, err := c.request(ctx, protocol.Command{Type: protocol.ListTopics}, None, protocol.TopicList)
	if err != nil {
		return nil, err
	}
	return reply.Topics, nil
}

// Register subscribes to topic. It reports false when the server answered
// ERROR, meaning the topic was already registered.
func (c *Client) Register(ctx context.Context, topic string) (bool, error) {
	return c.subscription(ctx, protocol.Register, Register, topic)
}

// Leave unsubscribes from topic. It reports false when the topic was not
// registered.
func (c *Client) Leave(ctx context.Context, topic string) (bool, error) {
	return c.subscription(ctx, protocol.Leave, Leave, topic)
}

func (c *Client) subscription(ctx context.Context, t protocol.CommandType, action Action, topic string) (bool, error) {
	if !protocol.ValidTopic(topic) {
		return false, &e.ProtocolError{Line: t.String() + " " + topic, Reason: "topic must be a single non-empty token"}
	}
	reply, err := c.request(ctx, protocol.Command{Type: t, Topic: topic}, action, protocol.Ok, protocol.Error)
	if err != nil {
		return false, err
	}
	return reply.Type == protocol.Ok, nil
}

// Send publishes content on topic. The server does not acknowledge SEND, so
// Send only waits the grace period for any line already in flight to print.
func (c *Client) Send(topic, content string) error {
	if !protocol.ValidTopic(topic) {
		return &e.ProtocolError{Line: "SEND " + topic, Reason: "topic must be a single non-empty token"}
	}
	pending, err := c.bridge.Begin(None)
	if err != nil {
		return err
	}
	defer c.bridge.Cancel(pending)

	if err := c.write(protocol.Command{Type: protocol.Send, Topic: topic, Content: content}); err != nil {
		return err
	}
	pending.WaitFor(c.options.SendGrace)
	return nil
}

// Close sends CLOSE, waits for the acknowledgement or the end of the
// connection, then releases the transport.
func (c *Client) Close(ctx context.Context) error {
	_, err := c.request(ctx, protocol.Command{Type: protocol.Close}, None, protocol.ClosedAck)
	if err != nil && !e.Is(err, e.ErrDisconnected) {
		logger.WarnF("Close handshake failed: %v", err)
	}
	closeErr := c.transport.Close()
	select {
	case <-c.listener.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if closeErr != nil && !connection.IsNetClosedError(closeErr) {
		return e.Wrap("close", c.transport.RemoteAddr(), closeErr)
	}
	return nil
}

// Done is closed once the connection has ended for any reason.
func (c *Client) Done() <-chan struct{} {
	return c.listener.Done()
}

// Err returns the read failure that ended the connection, if any.
func (c *Client) Err() error {
	return c.listener.Err()
}

func (c *Client) RemoteAddr() string {
	return c.transport.RemoteAddr()
}
