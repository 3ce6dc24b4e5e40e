package connection

import (
	"bufio"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport carries newline-delimited lines for one session. ReadLine is
// called from one goroutine and WriteLine from one other goroutine; Close
// may be called from anywhere and unblocks a pending ReadLine.
type Transport interface {
	ReadLine() (string, error)
	WriteLine(line string) error
	Close() error
	RemoteAddr() string
}

// TCPTransport is a Transport over a net.Conn.
type TCPTransport struct {
	conn         net.Conn
	reader       *bufio.Reader
	writeTimeout time.Duration
	id           string
	closeOnce    sync.Once
	closeErr     error
}

func NewTCPTransport(conn net.Conn, writeTimeout time.Duration) *TCPTransport {
	return &TCPTransport{
		conn:         conn,
		reader:       bufio.NewReader(conn),
		writeTimeout: writeTimeout,
		id:           conn.RemoteAddr().String(),
	}
}

// ReadLine returns the next line without its terminator. A final line
// without newline is returned before io.EOF.
func (t *TCPTransport) ReadLine() (string, error) {
	line, err := t.reader.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (t *TCPTransport) WriteLine(line string) error {
	if t.writeTimeout > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}
	return Send(t.conn, []byte(line), t.id)
}

func (t *TCPTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

func (t *TCPTransport) RemoteAddr() string { return t.id }

// WebSocketTransport maps one text frame to one line.
type WebSocketTransport struct {
	conn         *websocket.Conn
	remote       string
	writeTimeout time.Duration
	closeOnce    sync.Once
	closeErr     error
}

func NewWebSocketTransport(conn *websocket.Conn, remote string, writeTimeout time.Duration) *WebSocketTransport {
	return &WebSocketTransport{conn: conn, remote: remote, writeTimeout: writeTimeout}
}

func (t *WebSocketTransport) ReadLine() (string, error) {
	for {
		messageType, data, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return "", io.EOF
			}
			return "", err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}
}

func (t *WebSocketTransport) WriteLine(line string) error {
	if t.writeTimeout > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}
	return t.conn.WriteMessage(websocket.TextMessage, []byte(strings.TrimSuffix(line, "\n")))
}

func (t *WebSocketTransport) Close() error {
	t.closeOnce.Do(func() {
		deadline := time.Now().Add(time.Second)
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

func (t *WebSocketTransport) RemoteAddr() string { return t.remote }
