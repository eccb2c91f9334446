package gateway

import (
	"fmt"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// transport is the one piece of raw-connection behavior the per-connection
// loop needs that differs between the line-terminal listener (a plain
// net.Conn byte stream) and the framed-message listener (a WebSocket
// connection delivering whole messages). Adapting both to the same shape
// here keeps connection.go protocol-agnostic, matching the teacher's
// GameClient — one connection struct, one conn field — generalized to two
// concrete wire types instead of one.
type transport interface {
	// readChunk blocks for the next unit of input: for a line connection,
	// whatever bytes are currently available; for a framed connection,
	// exactly one WebSocket message.
	readChunk() ([]byte, error)
	writeChunk([]byte) error
	setReadDeadline(time.Time) error
	close() error
	remoteAddr() string
}

// netConnTransport adapts a raw net.Conn for the line-terminal listener.
type netConnTransport struct {
	conn net.Conn
	buf  []byte
}

func newNetConnTransport(conn net.Conn) *netConnTransport {
	return &netConnTransport{conn: conn, buf: make([]byte, 4096)}
}

func (t *netConnTransport) readChunk() ([]byte, error) {
	n, err := t.conn.Read(t.buf)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, t.buf[:n])
	return out, nil
}

func (t *netConnTransport) writeChunk(data []byte) error {
	_, err := t.conn.Write(data)
	return err
}

func (t *netConnTransport) setReadDeadline(d time.Time) error {
	return t.conn.SetReadDeadline(d)
}

func (t *netConnTransport) close() error {
	return t.conn.Close()
}

func (t *netConnTransport) remoteAddr() string {
	return t.conn.RemoteAddr().String()
}

// websocketTransport adapts a gorilla/websocket connection for the
// framed-message listener. protocol/framed.Adapter.Decode expects exactly
// one already-delimited message per call, which is exactly what
// ReadMessage hands back.
type websocketTransport struct {
	conn *websocket.Conn
}

func newWebsocketTransport(conn *websocket.Conn) *websocketTransport {
	return &websocketTransport{conn: conn}
}

func (t *websocketTransport) readChunk() ([]byte, error) {
	kind, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if kind != websocket.TextMessage {
		return nil, fmt.Errorf("unsupported websocket message type %d", kind)
	}
	return data, nil
}

func (t *websocketTransport) writeChunk(data []byte) error {
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *websocketTransport) setReadDeadline(d time.Time) error {
	return t.conn.SetReadDeadline(d)
}

func (t *websocketTransport) close() error {
	return t.conn.Close()
}

func (t *websocketTransport) remoteAddr() string {
	return t.conn.RemoteAddr().String()
}
