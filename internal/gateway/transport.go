package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Timeout for the websocket opening handshake.
	dialTimeout = 10 * time.Second
)

// Conn is a single established socket. The client owns exactly one at a time.
type Conn interface {
	// ReadMessage blocks until the next complete message or a terminal error.
	ReadMessage() ([]byte, error)
	// WriteMessage writes one complete message. Safe for concurrent use.
	WriteMessage(data []byte) error
	// Close tears the socket down. Safe to call more than once.
	Close() error
}

// Dialer opens a Conn to a gateway URL (ws:// or wss://).
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// wsDialer is the production Dialer, backed by gorilla/websocket.
type wsDialer struct{}

func (wsDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	wc := &wsConn{conn: conn, done: make(chan struct{})}

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go wc.pingLoop()

	return wc, nil
}

type wsConn struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if msgType == websocket.TextMessage {
			return data, nil
		}
	}
}

func (c *wsConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		// Best-effort close frame so the gateway sees an orderly shutdown.
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = c.conn.Close()
	})
	return err
}

// pingLoop keeps the connection alive; a missed pong expires the read
// deadline and surfaces as a normal socket close.
func (c *wsConn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
