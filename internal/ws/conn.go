package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

var (
	ErrSendQueueFull = errors.New("send queue full")
	ErrConnClosed    = errors.New("connection closed")
)

const writeTimeout = 10 * time.Second

// Conn is one accepted websocket. Outbound frames go through a buffered
// queue drained by WriteLoop so a slow peer only stalls itself.
type Conn struct {
	ws   *websocket.Conn
	out  chan []byte
	done chan struct{}
	once sync.Once
	ping time.Duration
}

// Accept upgrades HTTP to websocket. origins are host patterns, "*" allows all.
func Accept(w http.ResponseWriter, r *http.Request, origins []string) (*websocket.Conn, error) {
	return websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  origins,
		CompressionMode: websocket.CompressionDisabled,
	})
}

func NewConn(ws *websocket.Conn, buffer int, ping time.Duration) *Conn {
	return &Conn{
		ws:   ws,
		out:  make(chan []byte, buffer),
		done: make(chan struct{}),
		ping: ping,
	}
}

// Read blocks until it receives a text/binary message
// Returns false once the connection is closed
func (c *Conn) Read(ctx context.Context) ([]byte, bool) {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			return nil, false
		}
		if typ == websocket.MessageText || typ == websocket.MessageBinary {
			return data, true
		}
	}
}

// Send queues b without blocking
func (c *Conn) Send(b []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.out <- b:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// WriteLoop sends queued frames + periodic pings until ctx is cancelled.
// A failed write or ping drops the connection, which ends the reader.
func (c *Conn) WriteLoop(ctx context.Context) {
	t := time.NewTicker(c.ping)
	defer t.Stop()

	for {
		select {
		case b := <-c.out:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.ws.Write(wctx, websocket.MessageText, b)
			cancel()
			if err != nil {
				c.abort()
				return
			}
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.ws.Ping(pctx)
			cancel()
			if err != nil {
				c.abort()
				return
			}
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Close performs a normal close handshake
func (c *Conn) Close() error { return c.CloseWith(websocket.StatusNormalClosure, "bye") }

// CloseWith closes with a specific status; later calls are no-ops
func (c *Conn) CloseWith(code websocket.StatusCode, reason string) error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.ws.Close(code, reason)
	})
	return err
}

func (c *Conn) abort() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.CloseNow()
	})
}
