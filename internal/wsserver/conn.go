package wsserver

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const writeTimeout = 5 * time.Second

// wsConn adapts a websocket to duel.Transport.
type wsConn struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func newConn(c *websocket.Conn) *wsConn {
	return &wsConn{id: uuid.NewString(), conn: c}
}

func (c *wsConn) ID() string { return c.id }

// Read returns the next text frame. Binary frames are skipped.
func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	for {
		typ, b, err := c.conn.Read(ctx)
		if err != nil {
			return nil, err
		}
		if typ == websocket.MessageText {
			return b, nil
		}
	}
}

// WriteJSON may be called from the opponent's loop. The caller's cancellation is dropped
// because an expired write context closes the websocket.
func (c *wsConn) WriteJSON(ctx context.Context, v any) error {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	return wsjson.Write(wctx, c.conn, v)
}

// pingLoop closes the connection after two consecutive failed pings.
func (c *wsConn) pingLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := c.conn.Ping(pctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			if ctx.Err() != nil {
				return
			}
			failures++
			if failures >= 2 {
				_ = c.conn.Close(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}
