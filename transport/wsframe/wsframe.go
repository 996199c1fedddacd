// Package wsframe carries bridge envelopes over a WebSocket connection.
// It is the cross-boundary messaging variant for views rendered in a page:
// the server side upgrades with an origin allow-list, mirroring the origin
// checks a same-page message channel would apply.
package wsframe

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/appbridge/appbridge-go/transport"
)

// Transport adapts a *websocket.Conn to the transport contract. The
// connection's read side is pumped by a single goroutine and writes are
// serialized, per gorilla's concurrency rules.
type Transport struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	msgs    chan []byte
	started atomic.Bool

	closeMu sync.Mutex
	closed  bool
}

// New wraps an established WebSocket connection.
func New(conn *websocket.Conn) *Transport {
	return &Transport{conn: conn, msgs: make(chan []byte)}
}

// Dial connects to a WebSocket endpoint and returns the wrapped transport.
func Dial(ctx context.Context, url string, header http.Header) (*Transport, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return New(conn), nil
}

// Upgrader upgrades HTTP requests into bridge transports, admitting only
// the configured origins. An empty allow-list rejects every cross-origin
// request, the safe default for an untrusted view boundary.
type Upgrader struct {
	// AllowedOrigins lists exact origins (scheme://host[:port]) permitted
	// to connect. "*" admits any origin.
	AllowedOrigins []string

	once     sync.Once
	upgrader websocket.Upgrader
}

// Upgrade performs the WebSocket handshake and wraps the connection.
func (u *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request) (*Transport, error) {
	u.once.Do(func() {
		u.upgrader = websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					// Same-origin or non-browser client.
					return true
				}
				for _, allowed := range u.AllowedOrigins {
					if allowed == "*" || allowed == origin {
						return true
					}
				}
				return false
			},
		}
	})
	conn, err := u.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("upgrade: %w", err)
	}
	return New(conn), nil
}

// Start begins the read pump. Idempotent.
func (t *Transport) Start(ctx context.Context) error {
	if !t.started.CompareAndSwap(false, true) {
		return nil
	}
	go t.readLoop()
	return nil
}

func (t *Transport) readLoop() {
	defer close(t.msgs)
	for {
		kind, data, err := t.conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		t.msgs <- data
	}
}

// Send writes one envelope as a text frame.
func (t *Transport) Send(ctx context.Context, msg []byte) error {
	t.closeMu.Lock()
	closed := t.closed
	t.closeMu.Unlock()
	if closed {
		return transport.ErrClosed
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Messages is the inbound frame stream; closed when the connection drops.
func (t *Transport) Messages() <-chan []byte { return t.msgs }

// Close sends a best-effort close frame and releases the connection.
// Idempotent.
func (t *Transport) Close() error {
	t.closeMu.Lock()
	if t.closed {
		t.closeMu.Unlock()
		return nil
	}
	t.closed = true
	t.closeMu.Unlock()

	t.writeMu.Lock()
	_ = t.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	t.writeMu.Unlock()
	return t.conn.Close()
}

var _ transport.Transport = (*Transport)(nil)
