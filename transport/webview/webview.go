// Package webview carries bridge envelopes over a byte stream as
// newline-delimited JSON. It is the transport for native hosts that embed a
// web view and marshal messages through its script-injection channel, which
// presents as an ordered byte pipe on the Go side.
package webview

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/appbridge/appbridge-go/transport"
)

// defaultMaxFrameSize bounds a single envelope line. Operation results can
// embed base64 media, so the cap is generous.
const defaultMaxFrameSize = 16 * 1024 * 1024

// Transport frames envelopes as one JSON document per line.
type Transport struct {
	r io.Reader
	w io.Writer

	maxFrame int

	writeMu sync.Mutex
	bw      *bufio.Writer

	msgs    chan []byte
	started atomic.Bool

	closeMu sync.Mutex
	closed  bool
}

// Option customizes a Transport.
type Option func(*Transport)

// WithMaxFrameSize overrides the per-line frame cap. Inbound lines beyond
// the cap sever the stream; outbound envelopes beyond it are rejected.
func WithMaxFrameSize(n int) Option {
	return func(t *Transport) {
		if n > 0 {
			t.maxFrame = n
		}
	}
}

// New constructs a Transport reading envelopes from r and writing them to w.
func New(r io.Reader, w io.Writer, opts ...Option) *Transport {
	t := &Transport{
		r:        r,
		w:        w,
		maxFrame: defaultMaxFrameSize,
		bw:       bufio.NewWriter(w),
		msgs:     make(chan []byte),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Start begins reading frames. Idempotent.
func (t *Transport) Start(ctx context.Context) error {
	if !t.started.CompareAndSwap(false, true) {
		return nil
	}
	go t.readLoop()
	return nil
}

func (t *Transport) readLoop() {
	defer close(t.msgs)
	scanner := bufio.NewScanner(t.r)
	scanner.Buffer(make([]byte, 64*1024), t.maxFrame)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		buf := make([]byte, len(line))
		copy(buf, line)
		t.msgs <- buf
	}
}

// Send writes one envelope frame. The envelope must not contain a raw
// newline; JSON-encoded envelopes never do.
func (t *Transport) Send(ctx context.Context, msg []byte) error {
	if len(msg) == 0 || len(msg) > t.maxFrame || bytes.ContainsRune(msg, '\n') {
		return transport.ErrInvalidMessage
	}

	t.closeMu.Lock()
	closed := t.closed
	t.closeMu.Unlock()
	if closed {
		return transport.ErrClosed
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.bw.Write(msg); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if err := t.bw.WriteByte('\n'); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if err := t.bw.Flush(); err != nil {
		return fmt.Errorf("flush frame: %w", err)
	}
	return nil
}

// Messages is the inbound frame stream; closed on EOF or Close.
func (t *Transport) Messages() <-chan []byte { return t.msgs }

// Close releases the underlying stream ends when they are closable.
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
	_ = t.bw.Flush()
	t.writeMu.Unlock()

	if c, ok := t.r.(io.Closer); ok {
		_ = c.Close()
	}
	if c, ok := t.w.(io.Closer); ok {
		_ = c.Close()
	}
	return nil
}

var _ transport.Transport = (*Transport)(nil)
