package webview

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/appbridge/appbridge-go/transport"
)

func TestTransport_FramesOnePerLine(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	tr := New(strings.NewReader(""), &out)
	ctx := context.Background()

	if err := tr.Send(ctx, []byte(`{"jsonrpc":"2.0","method":"ping"}`)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := tr.Send(ctx, []byte(`{"jsonrpc":"2.0","method":"pong"}`)); err != nil {
		t.Fatalf("send: %v", err)
	}

	want := `{"jsonrpc":"2.0","method":"ping"}` + "\n" + `{"jsonrpc":"2.0","method":"pong"}` + "\n"
	if out.String() != want {
		t.Fatalf("framed output = %q, want %q", out.String(), want)
	}
}

func TestTransport_ReadsFrames(t *testing.T) {
	t.Parallel()

	in := strings.NewReader("{\"a\":1}\n\n  {\"b\":2}  \n")
	tr := New(in, io.Discard)
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	want := []string{`{"a":1}`, `{"b":2}`}
	for i, w := range want {
		select {
		case msg := <-tr.Messages():
			if string(msg) != w {
				t.Fatalf("frame %d = %q, want %q", i, msg, w)
			}
		case <-time.After(time.Second):
			t.Fatal("frame never arrived")
		}
	}

	// EOF ends the stream.
	select {
	case _, ok := <-tr.Messages():
		if ok {
			t.Fatal("unexpected extra frame")
		}
	case <-time.After(time.Second):
		t.Fatal("stream never closed on EOF")
	}
}

func TestTransport_RoundTrip(t *testing.T) {
	t.Parallel()

	hostIn, viewOut := io.Pipe()
	viewIn, hostOut := io.Pipe()

	host := New(hostIn, hostOut)
	view := New(viewIn, viewOut)
	ctx := context.Background()
	_ = host.Start(ctx)
	_ = view.Start(ctx)
	t.Cleanup(func() {
		_ = host.Close()
		_ = view.Close()
	})

	if err := view.Send(ctx, []byte(`{"id":1,"method":"initialize"}`)); err != nil {
		t.Fatalf("view send: %v", err)
	}
	select {
	case msg := <-host.Messages():
		if string(msg) != `{"id":1,"method":"initialize"}` {
			t.Fatalf("host received %q", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("host never received the frame")
	}

	if err := host.Send(ctx, []byte(`{"id":1,"result":{}}`)); err != nil {
		t.Fatalf("host send: %v", err)
	}
	select {
	case msg := <-view.Messages():
		if string(msg) != `{"id":1,"result":{}}` {
			t.Fatalf("view received %q", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("view never received the frame")
	}
}

func TestTransport_RejectsUnframeableMessages(t *testing.T) {
	t.Parallel()

	tr := New(strings.NewReader(""), io.Discard)
	ctx := context.Background()

	if err := tr.Send(ctx, nil); !errors.Is(err, transport.ErrInvalidMessage) {
		t.Fatalf("empty send err = %v, want ErrInvalidMessage", err)
	}
	if err := tr.Send(ctx, []byte("{\"a\":\n1}")); !errors.Is(err, transport.ErrInvalidMessage) {
		t.Fatalf("newline send err = %v, want ErrInvalidMessage", err)
	}
}

func TestTransport_MaxFrameSizeOption(t *testing.T) {
	t.Parallel()

	small := `{"a":1}`
	big := `{"payload":"` + strings.Repeat("x", 256) + `"}`

	in := strings.NewReader(small + "\n" + big + "\n" + small + "\n")
	tr := New(in, io.Discard, WithMaxFrameSize(64))
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case msg := <-tr.Messages():
		if string(msg) != small {
			t.Fatalf("frame = %q, want %q", msg, small)
		}
	case <-time.After(time.Second):
		t.Fatal("frame never arrived")
	}

	// The oversized line severs the stream; nothing after it is delivered.
	select {
	case msg, ok := <-tr.Messages():
		if ok {
			t.Fatalf("unexpected frame %q after oversized line", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("stream never closed on oversized line")
	}

	if err := tr.Send(context.Background(), []byte(big)); !errors.Is(err, transport.ErrInvalidMessage) {
		t.Fatalf("oversized send err = %v, want ErrInvalidMessage", err)
	}
}

func TestTransport_CloseIsIdempotentAndStopsSends(t *testing.T) {
	t.Parallel()

	tr := New(strings.NewReader(""), io.Discard)
	ctx := context.Background()

	if err := tr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := tr.Send(ctx, []byte(`{}`)); !errors.Is(err, transport.ErrClosed) {
		t.Fatalf("send after close err = %v, want ErrClosed", err)
	}
}
