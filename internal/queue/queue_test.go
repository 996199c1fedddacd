package queue

import (
	"fmt"
	"testing"
	"time"
)

func TestQueue_FIFO(t *testing.T) {
	t.Parallel()

	q := New()
	for i := 0; i < 10; i++ {
		if !q.Push([]byte(fmt.Sprintf("m%d", i))) {
			t.Fatalf("push %d refused", i)
		}
	}
	for i := 0; i < 10; i++ {
		msg, ok := q.Pop()
		if !ok {
			t.Fatalf("pop %d: queue exhausted early", i)
		}
		if want := fmt.Sprintf("m%d", i); string(msg) != want {
			t.Fatalf("pop %d = %q, want %q", i, msg, want)
		}
	}
}

func TestQueue_PopBlocksUntilPush(t *testing.T) {
	t.Parallel()

	q := New()
	got := make(chan []byte, 1)
	go func() {
		msg, ok := q.Pop()
		if !ok {
			close(got)
			return
		}
		got <- msg
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push([]byte("late"))

	select {
	case msg := <-got:
		if string(msg) != "late" {
			t.Fatalf("pop = %q, want late", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("pop never unblocked")
	}
}

func TestQueue_CloseDrainsThenExhausts(t *testing.T) {
	t.Parallel()

	q := New()
	q.Push([]byte("a"))
	q.Push([]byte("b"))
	q.Close()
	q.Close() // idempotent

	if q.Push([]byte("c")) {
		t.Fatal("push accepted after close")
	}

	for _, want := range []string{"a", "b"} {
		msg, ok := q.Pop()
		if !ok || string(msg) != want {
			t.Fatalf("pop = %q/%v, want %q", msg, ok, want)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Fatal("pop succeeded on exhausted queue")
	}
}

func TestQueue_CloseUnblocksWaiters(t *testing.T) {
	t.Parallel()

	q := New()
	done := make(chan bool, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, ok := q.Pop()
			done <- ok
		}()
	}

	time.Sleep(10 * time.Millisecond)
	q.Close()

	for i := 0; i < 2; i++ {
		select {
		case ok := <-done:
			if ok {
				t.Fatal("waiter got a frame from an empty closed queue")
			}
		case <-time.After(time.Second):
			t.Fatal("waiter never unblocked on close")
		}
	}
}
