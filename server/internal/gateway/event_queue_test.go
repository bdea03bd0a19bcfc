package gateway

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

// TestEventQueueSerialProcessing 验证消息按入队顺序逐个处理。
func TestEventQueueSerialProcessing(t *testing.T) {
	var (
		mu        sync.Mutex
		processed []EventType
	)
	done := make(chan struct{})
	handler := func(ctx context.Context, msg *ClientMessage) error {
		mu.Lock()
		defer mu.Unlock()
		processed = append(processed, msg.Type)
		if len(processed) == 4 {
			close(done)
		}
		return nil
	}

	q := NewEventQueue("dlg", 0, handler, quietLogger())
	defer q.Close()

	sent := []EventType{EventTypeStartTopic, EventTypeCancel, EventTypeReset, EventTypeSubmitMessage}
	for _, typ := range sent {
		if err := q.Enqueue(&ClientMessage{Type: typ}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for processing")
	}

	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff(sent, processed); diff != "" {
		t.Fatalf("processing order (-want +got):\n%s", diff)
	}
}

// TestEventQueueBackPressure 场景：处理器被阻塞时，超出容量的消息被丢弃。
func TestEventQueueBackPressure(t *testing.T) {
	gate := make(chan struct{})
	started := make(chan struct{}, 1)
	handler := func(ctx context.Context, msg *ClientMessage) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-gate
		return nil
	}

	q := NewEventQueue("dlg", 2, handler, quietLogger())
	defer q.Close()
	defer close(gate)

	if err := q.Enqueue(&ClientMessage{Type: EventTypeCancel}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	<-started

	for i := 0; i < 2; i++ {
		if err := q.Enqueue(&ClientMessage{Type: EventTypeCancel}); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	if err := q.Enqueue(&ClientMessage{Type: EventTypeCancel}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	stats := q.Stats()
	if stats.Dropped != 1 || stats.Pending != 2 || stats.Capacity != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestEventQueueCountsFailures(t *testing.T) {
	done := make(chan struct{})
	handler := func(ctx context.Context, msg *ClientMessage) error {
		defer close(done)
		return errors.New("boom")
	}

	q := NewEventQueue("dlg", 0, handler, quietLogger())
	defer q.Close()

	_ = q.Enqueue(&ClientMessage{Type: EventTypeReset})
	<-done

	deadline := time.Now().Add(time.Second)
	for q.Stats().Processed == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s := q.Stats(); s.Failed != 1 || s.Processed != 1 {
		t.Fatalf("expected one failed event, got %+v", s)
	}
}

// TestEventQueueClose 验证 Close 可重复调用，关闭后拒绝入队。
func TestEventQueueClose(t *testing.T) {
	q := NewEventQueue("dlg", 0, func(context.Context, *ClientMessage) error { return nil }, quietLogger())
	q.Close()
	q.Close()

	if err := q.Enqueue(&ClientMessage{Type: EventTypeCancel}); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
}
