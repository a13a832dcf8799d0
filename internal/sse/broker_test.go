package sse

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishNoteEvent("created", "a.md")

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: note.created") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"path":"a.md"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishNoteEvent_PendingThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// First event should trigger index.pending.
	b.PublishNoteEvent("created", "a.md")
	// Second event and a watcher change should NOT trigger another one.
	b.PublishNoteEvent("updated", "b.md")
	b.PublishPending()

	// Drain and count events.
	time.Sleep(50 * time.Millisecond)
	pendingCount := 0
	noteCount := 0
loop:
	for {
		select {
		case msg := <-ch:
			s := string(msg)
			if strings.Contains(s, "index.pending") {
				pendingCount++
			} else {
				noteCount++
			}
		default:
			break loop
		}
	}

	if noteCount != 2 {
		t.Errorf("note events = %d, want 2", noteCount)
	}
	if pendingCount != 1 {
		t.Errorf("pending events = %d, want 1 (throttled)", pendingCount)
	}
}

func TestPublishPass(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishPass(map[string]int{"thoughts": 3}, nil)
	b.PublishPass(nil, errors.New("encoder offline"))

	want := []string{
		"event: index.updated\ndata: {\"thoughts\":3}",
		"event: index.failed\ndata: {\"error\":\"encoder offline\"}",
	}
	for _, w := range want {
		select {
		case msg := <-ch:
			if !strings.Contains(string(msg), w) {
				t.Errorf("got %q, want %q", msg, w)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for pass event")
		}
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	// Start handler in background.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Publish(Event{Type: "note.updated", Data: map[string]string{"path": "x.md"}})
	time.Sleep(50 * time.Millisecond)

	// Cancel context to disconnect.
	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: note.updated") {
		t.Errorf("handler output missing event: %q", body)
	}

	// Client should be cleaned up.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Fill buffer (capacity 64) and then one more should not block.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
	// If we reach here without deadlock, the test passes.
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.Publish(Event{Type: "note.updated", Data: map[string]string{"path": "x.md"}})
	b.PublishNoteEvent("updated", "x.md")
}

func TestEventIDsAndReplay(t *testing.T) {
	b := NewBroker(time.Second, WithHistory(2))
	defer b.Close()

	first := b.Subscribe()
	b.Publish(Event{Type: EventNoteCreated, Data: NotePayload{Path: "a.md"}})
	b.Publish(Event{Type: EventNoteCreated, Data: NotePayload{Path: "b.md"}})
	b.Publish(Event{Type: EventNoteCreated, Data: NotePayload{Path: "c.md"}})
	for i := 1; i <= 3; i++ {
		select {
		case msg := <-first:
			if want := fmt.Sprintf("id: %d\n", i); !strings.HasPrefix(string(msg), want) {
				t.Errorf("message %d = %q, want prefix %q", i, msg, want)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for message")
		}
	}
	b.Unsubscribe(first)

	// id 1 fell out of the two-event history.
	again := b.SubscribeAfter(1)
	defer b.Unsubscribe(again)
	for _, path := range []string{"b.md", "c.md"} {
		select {
		case msg := <-again:
			if !strings.Contains(string(msg), path) {
				t.Errorf("replayed %q, want %s", msg, path)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for replay")
		}
	}
	select {
	case msg := <-again:
		t.Errorf("unexpected replay %q", msg)
	default:
	}
}

func TestUnknownNoteKindIgnored(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishNoteEvent("renamed", "a.md")
	select {
	case msg := <-ch:
		t.Errorf("unexpected event %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSSEHandlerHeartbeat(t *testing.T) {
	b := NewBroker(time.Second, WithHeartbeat(10*time.Millisecond))
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	b.ServeHTTP(w, req)

	if !strings.Contains(w.Body.String(), ": ping\n\n") {
		t.Errorf("no heartbeat in %q", w.Body.String())
	}
}
