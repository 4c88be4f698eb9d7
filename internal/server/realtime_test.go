package server

import (
	"context"
	"testing"
	"time"
)

func TestRealtimeDispatcherPublishesToSubscriber(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, "https://example.org/article")
	defer cleanup()

	dispatcher.Publish(RealtimeMessage{
		PageURL:    "https://example.org/article",
		EventType:  RealtimeEventSidenoteInserted,
		SidenoteID: "s-1",
		Timestamp:  time.Now().UTC(),
	})

	select {
	case received := <-stream:
		if received.EventType != RealtimeEventSidenoteInserted {
			t.Fatalf("expected event type %s, got %s", RealtimeEventSidenoteInserted, received.EventType)
		}
		if received.SidenoteID != "s-1" {
			t.Fatalf("expected sidenote id s-1, got %s", received.SidenoteID)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected realtime message within deadline")
	}
}

func TestRealtimeDispatcherIsolatedByPage(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otherCtx, otherCancel := context.WithCancel(context.Background())
	defer otherCancel()

	pageStream, cleanup := dispatcher.Subscribe(ctx, "https://example.org/a")
	defer cleanup()

	otherStream, otherCleanup := dispatcher.Subscribe(otherCtx, "https://example.org/b")
	defer otherCleanup()

	dispatcher.Publish(RealtimeMessage{
		PageURL:    "https://example.org/b",
		EventType:  RealtimeEventSidenoteUpdated,
		SidenoteID: "s-1",
		Timestamp:  time.Now().UTC(),
	})

	select {
	case <-pageStream:
		t.Fatal("expected no delivery to the other page's subscriber")
	case <-time.After(100 * time.Millisecond):
	}

	select {
	case received := <-otherStream:
		if received.PageURL != "https://example.org/b" {
			t.Fatalf("unexpected page url: %s", received.PageURL)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected delivery to the page's subscriber")
	}
}

func TestRealtimeDispatcherCleanupStopsDelivery(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, "https://example.org/article")
	cleanup()

	dispatcher.Publish(RealtimeMessage{
		PageURL:    "https://example.org/article",
		EventType:  RealtimeEventSidenoteDeleted,
		SidenoteID: "s-1",
		Timestamp:  time.Now().UTC(),
	})

	select {
	case <-stream:
		t.Fatal("expected no delivery after cleanup")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRealtimeDispatcherEmptyPageURLYieldsClosedStream(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	stream, cleanup := dispatcher.Subscribe(context.Background(), "")
	defer cleanup()

	if _, open := <-stream; open {
		t.Fatal("expected closed stream for empty page url")
	}
}

func TestRealtimeDispatcherDoesNotBlockOnFullBuffer(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, cleanup := dispatcher.Subscribe(ctx, "https://example.org/article")
	defer cleanup()

	done := make(chan struct{})
	go func() {
		for index := 0; index < 64; index++ {
			dispatcher.Publish(RealtimeMessage{
				PageURL:    "https://example.org/article",
				EventType:  RealtimeEventSidenoteUpdated,
				SidenoteID: "s-1",
				Timestamp:  time.Now().UTC(),
			})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a saturated subscriber")
	}
}
