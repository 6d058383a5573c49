package broker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pagebound/readingroom/internal/domain"
)

type failingPush struct{}

func (failingPush) Subscribe(domain.BookID) (*Subscription, error) {
	return nil, errors.New("channel unavailable")
}

type fakeLister struct {
	mu      sync.Mutex
	members []domain.Membership
}

func (l *fakeLister) Members(_ context.Context, _ domain.BookID) ([]domain.Membership, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Membership, len(l.members))
	copy(out, l.members)
	return out, nil
}

func (l *fakeLister) set(members []domain.Membership) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.members = members
}

func nextEvent(t *testing.T, conn *Conn) domain.Event {
	t.Helper()
	select {
	case evt, ok := <-conn.Events():
		if !ok {
			t.Fatal("events channel closed")
		}
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return domain.Event{}
}

func TestTransport_RealtimeWhenPushSucceeds(t *testing.T) {
	hub := NewHub()
	tr := NewTransport(hub, &fakeLister{}, 30*time.Second)

	conn := tr.Open(context.Background(), "book-1")
	defer conn.Close()

	if conn.Mode() != domain.ModeRealtime {
		t.Fatalf("expected realtime, got %s", conn.Mode())
	}
	if evt := nextEvent(t, conn); evt.Type != domain.EventSubscriptionSucceeded {
		t.Errorf("first event should be subscription_succeeded, got %s", evt.Type)
	}

	hub.Publish(domain.Event{Type: domain.EventMemberAdded, BookID: "book-1"})
	if evt := nextEvent(t, conn); evt.Type != domain.EventMemberAdded {
		t.Errorf("expected pushed member_added, got %s", evt.Type)
	}
}

func TestTransport_StickyPollingFallback(t *testing.T) {
	list := &fakeLister{}
	list.set([]domain.Membership{{UserID: "reader-1", BookID: "book-1", Name: "Pat"}})
	tr := NewTransport(failingPush{}, list, 20*time.Millisecond)

	conn := tr.Open(context.Background(), "book-1")
	defer conn.Close()

	if conn.Mode() != domain.ModePolling {
		t.Fatalf("expected polling, got %s", conn.Mode())
	}
	if evt := nextEvent(t, conn); evt.Type != domain.EventSubscriptionError {
		t.Errorf("expected subscription_error first, got %s", evt.Type)
	}
	if evt := nextEvent(t, conn); evt.Type != domain.EventPollingFallback {
		t.Errorf("expected polling_fallback, got %s", evt.Type)
	}

	// First poll discovers the existing member.
	if evt := nextEvent(t, conn); evt.Type != domain.EventMemberAdded || evt.Member.UserID != "reader-1" {
		t.Errorf("expected synthesized member_added for reader-1, got %+v", evt)
	}
	if evt := nextEvent(t, conn); evt.Type != domain.EventPollUpdate {
		t.Errorf("expected poll_update, got %s", evt.Type)
	}

	// Mode never flaps back to realtime within this subscription.
	list.set(nil)
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		if conn.Mode() != domain.ModePolling {
			t.Fatalf("mode flapped to %s", conn.Mode())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestTransport_DisconnectedWithoutRoom(t *testing.T) {
	tr := NewTransport(NewHub(), &fakeLister{}, time.Second)

	conn := tr.Open(context.Background(), "")
	defer conn.Close()

	if conn.Mode() != domain.ModeDisconnected {
		t.Fatalf("expected disconnected, got %s", conn.Mode())
	}
	if _, ok := <-conn.Events(); ok {
		t.Error("disconnected conn must deliver nothing")
	}
}

func TestTransport_CloseStopsDelivery(t *testing.T) {
	hub := NewHub()
	tr := NewTransport(hub, &fakeLister{}, time.Second)

	conn := tr.Open(context.Background(), "book-1")
	nextEvent(t, conn) // subscription_succeeded
	conn.Close()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-conn.Events():
			if !ok {
				if n := hub.SubscriberCount("book-1"); n != 0 {
					t.Errorf("hub still holds %d subscribers after close", n)
				}
				return
			}
		case <-deadline:
			t.Fatal("events channel never closed after Close")
		}
	}
}
