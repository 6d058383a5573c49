package store

import (
	"context"
	"testing"
	"time"

	"github.com/pagebound/readingroom/internal/domain"
)

var reader = domain.User{ID: "reader-1", Name: "Pat Reader"}

func TestMemoryStore_JoinIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	m1, changed, err := s.Join(ctx, "book-1", reader)
	if err != nil {
		t.Fatalf("first join: %v", err)
	}
	if !changed {
		t.Error("first join should report changed")
	}
	if m1.UserID != reader.ID || m1.BookID != "book-1" {
		t.Errorf("unexpected membership %+v", m1)
	}

	m2, changed, err := s.Join(ctx, "book-1", reader)
	if err != nil {
		t.Fatalf("second join: %v", err)
	}
	if changed {
		t.Error("repeated join must not report changed")
	}
	if m2.ID != m1.ID {
		t.Errorf("repeated join created a new membership: %s vs %s", m2.ID, m1.ID)
	}

	members, _ := s.Members(ctx, "book-1")
	if len(members) != 1 {
		t.Errorf("expected 1 member after double join, got %d", len(members))
	}
}

func TestMemoryStore_LeaveNeverJoinedIsNoOp(t *testing.T) {
	s := NewMemoryStore()

	receipt, removed, err := s.Leave(context.Background(), "book-1", "ghost")
	if err != nil {
		t.Fatalf("leave of non-member errored: %v", err)
	}
	if removed != nil {
		t.Errorf("expected no removed membership, got %+v", removed)
	}
	if receipt.LeftAt.IsZero() {
		t.Error("receipt should still carry a leftAt timestamp")
	}
}

func TestMemoryStore_LeaveRemovesAndPrunesRoom(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Join(ctx, "book-1", reader)
	_, removed, err := s.Leave(ctx, "book-1", reader.ID)
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if removed == nil || removed.UserID != reader.ID {
		t.Fatalf("expected removed membership for %s, got %+v", reader.ID, removed)
	}
	if len(s.rooms) != 0 {
		t.Error("empty room should be pruned")
	}
}

func TestMemoryStore_HeartbeatNonMember(t *testing.T) {
	s := NewMemoryStore()

	updated, err := s.Heartbeat(context.Background(), "book-1", "ghost")
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if updated {
		t.Error("heartbeat for a non-member must report updated=false")
	}
}

func TestMemoryStore_HeartbeatRefreshesLastActive(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	base := time.Now()
	s.Now = func() time.Time { return base }
	s.Join(ctx, "book-1", reader)

	s.Now = func() time.Time { return base.Add(time.Minute) }
	updated, err := s.Heartbeat(ctx, "book-1", reader.ID)
	if err != nil || !updated {
		t.Fatalf("heartbeat: updated=%v err=%v", updated, err)
	}

	members, _ := s.Members(ctx, "book-1")
	if !members[0].LastActiveAt.Equal(base.Add(time.Minute)) {
		t.Errorf("lastActiveAt not refreshed: %v", members[0].LastActiveAt)
	}
	if !members[0].JoinedAt.Equal(base) {
		t.Errorf("heartbeat must not move joinedAt: %v", members[0].JoinedAt)
	}
}

func TestMemoryStore_AuthorPresence(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	author := domain.User{ID: "author-1", Name: "Jane Author", IsAuthor: true}

	snap, err := s.AuthorPresence(ctx, "book-1")
	if err != nil {
		t.Fatalf("author presence: %v", err)
	}
	if snap != nil {
		t.Errorf("expected nil snapshot before any sighting, got %+v", snap)
	}

	s.Join(ctx, "book-1", author)
	snap, _ = s.AuthorPresence(ctx, "book-1")
	if snap == nil || !snap.IsCurrentlyPresent {
		t.Fatalf("expected live author snapshot, got %+v", snap)
	}
	if snap.AuthorName != "Jane Author" {
		t.Errorf("author name: %q", snap.AuthorName)
	}

	s.Leave(ctx, "book-1", author.ID)
	snap, _ = s.AuthorPresence(ctx, "book-1")
	if snap == nil {
		t.Fatal("expected recorded sighting after author left")
	}
	if snap.IsCurrentlyPresent {
		t.Error("author left but snapshot still reports present")
	}
	if snap.LastSeenAt.IsZero() {
		t.Error("lastSeenAt should be recorded on leave")
	}
}
