package broker

import (
	"context"
	"testing"

	"github.com/pagebound/readingroom/internal/domain"
)

func TestPoller_SynthesizesDiffEvents(t *testing.T) {
	list := &fakeLister{}
	var got []domain.Event
	p := NewPoller(list, "book-1", 0, func(evt domain.Event) {
		got = append(got, evt)
	})
	ctx := context.Background()

	list.set([]domain.Membership{
		{UserID: "a", BookID: "book-1"},
		{UserID: "b", BookID: "book-1"},
	})
	p.poll(ctx)

	adds := 0
	for _, e := range got {
		if e.Type == domain.EventMemberAdded {
			adds++
		}
	}
	if adds != 2 {
		t.Fatalf("expected 2 member_added on first poll, got %d", adds)
	}
	if got[len(got)-1].Type != domain.EventPollUpdate {
		t.Errorf("poll should end with poll_update, got %s", got[len(got)-1].Type)
	}

	// b leaves, c arrives.
	got = nil
	list.set([]domain.Membership{
		{UserID: "a", BookID: "book-1"},
		{UserID: "c", BookID: "book-1"},
	})
	p.poll(ctx)

	var sawAddC, sawRemoveB bool
	for _, e := range got {
		if e.Type == domain.EventMemberAdded && e.Member.UserID == "c" {
			sawAddC = true
		}
		if e.Type == domain.EventMemberRemoved && e.Member.UserID == "b" {
			sawRemoveB = true
		}
		if e.Type == domain.EventMemberAdded && e.Member.UserID == "a" {
			t.Error("unchanged member re-announced")
		}
	}
	if !sawAddC || !sawRemoveB {
		t.Errorf("diff incomplete: addC=%v removeB=%v", sawAddC, sawRemoveB)
	}
}

func TestPoller_QuietWhenNothingChanges(t *testing.T) {
	list := &fakeLister{}
	list.set([]domain.Membership{{UserID: "a", BookID: "book-1"}})

	var got []domain.Event
	p := NewPoller(list, "book-1", 0, func(evt domain.Event) { got = append(got, evt) })
	ctx := context.Background()

	p.poll(ctx)
	got = nil
	p.poll(ctx)

	if len(got) != 1 || got[0].Type != domain.EventPollUpdate {
		t.Errorf("steady state should emit only poll_update, got %+v", got)
	}
}
