package app

import "testing"

func TestActiveRoom_SetAndMatch(t *testing.T) {
	a := NewActiveRoom()

	if a.Matches("presence-room-book-1") {
		t.Error("fresh indicator should match nothing")
	}

	a.Set("presence-room-book-1")
	if !a.Matches("presence-room-book-1") {
		t.Error("set channel should match")
	}
	if a.Matches("presence-room-book-2") {
		t.Error("other channel must not match")
	}
	if got := a.Current(); got != "presence-room-book-1" {
		t.Errorf("current: %q", got)
	}
}

func TestActiveRoom_EmptyNeverMatches(t *testing.T) {
	a := NewActiveRoom()
	a.Set("")
	if a.Matches("") {
		t.Error("empty channel must never match, even itself")
	}
}

func TestActiveRoom_ClearOnlyIfOwned(t *testing.T) {
	a := NewActiveRoom()
	a.Set("presence-room-book-1")

	// A late teardown for an older channel must not wipe the newer one.
	a.Set("presence-room-book-2")
	a.Clear("presence-room-book-1")
	if got := a.Current(); got != "presence-room-book-2" {
		t.Errorf("stale clear wiped the indicator: %q", got)
	}

	a.Clear("presence-room-book-2")
	if got := a.Current(); got != "" {
		t.Errorf("owned clear should empty the indicator: %q", got)
	}
}
