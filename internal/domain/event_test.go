package domain

import "testing"

func TestEventTypeLabel(t *testing.T) {
	known := []EventType{
		EventSubscriptionSucceeded,
		EventMemberAdded,
		EventMemberRemoved,
		EventSubscriptionError,
		EventPollingFallback,
		EventPollUpdate,
		EventAuthorJoin,
		EventAuthorLeave,
	}
	seen := map[string]EventType{}
	for _, et := range known {
		label := et.Label()
		if label == "" {
			t.Errorf("%s: empty label", et)
		}
		if prev, dup := seen[label]; dup {
			t.Errorf("%s and %s share label %q", prev, et, label)
		}
		seen[label] = et
	}

	if got := EventType("mystery").Label(); got != `unknown event "mystery"` {
		t.Errorf("unknown label: %q", got)
	}
}

func TestChannelNameRoundTrip(t *testing.T) {
	if got := ChannelName("book-42"); got != "presence-room-book-42" {
		t.Errorf("channel name: %q", got)
	}
	if got := BookFromChannel("presence-room-book-42"); got != "book-42" {
		t.Errorf("book from channel: %q", got)
	}
}

func TestRoomStatusLine(t *testing.T) {
	cases := []struct {
		count      int
		hadReaders bool
		want       string
	}{
		{0, false, "No one is reading right now"},
		{0, true, "Be the first to return!"},
		{1, false, "1 reader here now"},
		{1, true, "1 reader here now"},
		{3, true, "3 readers here now"},
	}
	for _, tc := range cases {
		if got := RoomStatusLine(tc.count, tc.hadReaders); got != tc.want {
			t.Errorf("RoomStatusLine(%d, %v) = %q, want %q", tc.count, tc.hadReaders, got, tc.want)
		}
	}
}
