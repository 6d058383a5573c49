package domain

import (
	"fmt"
	"strings"
)

// ConnectionMode is how a subscriber currently receives room events.
// Exactly one value holds per client-room subscription.
type ConnectionMode string

const (
	ModeRealtime     ConnectionMode = "realtime"
	ModePolling      ConnectionMode = "polling"
	ModeDisconnected ConnectionMode = "disconnected"
)

type EventType string

const (
	EventSubscriptionSucceeded EventType = "subscription_succeeded"
	EventMemberAdded           EventType = "member_added"
	EventMemberRemoved         EventType = "member_removed"
	EventSubscriptionError     EventType = "subscription_error"
	EventPollingFallback       EventType = "polling_fallback"
	EventPollUpdate            EventType = "poll_update"
	EventAuthorJoin            EventType = "author_join"
	EventAuthorLeave           EventType = "author_leave"
)

// Event is delivered to room subscribers. Transient, never persisted.
// Delivery may duplicate or reorder, consumers upsert by UserID.
type Event struct {
	Type       EventType    `json:"type"`
	BookID     BookID       `json:"bookId"`
	Member     *Membership  `json:"member,omitempty"`
	Members    []Membership `json:"members,omitempty"`
	AuthorID   UserID       `json:"authorId,omitempty"`
	AuthorName string       `json:"authorName,omitempty"`
	Err        string       `json:"error,omitempty"`
}

// Label returns the display string for an event type. The switch is
// exhaustive so a new variant fails loudly instead of rendering blank.
func (t EventType) Label() string {
	switch t {
	case EventSubscriptionSucceeded:
		return "Connected"
	case EventMemberAdded:
		return "A reader joined"
	case EventMemberRemoved:
		return "A reader left"
	case EventSubscriptionError:
		return "Connection problem"
	case EventPollingFallback:
		return "Live updates unavailable, refreshing periodically"
	case EventPollUpdate:
		return "Member list refreshed"
	case EventAuthorJoin:
		return "The author joined"
	case EventAuthorLeave:
		return "The author left"
	default:
		return fmt.Sprintf("unknown event %q", string(t))
	}
}

// ChannelName is the push-channel topic for a room, one per book.
func ChannelName(book BookID) string {
	return channelPrefix + string(book)
}

// BookFromChannel inverts ChannelName.
func BookFromChannel(channel string) BookID {
	return BookID(strings.TrimPrefix(channel, channelPrefix))
}

const channelPrefix = "presence-room-"

// RoomStatusLine is the line shown under the member list.
func RoomStatusLine(memberCount int, hadReaders bool) string {
	switch {
	case memberCount == 0 && hadReaders:
		return "Be the first to return!"
	case memberCount == 0:
		return "No one is reading right now"
	case memberCount == 1:
		return "1 reader here now"
	default:
		return fmt.Sprintf("%d readers here now", memberCount)
	}
}
