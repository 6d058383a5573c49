package domain

import "time"

// Membership is one reader's presence record inside a room.
// At most one exists per (BookID, UserID); a repeated join refreshes
// the clocks instead of duplicating.
type Membership struct {
	ID           string    `json:"id"`
	UserID       UserID    `json:"userId"`
	BookID       BookID    `json:"bookId"`
	Name         string    `json:"name"`
	AvatarURL    string    `json:"avatarUrl,omitempty"`
	IsAuthor     bool      `json:"isAuthor,omitempty"`
	JoinedAt     time.Time `json:"joinedAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`
}

type LeaveReceipt struct {
	LeftAt time.Time `json:"leftAt"`
}

// AuthorPresenceSnapshot is derived state, never authoritative: it is
// recomputed from a live flagged membership or the last recorded sighting.
type AuthorPresenceSnapshot struct {
	IsCurrentlyPresent bool      `json:"isCurrentlyPresent"`
	AuthorID           UserID    `json:"authorId"`
	AuthorName         string    `json:"authorName"`
	LastSeenAt         time.Time `json:"lastSeenAt"`
}
