// Package store holds the authoritative registry of who is in which
// room right now. Nothing here survives a restart on purpose: presence
// is current state, not history.
package store

import (
	"context"
	"time"

	"github.com/pagebound/readingroom/internal/domain"
)

// Store is the server-side membership registry.
//
// Join is an idempotent upsert keyed by (book, user): re-joining
// refreshes the clocks and reports changed=false. Leave is a no-op
// success when the user was never a member; the removed membership is
// returned so callers can broadcast it. Heartbeat reports updated=false
// for non-members, which callers treat as "re-join", not as an error.
type Store interface {
	Join(ctx context.Context, book domain.BookID, user domain.User) (domain.Membership, bool, error)
	Leave(ctx context.Context, book domain.BookID, user domain.UserID) (domain.LeaveReceipt, *domain.Membership, error)
	Heartbeat(ctx context.Context, book domain.BookID, user domain.UserID) (bool, error)
	Members(ctx context.Context, book domain.BookID) ([]domain.Membership, error)

	// EvictStale removes every membership whose heartbeat is older than
	// cutoff and returns the evicted records.
	EvictStale(ctx context.Context, cutoff time.Time) ([]domain.Membership, error)

	// AuthorPresence derives the author signal for a room: a live
	// flagged membership wins, otherwise the last recorded sighting.
	// Returns nil when the author was never seen.
	AuthorPresence(ctx context.Context, book domain.BookID) (*domain.AuthorPresenceSnapshot, error)
}
