// Package app drives the client side of room presence: the
// subscription state machine, join/leave orchestration and the author
// presence signal.
package app

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// ActiveRoom is the process-wide "current channel" indicator. It is an
// injected, explicitly-scoped object, not ambient global state, and has
// a single writer: the controller that owns the live subscription.
//
// Every consumer must call Matches before trusting a members
// projection; a mismatch means the projection belongs to another room
// and must render as empty.
type ActiveRoom struct {
	mu      sync.RWMutex
	channel string
}

func NewActiveRoom() *ActiveRoom {
	return &ActiveRoom{}
}

func (a *ActiveRoom) Set(channel string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.channel = channel
	log.Debug().Str("module", "app.activeroom").Str("channel", channel).Msg("active channel set")
}

// Clear resets the indicator only if it still names channel, so a
// controller tearing down late cannot wipe a newer subscription.
func (a *ActiveRoom) Clear(channel string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.channel == channel {
		a.channel = ""
	}
}

func (a *ActiveRoom) Current() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.channel
}

func (a *ActiveRoom) Matches(channel string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return channel != "" && a.channel == channel
}
