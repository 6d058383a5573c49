package app

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pagebound/readingroom/internal/domain"
)

const (
	AuthorToastDuration = 6000
	AuthorToastClass    = "toast-golden-border"

	BadgeAuthorHere     = "Author is here!"
	BadgeAuthorRecently = "Author was recently here"

	// How long the polite announcement stays before it is cleared so a
	// re-render does not re-announce it.
	announceClearAfter = 7 * time.Second
)

// AuthorTracker derives the "author in room" signal from two
// independent sources, the server snapshot and the live event stream,
// combined with OR because either may lag the other. It also gates the
// join notification: realtime subscribers only, and never for the
// author's own join. Author leaves never notify, only the badge
// downgrades.
type AuthorTracker struct {
	viewer domain.UserID
	notify Notifier

	mu           sync.Mutex
	snapshot     domain.AuthorPresenceSnapshot
	haveSnapshot bool
	livePresent  bool
	announcement string
	clearTimer   *time.Timer
	clearAfter   time.Duration

	now func() time.Time
}

func NewAuthorTracker(viewer domain.UserID, notify Notifier) *AuthorTracker {
	if notify == nil {
		notify = NopNotifier{}
	}
	return &AuthorTracker{
		viewer:     viewer,
		notify:     notify,
		clearAfter: announceClearAfter,
		now:        time.Now,
	}
}

// SetSnapshot installs the server-reported last-known state, typically
// right after a fresh getAuthorPresence fetch.
func (t *AuthorTracker) SetSnapshot(s *domain.AuthorPresenceSnapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s == nil {
		t.haveSnapshot = false
		t.snapshot = domain.AuthorPresenceSnapshot{}
		return
	}
	t.snapshot = *s
	t.haveSnapshot = true
}

// HandleEvent consumes the same stream the controller projects from.
func (t *AuthorTracker) HandleEvent(evt domain.Event, mode domain.ConnectionMode) {
	switch evt.Type {
	case domain.EventAuthorJoin:
		t.markPresent(evt.AuthorID, evt.AuthorName)
		if mode == domain.ModeRealtime && evt.AuthorID != t.viewer {
			t.notifyJoin(evt.AuthorName)
		}
	case domain.EventAuthorLeave:
		t.markGone(evt.AuthorID, evt.AuthorName)
	case domain.EventMemberAdded:
		if evt.Member != nil && evt.Member.IsAuthor {
			t.markPresent(evt.Member.UserID, evt.Member.Name)
		}
	case domain.EventMemberRemoved:
		if evt.Member != nil && evt.Member.IsAuthor {
			t.markGone(evt.Member.UserID, evt.Member.Name)
		}
	case domain.EventPollUpdate:
		t.applySnapshotList(evt.Members)
	}
}

// Present reports whether the author is in the room right now.
func (t *AuthorTracker) Present() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.livePresent || (t.haveSnapshot && t.snapshot.IsCurrentlyPresent)
}

// Badge is the indicator text next to the member list, empty when the
// author was never seen.
func (t *AuthorTracker) Badge() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.livePresent || (t.haveSnapshot && t.snapshot.IsCurrentlyPresent) {
		return BadgeAuthorHere
	}
	if t.haveSnapshot && !t.snapshot.LastSeenAt.IsZero() {
		return BadgeAuthorRecently
	}
	return ""
}

// Announcement is the current polite live-region text, empty once the
// clear timer has run.
func (t *AuthorTracker) Announcement() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.announcement
}

func (t *AuthorTracker) Snapshot() (domain.AuthorPresenceSnapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot, t.haveSnapshot
}

func (t *AuthorTracker) markPresent(id domain.UserID, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.livePresent = true
	t.snapshot = domain.AuthorPresenceSnapshot{
		IsCurrentlyPresent: true,
		AuthorID:           id,
		AuthorName:         name,
		LastSeenAt:         t.now(),
	}
	t.haveSnapshot = true
}

func (t *AuthorTracker) markGone(id domain.UserID, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.livePresent = false
	if id == "" {
		id = t.snapshot.AuthorID
	}
	if name == "" {
		name = t.snapshot.AuthorName
	}
	t.snapshot = domain.AuthorPresenceSnapshot{
		IsCurrentlyPresent: false,
		AuthorID:           id,
		AuthorName:         name,
		LastSeenAt:         t.now(),
	}
	t.haveSnapshot = true
}

func (t *AuthorTracker) applySnapshotList(members []domain.Membership) {
	for _, m := range members {
		if m.IsAuthor {
			t.markPresent(m.UserID, m.Name)
			return
		}
	}
	t.mu.Lock()
	wasLive := t.livePresent
	t.mu.Unlock()
	if wasLive {
		t.markGone("", "")
	}
}

func (t *AuthorTracker) notifyJoin(name string) {
	t.notify.Toast(Toast{
		Message:   fmt.Sprintf("%s, the author, just joined!", name),
		Duration:  AuthorToastDuration,
		ClassName: AuthorToastClass,
	})

	msg := fmt.Sprintf("%s, the author, has joined the reading room", name)
	t.notify.Announce(msg)

	t.mu.Lock()
	t.announcement = msg
	if t.clearTimer != nil {
		t.clearTimer.Stop()
	}
	t.clearTimer = time.AfterFunc(t.clearAfter, func() {
		t.mu.Lock()
		t.announcement = ""
		t.mu.Unlock()
	})
	t.mu.Unlock()

	log.Debug().Str("module", "app.tracker").Str("author", name).Msg("author join notification fired")
}
