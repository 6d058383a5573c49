package broker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pagebound/readingroom/internal/domain"
)

// Lister is the server surface a polling subscriber refreshes from.
type Lister interface {
	Members(ctx context.Context, book domain.BookID) ([]domain.Membership, error)
}

// Poller discovers membership changes by periodically fetching the full
// member list and diffing it against what it saw last time. The diff is
// synthesized into the same member_added/member_removed events the push
// channel would have delivered, followed by a poll_update snapshot.
type Poller struct {
	list     Lister
	book     domain.BookID
	interval time.Duration
	emit     func(domain.Event)
	known    map[domain.UserID]domain.Membership
}

func NewPoller(list Lister, book domain.BookID, interval time.Duration, emit func(domain.Event)) *Poller {
	return &Poller{
		list:     list,
		book:     book,
		interval: interval,
		emit:     emit,
		known:    make(map[domain.UserID]domain.Membership),
	}
}

// Run polls once immediately, then on every tick until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	members, err := p.list.Members(ctx, p.book)
	if err != nil {
		// Skipped, not fatal: the next tick retries.
		log.Debug().Err(err).Str("module", "broker.poller").Str("book", string(p.book)).Msg("poll failed")
		return
	}

	fresh := make(map[domain.UserID]domain.Membership, len(members))
	for _, m := range members {
		fresh[m.UserID] = m
	}

	for uid, m := range fresh {
		if _, ok := p.known[uid]; !ok {
			mm := m
			p.emit(domain.Event{Type: domain.EventMemberAdded, BookID: p.book, Member: &mm})
		}
	}
	for uid, m := range p.known {
		if _, ok := fresh[uid]; !ok {
			mm := m
			p.emit(domain.Event{Type: domain.EventMemberRemoved, BookID: p.book, Member: &mm})
		}
	}
	p.known = fresh

	p.emit(domain.Event{Type: domain.EventPollUpdate, BookID: p.book, Members: members})
}
