package store

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pagebound/readingroom/internal/domain"
)

// Publisher is where eviction events go; the broker hub satisfies it.
type Publisher interface {
	Publish(evt domain.Event)
}

// Sweeper expires memberships whose heartbeat went quiet. Evictions are
// broadcast as plain member_removed so subscribers cannot tell a timeout
// from a graceful leave.
type Sweeper struct {
	Store    Store
	Bus      Publisher
	Interval time.Duration
	Grace    time.Duration

	Now func() time.Time
}

func NewSweeper(s Store, bus Publisher, interval, grace time.Duration) *Sweeper {
	return &Sweeper{Store: s, Bus: bus, Interval: interval, Grace: grace, Now: time.Now}
}

// Run blocks until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	log.Info().Str("module", "store.sweeper").Dur("interval", s.Interval).Dur("grace", s.Grace).Msg("sweeper started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "store.sweeper").Msg("sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs a single eviction pass and returns how many members it removed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	cutoff := s.Now().Add(-s.Grace)
	evicted, err := s.Store.EvictStale(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Str("module", "store.sweeper").Msg("evict pass failed")
		return 0
	}
	for i := range evicted {
		m := evicted[i]
		s.Bus.Publish(domain.Event{
			Type:   domain.EventMemberRemoved,
			BookID: m.BookID,
			Member: &m,
		})
		if m.IsAuthor {
			s.Bus.Publish(domain.Event{
				Type:       domain.EventAuthorLeave,
				BookID:     m.BookID,
				AuthorID:   m.UserID,
				AuthorName: m.Name,
			})
		}
		log.Info().Str("module", "store.sweeper").Str("book", string(m.BookID)).Str("user", string(m.UserID)).Msg("evicted stale member")
	}
	return len(evicted)
}
