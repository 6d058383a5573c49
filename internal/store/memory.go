package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pagebound/readingroom/internal/domain"
)

// MemoryStore is a threadsafe in-memory registry. Rooms exist implicitly:
// a room with zero members is pruned, not stored.
type MemoryStore struct {
	mu         sync.RWMutex
	rooms      map[domain.BookID]map[domain.UserID]*domain.Membership
	authorSeen map[domain.BookID]domain.AuthorPresenceSnapshot

	// Now is swappable for tests.
	Now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:      make(map[domain.BookID]map[domain.UserID]*domain.Membership),
		authorSeen: make(map[domain.BookID]domain.AuthorPresenceSnapshot),
		Now:        time.Now,
	}
}

func (s *MemoryStore) Join(_ context.Context, book domain.BookID, user domain.User) (domain.Membership, bool, error) {
	now := s.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	members := s.rooms[book]
	if members == nil {
		members = make(map[domain.UserID]*domain.Membership)
		s.rooms[book] = members
	}

	if m, ok := members[user.ID]; ok {
		// Repeated join only moves the clocks, nothing to broadcast.
		m.JoinedAt = now
		m.LastActiveAt = now
		return *m, false, nil
	}

	m := &domain.Membership{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		BookID:       book,
		Name:         user.Name,
		AvatarURL:    user.AvatarURL,
		IsAuthor:     user.IsAuthor,
		JoinedAt:     now,
		LastActiveAt: now,
	}
	members[user.ID] = m
	if user.IsAuthor {
		s.authorSeen[book] = domain.AuthorPresenceSnapshot{
			IsCurrentlyPresent: true,
			AuthorID:           user.ID,
			AuthorName:         user.Name,
			LastSeenAt:         now,
		}
	}
	log.Info().Str("module", "store.memory").Str("book", string(book)).Str("user", string(user.ID)).Msg("member joined")
	return *m, true, nil
}

func (s *MemoryStore) Leave(_ context.Context, book domain.BookID, user domain.UserID) (domain.LeaveReceipt, *domain.Membership, error) {
	now := s.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	receipt := domain.LeaveReceipt{LeftAt: now}
	members, ok := s.rooms[book]
	if !ok {
		return receipt, nil, nil
	}
	m, ok := members[user]
	if !ok {
		return receipt, nil, nil
	}
	delete(members, user)
	if len(members) == 0 {
		delete(s.rooms, book)
	}
	if m.IsAuthor {
		s.recordAuthorGoneLocked(book, m, now)
	}
	log.Info().Str("module", "store.memory").Str("book", string(book)).Str("user", string(user)).Msg("member left")
	return receipt, m, nil
}

func (s *MemoryStore) Heartbeat(_ context.Context, book domain.BookID, user domain.UserID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rooms[book][user]
	if !ok {
		return false, nil
	}
	m.LastActiveAt = s.Now()
	return true, nil
}

func (s *MemoryStore) Members(_ context.Context, book domain.BookID) ([]domain.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members := s.rooms[book]
	out := make([]domain.Membership, 0, len(members))
	for _, m := range members {
		out = append(out, *m)
	}
	return out, nil
}

func (s *MemoryStore) EvictStale(_ context.Context, cutoff time.Time) ([]domain.Membership, error) {
	now := s.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []domain.Membership
	for book, members := range s.rooms {
		for uid, m := range members {
			if m.LastActiveAt.Before(cutoff) {
				evicted = append(evicted, *m)
				delete(members, uid)
				if m.IsAuthor {
					s.recordAuthorGoneLocked(book, m, now)
				}
			}
		}
		if len(members) == 0 {
			delete(s.rooms, book)
		}
	}
	return evicted, nil
}

func (s *MemoryStore) AuthorPresence(_ context.Context, book domain.BookID) (*domain.AuthorPresenceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.rooms[book] {
		if m.IsAuthor {
			return &domain.AuthorPresenceSnapshot{
				IsCurrentlyPresent: true,
				AuthorID:           m.UserID,
				AuthorName:         m.Name,
				LastSeenAt:         m.LastActiveAt,
			}, nil
		}
	}
	if snap, ok := s.authorSeen[book]; ok {
		return &snap, nil
	}
	return nil, nil
}

func (s *MemoryStore) recordAuthorGoneLocked(book domain.BookID, m *domain.Membership, now time.Time) {
	s.authorSeen[book] = domain.AuthorPresenceSnapshot{
		IsCurrentlyPresent: false,
		AuthorID:           m.UserID,
		AuthorName:         m.Name,
		LastSeenAt:         now,
	}
}
