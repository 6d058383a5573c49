// Package broker delivers presence events to room subscribers: a push
// hub for realtime delivery and a polling fallback for when the push
// channel cannot be established.
package broker

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/pagebound/readingroom/internal/domain"
)

var ErrNoChannel = errors.New("no channel for empty book id")

const subscriberBuffer = 32

// Subscription is one subscriber's handle on a room's push channel.
// Events() is closed when the subscription ends, from either side.
type Subscription struct {
	book domain.BookID
	ch   chan domain.Event
	hub  *Hub

	mu     sync.RWMutex
	closed bool
}

func (s *Subscription) Book() domain.BookID         { return s.book }
func (s *Subscription) Events() <-chan domain.Event { return s.ch }

func (s *Subscription) Close() {
	s.hub.remove(s)
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	s.mu.Unlock()
}

// trySend never blocks. A closed subscription swallows the event, a
// full buffer reports false so the hub can drop the subscriber.
func (s *Subscription) trySend(evt domain.Event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- evt:
		return true
	default:
		return false
	}
}

// Hub fans room events out to push subscribers. A subscriber that
// cannot keep up is dropped rather than allowed to stall the room.
type Hub struct {
	mu    sync.RWMutex
	rooms map[domain.BookID]map[*Subscription]struct{}
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[domain.BookID]map[*Subscription]struct{})}
}

func (h *Hub) Subscribe(book domain.BookID) (*Subscription, error) {
	if book == "" {
		return nil, ErrNoChannel
	}
	sub := &Subscription{
		book: book,
		ch:   make(chan domain.Event, subscriberBuffer),
		hub:  h,
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.rooms[book]
	if subs == nil {
		subs = make(map[*Subscription]struct{})
		h.rooms[book] = subs
	}
	subs[sub] = struct{}{}
	log.Debug().Str("module", "broker.hub").Str("channel", domain.ChannelName(book)).Int("subs", len(subs)).Msg("subscribed")
	return sub, nil
}

func (h *Hub) Publish(evt domain.Event) {
	h.mu.RLock()
	var dropped []*Subscription
	for sub := range h.rooms[evt.BookID] {
		if !sub.trySend(evt) {
			dropped = append(dropped, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range dropped {
		log.Warn().Str("module", "broker.hub").Str("book", string(evt.BookID)).Msg("dropping slow subscriber")
		sub.Close()
	}
}

func (h *Hub) SubscriberCount(book domain.BookID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[book])
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.rooms[sub.book]
	if !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.rooms, sub.book)
	}
}
