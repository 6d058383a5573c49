package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/pagebound/readingroom/internal/domain"
	"github.com/pagebound/readingroom/internal/store"
)

// RoomAPI is the asynchronous server surface the client consumes.
type RoomAPI interface {
	JoinRoom(ctx context.Context, book domain.BookID, user domain.User) (domain.Membership, error)
	LeaveRoom(ctx context.Context, book domain.BookID, user domain.UserID) (domain.LeaveReceipt, error)
	Heartbeat(ctx context.Context, book domain.BookID, user domain.UserID) (bool, error)
	Members(ctx context.Context, book domain.BookID) ([]domain.Membership, error)
	AuthorPresence(ctx context.Context, book domain.BookID) (*domain.AuthorPresenceSnapshot, error)
}

// Actions implements RoomAPI over the store and broadcasts the changes
// it causes. A join that only refreshed the clocks is not re-broadcast.
type Actions struct {
	Store store.Store
	Bus   store.Publisher
}

func NewActions(s store.Store, bus store.Publisher) *Actions {
	return &Actions{Store: s, Bus: bus}
}

func (a *Actions) JoinRoom(ctx context.Context, book domain.BookID, user domain.User) (domain.Membership, error) {
	m, changed, err := a.Store.Join(ctx, book, user)
	if err != nil {
		return domain.Membership{}, fmt.Errorf("join room: %w", err)
	}
	if changed {
		mm := m
		a.Bus.Publish(domain.Event{Type: domain.EventMemberAdded, BookID: book, Member: &mm})
		if m.IsAuthor {
			a.Bus.Publish(domain.Event{
				Type:       domain.EventAuthorJoin,
				BookID:     book,
				AuthorID:   m.UserID,
				AuthorName: m.Name,
			})
		}
	}
	return m, nil
}

func (a *Actions) LeaveRoom(ctx context.Context, book domain.BookID, user domain.UserID) (domain.LeaveReceipt, error) {
	receipt, removed, err := a.Store.Leave(ctx, book, user)
	if err != nil {
		return domain.LeaveReceipt{}, fmt.Errorf("leave room: %w", err)
	}
	if removed != nil {
		a.Bus.Publish(domain.Event{Type: domain.EventMemberRemoved, BookID: book, Member: removed})
		if removed.IsAuthor {
			a.Bus.Publish(domain.Event{
				Type:       domain.EventAuthorLeave,
				BookID:     book,
				AuthorID:   removed.UserID,
				AuthorName: removed.Name,
			})
		}
	}
	return receipt, nil
}

// LeaveQuietly is the best-effort variant used by background flows
// (session save, session discard, idle timeout). Failures are logged
// and swallowed: presence cleanup never blocks the primary action.
func (a *Actions) LeaveQuietly(ctx context.Context, book domain.BookID, user domain.UserID) {
	if _, err := a.LeaveRoom(ctx, book, user); err != nil {
		log.Debug().Err(err).Str("module", "app.actions").Str("book", string(book)).Str("user", string(user)).Msg("best-effort leave failed")
	}
}

func (a *Actions) Heartbeat(ctx context.Context, book domain.BookID, user domain.UserID) (bool, error) {
	return a.Store.Heartbeat(ctx, book, user)
}

func (a *Actions) Members(ctx context.Context, book domain.BookID) ([]domain.Membership, error) {
	return a.Store.Members(ctx, book)
}

func (a *Actions) AuthorPresence(ctx context.Context, book domain.BookID) (*domain.AuthorPresenceSnapshot, error) {
	return a.Store.AuthorPresence(ctx, book)
}
