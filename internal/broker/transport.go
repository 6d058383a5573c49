package broker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pagebound/readingroom/internal/domain"
)

// PushSubscriber establishes the realtime channel for a room.
type PushSubscriber interface {
	Subscribe(book domain.BookID) (*Subscription, error)
}

// Transport picks the delivery mode for one subscription: realtime when
// the push channel comes up, otherwise a sticky polling fallback. The
// choice holds for the life of the Conn; a fresh Open may try realtime
// again.
type Transport struct {
	Push         PushSubscriber
	List         Lister
	PollInterval time.Duration
}

func NewTransport(push PushSubscriber, list Lister, pollInterval time.Duration) *Transport {
	return &Transport{Push: push, List: list, PollInterval: pollInterval}
}

// Conn is one open subscription. Events() is closed on Close or when
// the parent context ends.
type Conn struct {
	mode   domain.ConnectionMode
	events chan domain.Event
	cancel context.CancelFunc
}

func (c *Conn) Mode() domain.ConnectionMode { return c.mode }
func (c *Conn) Events() <-chan domain.Event { return c.events }
func (c *Conn) Close()                      { c.cancel() }

// Open never fails: the degraded outcome is a disconnected Conn that
// delivers nothing.
func (t *Transport) Open(ctx context.Context, book domain.BookID) *Conn {
	cctx, cancel := context.WithCancel(ctx)
	conn := &Conn{
		events: make(chan domain.Event, subscriberBuffer),
		cancel: cancel,
	}

	if book == "" {
		conn.mode = domain.ModeDisconnected
		close(conn.events)
		return conn
	}

	sub, err := t.Push.Subscribe(book)
	if err == nil {
		conn.mode = domain.ModeRealtime
		conn.events <- domain.Event{Type: domain.EventSubscriptionSucceeded, BookID: book}
		go relay(cctx, sub, conn.events)
		log.Debug().Str("module", "broker.transport").Str("channel", domain.ChannelName(book)).Msg("realtime subscription established")
		return conn
	}

	// Push channel unavailable: fall back to polling for this
	// subscription's whole lifetime.
	conn.mode = domain.ModePolling
	conn.events <- domain.Event{Type: domain.EventSubscriptionError, BookID: book, Err: err.Error()}
	conn.events <- domain.Event{Type: domain.EventPollingFallback, BookID: book}
	log.Warn().Err(err).Str("module", "broker.transport").Str("channel", domain.ChannelName(book)).Msg("push unavailable, polling fallback")

	poller := NewPoller(t.List, book, t.PollInterval, func(evt domain.Event) {
		select {
		case conn.events <- evt:
		case <-cctx.Done():
		default:
			log.Debug().Str("module", "broker.transport").Str("book", string(book)).Msg("poll event dropped, consumer behind")
		}
	})
	go func() {
		defer close(conn.events)
		poller.Run(cctx)
	}()
	return conn
}

func relay(ctx context.Context, sub *Subscription, out chan<- domain.Event) {
	defer close(out)
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				return
			}
		}
	}
}
