package broker

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/pagebound/readingroom/internal/domain"
)

const bridgeSubjectPrefix = "presence.room."

// wireEvent wraps an event with its origin node so a node never
// re-applies its own mirrored publishes.
type wireEvent struct {
	Origin string       `json:"origin"`
	Event  domain.Event `json:"event"`
}

// Bridge mirrors hub events across nodes over NATS. Local publishes go
// to the hub and to presence.room.{bookId}; events arriving from other
// nodes are re-published into the local hub only.
type Bridge struct {
	id  string
	nc  *nats.Conn
	hub *Hub
	sub *nats.Subscription
}

func NewBridge(url string, hub *Hub) (*Bridge, error) {
	b := &Bridge{id: uuid.NewString(), hub: hub}

	nc, err := nats.Connect(url,
		nats.Name("readingroom-presence"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Str("module", "broker.bridge").Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("module", "broker.bridge").Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	b.nc = nc

	b.sub, err = nc.Subscribe(bridgeSubjectPrefix+">", func(msg *nats.Msg) {
		var we wireEvent
		if err := json.Unmarshal(msg.Data, &we); err != nil {
			log.Warn().Err(err).Str("module", "broker.bridge").Msg("bad bridge payload")
			return
		}
		if we.Origin == b.id {
			return
		}
		b.hub.Publish(we.Event)
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats subscribe: %w", err)
	}

	log.Info().Str("module", "broker.bridge").Str("url", nc.ConnectedUrl()).Msg("bridge connected")
	return b, nil
}

// Publish delivers locally and mirrors to the other nodes.
func (b *Bridge) Publish(evt domain.Event) {
	b.hub.Publish(evt)

	data, err := json.Marshal(wireEvent{Origin: b.id, Event: evt})
	if err != nil {
		log.Error().Err(err).Str("module", "broker.bridge").Msg("marshal bridge event")
		return
	}
	if err := b.nc.Publish(bridgeSubjectPrefix+string(evt.BookID), data); err != nil {
		log.Warn().Err(err).Str("module", "broker.bridge").Str("book", string(evt.BookID)).Msg("mirror publish failed")
	}
}

func (b *Bridge) Close() {
	if err := b.nc.Drain(); err != nil {
		log.Warn().Err(err).Str("module", "broker.bridge").Msg("nats drain")
	}
}
