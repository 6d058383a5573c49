// Package ws is the push-channel adapter: a websocket connection
// subscribed to one room's presence events.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/pagebound/readingroom/internal/broker"
	"github.com/pagebound/readingroom/internal/domain"
)

const writeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Controller struct {
	Hub       *broker.Hub
	ReadLimit int64
}

func NewController(hub *broker.Hub, readLimit int64) *Controller {
	return &Controller{Hub: hub, ReadLimit: readLimit}
}

// wsConn owns the socket and a buffered outbox; the adapter closes
// what it opens.
type wsConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func (c *wsConn) trySend(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		// Slow consumer; the hub has its own drop policy, this is just
		// the socket-side mirror of it.
		log.Warn().Str("module", "adapters.ws").Msg("outbox full, dropping frame")
	}
}

func (c *wsConn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// HandlePresence upgrades and streams presence-room-{bookId} to the
// client until either side goes away. The pumps live on the server
// context, not the request context: net/http cancels the request
// context as soon as the handler returns, hijacked or not, and the
// socket outlives the handler.
func (ctl *Controller) HandlePresence(ctx context.Context, c *gin.Context) {
	book := domain.BookID(c.Query("book"))
	sub, err := ctl.Hub.Subscribe(book)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "missing book id"})
		return
	}

	socket, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.ws").Msg("ws upgrade")
		sub.Close()
		return
	}
	if ctl.ReadLimit > 0 {
		socket.SetReadLimit(ctl.ReadLimit)
	}
	log.Info().Str("module", "adapters.ws").Str("channel", domain.ChannelName(book)).Msg("new push subscriber")

	conn := &wsConn{conn: socket, send: make(chan []byte, 32)}
	ctx, cancel := context.WithCancel(ctx)

	conn.trySend(mustMarshal(domain.Event{Type: domain.EventSubscriptionSucceeded, BookID: book}))

	go ctl.writePump(ctx, conn)
	go ctl.relayEvents(ctx, sub, conn)
	go ctl.readPump(cancel, sub, conn)
}

func (ctl *Controller) relayEvents(ctx context.Context, sub *broker.Subscription, conn *wsConn) {
	for {
		select {
		case <-ctx.Done():
			sub.Close()
			return
		case evt, ok := <-sub.Events():
			if !ok {
				conn.close()
				return
			}
			conn.trySend(mustMarshal(evt))
		}
	}
}

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	for {
		select {
		case <-ctx.Done():
			c.close()
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				log.Error().Err(err).Str("module", "adapters.ws").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "adapters.ws").Msg("writePump write error")
				return
			}
		}
	}
}

// readPump only exists to notice the peer going away; inbound frames
// are not part of the protocol.
func (ctl *Controller) readPump(cancel context.CancelFunc, sub *broker.Subscription, c *wsConn) {
	defer func() {
		cancel()
		sub.Close()
		c.close()
		log.Info().Str("module", "adapters.ws").Msg("push subscriber gone")
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func mustMarshal(evt domain.Event) []byte {
	data, err := json.Marshal(evt)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.ws").Msg("marshal event")
		return []byte("{}")
	}
	return data
}
