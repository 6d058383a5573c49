package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pagebound/readingroom/internal/domain"
)

// State is where a controller is in its subscription lifecycle.
type State int

const (
	Unsubscribed State = iota
	Subscribing
	Subscribed
)

func (s State) String() string {
	switch s {
	case Unsubscribed:
		return "unsubscribed"
	case Subscribing:
		return "subscribing"
	case Subscribed:
		return "subscribed"
	default:
		return "unknown"
	}
}

// Conn is the transport side of one subscription.
type Conn interface {
	Mode() domain.ConnectionMode
	Events() <-chan domain.Event
	Close()
}

// DialFunc opens a transport subscription for a room.
type DialFunc func(ctx context.Context, book domain.BookID) Conn

type Timing struct {
	HeartbeatPeriod time.Duration
	IdleTimeout     time.Duration
}

type Callbacks struct {
	OnEvent       func(domain.Event)
	OnAuthorJoin  func(id domain.UserID, name string)
	OnAuthorLeave func(id domain.UserID, name string)
}

// View is the stable projection handed to render code.
type View struct {
	Members        map[domain.UserID]domain.Membership
	CurrentChannel string
	IsConnected    bool
	ConnectionMode domain.ConnectionMode
	MemberCount    int
}

// Has is the typed membership check: equality by id, nothing weaker.
func (v View) Has(id domain.UserID) bool {
	_, ok := v.Members[id]
	return ok
}

type ControllerConfig struct {
	API       RoomAPI
	Dial      DialFunc
	Active    *ActiveRoom
	Notify    Notifier
	Viewer    domain.User
	Timing    Timing
	Callbacks Callbacks
}

// Controller is the per-client subscription state machine. Retargeting
// or disabling tears down the transport, the heartbeat loop, the idle
// timer and any pending polls before anything new starts; nothing may
// leak across rooms.
type Controller struct {
	api     RoomAPI
	dial    DialFunc
	active  *ActiveRoom
	notify  Notifier
	viewer  domain.User
	timing  Timing
	cb      Callbacks
	tracker *AuthorTracker

	touchCh chan struct{}

	mu      sync.Mutex
	state   State
	channel string
	book    domain.BookID
	mode    domain.ConnectionMode
	members map[domain.UserID]domain.Membership
	cancel  context.CancelFunc
	conn    Conn

	// seen remembers, per room, that readers were there at some point.
	// It survives unsubscribe so the empty room can invite a return.
	seen map[domain.BookID]bool
}

func NewController(cfg ControllerConfig) *Controller {
	if cfg.Notify == nil {
		cfg.Notify = NopNotifier{}
	}
	return &Controller{
		api:     cfg.API,
		dial:    cfg.Dial,
		active:  cfg.Active,
		notify:  cfg.Notify,
		viewer:  cfg.Viewer,
		timing:  cfg.Timing,
		cb:      cfg.Callbacks,
		tracker: NewAuthorTracker(cfg.Viewer.ID, cfg.Notify),
		touchCh: make(chan struct{}, 1),
		mode:    domain.ModeDisconnected,
		members: make(map[domain.UserID]domain.Membership),
		seen:    make(map[domain.BookID]bool),
	}
}

func (c *Controller) Tracker() *AuthorTracker { return c.tracker }

// Join is the explicit user action: no membership is assumed until the
// server confirms it. On failure the controller stays unsubscribed.
func (c *Controller) Join(ctx context.Context, book domain.BookID) error {
	if _, err := c.api.JoinRoom(ctx, book, c.viewer); err != nil {
		log.Warn().Err(err).Str("module", "app.controller").Str("book", string(book)).Msg("join failed")
		return err
	}
	if snap, err := c.api.AuthorPresence(ctx, book); err == nil {
		c.tracker.SetSnapshot(snap)
	}
	c.SetTarget(domain.ChannelName(book), true)
	return nil
}

// Leave is the explicit user action. On failure the joined state is
// kept: the caller surfaces the error and may retry.
func (c *Controller) Leave(ctx context.Context) error {
	c.mu.Lock()
	book := c.book
	c.mu.Unlock()
	if book == "" {
		return nil
	}
	if _, err := c.api.LeaveRoom(ctx, book, c.viewer.ID); err != nil {
		log.Warn().Err(err).Str("module", "app.controller").Str("book", string(book)).Msg("leave failed, keeping joined state")
		return err
	}
	c.SetTarget("", false)
	return nil
}

// LeaveOnSessionEnd is the best-effort leave for session save/discard:
// the primary action already happened, so presence cleanup failures are
// swallowed and the subscription is torn down regardless.
func (c *Controller) LeaveOnSessionEnd(ctx context.Context) {
	c.mu.Lock()
	book := c.book
	c.mu.Unlock()
	if book != "" {
		if _, err := c.api.LeaveRoom(ctx, book, c.viewer.ID); err != nil {
			log.Debug().Err(err).Str("module", "app.controller").Str("book", string(book)).Msg("session-end leave failed")
		}
	}
	c.SetTarget("", false)
}

// SetTarget is the state machine input: a channel name (empty for
// none) plus the enabled flag. Any change of target tears the old
// subscription down completely before the new one starts.
func (c *Controller) SetTarget(channel string, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if enabled && channel != "" && channel == c.channel && c.state != Unsubscribed {
		return
	}
	c.teardownLocked()

	if !enabled || channel == "" {
		return
	}

	c.state = Subscribing
	c.channel = channel
	c.book = domain.BookFromChannel(channel)
	c.active.Set(channel)

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	conn := c.dial(ctx, c.book)
	c.conn = conn
	c.mode = conn.Mode()

	if c.mode == domain.ModeDisconnected {
		c.teardownLocked()
		return
	}

	c.state = Subscribed
	log.Info().Str("module", "app.controller").Str("channel", channel).Str("mode", string(c.mode)).Msg("subscribed")
	go c.run(ctx, channel, c.book, conn)
}

// Touch records user activity and resets the idle timer. Periodic
// heartbeats keep the server-side liveness fresh but do not count as
// activity, otherwise the idle timeout could never fire.
func (c *Controller) Touch() {
	select {
	case c.touchCh <- struct{}{}:
	default:
	}
}

// View returns the public projection. When the shared active-channel
// indicator names another room, the local projection is stale and is
// reported as zero members rather than shown.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		Members:        make(map[domain.UserID]domain.Membership),
		CurrentChannel: c.active.Current(),
		ConnectionMode: c.mode,
		IsConnected:    c.state == Subscribed && c.mode == domain.ModeRealtime,
	}
	if c.state != Subscribed || !c.active.Matches(c.channel) {
		return v
	}
	for id, m := range c.members {
		v.Members[id] = m
	}
	v.MemberCount = len(v.Members)
	return v
}

// StatusLine is the short line under a room's member list.
func (c *Controller) StatusLine(book domain.BookID) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	if c.state == Subscribed && c.book == book && c.active.Matches(c.channel) {
		count = len(c.members)
	}
	return domain.RoomStatusLine(count, c.seen[book])
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) run(ctx context.Context, channel string, book domain.BookID, conn Conn) {
	hb := time.NewTicker(c.timing.HeartbeatPeriod)
	defer hb.Stop()
	idle := time.NewTimer(c.timing.IdleTimeout)
	defer idle.Stop()

	// The push channel only carries changes from here on; seed the
	// projection with a fresh snapshot so the roster starts complete.
	if members, err := c.api.Members(ctx, book); err == nil {
		c.apply(channel, domain.Event{Type: domain.EventPollUpdate, BookID: book, Members: members})
	}

	// First heartbeat goes out immediately, not after the first period.
	c.sendHeartbeat(ctx, book)

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-conn.Events():
			if !ok {
				// Transport ended underneath us (dropped as a slow
				// subscriber, hub gone). Tear down so the machine lands
				// in Unsubscribed instead of a frozen Subscribed view.
				log.Debug().Str("module", "app.controller").Str("channel", channel).Msg("transport closed, unsubscribing")
				c.disableIf(channel)
				return
			}
			c.apply(channel, evt)
		case <-c.touchCh:
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(c.timing.IdleTimeout)
		case <-hb.C:
			c.sendHeartbeat(ctx, book)
		case <-idle.C:
			c.idleLeave(ctx, channel, book)
			return
		}
	}
}

func (c *Controller) sendHeartbeat(ctx context.Context, book domain.BookID) {
	updated, err := c.api.Heartbeat(ctx, book, c.viewer.ID)
	if err != nil {
		// Retried next cycle; the eviction grace covers a missed beat.
		log.Debug().Err(err).Str("module", "app.controller").Str("book", string(book)).Msg("heartbeat failed")
		return
	}
	if !updated {
		// The server no longer knows us (evicted or restarted): re-join.
		if _, err := c.api.JoinRoom(ctx, book, c.viewer); err != nil {
			log.Debug().Err(err).Str("module", "app.controller").Str("book", string(book)).Msg("heartbeat re-join failed")
		}
	}
}

func (c *Controller) idleLeave(ctx context.Context, channel string, book domain.BookID) {
	c.mu.Lock()
	current := c.channel == channel
	c.mu.Unlock()
	if !current {
		return
	}

	log.Info().Str("module", "app.controller").Str("book", string(book)).Msg("idle timeout, leaving room")
	if _, err := c.api.LeaveRoom(ctx, book, c.viewer.ID); err != nil {
		log.Debug().Err(err).Str("module", "app.controller").Str("book", string(book)).Msg("idle leave failed")
	}
	c.notify.Info("Left the reading room due to inactivity")
	c.disableIf(channel)
}

func (c *Controller) disableIf(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel == channel {
		c.teardownLocked()
	}
}

// apply folds one event into the local projection. Updates are keyed
// last-write-wins by user id; order and uniqueness of delivery are not
// trusted.
func (c *Controller) apply(channel string, evt domain.Event) {
	c.mu.Lock()
	if c.channel != channel {
		// A stale session goroutine must never touch the new room.
		c.mu.Unlock()
		return
	}
	switch evt.Type {
	case domain.EventMemberAdded:
		if evt.Member != nil {
			c.members[evt.Member.UserID] = *evt.Member
		}
	case domain.EventMemberRemoved:
		if evt.Member != nil {
			delete(c.members, evt.Member.UserID)
		}
	case domain.EventPollUpdate:
		fresh := make(map[domain.UserID]domain.Membership, len(evt.Members))
		for _, m := range evt.Members {
			fresh[m.UserID] = m
		}
		c.members = fresh
	}
	if len(c.members) > 0 {
		c.seen[c.book] = true
	}
	mode := c.mode
	c.mu.Unlock()

	c.tracker.HandleEvent(evt, mode)

	if c.cb.OnEvent != nil {
		c.cb.OnEvent(evt)
	}
	switch evt.Type {
	case domain.EventAuthorJoin:
		if c.cb.OnAuthorJoin != nil {
			c.cb.OnAuthorJoin(evt.AuthorID, evt.AuthorName)
		}
	case domain.EventAuthorLeave:
		if c.cb.OnAuthorLeave != nil {
			c.cb.OnAuthorLeave(evt.AuthorID, evt.AuthorName)
		}
	}
}

func (c *Controller) teardownLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	if c.channel != "" {
		c.active.Clear(c.channel)
		log.Info().Str("module", "app.controller").Str("channel", c.channel).Msg("unsubscribed")
	}
	c.channel = ""
	c.book = ""
	c.members = make(map[domain.UserID]domain.Membership)
	c.mode = domain.ModeDisconnected
	c.state = Unsubscribed
}
