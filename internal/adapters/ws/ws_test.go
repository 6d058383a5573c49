package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/pagebound/readingroom/internal/broker"
	"github.com/pagebound/readingroom/internal/domain"
)

func presenceServer(t *testing.T, ctx context.Context, hub *broker.Hub) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctl := NewController(hub, 0)
	r := gin.New()
	r.GET("/ws/presence", func(c *gin.Context) {
		ctl.HandlePresence(ctx, c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dialPresence(t *testing.T, srv *httptest.Server, book string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/presence?book=" + book
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) domain.Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var evt domain.Event
	if err := json.Unmarshal(data, &evt); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	return evt
}

// The pumps must outlive the HTTP handler: the gin handler returns as
// soon as the goroutines are spawned, and net/http cancels the request
// context at that point. Events published afterwards still have to
// reach the client.
func TestHandlePresence_DeliversAfterHandlerReturns(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := broker.NewHub()
	srv := presenceServer(t, ctx, hub)
	conn := dialPresence(t, srv, "book-1")

	if evt := readEvent(t, conn); evt.Type != domain.EventSubscriptionSucceeded {
		t.Fatalf("first frame: %s", evt.Type)
	}

	m := domain.Membership{UserID: "reader-2", BookID: "book-1", Name: "Sam"}
	hub.Publish(domain.Event{Type: domain.EventMemberAdded, BookID: "book-1", Member: &m})

	evt := readEvent(t, conn)
	if evt.Type != domain.EventMemberAdded {
		t.Fatalf("pushed frame: %s", evt.Type)
	}
	if evt.Member == nil || evt.Member.UserID != "reader-2" {
		t.Errorf("pushed member: %+v", evt.Member)
	}
}

func TestHandlePresence_RejectsEmptyBook(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := presenceServer(t, ctx, broker.NewHub())
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/presence"
	if _, _, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Fatal("dial without book id should fail the upgrade")
	}
}

func TestHandlePresence_ClientCloseUnsubscribes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := broker.NewHub()
	srv := presenceServer(t, ctx, hub)
	conn := dialPresence(t, srv, "book-1")

	if evt := readEvent(t, conn); evt.Type != domain.EventSubscriptionSucceeded {
		t.Fatalf("first frame: %s", evt.Type)
	}
	if got := hub.SubscriberCount("book-1"); got != 1 {
		t.Fatalf("subscriber count: %d", got)
	}

	_ = conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount("book-1") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription not released after client close")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
