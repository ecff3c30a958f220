package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/events"
)

func newTestHub() *Hub {
	return NewHub(zerolog.Nop())
}

func receive(t *testing.T, c *Client) events.Event {
	t.Helper()
	select {
	case msg := <-c.Send:
		var ev events.Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("failed to unmarshal event: %v", err)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatalf("client %s did not receive event", c.ID)
	}
	return events.Event{}
}

func assertNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case <-c.Send:
		t.Fatalf("client %s should not have received an event", c.ID)
	default:
	}
}

func TestHub_RegisterClient(t *testing.T) {
	hub := newTestHub()
	client := NewClient([]string{"appointment"})

	hub.Register(client)

	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.ClientCount())
	}
	if hub.TopicCount("appointment") != 1 {
		t.Fatalf("expected 1 client on appointment, got %d", hub.TopicCount("appointment"))
	}
}

func TestHub_UnregisterClosesChannel(t *testing.T) {
	hub := newTestHub()
	client := NewClient([]string{"invoice"})

	hub.Register(client)
	hub.Unregister(client)

	if hub.ClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.ClientCount())
	}
	if hub.TopicCount("invoice") != 0 {
		t.Fatalf("expected 0 clients on invoice, got %d", hub.TopicCount("invoice"))
	}
	if _, ok := <-client.Send; ok {
		t.Fatal("expected Send channel to be closed")
	}

	// second unregister is a no-op
	hub.Unregister(client)
}

func TestHub_PublishByAggregateType(t *testing.T) {
	hub := newTestHub()
	subscriber := NewClient([]string{"appointment"})
	other := NewClient([]string{"invoice"})
	hub.Register(subscriber)
	hub.Register(other)

	ev := events.New(events.AppointmentBooked, "appointment", 42, map[string]string{"status": "Scheduled"})
	if err := hub.Publish(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := receive(t, subscriber)
	if got.Type != events.AppointmentBooked || got.AggregateID != "42" {
		t.Fatalf("unexpected event %+v", got)
	}
	assertNothing(t, other)
}

func TestHub_PublishBySingleAggregate(t *testing.T) {
	hub := newTestHub()
	watcher := NewClient([]string{"appointment/7"})
	otherWatcher := NewClient([]string{"appointment/8"})
	hub.Register(watcher)
	hub.Register(otherWatcher)

	hub.Publish(context.Background(), events.New(events.AppointmentStatusChanged, "appointment", 7, nil))

	if got := receive(t, watcher); got.AggregateID != "7" {
		t.Fatalf("expected aggregate 7, got %s", got.AggregateID)
	}
	assertNothing(t, otherWatcher)
}

func TestHub_PublishDeliversOncePerClient(t *testing.T) {
	hub := newTestHub()
	client := NewClient([]string{"appointment", "appointment/3"})
	hub.Register(client)

	hub.Publish(context.Background(), events.New(events.AppointmentUpdated, "appointment", 3, nil))

	receive(t, client)
	assertNothing(t, client)
}

func TestHub_PublishToEmptyTopic(t *testing.T) {
	hub := newTestHub()
	if err := hub.Publish(context.Background(), events.New(events.InvoicePaid, "invoice", 1, nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHub_PublishDropsWhenBufferFull(t *testing.T) {
	hub := newTestHub()
	client := &Client{ID: "slow", Topics: []string{"invoice"}, Send: make(chan []byte, 1)}
	hub.Register(client)

	for i := 0; i < 3; i++ {
		hub.Publish(context.Background(), events.New(events.InvoiceCreated, "invoice", int64(i), nil))
	}
	if len(client.Send) != 1 {
		t.Fatalf("expected buffered channel to hold 1 event, got %d", len(client.Send))
	}
}

func TestHub_SubscribeAndUnsubscribe(t *testing.T) {
	hub := newTestHub()
	client := NewClient(nil)
	hub.Register(client)

	hub.ProcessMessage(client, ClientMessage{Action: "subscribe", Topics: []string{"appointment", "invoice"}})
	hub.ProcessMessage(client, ClientMessage{Action: "subscribe", Topics: []string{"appointment"}})
	if hub.TopicCount("appointment") != 1 || hub.TopicCount("invoice") != 1 {
		t.Fatal("expected client on both topics")
	}
	if len(client.Topics) != 2 {
		t.Fatalf("expected duplicate subscribe to be ignored, got %v", client.Topics)
	}

	hub.ProcessMessage(client, ClientMessage{Action: "unsubscribe", Topics: []string{"appointment"}})
	if hub.TopicCount("appointment") != 0 {
		t.Fatal("expected client removed from appointment")
	}
	if len(client.Topics) != 1 || client.Topics[0] != "invoice" {
		t.Fatalf("unexpected topics %v", client.Topics)
	}

	hub.ProcessMessage(client, ClientMessage{Action: "bogus", Topics: []string{"x"}})
	if hub.TopicCount("x") != 0 {
		t.Fatal("unknown action must be ignored")
	}
}

func TestHub_ConcurrentRegisterUnregister(t *testing.T) {
	hub := newTestHub()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := NewClient([]string{"appointment"})
			hub.Register(c)
			hub.Publish(context.Background(), events.New(events.AppointmentBooked, "appointment", 1, nil))
			hub.Unregister(c)
		}()
	}
	wg.Wait()

	if hub.ClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestParseTopics(t *testing.T) {
	got := parseTopics(" appointment, ,invoice/3 ")
	if len(got) != 2 || got[0] != "appointment" || got[1] != "invoice/3" {
		t.Fatalf("unexpected topics %v", got)
	}
	if parseTopics("") != nil {
		t.Fatal("expected nil for empty input")
	}
}

func TestHandler_RejectsPlainHTTP(t *testing.T) {
	hub := newTestHub()
	e := echo.New()
	NewHandler(hub, []string{"*"}).RegisterRoutes(e)

	req := httptest.NewRequest(http.MethodGet, "/ws/events", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-upgrade request, got %d", rec.Code)
	}
	if hub.ClientCount() != 0 {
		t.Fatal("no client should be registered")
	}
}

func TestHandler_RejectsUnknownOrigin(t *testing.T) {
	hub := newTestHub()
	e := echo.New()
	NewHandler(hub, []string{"http://clinic.test"}).RegisterRoutes(e)
	server := httptest.NewServer(e)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/events"
	header := http.Header{"Origin": []string{"http://evil.test"}}
	_, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		t.Fatal("expected dial to fail for disallowed origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", resp)
	}
}

func TestHandler_FullUpgradeWithDialer(t *testing.T) {
	hub := newTestHub()
	e := echo.New()
	NewHandler(hub, []string{"*"}).RegisterRoutes(e)

	server := httptest.NewServer(e)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/events?topics=appointment"
	conn, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()

	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	deadline := time.Now().Add(time.Second)
	for hub.TopicCount("appointment") < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.TopicCount("appointment") != 1 {
		t.Fatal("expected client subscribed from query parameter")
	}

	if err := conn.WriteJSON(ClientMessage{Action: "subscribe", Topics: []string{"invoice"}}); err != nil {
		t.Fatalf("failed to send subscribe: %v", err)
	}
	for hub.TopicCount("invoice") < 1 && time.Now().Before(deadline.Add(time.Second)) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.TopicCount("invoice") != 1 {
		t.Fatal("expected client subscribed to invoice")
	}

	hub.Publish(context.Background(), events.New(events.InvoicePaid, "invoice", 9, nil))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var received events.Event
	if err := conn.ReadJSON(&received); err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	if received.Type != events.InvoicePaid || received.AggregateID != "9" {
		t.Fatalf("unexpected event %+v", received)
	}
}
