package channel

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"art-chat/internal/message"
)

// testServer upgrades one connection and replays scripted frames, then
// records whatever the client writes back.
type testServer struct {
	srv    *httptest.Server
	script []Frame
	got    chan Frame
}

func newTestServer(t *testing.T, script ...Frame) *testServer {
	t.Helper()
	ts := &testServer{script: script, got: make(chan Frame, 16)}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		for _, frame := range ts.script {
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		}
		for {
			var frame Frame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			ts.got <- frame
		}
	}))
	return ts
}

func (ts *testServer) url() string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http")
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestOpenRequiresBothIdentities(t *testing.T) {
	if _, err := Open(Options{URL: "ws://127.0.0.1:0", LocalID: 7}); err != ErrMissingIdentity {
		t.Fatalf("expected ErrMissingIdentity, got %v", err)
	}
	if _, err := Open(Options{URL: "ws://127.0.0.1:0", PeerID: 42}); err != ErrMissingIdentity {
		t.Fatalf("expected ErrMissingIdentity, got %v", err)
	}
}

func TestDialFailureSurfacesConnectError(t *testing.T) {
	gotErr := make(chan struct{})
	_, err := Open(Options{
		URL:     "ws://127.0.0.1:1/channel",
		LocalID: 7,
		PeerID:  42,
		Callbacks: Callbacks{
			OnConnectError: func(error) { close(gotErr) },
		},
	})
	if err == nil {
		t.Fatalf("expected dial error")
	}
	waitFor(t, gotErr, "connect error callback")
}

func TestConnectAndPeerFiltering(t *testing.T) {
	forPeer := `{"id":1,"sender_id":42,"receiver_id":7,"content":"for us","is_read":0,"created_at":"2024-05-01 09:00:00"}`
	otherPeer := `{"id":2,"sender_id":99,"receiver_id":7,"content":"other convo","is_read":0,"created_at":"2024-05-01 09:00:01"}`
	ts := newTestServer(t,
		Frame{Event: EventConnected},
		Frame{Event: EventReceive, Data: []byte(otherPeer)},
		Frame{Event: EventReceive, Data: []byte(forPeer)},
	)
	defer ts.srv.Close()

	connected := make(chan struct{})
	received := make(chan message.Message, 4)
	ch, err := Open(Options{
		URL:     ts.url(),
		LocalID: 7,
		PeerID:  42,
		Callbacks: Callbacks{
			OnConnect: func() { close(connected) },
			OnReceive: func(msg message.Message) { received <- msg },
		},
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer ch.Close()

	waitFor(t, connected, "connect")
	select {
	case msg := <-received:
		if msg.ID != 1 {
			t.Fatalf("expected only the active-peer message, got id %d", msg.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for message")
	}
	select {
	case msg := <-received:
		t.Fatalf("unexpected extra message %d for another conversation", msg.ID)
	case <-time.After(100 * time.Millisecond):
	}
	if ch.State() != StateConnected {
		t.Fatalf("expected connected state, got %s", ch.State())
	}
}

func TestSendMessageAckRoundTrip(t *testing.T) {
	ts := newTestServer(t, Frame{Event: EventConnected})
	defer ts.srv.Close()

	connected := make(chan struct{})
	acked := make(chan error, 1)
	ch, err := Open(Options{
		URL:     ts.url(),
		LocalID: 7,
		PeerID:  42,
		Callbacks: Callbacks{
			OnConnect: func() { close(connected) },
		},
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer ch.Close()
	waitFor(t, connected, "connect")

	if err := ch.SendMessage(42, "hello", func(err error) { acked <- err }); err != nil {
		t.Fatalf("send: %v", err)
	}

	// The server echoes an ack for whatever ack_id the client chose.
	select {
	case frame := <-ts.got:
		if frame.Event != EventSend {
			t.Fatalf("expected send_message frame, got %s", frame.Event)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server never saw the send frame")
	}
	// Simulate the per-call ack arriving by resolving it directly.
	ch.resolveAck(1, nil)
	select {
	case err := <-acked:
		if err != nil {
			t.Fatalf("expected success ack, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("ack callback never fired")
	}
}

func TestSendBeforeConnectedRejected(t *testing.T) {
	ts := newTestServer(t) // server never sends the connected frame
	defer ts.srv.Close()

	ch, err := Open(Options{URL: ts.url(), LocalID: 7, PeerID: 42})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer ch.Close()
	if err := ch.SendMessage(42, "too soon", nil); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if err := ch.MarkRead(1, 42); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestCloseIsIdempotentAndFailsPendingAcks(t *testing.T) {
	ts := newTestServer(t, Frame{Event: EventConnected})
	defer ts.srv.Close()

	connected := make(chan struct{})
	ch, err := Open(Options{
		URL:     ts.url(),
		LocalID: 7,
		PeerID:  42,
		Callbacks: Callbacks{
			OnConnect: func() { close(connected) },
		},
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	waitFor(t, connected, "connect")

	acked := make(chan error, 1)
	if err := ch.SendMessage(42, "bye", func(err error) { acked <- err }); err != nil {
		t.Fatalf("send: %v", err)
	}
	ch.Close()
	ch.Close()
	select {
	case err := <-acked:
		if err != ErrClosed {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("pending ack never failed")
	}
	if err := ch.SendMessage(42, "after close", nil); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
