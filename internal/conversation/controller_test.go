package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"art-chat/internal/channel"
	"art-chat/internal/message"
)

type fetcherFunc func(ctx context.Context, peerID int64) ([]message.Message, error)

func (f fetcherFunc) History(ctx context.Context, peerID int64) ([]message.Message, error) {
	return f(ctx, peerID)
}

type fakeConn struct {
	mu        sync.Mutex
	state     channel.State
	sends     []string
	reads     []message.ReadReceipt
	failReads bool
	ackErr    error
	closed    bool
	cb        channel.Callbacks
}

func (f *fakeConn) SendMessage(receiverID int64, content string, ack func(error)) error {
	f.mu.Lock()
	f.sends = append(f.sends, content)
	err := f.ackErr
	f.mu.Unlock()
	if ack != nil {
		ack(err)
	}
	return nil
}

func (f *fakeConn) MarkRead(messageID, senderID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReads {
		return channel.ErrNotConnected
	}
	f.reads = append(f.reads, message.ReadReceipt{MessageID: messageID, SenderID: senderID})
	return nil
}

func (f *fakeConn) State() channel.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeConn) setState(s channel.State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	f.closed = true
	f.state = channel.StateDisconnected
	f.mu.Unlock()
}

func (f *fakeConn) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reads)
}

type fakeOpener struct {
	mu    sync.Mutex
	conns []*fakeConn
}

func (o *fakeOpener) open(localID, peerID int64, cb channel.Callbacks) (Conn, error) {
	conn := &fakeConn{state: channel.StateConnected, cb: cb}
	o.mu.Lock()
	o.conns = append(o.conns, conn)
	o.mu.Unlock()
	return conn, nil
}

func (o *fakeOpener) last() *fakeConn {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.conns[len(o.conns)-1]
}

func waitUntil(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func staticHistory(msgs ...message.Message) fetcherFunc {
	return func(context.Context, int64) ([]message.Message, error) {
		return msgs, nil
	}
}

func TestHistoryLoadEmitsSingleReadAck(t *testing.T) {
	opener := &fakeOpener{}
	ctrl := New(7, staticHistory(msgAt(1, 42, 7, "2024-05-01 09:00:00")), opener.open, nil)
	defer ctrl.Close()

	ctrl.SetPeer(context.Background(), 42)
	waitUntil(t, func() bool { return !ctrl.Snapshot().Loading }, "history load")

	view := ctrl.Snapshot()
	if len(view.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(view.Messages))
	}
	if bool(view.Messages[0].IsRead) {
		t.Fatalf("expected stored message to stay unread until the peer acks")
	}
	conn := opener.last()
	waitUntil(t, func() bool { return conn.readCount() == 1 }, "read receipt")
	conn.mu.Lock()
	got := conn.reads[0]
	conn.mu.Unlock()
	if got.MessageID != 1 || got.SenderID != 42 {
		t.Fatalf("unexpected mark_as_read payload: %+v", got)
	}
}

func TestLiveDuplicateNeitherDuplicatesNorReacks(t *testing.T) {
	opener := &fakeOpener{}
	dup := msgAt(1, 42, 7, "2024-05-01 09:00:00")
	ctrl := New(7, staticHistory(dup), opener.open, nil)
	defer ctrl.Close()

	ctrl.SetPeer(context.Background(), 42)
	waitUntil(t, func() bool { return !ctrl.Snapshot().Loading }, "history load")
	conn := opener.last()
	waitUntil(t, func() bool { return conn.readCount() == 1 }, "initial read receipt")

	conn.cb.OnReceive(dup)
	view := ctrl.Snapshot()
	if len(view.Messages) != 1 {
		t.Fatalf("expected store size 1 after duplicate, got %d", len(view.Messages))
	}
	if conn.readCount() != 1 {
		t.Fatalf("expected no duplicate read ack, got %d", conn.readCount())
	}
}

func TestPeerSwitchDiscardsStaleHistory(t *testing.T) {
	opener := &fakeOpener{}
	release := make(chan struct{})
	fetch := fetcherFunc(func(ctx context.Context, peerID int64) ([]message.Message, error) {
		if peerID == 1 {
			<-release
			return []message.Message{msgAt(100, 1, 7, "2024-05-01 09:00:00")}, nil
		}
		return []message.Message{msgAt(200, 2, 7, "2024-05-01 10:00:00")}, nil
	})
	ctrl := New(7, fetch, opener.open, nil)
	defer ctrl.Close()

	ctrl.SetPeer(context.Background(), 1)
	ctrl.SetPeer(context.Background(), 2)
	waitUntil(t, func() bool {
		v := ctrl.Snapshot()
		return !v.Loading && len(v.Messages) == 1
	}, "peer 2 history")

	close(release)
	time.Sleep(50 * time.Millisecond)

	view := ctrl.Snapshot()
	if len(view.Messages) != 1 || view.Messages[0].ID != 200 {
		t.Fatalf("stale history leaked into the new conversation: %+v", view.Messages)
	}
	opener.mu.Lock()
	firstClosed := opener.conns[0].closed
	opener.mu.Unlock()
	if !firstClosed {
		t.Fatalf("expected the first channel torn down on switch")
	}
}

func TestSetPeerWithUnresolvedIdentityClearsState(t *testing.T) {
	opener := &fakeOpener{}
	ctrl := New(7, staticHistory(msgAt(1, 42, 7, "2024-05-01 09:00:00")), opener.open, nil)
	defer ctrl.Close()

	ctrl.SetPeer(context.Background(), 42)
	waitUntil(t, func() bool { return len(ctrl.Snapshot().Messages) == 1 }, "history load")

	ctrl.ClearPeer()
	view := ctrl.Snapshot()
	if view.PeerID != 0 || len(view.Messages) != 0 {
		t.Fatalf("expected cleared conversation, got %+v", view)
	}
	if len(opener.conns) != 1 {
		t.Fatalf("expected no channel opened for an unresolved pair")
	}
	if !opener.conns[0].closed {
		t.Fatalf("expected existing channel closed")
	}
}

func TestSendValidation(t *testing.T) {
	opener := &fakeOpener{}
	ctrl := New(7, staticHistory(), opener.open, nil)
	defer ctrl.Close()

	if err := ctrl.Send("   "); err != ErrEmptyMessage {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if err := ctrl.Send("hello"); err != ErrNoPeer {
		t.Fatalf("expected ErrNoPeer, got %v", err)
	}

	ctrl.SetPeer(context.Background(), 42)
	waitUntil(t, func() bool { return !ctrl.Snapshot().Loading }, "history load")
	opener.last().setState(channel.StateDisconnected)
	if err := ctrl.Send("hello"); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestSendIsNotOptimistic(t *testing.T) {
	opener := &fakeOpener{}
	ctrl := New(7, staticHistory(), opener.open, nil)
	defer ctrl.Close()

	ctrl.SetPeer(context.Background(), 42)
	waitUntil(t, func() bool { return !ctrl.Snapshot().Loading }, "history load")

	if err := ctrl.Send("  hello  "); err != nil {
		t.Fatalf("send: %v", err)
	}
	conn := opener.last()
	conn.mu.Lock()
	sent := conn.sends
	conn.mu.Unlock()
	if len(sent) != 1 || sent[0] != "hello" {
		t.Fatalf("expected trimmed send, got %v", sent)
	}
	if n := len(ctrl.Snapshot().Messages); n != 0 {
		t.Fatalf("expected no store mutation before the echo, got %d", n)
	}

	conn.cb.OnSent(msgAt(5, 7, 42, "2024-05-01 09:00:00"))
	view := ctrl.Snapshot()
	if len(view.Messages) != 1 || view.Messages[0].ID != 5 {
		t.Fatalf("expected echoed message in store, got %+v", view.Messages)
	}
}

func TestSendAckFailureSurfaced(t *testing.T) {
	opener := &fakeOpener{}
	ctrl := New(7, staticHistory(), opener.open, nil)
	defer ctrl.Close()

	ctrl.SetPeer(context.Background(), 42)
	waitUntil(t, func() bool { return !ctrl.Snapshot().Loading }, "history load")

	opener.last().ackErr = errors.New("receiver offline")
	if err := ctrl.Send("hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	waitUntil(t, func() bool { return ctrl.Snapshot().Err != nil }, "surfaced ack failure")
	if n := len(ctrl.Snapshot().Messages); n != 0 {
		t.Fatalf("failed send must not mutate the store, got %d messages", n)
	}
}

func TestInboundReadAckMarksOwnMessage(t *testing.T) {
	opener := &fakeOpener{}
	own := msgAt(9, 7, 42, "2024-05-01 09:00:00")
	ctrl := New(7, staticHistory(own), opener.open, nil)
	defer ctrl.Close()

	ctrl.SetPeer(context.Background(), 42)
	waitUntil(t, func() bool { return len(ctrl.Snapshot().Messages) == 1 }, "history load")
	conn := opener.last()

	conn.cb.OnMessageRead(message.ReadReceipt{MessageID: 9, ReaderID: 99})
	if bool(ctrl.Snapshot().Messages[0].IsRead) {
		t.Fatalf("foreign reader must not mutate the store")
	}

	conn.cb.OnMessageRead(message.ReadReceipt{MessageID: 9, ReaderID: 42})
	if !bool(ctrl.Snapshot().Messages[0].IsRead) {
		t.Fatalf("expected own message marked read by the peer's ack")
	}
}

func TestConnectFlushesQueuedReceipts(t *testing.T) {
	opener := &fakeOpener{}
	gate := make(chan struct{})
	fetch := fetcherFunc(func(context.Context, int64) ([]message.Message, error) {
		<-gate
		return []message.Message{msgAt(1, 42, 7, "2024-05-01 09:00:00")}, nil
	})
	ctrl := New(7, fetch, opener.open, nil)
	defer ctrl.Close()

	ctrl.SetPeer(context.Background(), 42)
	conn := opener.last()
	conn.mu.Lock()
	conn.failReads = true
	conn.mu.Unlock()
	close(gate)

	waitUntil(t, func() bool { return !ctrl.Snapshot().Loading }, "history load")
	if conn.readCount() != 0 {
		t.Fatalf("expected receipt deferred while channel down")
	}

	conn.mu.Lock()
	conn.failReads = false
	conn.mu.Unlock()
	conn.cb.OnConnect()
	waitUntil(t, func() bool { return conn.readCount() == 1 }, "flushed receipt")

	if !ctrl.Snapshot().Connected {
		t.Fatalf("expected connected flag set")
	}
}

func TestSetPeerSurfacesDialFailure(t *testing.T) {
	dialErr := errors.New("connection refused")
	open := func(localID, peerID int64, cb channel.Callbacks) (Conn, error) {
		cb.OnConnectError(dialErr)
		return nil, dialErr
	}
	ctrl := New(7, staticHistory(), open, nil)
	defer ctrl.Close()

	done := make(chan struct{})
	go func() {
		ctrl.SetPeer(context.Background(), 42)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("SetPeer blocked on a failed dial")
	}

	view := ctrl.Snapshot()
	if view.Err == nil {
		t.Fatalf("expected dial failure surfaced in the view")
	}
	if view.Connected {
		t.Fatalf("expected disconnected state after a failed dial")
	}
}

// pendingAckConn holds send acks open until Close, which fails them the
// way the real channel does.
type pendingAckConn struct {
	fakeConn
	pending []func(error)
}

func (p *pendingAckConn) SendMessage(receiverID int64, content string, ack func(error)) error {
	p.mu.Lock()
	p.sends = append(p.sends, content)
	if ack != nil {
		p.pending = append(p.pending, ack)
	}
	p.mu.Unlock()
	return nil
}

func (p *pendingAckConn) Close() {
	p.mu.Lock()
	p.closed = true
	p.state = channel.StateDisconnected
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()
	for _, ack := range pending {
		ack(channel.ErrClosed)
	}
}

func TestPeerSwitchFailsPendingSendAck(t *testing.T) {
	opener := &fakeOpener{}
	first := &pendingAckConn{}
	first.state = channel.StateConnected
	open := func(localID, peerID int64, cb channel.Callbacks) (Conn, error) {
		if len(opener.conns) == 0 && !first.closed {
			first.cb = cb
			opener.conns = append(opener.conns, &first.fakeConn)
			return first, nil
		}
		return opener.open(localID, peerID, cb)
	}
	ctrl := New(7, staticHistory(), open, nil)
	defer ctrl.Close()

	ctrl.SetPeer(context.Background(), 42)
	waitUntil(t, func() bool { return !ctrl.Snapshot().Loading }, "history load")
	if err := ctrl.Send("hello"); err != nil {
		t.Fatalf("send: %v", err)
	}

	done := make(chan struct{})
	go func() {
		ctrl.SetPeer(context.Background(), 43)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("peer switch blocked while failing the pending send ack")
	}

	if !first.closed {
		t.Fatalf("expected the old channel torn down on switch")
	}
	if err := ctrl.Snapshot().Err; err != nil {
		t.Fatalf("stale ack failure leaked into the new conversation: %v", err)
	}
}
