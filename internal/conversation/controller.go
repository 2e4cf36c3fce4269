package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"

	"art-chat/internal/channel"
	"art-chat/internal/message"
)

var (
	// ErrEmptyMessage rejects sends whose text is empty after trimming.
	ErrEmptyMessage = errors.New("conversation: empty message")
	// ErrNotConnected rejects sends while no live channel exists.
	ErrNotConnected = errors.New("conversation: channel not connected")
	// ErrNoPeer rejects operations while no conversation is active.
	ErrNoPeer = errors.New("conversation: no active peer")
)

// HistoryFetcher loads the full backlog of a peer conversation.
type HistoryFetcher interface {
	History(ctx context.Context, peerID int64) ([]message.Message, error)
}

// Conn is the slice of the event channel the controller drives.
type Conn interface {
	SendMessage(receiverID int64, content string, ack func(error)) error
	MarkRead(messageID, senderID int64) error
	State() channel.State
	Close()
}

// Opener dials a new event channel for the pair. The production opener
// wraps channel.Open; tests substitute fakes.
type Opener func(localID, peerID int64, cb channel.Callbacks) (Conn, error)

// Controller orchestrates the store, the read-receipt propagator, and the
// event channel for whichever peer is currently active. The local user's
// identity is fixed at construction; switching peers tears everything down
// and rebuilds it.
type Controller struct {
	localID int64
	fetch   HistoryFetcher
	open    Opener
	notify  func()

	mu        sync.Mutex
	gen       int
	peerID    int64
	conn      Conn
	store     *Store
	receipts  *Receipts
	loading   bool
	connected bool
	lastErr   error
}

// New builds a controller for one authenticated user. notify is invoked
// (outside the controller lock) after every state change the view layer
// should re-render for; it may be nil.
func New(localID int64, fetch HistoryFetcher, open Opener, notify func()) *Controller {
	if notify == nil {
		notify = func() {}
	}
	return &Controller{
		localID:  localID,
		fetch:    fetch,
		open:     open,
		notify:   notify,
		store:    NewStore(),
		receipts: NewReceipts(localID, 0),
	}
}

// LocalID returns the fixed local user identity.
func (c *Controller) LocalID() int64 { return c.localID }

// Peer returns the currently active peer id, zero when none.
func (c *Controller) Peer() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerID
}

// SetPeer switches the active conversation: the old channel and backlog
// are discarded, and, when both identities are resolved, a new channel is
// opened and a fresh history fetch issued. A history response that
// resolves after a later switch is discarded by generation check.
//
// The channel invokes callbacks synchronously on the caller's goroutine:
// Open fires OnConnectError on a failed dial, and Close fails every
// pending send ack. Both re-enter withGen, so the lock must not be held
// across either call.
func (c *Controller) SetPeer(ctx context.Context, peerID int64) {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	old := c.conn
	c.conn = nil
	c.peerID = peerID
	c.store = NewStore()
	c.receipts = NewReceipts(c.localID, peerID)
	c.connected = false
	c.loading = false
	c.lastErr = nil
	localID := c.localID
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}

	if localID == 0 || peerID == 0 {
		c.notify()
		return
	}

	conn, err := c.open(localID, peerID, c.callbacks(gen))

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		c.lastErr = err
		c.mu.Unlock()
		c.notify()
		return
	}
	c.conn = conn
	c.receipts.Bind(conn)
	c.loading = true
	c.mu.Unlock()
	c.notify()

	go c.fetchHistory(ctx, gen, peerID)
}

// ClearPeer deactivates the conversation entirely, e.g. when the local
// user signs out.
func (c *Controller) ClearPeer() {
	c.SetPeer(context.Background(), 0)
}

func (c *Controller) fetchHistory(ctx context.Context, gen int, peerID int64) {
	msgs, err := c.fetch.History(ctx, peerID)

	c.mu.Lock()
	if gen != c.gen {
		// Stale response from before a peer switch; applying it would
		// corrupt the new conversation.
		c.mu.Unlock()
		return
	}
	c.loading = false
	if err != nil {
		c.lastErr = err
		c.store.Clear()
		c.mu.Unlock()
		c.notify()
		return
	}
	c.store.LoadHistory(msgs)
	c.receipts.Observe(c.store.Messages()...)
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) callbacks(gen int) channel.Callbacks {
	return channel.Callbacks{
		OnConnect: func() {
			c.withGen(gen, func() {
				c.connected = true
				c.receipts.Flush()
			})
		},
		OnDisconnect: func() {
			c.withGen(gen, func() {
				c.connected = false
			})
		},
		OnConnectError: func(err error) {
			c.withGen(gen, func() {
				c.connected = false
				c.lastErr = err
			})
		},
		OnReceive: func(msg message.Message) {
			c.withGen(gen, func() {
				c.store.IngestLive(msg)
				c.receipts.Observe(msg)
			})
		},
		OnSent: func(msg message.Message) {
			c.withGen(gen, func() {
				c.store.IngestLive(msg)
			})
		},
		OnMessageRead: func(rr message.ReadReceipt) {
			c.withGen(gen, func() {
				c.receipts.HandleReadAck(c.store, rr)
			})
		},
	}
}

// withGen runs fn under the controller lock only if the event belongs to
// the current conversation generation, then notifies the view.
func (c *Controller) withGen(gen int, fn func()) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	fn()
	c.mu.Unlock()
	c.notify()
}

// Send emits the trimmed text to the active peer. Sends are not
// optimistic: the message appears in the store only once the server echoes
// it back as message_sent. An asynchronous per-call failure is surfaced
// through the view error flag; the caller keeps the input text either way.
func (c *Controller) Send(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	if c.peerID == 0 {
		c.mu.Unlock()
		return ErrNoPeer
	}
	conn := c.conn
	peerID := c.peerID
	gen := c.gen
	if conn == nil || conn.State() != channel.StateConnected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.mu.Unlock()

	return conn.SendMessage(peerID, trimmed, func(err error) {
		if err == nil {
			return
		}
		c.withGen(gen, func() {
			c.lastErr = err
		})
	})
}

// View is the read model handed to the view layer.
type View struct {
	PeerID    int64
	Messages  []message.Message
	Connected bool
	Loading   bool
	Err       error
}

// Snapshot copies the current conversation state.
func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return View{
		PeerID:    c.peerID,
		Messages:  c.store.Messages(),
		Connected: c.connected,
		Loading:   c.loading,
		Err:       c.lastErr,
	}
}

// Close tears down the active channel and clears state. The channel is
// closed outside the lock for the same re-entrancy reason as SetPeer.
func (c *Controller) Close() {
	c.mu.Lock()
	c.gen++
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.store = NewStore()
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}
