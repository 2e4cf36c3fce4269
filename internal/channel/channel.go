// Package channel owns the persistent event channel between the client and
// the messaging server, scoped to one (local user, peer user) pair. It
// translates inbound wire frames into typed events and dispatches them to
// registered callbacks, filtering message events by relevance to the pair.
package channel

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"art-chat/internal/message"
)

var (
	// ErrMissingIdentity rejects Open when either side of the pair is
	// unresolved. Callers must clear conversation state instead of opening.
	ErrMissingIdentity = errors.New("channel: local and peer ids must both be resolved")
	// ErrNotConnected rejects emissions while the channel is not live.
	ErrNotConnected = errors.New("channel: not connected")
	// ErrClosed reports an emission attempted after teardown.
	ErrClosed = errors.New("channel: closed")
)

// State describes the channel lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "disconnected"
	}
}

// Callbacks receive decoded channel events. Any nil callback is skipped.
// OnReceive fires only for messages involving the active peer; OnSent only
// for echoes of the local user's own sends to that peer. OnMessageRead is
// unfiltered: the caller decides whether the reader is the active peer.
type Callbacks struct {
	OnConnect      func()
	OnDisconnect   func()
	OnConnectError func(err error)
	OnReceive      func(msg message.Message)
	OnSent         func(msg message.Message)
	OnMessageRead  func(rr message.ReadReceipt)
}

// Options configures Open.
type Options struct {
	URL       string
	LocalID   int64
	PeerID    int64
	Jar       http.CookieJar // credentialed transport (session cookie)
	Header    http.Header
	Callbacks Callbacks
}

// Channel is a live handle to the event channel. Close is idempotent and
// unregisters every callback.
type Channel struct {
	localID int64
	peerID  int64
	conn    *websocket.Conn

	mu     sync.Mutex
	cb     Callbacks
	state  State
	closed bool

	out  chan Frame
	quit chan struct{}

	ackSeq  int64
	pending map[int64]func(error)

	closeOnce sync.Once
}

const (
	handshakeTimeout = 10 * time.Second
	writeWait        = 10 * time.Second
	pingPeriod       = 50 * time.Second
)

// Open dials the channel URL and starts the read/write pumps. A failed
// dial is surfaced both through OnConnectError and the returned error; no
// automatic retry is attempted.
func Open(opts Options) (*Channel, error) {
	if opts.LocalID == 0 || opts.PeerID == 0 {
		return nil, ErrMissingIdentity
	}

	dialer := websocket.Dialer{
		Jar:              opts.Jar,
		HandshakeTimeout: handshakeTimeout,
	}
	conn, resp, err := dialer.Dial(opts.URL, opts.Header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			err = fmt.Errorf("channel: credential rejected: %w", err)
		}
		if opts.Callbacks.OnConnectError != nil {
			opts.Callbacks.OnConnectError(err)
		}
		return nil, err
	}

	c := &Channel{
		localID: opts.LocalID,
		peerID:  opts.PeerID,
		conn:    conn,
		cb:      opts.Callbacks,
		state:   StateConnecting,
		out:     make(chan Frame, 16),
		quit:    make(chan struct{}),
		pending: make(map[int64]func(error)),
	}
	go c.readLoop()
	go c.writeLoop()
	return c, nil
}

// State reports the current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Peer returns the peer id this channel instance is scoped to.
func (c *Channel) Peer() int64 { return c.peerID }

// SendMessage emits send_message and registers ack for the per-call
// acknowledgement. ack may be nil for fire-and-forget.
func (c *Channel) SendMessage(receiverID int64, content string, ack func(error)) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateConnected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.ackSeq++
	id := c.ackSeq
	if ack != nil {
		c.pending[id] = ack
	}
	c.mu.Unlock()

	frame, err := NewFrame(EventSend, SendPayload{AckID: id, ReceiverID: receiverID, Content: content})
	if err != nil {
		c.resolveAck(id, err)
		return err
	}
	return c.enqueue(frame, id)
}

// MarkRead emits mark_as_read for a message the local user has just seen.
// Emission requires a connected channel; there is no queueing here. The
// read-receipt layer owns retry-on-reconnect.
func (c *Channel) MarkRead(messageID, senderID int64) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateConnected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.mu.Unlock()

	frame, err := NewFrame(EventMarkRead, message.ReadReceipt{MessageID: messageID, SenderID: senderID})
	if err != nil {
		return err
	}
	return c.enqueue(frame, 0)
}

func (c *Channel) enqueue(f Frame, ackID int64) error {
	select {
	case c.out <- f:
		return nil
	case <-c.quit:
		if ackID != 0 {
			c.resolveAck(ackID, ErrClosed)
		}
		return ErrClosed
	}
}

// Close tears the channel down: callbacks are unregistered, pending send
// acks fail with ErrClosed, and the socket is closed. Safe to call twice.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.state = StateDisconnected
		c.cb = Callbacks{}
		pending := c.pending
		c.pending = make(map[int64]func(error))
		c.mu.Unlock()

		close(c.quit)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = c.conn.Close()

		for _, ack := range pending {
			ack(ErrClosed)
		}
	})
}

func (c *Channel) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.quit:
				return
			default:
			}
			c.dispatch(Disconnected{Err: err})
			return
		}
		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Printf("channel: bad frame: %v", err)
			continue
		}
		ev, err := DecodeEvent(frame)
		if err != nil {
			log.Printf("channel: %v", err)
			continue
		}
		c.dispatch(ev)
	}
}

func (c *Channel) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case frame := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(frame); err != nil {
				log.Printf("channel: write %s: %v", frame.Event, err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.quit:
			return
		}
	}
}

// dispatch applies state transitions and forwards the event to the
// registered callback. Events arriving after Close are dropped.
func (c *Channel) dispatch(ev Event) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	cb := c.cb
	switch ev.(type) {
	case Connected:
		c.state = StateConnected
	case Disconnected:
		c.state = StateDisconnected
	case ConnectError:
		c.state = StateError
	}
	c.mu.Unlock()

	switch e := ev.(type) {
	case Connected:
		if cb.OnConnect != nil {
			cb.OnConnect()
		}
	case Disconnected:
		if cb.OnDisconnect != nil {
			cb.OnDisconnect()
		}
	case ConnectError:
		if cb.OnConnectError != nil {
			cb.OnConnectError(errors.New(e.Reason))
		}
	case MessageReceived:
		// One channel instance exists per active peer; traffic for any
		// other conversation is ignored here.
		if e.Msg.SenderID != c.peerID && e.Msg.ReceiverID != c.peerID {
			return
		}
		if cb.OnReceive != nil {
			cb.OnReceive(e.Msg)
		}
	case MessageEchoed:
		if e.Msg.SenderID != c.localID || e.Msg.ReceiverID != c.peerID {
			return
		}
		if cb.OnSent != nil {
			cb.OnSent(e.Msg)
		}
	case ReadAcked:
		if cb.OnMessageRead != nil {
			cb.OnMessageRead(message.ReadReceipt{MessageID: e.MessageID, ReaderID: e.ReaderID})
		}
	case SendAcked:
		c.resolveAck(e.AckID, e.Err)
	}
}

func (c *Channel) resolveAck(id int64, err error) {
	c.mu.Lock()
	ack, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if ok && ack != nil {
		ack(err)
	}
}
