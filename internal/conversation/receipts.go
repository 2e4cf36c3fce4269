package conversation

import (
	"log"

	"art-chat/internal/message"
)

// Emitter sends a mark_as_read event over the live channel.
type Emitter interface {
	MarkRead(messageID, senderID int64) error
}

// Receipts decides which messages owe the peer a read acknowledgement and
// emits each one exactly once per conversation. Receipts that cannot be
// emitted while the channel is down are queued and flushed on reconnect.
// One instance lives per active conversation; the Controller serializes
// all calls.
type Receipts struct {
	localID int64
	peerID  int64
	emitter Emitter

	acked map[int64]struct{}
	queue []message.ReadReceipt
}

func NewReceipts(localID, peerID int64) *Receipts {
	return &Receipts{
		localID: localID,
		peerID:  peerID,
		acked:   make(map[int64]struct{}),
	}
}

// Bind attaches the channel the receipts are emitted over. Queued receipts
// stay queued until Flush.
func (r *Receipts) Bind(e Emitter) {
	r.emitter = e
}

// Observe runs the acknowledgement rule over messages that just entered
// the store: every unread message the local user received from the active
// peer is acknowledged to its sender, once per message id.
func (r *Receipts) Observe(msgs ...message.Message) {
	for _, m := range msgs {
		if m.ReceiverID != r.localID || m.SenderID != r.peerID || bool(m.IsRead) {
			continue
		}
		if _, done := r.acked[m.ID]; done {
			continue
		}
		r.acked[m.ID] = struct{}{}
		r.emit(message.ReadReceipt{MessageID: m.ID, SenderID: m.SenderID})
	}
}

func (r *Receipts) emit(rr message.ReadReceipt) {
	if r.emitter == nil {
		r.queue = append(r.queue, rr)
		return
	}
	if err := r.emitter.MarkRead(rr.MessageID, rr.SenderID); err != nil {
		log.Printf("read receipt for %d deferred: %v", rr.MessageID, err)
		r.queue = append(r.queue, rr)
	}
}

// Flush retries queued receipts, typically right after the channel
// reconnects. Receipts that still cannot be sent remain queued.
func (r *Receipts) Flush() {
	pending := r.queue
	r.queue = nil
	for i, rr := range pending {
		if r.emitter == nil {
			r.queue = append(r.queue, pending[i:]...)
			return
		}
		if err := r.emitter.MarkRead(rr.MessageID, rr.SenderID); err != nil {
			log.Printf("read receipt for %d still deferred: %v", rr.MessageID, err)
			r.queue = append(r.queue, pending[i:]...)
			return
		}
	}
}

// Pending reports how many receipts are waiting for a live channel.
func (r *Receipts) Pending() int {
	return len(r.queue)
}

// HandleReadAck applies an inbound acknowledgement to the store, but only
// when the acknowledging party is the active peer.
func (r *Receipts) HandleReadAck(store *Store, rr message.ReadReceipt) bool {
	if rr.ReaderID != r.peerID {
		return false
	}
	return store.ApplyReadAck(rr.MessageID)
}
