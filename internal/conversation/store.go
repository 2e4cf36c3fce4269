// Package conversation keeps one direct-message conversation consistent
// across the paginated history fetch, live channel events, and read-receipt
// acknowledgements.
package conversation

import (
	"sort"

	"art-chat/internal/message"
)

// Store is the single source of truth for the active conversation's
// messages: ordered ascending by created_at and de-duplicated by id.
// It is not goroutine-safe; the Controller serializes every mutation.
type Store struct {
	msgs []message.Message
}

func NewStore() *Store {
	return &Store{}
}

// LoadHistory replaces the store's contents with a fresh backlog. The
// input may arrive in any order; it is stable-sorted ascending by
// created_at before storing. Duplicate ids keep the last occurrence.
func (s *Store) LoadHistory(history []message.Message) {
	msgs := make([]message.Message, 0, len(history))
	seen := make(map[int64]int, len(history))
	for _, m := range history {
		if at, dup := seen[m.ID]; dup {
			msgs[at] = m
			continue
		}
		seen[m.ID] = len(msgs)
		msgs = append(msgs, m)
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt.Time)
	})
	s.msgs = msgs
}

// IngestLive upserts a live message by id. A known id replaces the
// existing entry in place and reports added=false; a new id is inserted at
// its chronological position so an out-of-order event cannot regress the
// displayed order.
func (s *Store) IngestLive(msg message.Message) (added bool) {
	for i := range s.msgs {
		if s.msgs[i].ID == msg.ID {
			s.msgs[i] = msg
			return false
		}
	}
	at := sort.Search(len(s.msgs), func(i int) bool {
		return s.msgs[i].CreatedAt.After(msg.CreatedAt.Time)
	})
	s.msgs = append(s.msgs, message.Message{})
	copy(s.msgs[at+1:], s.msgs[at:])
	s.msgs[at] = msg
	return true
}

// ApplyReadAck marks the message read. Unknown ids are a no-op: the
// message may have scrolled out of the loaded window or belong to another
// conversation.
func (s *Store) ApplyReadAck(messageID int64) bool {
	for i := range s.msgs {
		if s.msgs[i].ID == messageID {
			s.msgs[i].IsRead = true
			return true
		}
	}
	return false
}

// Messages returns a copy of the ordered list.
func (s *Store) Messages() []message.Message {
	out := make([]message.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

func (s *Store) Len() int {
	return len(s.msgs)
}

// Clear drops the conversation's backlog, used on peer switches.
func (s *Store) Clear() {
	s.msgs = nil
}
