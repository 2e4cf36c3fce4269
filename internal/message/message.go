package message

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Zone is the server-local calendar zone. Every created_at timestamp on the
// wire is expressed in this zone without an explicit offset.
var Zone = time.FixedZone("UTC+7", 7*3600)

const wireTimeLayout = "2006-01-02 15:04:05"

// Message is a single direct message between two users.
type Message struct {
	ID         int64    `json:"id"`
	SenderID   int64    `json:"sender_id"`
	ReceiverID int64    `json:"receiver_id"`
	Content    string   `json:"content"`
	IsRead     WireBool `json:"is_read"`
	CreatedAt  WireTime `json:"created_at"`
}

// ReadReceipt acknowledges that a message was viewed by its recipient.
// Emitted by the reader as mark_as_read, delivered to the sender as
// message_read. It is applied to a stored message and discarded.
type ReadReceipt struct {
	MessageID int64 `json:"message_id"`
	ReaderID  int64 `json:"reader_id,omitempty"`
	SenderID  int64 `json:"sender_id,omitempty"`
}

// WireBool accepts the truthy wire forms the history endpoint produces
// (0/1, booleans, numeric strings) and collapses them to a strict bool.
type WireBool bool

func (b *WireBool) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	switch s {
	case "true":
		*b = true
		return nil
	case "false", "null", `""`:
		*b = false
		return nil
	}
	s = strings.Trim(s, `"`)
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*b = false
		return nil
	}
	*b = n != 0
	return nil
}

func (b WireBool) MarshalJSON() ([]byte, error) {
	if b {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}

// WireTime carries a created_at timestamp. The server emits
// "YYYY-MM-DD HH:mm:ss" local to Zone; RFC3339 and the "T"-separated
// variant are accepted for tolerance. An unparseable value falls back to
// the current instant rather than failing the whole payload.
type WireTime struct {
	time.Time
}

// ParseWire normalizes a raw timestamp string into Zone.
func ParseWire(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Now().In(Zone)
	}
	candidate := strings.Replace(raw, "T", " ", 1)
	if idx := strings.IndexAny(candidate, "Z+"); idx > 10 {
		candidate = candidate[:idx]
	}
	candidate = strings.TrimSuffix(candidate, ".000")
	if ts, err := time.ParseInLocation(wireTimeLayout, candidate, Zone); err == nil {
		return ts
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.In(Zone)
	}
	return time.Now().In(Zone)
}

func (t *WireTime) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		var unix int64
		if err := json.Unmarshal(data, &unix); err == nil {
			t.Time = time.Unix(unix, 0).In(Zone)
			return nil
		}
		t.Time = time.Now().In(Zone)
		return nil
	}
	t.Time = ParseWire(raw)
	return nil
}

func (t WireTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.In(Zone).Format(wireTimeLayout))
}

// Between reports whether the message belongs to the conversation formed
// by the two user ids, in either direction.
func (m Message) Between(a, b int64) bool {
	return (m.SenderID == a && m.ReceiverID == b) ||
		(m.SenderID == b && m.ReceiverID == a)
}
