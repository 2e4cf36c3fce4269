package channel

import "encoding/json"

// Event names carried on the wire. Both the client and the messaging
// server speak this framing: one JSON object per websocket text message.
const (
	EventConnected    = "connected"
	EventConnectError = "connect_error"
	EventReceive      = "receive_message"
	EventSent         = "message_sent"
	EventMessageRead  = "message_read"
	EventAck          = "ack"
	EventSend         = "send_message"
	EventMarkRead     = "mark_as_read"
)

// Frame is the envelope for every channel event.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame marshals payload into a Frame. Marshal errors are programmer
// errors on our own payload types, so they surface as an error return only.
func NewFrame(event string, payload interface{}) (Frame, error) {
	if payload == nil {
		return Frame{Event: event}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: event, Data: data}, nil
}

// SendPayload is the client half of send_message. AckID correlates the
// server's per-call ack with the originating send.
type SendPayload struct {
	AckID      int64  `json:"ack_id"`
	ReceiverID int64  `json:"receiver_id"`
	Content    string `json:"content"`
}

// AckPayload is the server's per-call acknowledgement for send_message.
// Error is empty on success.
type AckPayload struct {
	AckID int64  `json:"ack_id"`
	Error string `json:"error,omitempty"`
}

// ErrorPayload carries the reason for an in-band connect_error.
type ErrorPayload struct {
	Error string `json:"error"`
}
