package channel

import (
	"encoding/json"
	"errors"
	"fmt"

	"art-chat/internal/message"
)

// Event is the closed set of inbound channel events. Frames are decoded
// exactly once at the channel boundary; everything downstream switches on
// these variants instead of string event names.
type Event interface {
	isEvent()
}

// Connected fires once the server has accepted the session.
type Connected struct{}

// Disconnected fires when the underlying socket drops.
type Disconnected struct {
	Err error
}

// ConnectError fires when the connection attempt is rejected, for example
// on an invalid or expired credential.
type ConnectError struct {
	Reason string
}

// MessageReceived carries a peer message delivered live.
type MessageReceived struct {
	Msg message.Message
}

// MessageEchoed carries the server echo of a message this user sent.
type MessageEchoed struct {
	Msg message.Message
}

// ReadAcked reports that ReaderID has read message MessageID.
type ReadAcked struct {
	MessageID int64
	ReaderID  int64
}

// SendAcked is the per-call acknowledgement of an outbound send_message.
type SendAcked struct {
	AckID int64
	Err   error
}

func (Connected) isEvent()       {}
func (Disconnected) isEvent()    {}
func (ConnectError) isEvent()    {}
func (MessageReceived) isEvent() {}
func (MessageEchoed) isEvent()   {}
func (ReadAcked) isEvent()       {}
func (SendAcked) isEvent()       {}

// ErrUnknownEvent reports a frame whose event name is not part of the
// protocol. Unknown frames are logged and skipped, never fatal.
var ErrUnknownEvent = errors.New("channel: unknown event")

// DecodeEvent translates a wire frame into its Event variant.
func DecodeEvent(f Frame) (Event, error) {
	switch f.Event {
	case EventConnected:
		return Connected{}, nil
	case EventConnectError:
		var p ErrorPayload
		if err := json.Unmarshal(f.Data, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Event, err)
		}
		return ConnectError{Reason: p.Error}, nil
	case EventReceive, EventSent:
		var msg message.Message
		if err := json.Unmarshal(f.Data, &msg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Event, err)
		}
		if f.Event == EventReceive {
			return MessageReceived{Msg: msg}, nil
		}
		return MessageEchoed{Msg: msg}, nil
	case EventMessageRead:
		var p message.ReadReceipt
		if err := json.Unmarshal(f.Data, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Event, err)
		}
		return ReadAcked{MessageID: p.MessageID, ReaderID: p.ReaderID}, nil
	case EventAck:
		var p AckPayload
		if err := json.Unmarshal(f.Data, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.Event, err)
		}
		var ackErr error
		if p.Error != "" {
			ackErr = errors.New(p.Error)
		}
		return SendAcked{AckID: p.AckID, Err: ackErr}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, f.Event)
}
