package chatserver

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"art-chat/internal/authutil"
	"art-chat/internal/channel"
	"art-chat/internal/message"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 70 * time.Second
	pingPeriod = 50 * time.Second
)

// channelHandler upgrades an authenticated request into a live event
// channel session. An invalid credential is rejected before the upgrade,
// which the client surfaces as connect_error.
func (s *Server) channelHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := authutil.SessionFromRequest(r)
		if err != nil {
			s.metrics.ChannelRejects.Add(1)
			http.Error(w, "invalid session", http.StatusUnauthorized)
			return
		}
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("channel upgrade for user %d: %v", sess.UserID, err)
			return
		}
		s.metrics.ChannelSessions.Add(1)

		c := &client{userID: sess.UserID, send: make(chan channel.Frame, 32)}
		s.hub.register(c)
		go s.writePump(conn, c)
		s.hub.Deliver(c.userID, channel.Frame{Event: channel.EventConnected})

		s.readPump(r.Context(), conn, c)
		s.hub.unregister(c)
		_ = conn.Close()
	}
}

func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, c *client) {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var frame channel.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("channel read for user %d: %v", c.userID, err)
			}
			return
		}
		switch frame.Event {
		case channel.EventSend:
			s.handleSend(ctx, c, frame.Data)
		case channel.EventMarkRead:
			s.handleMarkRead(ctx, c, frame.Data)
		default:
			log.Printf("channel: unexpected client event %q from user %d", frame.Event, c.userID)
		}
	}
}

func (s *Server) writePump(conn *websocket.Conn, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case frame, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				_ = conn.Close()
				return
			}
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) ackTo(c *client, ackID int64, reason string) {
	frame, err := channel.NewFrame(channel.EventAck, channel.AckPayload{AckID: ackID, Error: reason})
	if err != nil {
		log.Printf("encode ack: %v", err)
		return
	}
	s.hub.Deliver(c.userID, frame)
}

func (s *Server) handleSend(ctx context.Context, c *client, data json.RawMessage) {
	var payload channel.SendPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Printf("bad send_message from user %d: %v", c.userID, err)
		return
	}
	content := strings.TrimSpace(payload.Content)
	if content == "" {
		s.ackTo(c, payload.AckID, "content required")
		return
	}
	if payload.ReceiverID == 0 || payload.ReceiverID == c.userID {
		s.ackTo(c, payload.AckID, "invalid receiver")
		return
	}
	if _, err := s.store.UserByID(ctx, payload.ReceiverID); err != nil {
		s.ackTo(c, payload.AckID, "unknown receiver")
		return
	}

	msg, err := s.store.SaveMessage(ctx, c.userID, payload.ReceiverID, content)
	if err != nil {
		log.Printf("save message from %d to %d: %v", c.userID, payload.ReceiverID, err)
		s.ackTo(c, payload.AckID, "store failed")
		return
	}
	s.metrics.MessagesRouted.Add(1)
	s.ackTo(c, payload.AckID, "")

	if echo, err := channel.NewFrame(channel.EventSent, msg); err == nil {
		s.hub.Deliver(msg.SenderID, echo)
	}
	if delivery, err := channel.NewFrame(channel.EventReceive, msg); err == nil {
		s.hub.Deliver(msg.ReceiverID, delivery)
	}
}

// handleMarkRead persists a read receipt. The session identity is the
// only trusted input: the store marks the message read only when this
// user is its receiver, and the receipt is forwarded to the stored
// sender, never to a client-supplied id.
func (s *Server) handleMarkRead(ctx context.Context, c *client, data json.RawMessage) {
	var payload message.ReadReceipt
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Printf("bad mark_as_read from user %d: %v", c.userID, err)
		return
	}
	msg, err := s.store.MarkRead(ctx, payload.MessageID, c.userID)
	if err != nil {
		log.Printf("mark read %d by user %d: %v", payload.MessageID, c.userID, err)
		return
	}
	s.metrics.ReadReceipts.Add(1)

	forward := message.ReadReceipt{MessageID: msg.ID, ReaderID: c.userID}
	if frame, err := channel.NewFrame(channel.EventMessageRead, forward); err == nil {
		s.hub.Deliver(msg.SenderID, frame)
	}
}
