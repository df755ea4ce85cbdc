// Package relay implements the real-time message channel: a WebSocket
// endpoint with room-addressed fan-out between visitor widgets and admin
// consoles. Messages are persisted before they are fanned out; the channel
// itself never queues for offline recipients.
package relay

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/programmedstyle/livechat/internal/domain"
	"github.com/programmedstyle/livechat/internal/logging"
	"github.com/programmedstyle/livechat/internal/store"
)

// Relay accepts WebSocket connections, routes join/sendMessage events and
// pushes fan-out events into rooms. The HTTP reply endpoint calls back into
// it, so the gateway receives the Relay as an explicit dependency.
type Relay struct {
	store    store.MessageStore
	hub      *Hub
	log      *logging.Logger
	upgrader websocket.Upgrader
}

// New creates a relay over the given message store. allowedOrigins controls
// the WebSocket origin check; an empty list admits only same-origin or
// non-browser clients.
func New(ms store.MessageStore, log *logging.Logger, allowedOrigins []string) *Relay {
	l := log.Component("relay")
	return &Relay{
		store: ms,
		hub:   NewHub(l),
		log:   l,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

// checkOrigin validates WebSocket Origin headers. No Origin header means a
// same-origin or non-browser client and is allowed.
func checkOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// Hub exposes room metrics for health reporting.
func (r *Relay) Hub() *Hub { return r.hub }

// Shutdown disconnects every client.
func (r *Relay) Shutdown() { r.hub.CloseAll() }

// ServeHTTP upgrades the request and runs the connection's event loop until
// the peer disconnects.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	sock, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	sock.SetReadLimit(1 << 20) // 1MB

	conn := newConn(sock)
	r.log.Debug().Str("connId", conn.ID).Str("remote", req.RemoteAddr).Msg("client connected")

	defer func() {
		r.hub.Leave(conn)
		conn.Close()
		r.log.Debug().Str("connId", conn.ID).Msg("client disconnected")
	}()

	r.readLoop(conn)
}

func (r *Relay) readLoop(conn *Conn) {
	for {
		env, err := conn.ReadEnvelope()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!errors.Is(err, net.ErrClosed) {
				r.log.Warn().Err(err).Str("connId", conn.ID).Msg("read error")
			}
			return
		}

		switch env.Event {
		case EventJoin:
			r.handleJoin(conn, env.Data)
		case EventSendMessage:
			r.handleSendMessage(conn, env.Data)
		default:
			r.log.Debug().Str("event", env.Event).Msg("ignoring unknown event")
		}
	}
}

func (r *Relay) handleJoin(conn *Conn, data json.RawMessage) {
	var p JoinParams
	if err := json.Unmarshal(data, &p); err != nil || strings.TrimSpace(p.Room) == "" {
		r.sendError(conn, "room is required")
		return
	}
	r.hub.Join(conn, p.Room)
}

// handleSendMessage persists a visitor message and fans it out: an ack to
// the sender, a newMessage event to the admin room. Rejections go to the
// sender only and leave the connection open.
func (r *Relay) handleSendMessage(conn *Conn, data json.RawMessage) {
	var p SendMessageParams
	if err := json.Unmarshal(data, &p); err != nil {
		r.sendError(conn, "malformed sendMessage payload")
		return
	}

	msg, err := r.store.Append(domain.ChatMessage{
		SessionID: p.SessionID,
		Name:      p.Name,
		Email:     p.Email,
		Body:      p.Message,
	})
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			r.sendError(conn, verr.Error())
			return
		}
		r.log.Error().Err(err).Str("sessionId", p.SessionID).Msg("saving message")
		r.sendError(conn, "failed to save message")
		return
	}

	if err := conn.SendEvent(EventMessageSent, MessageSent{Success: true, Message: msg}); err != nil {
		r.log.Warn().Err(err).Str("connId", conn.ID).Msg("sending ack")
	}
	r.hub.Broadcast(domain.AdminRoom, EventNewMessage, msg)
}

func (r *Relay) sendError(conn *Conn, reason string) {
	if err := conn.SendEvent(EventMessageError, MessageError{Success: false, Error: reason}); err != nil {
		r.log.Warn().Err(err).Str("connId", conn.ID).Msg("sending error event")
	}
}

// BroadcastNewMessage pushes a persisted record to the admin room, keeping
// every open console in sync.
func (r *Relay) BroadcastNewMessage(msg domain.ChatMessage) {
	r.hub.Broadcast(domain.AdminRoom, EventNewMessage, msg)
}

// BroadcastAdminReply notifies the visitor's session room of an operator
// reply and mirrors the record to the admin room for cross-tab sync.
func (r *Relay) BroadcastAdminReply(msg domain.ChatMessage) {
	r.hub.Broadcast(msg.SessionID, EventAdminReply, AdminReply{
		Reply:     msg.Body,
		RepliedAt: msg.Timestamp,
		MessageID: msg.ID,
	})
	r.hub.Broadcast(domain.AdminRoom, EventNewMessage, msg)
}
