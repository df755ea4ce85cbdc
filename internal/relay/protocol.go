package relay

import (
	"encoding/json"
	"time"

	"github.com/programmedstyle/livechat/internal/domain"
)

// Event names spoken over the relay channel.
const (
	// Client → server
	EventJoin        = "join"
	EventSendMessage = "sendMessage"

	// Server → client
	EventMessageSent  = "messageSent"
	EventMessageError = "messageError"
	EventNewMessage   = "newMessage"
	EventAdminReply   = "adminReply"
)

// Envelope is the wire frame for every relay event in either direction.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope creates an envelope with a marshalled payload.
func NewEnvelope(event string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: raw}, nil
}

// JoinParams asks the server to subscribe this connection to a room:
// the visitor's session id, or "admin" for console instances.
type JoinParams struct {
	Room string `json:"room"`
}

// SendMessageParams carries a visitor message into the relay.
type SendMessageParams struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

// MessageSent acknowledges a persisted message to its sender.
type MessageSent struct {
	Success bool               `json:"success"`
	Message domain.ChatMessage `json:"message"`
}

// MessageError reports a rejected send to the originating connection only.
type MessageError struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// AdminReply notifies a visitor's session room of an operator reply.
// MessageID lets clients dedupe against the admin-room newMessage copy of
// the same record.
type AdminReply struct {
	Reply     string    `json:"reply"`
	RepliedAt time.Time `json:"repliedAt"`
	MessageID string    `json:"messageId,omitempty"`
}
