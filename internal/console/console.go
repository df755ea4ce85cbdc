package console

import (
	"encoding/json"
	"sync"

	"github.com/programmedstyle/livechat/internal/domain"
	"github.com/programmedstyle/livechat/internal/logging"
	"github.com/programmedstyle/livechat/internal/relay"
	"github.com/programmedstyle/livechat/internal/store"
)

// Ops is the server surface the console drives. The HTTP client implements
// it against a running gateway; tests substitute a fake.
type Ops interface {
	ListMessages(f store.ListFilter) (store.ListPage, error)
	MarkRead(id string) (domain.ChatMessage, error)
	Reply(id, text string) (domain.ChatMessage, error)
	DeleteSession(sessionID string) (int, error)
	Stats() (domain.Stats, error)
}

// Console is the admin application state: a conversation projection plus
// the operations that mutate it through the server.
type Console struct {
	ops  Ops
	proj *Projection
	log  *logging.Logger

	mu       sync.Mutex
	selected string
}

// New creates a console over the given server operations.
func New(ops Ops, log *logging.Logger) *Console {
	return &Console{
		ops:  ops,
		proj: NewProjection(),
		log:  log.Component("console"),
	}
}

// Projection exposes the conversation view for rendering.
func (c *Console) Projection() *Projection { return c.proj }

// Select marks a conversation as the one currently open.
func (c *Console) Select(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = sessionID
}

// Selected returns the open conversation's session id, or empty.
func (c *Console) Selected() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// Refresh rebuilds the projection from a full server listing.
func (c *Console) Refresh() error {
	page, err := c.ops.ListMessages(store.ListFilter{})
	if err != nil {
		return err
	}
	c.proj.Reset(page.Messages)
	c.log.Debug().Int("messages", len(page.Messages)).Msg("refreshed")
	return nil
}

// MarkSessionRead marks every unread visitor message in a conversation read,
// one server call per message. Updated records land back in the projection
// as each call returns, so a partial failure leaves a consistent view.
func (c *Console) MarkSessionRead(sessionID string) error {
	for _, id := range c.proj.UnreadIDs(sessionID) {
		msg, err := c.ops.MarkRead(id)
		if err != nil {
			return err
		}
		c.proj.Upsert(msg)
	}
	return nil
}

// Reply sends an operator reply to a specific visitor message. The server
// marks the original read and returns the stored admin record; both updates
// land in the projection.
func (c *Console) Reply(messageID, text string) (domain.ChatMessage, error) {
	reply, err := c.ops.Reply(messageID, text)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	c.proj.Upsert(reply)

	// The original is read now; reflect that without waiting for a refresh.
	if conv, ok := c.proj.Conversation(reply.SessionID); ok {
		for _, m := range conv.Messages {
			if m.ID == messageID && !m.Read {
				m.Read = true
				c.proj.Upsert(m)
			}
		}
	}
	return reply, nil
}

// DeleteSession removes a conversation on the server and from the view,
// closing it first if it is the one currently open.
func (c *Console) DeleteSession(sessionID string) (int, error) {
	n, err := c.ops.DeleteSession(sessionID)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	if c.selected == sessionID {
		c.selected = ""
	}
	c.mu.Unlock()
	c.proj.Remove(sessionID)
	return n, nil
}

// Stats fetches the aggregate dashboard counters.
func (c *Console) Stats() (domain.Stats, error) {
	return c.ops.Stats()
}

// ApplyEvent folds a relay event into the projection. The console lives in
// the admin room, where both visitor messages and operator replies arrive
// as newMessage records; upsert-by-id makes replays harmless.
func (c *Console) ApplyEvent(env relay.Envelope) {
	switch env.Event {
	case relay.EventNewMessage:
		var msg domain.ChatMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			c.log.Warn().Err(err).Msg("malformed newMessage event")
			return
		}
		c.proj.Upsert(msg)
	default:
		c.log.Debug().Str("event", env.Event).Msg("ignoring event")
	}
}
