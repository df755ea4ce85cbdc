package relay

import (
	"sync"

	"github.com/programmedstyle/livechat/internal/logging"
)

// Hub tracks which connections belong to which room and fans events out to
// them. A connection is in at most one room at a time: visitors join their
// session id, admin consoles join the shared admin room.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Conn]struct{}
	byConn map[*Conn]string
	log    *logging.Logger
}

// NewHub creates an empty hub.
func NewHub(log *logging.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Conn]struct{}),
		byConn: make(map[*Conn]string),
		log:    log,
	}
}

// Join subscribes a connection to a room, leaving its previous room if any.
func (h *Hub) Join(c *Conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.leaveLocked(c)
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Conn]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	h.byConn[c] = room
	h.log.Debug().Str("connId", c.ID).Str("room", room).Msg("joined room")
}

// Leave removes a connection from whatever room it is in.
func (h *Hub) Leave(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c)
}

func (h *Hub) leaveLocked(c *Conn) {
	room, ok := h.byConn[c]
	if !ok {
		return
	}
	delete(h.byConn, c)
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Broadcast sends an event to every current member of a room. A room with no
// members is not an error; offline recipients catch up from the store.
func (h *Hub) Broadcast(room, event string, data any) {
	env, err := NewEnvelope(event, data)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("encoding broadcast")
		return
	}

	h.mu.RLock()
	members := make([]*Conn, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		if err := c.Send(env); err != nil {
			h.log.Warn().Err(err).Str("connId", c.ID).Str("room", room).Msg("broadcast send failed")
		}
	}
}

// RoomSize returns the number of connections currently in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Count returns the number of connections in any room.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byConn)
}

// CloseAll disconnects everything; used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.byConn {
		c.Close()
	}
	h.rooms = make(map[string]map[*Conn]struct{})
	h.byConn = make(map[*Conn]string)
}
