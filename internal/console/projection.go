// Package console maintains the admin-side view of the chat system: flat
// message records grouped into per-session conversations, kept in sync with
// the server over HTTP and the relay's admin room.
package console

import (
	"sort"
	"sync"
	"time"

	"github.com/programmedstyle/livechat/internal/domain"
)

// Conversation is one session's thread as the console shows it. Identity
// comes from the session's visitor messages; admin records carry the
// operator sentinel name and never define the conversation's identity.
type Conversation struct {
	SessionID    string
	Name         string
	Email        string
	Messages     []domain.ChatMessage
	UnreadCount  int
	LastActivity time.Time
}

// Projection groups flat message records into conversations. Safe for
// concurrent use; relay events and HTTP refreshes race in practice.
type Projection struct {
	mu       sync.RWMutex
	sessions map[string][]domain.ChatMessage
}

// NewProjection creates an empty projection.
func NewProjection() *Projection {
	return &Projection{sessions: make(map[string][]domain.ChatMessage)}
}

// Reset replaces the entire projection with a fresh flat listing.
func (p *Projection) Reset(msgs []domain.ChatMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions = make(map[string][]domain.ChatMessage)
	for _, m := range msgs {
		p.upsertLocked(m)
	}
}

// Upsert inserts a record or replaces the one with the same id. A replay of
// an already-known record therefore cannot duplicate a conversation entry.
func (p *Projection) Upsert(msg domain.ChatMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.upsertLocked(msg)
}

func (p *Projection) upsertLocked(msg domain.ChatMessage) {
	thread := p.sessions[msg.SessionID]
	for i, m := range thread {
		if m.ID == msg.ID {
			thread[i] = msg
			return
		}
	}
	thread = append(thread, msg)
	sort.SliceStable(thread, func(i, j int) bool {
		if thread[i].Timestamp.Equal(thread[j].Timestamp) {
			return thread[i].ID < thread[j].ID
		}
		return thread[i].Timestamp.Before(thread[j].Timestamp)
	})
	p.sessions[msg.SessionID] = thread
}

// Remove drops a session's conversation entirely.
func (p *Projection) Remove(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sessions, sessionID)
}

// Conversations returns every conversation, most recently active first.
func (p *Projection) Conversations() []Conversation {
	p.mu.RLock()
	defer p.mu.RUnlock()

	convs := make([]Conversation, 0, len(p.sessions))
	for sessionID, thread := range p.sessions {
		convs = append(convs, buildConversation(sessionID, thread))
	}
	sort.Slice(convs, func(i, j int) bool {
		if convs[i].LastActivity.Equal(convs[j].LastActivity) {
			return convs[i].SessionID < convs[j].SessionID
		}
		return convs[i].LastActivity.After(convs[j].LastActivity)
	})
	return convs
}

// Conversation returns one session's thread; ok is false if unknown.
func (p *Projection) Conversation(sessionID string) (Conversation, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	thread, ok := p.sessions[sessionID]
	if !ok {
		return Conversation{}, false
	}
	return buildConversation(sessionID, thread), true
}

// UnreadIDs returns the ids of a session's unread visitor messages, oldest
// first. Admin records are never counted as unread.
func (p *Projection) UnreadIDs(sessionID string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var ids []string
	for _, m := range p.sessions[sessionID] {
		if !m.IsAdmin && !m.Read {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// TotalUnread sums unread visitor messages across all conversations.
func (p *Projection) TotalUnread() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	total := 0
	for _, thread := range p.sessions {
		for _, m := range thread {
			if !m.IsAdmin && !m.Read {
				total++
			}
		}
	}
	return total
}

func buildConversation(sessionID string, thread []domain.ChatMessage) Conversation {
	c := Conversation{
		SessionID: sessionID,
		Messages:  append([]domain.ChatMessage(nil), thread...),
	}
	for _, m := range thread {
		if !m.IsAdmin && !m.Read {
			c.UnreadCount++
		}
		if m.Timestamp.After(c.LastActivity) {
			c.LastActivity = m.Timestamp
		}
		if c.Name == "" && !m.IsAdmin {
			c.Name = m.Name
			c.Email = m.Email
		}
	}
	// An all-admin thread still needs some identity to render.
	if c.Name == "" && len(thread) > 0 {
		c.Name = thread[0].Name
		c.Email = thread[0].Email
	}
	return c
}
