package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/programmedstyle/livechat/internal/domain"
)

// MemoryMessageStore is an in-memory MessageStore for tests and ephemeral
// deployments. Semantics match the SQLite implementation.
type MemoryMessageStore struct {
	mu   sync.RWMutex
	msgs []domain.ChatMessage
}

// NewMemoryMessageStore creates an empty in-memory message store.
func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{}
}

func (s *MemoryMessageStore) Append(msg domain.ChatMessage) (domain.ChatMessage, error) {
	msg, err := validate(msg)
	if err != nil {
		return domain.ChatMessage{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msg.ID = uuid.New().String()
	msg.Timestamp = time.Now().UTC()
	for _, m := range s.msgs {
		if m.SessionID == msg.SessionID && m.Timestamp.After(msg.Timestamp) {
			msg.Timestamp = m.Timestamp
		}
	}

	s.msgs = append(s.msgs, msg)
	return msg, nil
}

func (s *MemoryMessageStore) ListBySession(sessionID string) ([]domain.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.ChatMessage{}
	for _, m := range s.msgs {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	sortAscending(out)
	return out, nil
}

func (s *MemoryMessageStore) ListAll(f ListFilter) (ListPage, error) {
	f = normalizeFilter(f)

	s.mu.RLock()
	all := []domain.ChatMessage{}
	for _, m := range s.msgs {
		if f.UnreadOnly && m.Read {
			continue
		}
		all = append(all, m)
	}
	s.mu.RUnlock()

	// Newest first; ties break on id descending to mirror SQLite.
	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].Timestamp.Equal(all[j].Timestamp) {
			return all[i].Timestamp.After(all[j].Timestamp)
		}
		return all[i].ID > all[j].ID
	})

	total := len(all)
	page := ListPage{
		Messages:   []domain.ChatMessage{},
		Total:      total,
		Page:       f.Page,
		TotalPages: (total + f.Limit - 1) / f.Limit,
	}
	start := (f.Page - 1) * f.Limit
	if start < total {
		end := start + f.Limit
		if end > total {
			end = total
		}
		page.Messages = append(page.Messages, all[start:end]...)
	}
	return page, nil
}

func (s *MemoryMessageStore) MarkRead(id string) (domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.msgs {
		if s.msgs[i].ID == id {
			s.msgs[i].Read = true
			return s.msgs[i], nil
		}
	}
	return domain.ChatMessage{}, &domain.NotFoundError{Resource: "message", ID: id}
}

func (s *MemoryMessageStore) DeleteBySession(sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.msgs[:0]
	deleted := 0
	for _, m := range s.msgs {
		if m.SessionID == sessionID {
			deleted++
			continue
		}
		kept = append(kept, m)
	}
	s.msgs = kept
	return deleted, nil
}

func (s *MemoryMessageStore) Stats() (domain.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st domain.Stats
	visitorTotal := 0
	for _, m := range s.msgs {
		st.Total++
		if m.IsAdmin {
			continue
		}
		visitorTotal++
		if !m.Read {
			st.Unread++
		}
		if s.hasLaterAdminLocked(m) {
			st.Replied++
		}
	}
	st.Pending = visitorTotal - st.Replied
	return st, nil
}

func (s *MemoryMessageStore) hasLaterAdminLocked(m domain.ChatMessage) bool {
	for _, a := range s.msgs {
		if a.IsAdmin && a.SessionID == m.SessionID && !a.Timestamp.Before(m.Timestamp) {
			return true
		}
	}
	return false
}

func sortAscending(msgs []domain.ChatMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].Timestamp.Before(msgs[j].Timestamp)
		}
		return msgs[i].ID < msgs[j].ID
	})
}
