package store

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/programmedstyle/livechat/internal/domain"
)

// Pagination defaults for ListAll, matching the admin dashboard's bulk fetch.
const (
	DefaultPage  = 1
	DefaultLimit = 1000
)

// ListFilter narrows and paginates a ListAll query.
type ListFilter struct {
	UnreadOnly bool
	Page       int
	Limit      int
}

// ListPage is one page of a descending-by-time message listing.
type ListPage struct {
	Messages   []domain.ChatMessage
	Total      int
	Page       int
	TotalPages int
}

// MessageStore is the persistence contract for chat messages. Fan-out is the
// relay's job; implementations only touch storage.
type MessageStore interface {
	// Append validates and persists a message, assigning its id and a
	// server-side timestamp that never decreases within the session.
	Append(msg domain.ChatMessage) (domain.ChatMessage, error)
	// ListBySession returns a session's messages ascending by timestamp.
	// An unknown session yields an empty slice, not an error.
	ListBySession(sessionID string) ([]domain.ChatMessage, error)
	// ListAll returns messages across all sessions, newest first.
	ListAll(f ListFilter) (ListPage, error)
	// MarkRead flags one message as read. Idempotent; unknown ids return
	// a NotFoundError.
	MarkRead(id string) (domain.ChatMessage, error)
	// DeleteBySession removes every record for a session and reports how
	// many were deleted.
	DeleteBySession(sessionID string) (int, error)
	// Stats returns the aggregate counters for the admin dashboard.
	Stats() (domain.Stats, error)
}

// validate applies the append-time invariants shared by both backends.
// It returns the message with a trimmed body.
func validate(msg domain.ChatMessage) (domain.ChatMessage, error) {
	msg.Body = strings.TrimSpace(msg.Body)
	switch {
	case msg.SessionID == "":
		return msg, &domain.ValidationError{Field: "sessionId", Reason: "required"}
	case msg.Name == "":
		return msg, &domain.ValidationError{Field: "name", Reason: "required"}
	case msg.Email == "":
		return msg, &domain.ValidationError{Field: "email", Reason: "required"}
	case msg.Body == "":
		return msg, &domain.ValidationError{Field: "message", Reason: "empty"}
	}
	return msg, nil
}

// normalizeFilter fills filter defaults.
func normalizeFilter(f ListFilter) ListFilter {
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}
	return f
}

// SQLiteMessageStore implements MessageStore backed by SQLite.
type SQLiteMessageStore struct {
	db *DB
}

// NewSQLiteMessageStore creates a message store using the given database.
func NewSQLiteMessageStore(db *DB) *SQLiteMessageStore {
	return &SQLiteMessageStore{db: db}
}

func (s *SQLiteMessageStore) Append(msg domain.ChatMessage) (domain.ChatMessage, error) {
	msg, err := validate(msg)
	if err != nil {
		return domain.ChatMessage{}, err
	}

	msg.ID = uuid.New().String()
	ts := time.Now().UTC().UnixNano()

	// Clamp to the session's current maximum so concurrent sends from two
	// tabs of the same session keep per-session ordering non-decreasing.
	var maxTS sql.NullInt64
	if err := s.db.sql.QueryRow(
		`SELECT MAX(timestamp) FROM chat_messages WHERE session_id = ?`, msg.SessionID,
	).Scan(&maxTS); err != nil {
		return domain.ChatMessage{}, &domain.StoreError{Op: "append", Err: err}
	}
	if maxTS.Valid && ts < maxTS.Int64 {
		ts = maxTS.Int64
	}
	msg.Timestamp = time.Unix(0, ts).UTC()

	if _, err := s.db.sql.Exec(
		`INSERT INTO chat_messages (id, session_id, name, email, body, timestamp, is_read, is_admin)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, msg.Name, msg.Email, msg.Body, ts,
		boolToInt(msg.Read), boolToInt(msg.IsAdmin),
	); err != nil {
		return domain.ChatMessage{}, &domain.StoreError{Op: "append", Err: err}
	}

	return msg, nil
}

func (s *SQLiteMessageStore) ListBySession(sessionID string) ([]domain.ChatMessage, error) {
	rows, err := s.db.sql.Query(
		`SELECT id, session_id, name, email, body, timestamp, is_read, is_admin
		 FROM chat_messages WHERE session_id = ?
		 ORDER BY timestamp ASC, id ASC`, sessionID,
	)
	if err != nil {
		return nil, &domain.StoreError{Op: "listBySession", Err: err}
	}
	defer rows.Close()

	msgs := []domain.ChatMessage{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, &domain.StoreError{Op: "listBySession", Err: err}
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func (s *SQLiteMessageStore) ListAll(f ListFilter) (ListPage, error) {
	f = normalizeFilter(f)

	where := ""
	if f.UnreadOnly {
		where = "WHERE is_read = 0"
	}

	var total int
	if err := s.db.sql.QueryRow("SELECT COUNT(*) FROM chat_messages " + where).Scan(&total); err != nil {
		return ListPage{}, &domain.StoreError{Op: "listAll", Err: err}
	}

	rows, err := s.db.sql.Query(
		`SELECT id, session_id, name, email, body, timestamp, is_read, is_admin
		 FROM chat_messages `+where+`
		 ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?`,
		f.Limit, (f.Page-1)*f.Limit,
	)
	if err != nil {
		return ListPage{}, &domain.StoreError{Op: "listAll", Err: err}
	}
	defer rows.Close()

	page := ListPage{
		Messages:   []domain.ChatMessage{},
		Total:      total,
		Page:       f.Page,
		TotalPages: (total + f.Limit - 1) / f.Limit,
	}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return ListPage{}, &domain.StoreError{Op: "listAll", Err: err}
		}
		page.Messages = append(page.Messages, msg)
	}
	return page, rows.Err()
}

func (s *SQLiteMessageStore) MarkRead(id string) (domain.ChatMessage, error) {
	if _, err := s.db.sql.Exec(`UPDATE chat_messages SET is_read = 1 WHERE id = ?`, id); err != nil {
		return domain.ChatMessage{}, &domain.StoreError{Op: "markRead", Err: err}
	}

	row := s.db.sql.QueryRow(
		`SELECT id, session_id, name, email, body, timestamp, is_read, is_admin
		 FROM chat_messages WHERE id = ?`, id,
	)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ChatMessage{}, &domain.NotFoundError{Resource: "message", ID: id}
	}
	if err != nil {
		return domain.ChatMessage{}, &domain.StoreError{Op: "markRead", Err: err}
	}
	return msg, nil
}

func (s *SQLiteMessageStore) DeleteBySession(sessionID string) (int, error) {
	res, err := s.db.sql.Exec(`DELETE FROM chat_messages WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, &domain.StoreError{Op: "deleteBySession", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &domain.StoreError{Op: "deleteBySession", Err: err}
	}
	return int(n), nil
}

func (s *SQLiteMessageStore) Stats() (domain.Stats, error) {
	var st domain.Stats
	var visitorTotal int

	err := s.db.sql.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN is_admin = 0 AND is_read = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_admin = 0 THEN 1 ELSE 0 END), 0)
		FROM chat_messages
	`).Scan(&st.Total, &st.Unread, &visitorTotal)
	if err != nil {
		return domain.Stats{}, &domain.StoreError{Op: "stats", Err: err}
	}

	// A visitor message counts as replied once a later admin message exists
	// in its session.
	err = s.db.sql.QueryRow(`
		SELECT COUNT(*) FROM chat_messages m
		WHERE m.is_admin = 0 AND EXISTS (
			SELECT 1 FROM chat_messages a
			WHERE a.session_id = m.session_id
			  AND a.is_admin = 1
			  AND a.timestamp >= m.timestamp
		)
	`).Scan(&st.Replied)
	if err != nil {
		return domain.Stats{}, &domain.StoreError{Op: "stats", Err: err}
	}

	st.Pending = visitorTotal - st.Replied
	return st, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (domain.ChatMessage, error) {
	var msg domain.ChatMessage
	var ts int64
	var read, admin int
	if err := row.Scan(&msg.ID, &msg.SessionID, &msg.Name, &msg.Email, &msg.Body, &ts, &read, &admin); err != nil {
		return domain.ChatMessage{}, err
	}
	msg.Timestamp = time.Unix(0, ts).UTC()
	msg.Read = read != 0
	msg.IsAdmin = admin != 0
	return msg, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
