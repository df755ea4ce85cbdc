package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
// Timestamps are stored as Unix nanoseconds so ordering and the per-session
// monotonicity clamp are plain integer comparisons.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create chat messages",
		SQL: `
			CREATE TABLE chat_messages (
				id          TEXT PRIMARY KEY,
				session_id  TEXT NOT NULL,
				name        TEXT NOT NULL,
				email       TEXT NOT NULL,
				body        TEXT NOT NULL,
				timestamp   INTEGER NOT NULL,
				is_read     INTEGER NOT NULL DEFAULT 0,
				is_admin    INTEGER NOT NULL DEFAULT 0
			);

			CREATE INDEX idx_messages_session ON chat_messages (session_id, timestamp, id);
			CREATE INDEX idx_messages_unread ON chat_messages (is_read) WHERE is_admin = 0;
			CREATE INDEX idx_messages_time ON chat_messages (timestamp DESC);
		`,
	},
}
