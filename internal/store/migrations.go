package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	uid        INTEGER NOT NULL CHECK(uid > 0),
	mailbox    TEXT NOT NULL,
	subject    TEXT NOT NULL DEFAULT '',
	sender     TEXT NOT NULL DEFAULT '',
	html       TEXT NOT NULL DEFAULT '',
	text       TEXT NOT NULL DEFAULT '',
	date       DATETIME NOT NULL,
	seen       INTEGER NOT NULL DEFAULT 0 CHECK(seen IN (0, 1)),
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(user_id, uid)
);

CREATE INDEX IF NOT EXISTS idx_messages_user_date ON messages(user_id, date);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
