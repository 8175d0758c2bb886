package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/inboxsync/internal/model"
)

// SQLiteStore implements Cache using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Cache = (*SQLiteStore)(nil)

// messageRow mirrors the messages table.
type messageRow struct {
	ID        string    `db:"id"`
	User      string    `db:"user_id"`
	UID       int64     `db:"uid"`
	Mailbox   string    `db:"mailbox"`
	Subject   string    `db:"subject"`
	Sender    string    `db:"sender"`
	HTML      string    `db:"html"`
	Text      string    `db:"text"`
	Date      time.Time `db:"date"`
	Seen      int       `db:"seen"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r messageRow) toModel() model.CachedMessage {
	return model.CachedMessage{
		ID:        r.ID,
		User:      r.User,
		UID:       uint32(r.UID),
		Mailbox:   r.Mailbox,
		Subject:   r.Subject,
		From:      r.Sender,
		HTML:      r.HTML,
		Text:      r.Text,
		Date:      r.Date,
		Seen:      r.Seen != 0,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

const messageColumns = `id, user_id, uid, mailbox, subject, sender, html, text,
	date, seen, created_at, updated_at`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	inMemory := dbPath == ":memory:"
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Every pooled connection to :memory: would be a separate database.
	if inMemory {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// Upsert inserts or overwrites the (user, UID) record inside one
// transaction.
func (s *SQLiteStore) Upsert(ctx context.Context, msg model.CachedMessage) error {
	if msg.User == "" || msg.UID == 0 {
		return fmt.Errorf("upserting message: user and uid are required: %w", model.ErrInvalidArgument)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var existing messageRow
	err = tx.GetContext(ctx, &existing,
		"SELECT "+messageColumns+" FROM messages WHERE user_id = ? AND uid = ?",
		msg.User, msg.UID,
	)
	now := time.Now().UTC()

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if msg.ID == "" {
			msg.ID = uuid.New().String()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO messages (
				id, user_id, uid, mailbox, subject, sender, html, text,
				date, seen, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			msg.ID, msg.User, msg.UID, msg.Mailbox,
			msg.Subject, msg.From, msg.HTML, msg.Text,
			msg.Date.UTC(), boolToInt(msg.Seen), now, now,
		)
		if err != nil {
			return fmt.Errorf("inserting message UID %d: %w", msg.UID, err)
		}

	case err != nil:
		return fmt.Errorf("loading message UID %d: %w", msg.UID, err)

	default:
		if existing.toModel().SameContent(msg) {
			return nil
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE messages SET
				mailbox = ?, subject = ?, sender = ?, html = ?, text = ?,
				date = ?, seen = ?, updated_at = ?
			WHERE id = ?`,
			msg.Mailbox, msg.Subject, msg.From, msg.HTML, msg.Text,
			msg.Date.UTC(), boolToInt(msg.Seen), now,
			existing.ID,
		)
		if err != nil {
			return fmt.Errorf("updating message UID %d: %w", msg.UID, err)
		}
	}

	return tx.Commit()
}

// FindByUserAndUID retrieves a single cached message.
func (s *SQLiteStore) FindByUserAndUID(
	ctx context.Context,
	user string,
	uid uint32,
) (*model.CachedMessage, error) {
	var row messageRow
	err := s.db.GetContext(ctx, &row,
		"SELECT "+messageColumns+" FROM messages WHERE user_id = ? AND uid = ?",
		user, uid,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(user, uid)
	}
	if err != nil {
		return nil, fmt.Errorf("getting message UID %d: %w", uid, err)
	}

	msg := row.toModel()
	return &msg, nil
}

// SetSeen updates the seen flag of one message and nothing else.
func (s *SQLiteStore) SetSeen(
	ctx context.Context,
	user string,
	uid uint32,
	seen bool,
) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE messages SET seen = ? WHERE user_id = ? AND uid = ?",
		boolToInt(seen), user, uid,
	)
	if err != nil {
		return 0, fmt.Errorf("setting seen on UID %d: %w", uid, err)
	}

	// SQLite reports matched rows for an UPDATE, including unchanged ones.
	matched, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading update result: %w", err)
	}
	if matched == 0 {
		return 0, notFound(user, uid)
	}
	return matched, nil
}

// DeleteByUserAndUID removes one cached message if present.
func (s *SQLiteStore) DeleteByUserAndUID(
	ctx context.Context,
	user string,
	uid uint32,
) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM messages WHERE user_id = ? AND uid = ?", user, uid,
	)
	if err != nil {
		return fmt.Errorf("deleting message UID %d: %w", uid, err)
	}
	return nil
}

// ListByUser retrieves a user's cached messages, newest first.
func (s *SQLiteStore) ListByUser(
	ctx context.Context,
	user string,
	limit int,
) ([]model.CachedMessage, error) {
	query := "SELECT " + messageColumns + " FROM messages WHERE user_id = ? ORDER BY date DESC, uid DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, query, user); err != nil {
		return nil, fmt.Errorf("listing messages for %s: %w", user, err)
	}

	messages := make([]model.CachedMessage, 0, len(rows))
	for _, r := range rows {
		messages = append(messages, r.toModel())
	}
	return messages, nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
