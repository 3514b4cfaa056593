// Package store persists chats in SQLite and serves them to the tracker
// pipeline as conversation stores.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/jackzampolin/tracker/internal/conversation"
	"github.com/jackzampolin/tracker/internal/tracker"
)

// ErrChatNotFound is returned when a chat id is unknown.
var ErrChatNotFound = errors.New("chat not found")

// DB wraps a SQLite connection for chat persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// SQL exposes the connection for stores sharing the database.
func (db *DB) SQL() *sqlx.DB {
	return db.conn
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chats (
		id TEXT PRIMARY KEY,
		cast_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		chat_id TEXT NOT NULL,
		idx INTEGER NOT NULL,
		speaker TEXT NOT NULL,
		body TEXT NOT NULL,
		is_user INTEGER NOT NULL,
		is_system INTEGER NOT NULL,
		interjection INTEGER NOT NULL,
		tracker_json TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (chat_id, idx)
	);
	`
	_, err := db.conn.Exec(schema)
	return err
}

type messageRow struct {
	ChatID       string `db:"chat_id"`
	Index        int    `db:"idx"`
	Speaker      string `db:"speaker"`
	Body         string `db:"body"`
	IsUser       bool   `db:"is_user"`
	IsSystem     bool   `db:"is_system"`
	Interjection bool   `db:"interjection"`
	TrackerJSON  string `db:"tracker_json"`
}

func encodeTracker(rec tracker.Record) (string, error) {
	if rec.IsEmpty() {
		return "", nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SaveChat writes a chat under id, replacing any previous copy.
func (db *DB) SaveChat(ctx context.Context, id string, chat *conversation.Chat) error {
	castJSON, err := json.Marshal(chat.Cast())
	if err != nil {
		return fmt.Errorf("encode cast: %w", err)
	}

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE chat_id = ?", id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO chats (id, cast_json, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET cast_json = excluded.cast_json`,
		id, string(castJSON), time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("insert chat %s: %w", id, err)
	}

	for i := 0; i < chat.Len(); i++ {
		msg, _ := chat.Message(i)
		trackerJSON, err := encodeTracker(msg.Tracker)
		if err != nil {
			return fmt.Errorf("encode tracker of message %d: %w", i, err)
		}
		_, err = tx.NamedExecContext(ctx, `INSERT INTO messages
			(chat_id, idx, speaker, body, is_user, is_system, interjection, tracker_json)
			VALUES (:chat_id, :idx, :speaker, :body, :is_user, :is_system, :interjection, :tracker_json)`,
			messageRow{
				ChatID:       id,
				Index:        i,
				Speaker:      msg.Speaker,
				Body:         msg.Body,
				IsUser:       msg.IsUser,
				IsSystem:     msg.IsSystem,
				Interjection: msg.Interjection,
				TrackerJSON:  trackerJSON,
			})
		if err != nil {
			return fmt.Errorf("insert message %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// ChatIDs returns the ids of stored chats, sorted.
func (db *DB) ChatIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := db.conn.SelectContext(ctx, &ids, "SELECT id FROM chats ORDER BY id"); err != nil {
		return nil, err
	}
	return ids, nil
}

// OpenChat loads a stored chat. Trackers attached through the returned
// ChatStore are written back to the database.
func (db *DB) OpenChat(ctx context.Context, id string) (*ChatStore, error) {
	var castJSON string
	err := db.conn.GetContext(ctx, &castJSON, "SELECT cast_json FROM chats WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrChatNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load chat %s: %w", id, err)
	}

	var cast conversation.Cast
	if err := json.Unmarshal([]byte(castJSON), &cast); err != nil {
		return nil, fmt.Errorf("decode cast of chat %s: %w", id, err)
	}

	var rows []messageRow
	if err := db.conn.SelectContext(ctx, &rows,
		"SELECT * FROM messages WHERE chat_id = ? ORDER BY idx", id); err != nil {
		return nil, fmt.Errorf("load messages of chat %s: %w", id, err)
	}

	messages := make([]conversation.Message, len(rows))
	for i, r := range rows {
		messages[i] = conversation.Message{
			Speaker:      r.Speaker,
			Body:         r.Body,
			IsUser:       r.IsUser,
			IsSystem:     r.IsSystem,
			Interjection: r.Interjection,
		}
		if r.TrackerJSON != "" {
			var rec tracker.Record
			if err := json.Unmarshal([]byte(r.TrackerJSON), &rec); err != nil {
				return nil, fmt.Errorf("decode tracker of message %d: %w", r.Index, err)
			}
			messages[i].Tracker = rec
		}
	}

	return &ChatStore{
		db:   db,
		id:   id,
		chat: conversation.NewChat(cast, messages...),
	}, nil
}

// setTracker writes a message's tracker, retrying while the database is busy.
func (db *DB) setTracker(ctx context.Context, chatID string, index int, rec tracker.Record) error {
	trackerJSON, err := encodeTracker(rec)
	if err != nil {
		return fmt.Errorf("encode tracker: %w", err)
	}

	return retry.Do(
		func() error {
			res, err := db.conn.ExecContext(ctx,
				"UPDATE messages SET tracker_json = ? WHERE chat_id = ? AND idx = ?",
				trackerJSON, chatID, index)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return retry.Unrecoverable(fmt.Errorf("%w: %d", conversation.ErrNotFound, index))
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(5),
		retry.Delay(50*time.Millisecond),
		retry.RetryIf(isBusy),
		retry.LastErrorOnly(true),
	)
}

// isBusy reports whether err is SQLite lock contention.
func isBusy(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

// ChatStore is a loaded chat backed by the database.
type ChatStore struct {
	db   *DB
	id   string
	chat *conversation.Chat
}

// ID returns the chat id.
func (s *ChatStore) ID() string { return s.id }

// Len returns the number of messages.
func (s *ChatStore) Len() int { return s.chat.Len() }

// Message returns the message at i.
func (s *ChatStore) Message(i int) (conversation.Message, bool) { return s.chat.Message(i) }

// Cast returns the chat participants.
func (s *ChatStore) Cast() conversation.Cast { return s.chat.Cast() }

// AttachTracker stores rec on message i in the database and in memory.
func (s *ChatStore) AttachTracker(i int, rec tracker.Record) error {
	if _, ok := s.chat.Message(i); !ok {
		return fmt.Errorf("%w: %d", conversation.ErrNotFound, i)
	}
	if err := s.db.setTracker(context.Background(), s.id, i, rec); err != nil {
		return fmt.Errorf("save tracker of message %d: %w", i, err)
	}
	return s.chat.AttachTracker(i, rec)
}

var (
	_ conversation.Store    = (*ChatStore)(nil)
	_ conversation.Attacher = (*ChatStore)(nil)
)
