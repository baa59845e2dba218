// File: store/store.go
// Package store persists backfilled channel messages in sqlite so the
// bots can rebuild their chains across restarts instead of re-fetching
// history every time.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package store

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"

	"github.com/momentics/gatecord/gateway"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	message_id TEXT PRIMARY KEY,
	channel_id TEXT NOT NULL,
	guild_id   TEXT NOT NULL DEFAULT '',
	author_id  TEXT NOT NULL,
	content    TEXT NOT NULL,
	is_me      INTEGER NOT NULL DEFAULT 0,
	mentions_me INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS messages_channel ON messages(channel_id);
`

// Archive is a message archive backed by one sqlite database file.
type Archive struct {
	db     *sql.DB
	insert *sql.Stmt
}

// Open creates or opens the archive at path and ensures the schema.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	insert, err := db.Prepare(
		`INSERT OR IGNORE INTO messages
		 (message_id, channel_id, guild_id, author_id, content, is_me, mentions_me)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Archive{db: db, insert: insert}, nil
}

// Insert records one event; duplicates by message id are ignored, so
// overlapping backfills are safe.
func (a *Archive) Insert(ev *gateway.Event) error {
	_, err := a.insert.Exec(ev.MessageID, ev.ChannelID, ev.GuildID, ev.AuthorID, ev.Content,
		boolToInt(ev.IsMe), boolToInt(ev.MentionsMe))
	return err
}

// Replay streams every archived message, oldest id first, to fn. A
// non-nil error from fn stops the replay. Ids are numeric snowflakes
// stored as text, so ordering casts to keep "9" before "100".
func (a *Archive) Replay(fn func(ev *gateway.Event) error) error {
	rows, err := a.db.Query(
		`SELECT message_id, channel_id, guild_id, author_id, content, is_me, mentions_me
		 FROM messages ORDER BY CAST(message_id AS INTEGER)`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var ev gateway.Event
		var isMe, mentionsMe int
		if err := rows.Scan(&ev.MessageID, &ev.ChannelID, &ev.GuildID, &ev.AuthorID, &ev.Content, &isMe, &mentionsMe); err != nil {
			return err
		}
		ev.IsMe = isMe != 0
		ev.MentionsMe = mentionsMe != 0
		if err := fn(&ev); err != nil {
			return err
		}
	}
	return rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Close releases the database handle.
func (a *Archive) Close() error {
	a.insert.Close()
	return a.db.Close()
}
