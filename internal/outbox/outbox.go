// Package outbox keeps messages whose publish failed in a local SQLite file
// until they can be republished.
package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"wagerSync/internal/queue"
)

// Entry is one stored message.
type Entry struct {
	Message   queue.Message
	Attempts  int
	LastError string
	CreatedAt time.Time
}

// Outbox is a SQLite-backed message store.
type Outbox struct {
	db *sql.DB
}

// Open opens (or creates) the outbox at path and applies the schema.
func Open(path string) (*Outbox, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open outbox: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Outbox{db: db}, nil
}

func (o *Outbox) Close() error {
	if o == nil || o.db == nil {
		return nil
	}
	return o.db.Close()
}

func (o *Outbox) Ping(ctx context.Context) error {
	if o == nil || o.db == nil {
		return errors.New("outbox not initialized")
	}
	return o.db.PingContext(ctx)
}

func configure(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
		"PRAGMA synchronous = NORMAL;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	return nil
}

func migrate(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	schema := `
CREATE TABLE IF NOT EXISTS outbox (
  id          TEXT PRIMARY KEY,
  dedup_key   TEXT NOT NULL,
  group_id    TEXT NOT NULL,
  body        BLOB NOT NULL,
  attempts    INTEGER NOT NULL DEFAULT 0,
  last_error  TEXT NOT NULL DEFAULT '',
  created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS outbox_created_at ON outbox(created_at);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Save stores msg. Saving the same message id twice keeps the first copy.
func (o *Outbox) Save(ctx context.Context, msg queue.Message, cause error) error {
	if msg.ID == "" {
		return errors.New("message id required")
	}
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	_, err := o.db.ExecContext(ctx, `
INSERT INTO outbox (id, dedup_key, group_id, body, last_error, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING;
`, msg.ID, msg.DedupKey, msg.GroupID, msg.Body, reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save outbox message: %w", err)
	}
	return nil
}

// Pending returns up to limit entries, oldest first.
func (o *Outbox) Pending(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := o.db.QueryContext(ctx, `
SELECT id, dedup_key, group_id, body, attempts, last_error, created_at
FROM outbox
ORDER BY created_at, rowid
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Message.ID, &e.Message.DedupKey, &e.Message.GroupID, &e.Message.Body, &e.Attempts, &e.LastError, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return out, nil
}

func (o *Outbox) Delete(ctx context.Context, id string) error {
	if _, err := o.db.ExecContext(ctx, `DELETE FROM outbox WHERE id = ?;`, id); err != nil {
		return fmt.Errorf("delete outbox message: %w", err)
	}
	return nil
}

// MarkFailed bumps the attempt counter and records the latest error.
func (o *Outbox) MarkFailed(ctx context.Context, id string, cause error) error {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	_, err := o.db.ExecContext(ctx, `
UPDATE outbox SET attempts = attempts + 1, last_error = ? WHERE id = ?;
`, reason, id)
	if err != nil {
		return fmt.Errorf("mark outbox message failed: %w", err)
	}
	return nil
}

func (o *Outbox) Count(ctx context.Context) (int, error) {
	var n int
	if err := o.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count outbox: %w", err)
	}
	return n, nil
}
