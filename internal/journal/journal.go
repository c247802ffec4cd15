// Package journal keeps an append-only SQLite audit trail of room activity.
// The broker never reads it back.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"roomchat/internal/broker"

	_ "modernc.org/sqlite"
)

const defaultBuffer = 256

// Journal writes broker activity on a background goroutine. Record never
// blocks: when the queue is full the entry is dropped.
type Journal struct {
	db   *sql.DB
	log  *slog.Logger
	done chan struct{}

	mu     sync.RWMutex
	queue  chan broker.Activity
	closed bool
}

func Open(ctx context.Context, path string, buffer int, log *slog.Logger) (*Journal, error) {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}

	j := &Journal{
		db:    db,
		log:   log,
		done:  make(chan struct{}),
		queue: make(chan broker.Activity, buffer),
	}
	go j.run()
	return j, nil
}

func (j *Journal) Record(a broker.Activity) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}
	select {
	case j.queue <- a:
	default:
		j.log.Warn("Journal queue full, activity dropped", "room", a.Room, "kind", a.Kind)
	}
}

// Close flushes queued activity and closes the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.queue)
	j.mu.Unlock()

	<-j.done
	return j.db.Close()
}

func (j *Journal) run() {
	defer close(j.done)
	for a := range j.queue {
		if err := j.insert(context.Background(), a); err != nil {
			j.log.Error("Journal write failed", "room", a.Room, "kind", a.Kind, "error", err)
		}
	}
}

func (j *Journal) insert(ctx context.Context, a broker.Activity) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO activity (kind, room, user_name, text, created_at) VALUES (?, ?, ?, ?, ?)`,
		string(a.Kind), a.Room, a.User, a.Text, a.At.UnixMilli())
	return err
}

// Recent returns the latest activity of a room in chronological order.
func (j *Journal) Recent(ctx context.Context, room string, limit int) ([]broker.Activity, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := j.db.QueryContext(ctx, `
        SELECT kind, room, user_name, text, created_at
        FROM activity
        WHERE room = ?
        ORDER BY id DESC
        LIMIT ?
    `, room, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []broker.Activity
	for rows.Next() {
		var (
			a    broker.Activity
			kind string
			at   int64
		)
		if err := rows.Scan(&kind, &a.Room, &a.User, &a.Text, &at); err != nil {
			return nil, err
		}
		a.Kind = broker.ActivityKind(kind)
		a.At = time.UnixMilli(at)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, k := 0, len(out)-1; i < k; i, k = i+1, k-1 {
		out[i], out[k] = out[k], out[i]
	}
	return out, nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	const activityTable = `
    CREATE TABLE IF NOT EXISTS activity (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        kind TEXT NOT NULL,
        room TEXT NOT NULL,
        user_name TEXT NOT NULL,
        text TEXT NOT NULL,
        created_at INTEGER NOT NULL
    );`
	if _, err := db.ExecContext(ctx, activityTable); err != nil {
		return err
	}

	const roomIndex = `CREATE INDEX IF NOT EXISTS activity_room ON activity (room, id);`
	if _, err := db.ExecContext(ctx, roomIndex); err != nil {
		return err
	}
	return nil
}
