package events

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const migrationEvents = `
CREATE TABLE IF NOT EXISTS events (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT UNIQUE NOT NULL,
    kind TEXT NOT NULL,
    campaign_id INTEGER NOT NULL DEFAULT 0,
    title TEXT,
    actor TEXT,
    recipient TEXT,
    amount INTEGER NOT NULL DEFAULT 0,
    goal INTEGER NOT NULL DEFAULT 0,
    deadline TIMESTAMP,
    occurred_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
CREATE INDEX IF NOT EXISTS idx_events_campaign ON events(campaign_id);
`

// Archive is an append-only event log backed by SQLite, with in-process
// fan-out to subscribers. It implements Sink.
type Archive struct {
	db     *sql.DB
	logger *slog.Logger

	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// Open opens (creating if needed) the archive database at path.
func Open(path string, logger *slog.Logger) (*Archive, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}

	if _, err := db.Exec(migrationEvents); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive migration failed: %w", err)
	}

	return &Archive{
		db:     db,
		logger: logger,
		subs:   make(map[int]chan Event),
	}, nil
}

// Publish appends the event to the archive and fans it out to subscribers.
// Missing IDs and timestamps are filled in.
func (a *Archive) Publish(ctx context.Context, ev Event) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}

	var deadline any
	if !ev.Deadline.IsZero() {
		deadline = ev.Deadline.UTC().Format(time.RFC3339Nano)
	}

	_, err := a.db.ExecContext(ctx, `
		INSERT INTO events (id, kind, campaign_id, title, actor, recipient, amount, goal, deadline, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, string(ev.Kind), ev.CampaignID, ev.Title, ev.Actor, ev.Recipient,
		ev.Amount, ev.Goal, deadline, ev.OccurredAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	a.mu.Lock()
	for _, ch := range a.subs {
		// Slow subscribers miss events rather than block the publisher.
		select {
		case ch <- ev:
		default:
			a.logger.Warn("event subscriber buffer full, dropping event", "kind", ev.Kind, "id", ev.ID)
		}
	}
	a.mu.Unlock()

	return nil
}

// Subscribe registers an in-process observer. The returned cancel function
// removes the subscription and closes the channel.
func (a *Archive) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}

	ch := make(chan Event, buffer)

	a.mu.Lock()
	id := a.next
	a.next++
	a.subs[id] = ch
	a.mu.Unlock()

	cancel := func() {
		a.mu.Lock()
		if _, ok := a.subs[id]; ok {
			delete(a.subs, id)
			close(ch)
		}
		a.mu.Unlock()
	}

	return ch, cancel
}

// Recent returns the most recent events, newest first.
func (a *Archive) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT id, kind, campaign_id, title, actor, recipient, amount, goal, deadline, occurred_at
		FROM events ORDER BY seq DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var kind string
		var deadline, occurredAt sql.NullString
		if err := rows.Scan(&ev.ID, &kind, &ev.CampaignID, &ev.Title, &ev.Actor,
			&ev.Recipient, &ev.Amount, &ev.Goal, &deadline, &occurredAt); err != nil {
			return nil, err
		}
		ev.Kind = Kind(kind)
		if deadline.Valid {
			ev.Deadline, _ = time.Parse(time.RFC3339Nano, deadline.String)
		}
		if occurredAt.Valid {
			ev.OccurredAt, _ = time.Parse(time.RFC3339Nano, occurredAt.String)
		}
		out = append(out, ev)
	}

	return out, rows.Err()
}

// Close closes the archive and all subscriber channels.
func (a *Archive) Close() error {
	a.mu.Lock()
	for id, ch := range a.subs {
		delete(a.subs, id)
		close(ch)
	}
	a.mu.Unlock()

	return a.db.Close()
}
