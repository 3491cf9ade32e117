package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/lcdcanvas/internal/display"
	"github.com/nerrad567/lcdcanvas/internal/monitor"
	"github.com/nerrad567/lcdcanvas/internal/screen"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// timeLayout has fixed width so stored timestamps compare as strings.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// Entry is one stored event.
type Entry struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	Screen    screen.Identity `json:"screen,omitempty"`
	Message   string          `json:"message,omitempty"`
	Session   display.Session `json:"session"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store persists events in the display_events table.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a Store on an open, migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Record inserts ev. A zero timestamp is replaced with the current time.
func (s *Store) Record(ctx context.Context, ev monitor.Event) error {
	if ev.Type == "" {
		return fmt.Errorf("event type is required")
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	session, err := json.Marshal(ev.Session)
	if err != nil {
		return fmt.Errorf("marshalling session: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO display_events (type, screen_id, message, session, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		ev.Type, string(ev.Screen), ev.Message, string(session), ts.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting display event: %w", err)
	}
	return nil
}

// List returns the newest events first. An empty id lists every screen.
// limit is clamped to 1..MaxLimit, defaulting to DefaultLimit.
func (s *Store) List(ctx context.Context, id screen.Identity, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	query := `SELECT id, type, screen_id, message, session, created_at FROM display_events`
	args := []any{}
	if id != "" {
		query += ` WHERE screen_id = ?`
		args = append(args, string(id))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying display events: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e         Entry
			screenID  string
			session   string
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.Type, &screenID, &e.Message, &session, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning display event: %w", err)
		}
		e.Screen = screen.Identity(screenID)
		if err := json.Unmarshal([]byte(session), &e.Session); err != nil {
			return nil, fmt.Errorf("unmarshalling session: %w", err)
		}
		if e.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating display events: %w", err)
	}
	return entries, nil
}

// Prune deletes events older than olderThan and returns how many went.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}
	cutoff := s.now().UTC().Add(-olderThan).Format(timeLayout)
	res, err := s.db.ExecContext(ctx, "DELETE FROM display_events WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting display events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}
