package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"
)

// ErrInvalidSettings is returned when a value is out of range.
var ErrInvalidSettings = errors.New("settings: invalid value")

// Well-known monitor setting keys.
const (
	KeyLastScreen = "last_screen"
	KeyLang       = "lang"
	KeyStartup    = "startup"
)

// Screen holds the persisted settings of one screen.
type Screen struct {
	Brightness int       `json:"brightness"`
	Rotation   int       `json:"rotation"`
	LastTheme  string    `json:"last_theme"`
	UpdatedAt  time.Time `json:"updated_at,omitzero"`
}

// DefaultScreen is what an unsaved screen reads back as.
func DefaultScreen() Screen {
	return Screen{Brightness: 100}
}

// Validate checks brightness and rotation ranges.
func (s Screen) Validate() error {
	var errs []error
	if s.Brightness < 0 || s.Brightness > 100 {
		errs = append(errs, fmt.Errorf("%w: brightness %d not in 0..100", ErrInvalidSettings, s.Brightness))
	}
	switch s.Rotation {
	case 0, 90, 180, 270:
	default:
		errs = append(errs, fmt.Errorf("%w: rotation %d not one of 0, 90, 180, 270", ErrInvalidSettings, s.Rotation))
	}
	return errors.Join(errs...)
}

// Store is the persistence boundary used by the monitor service.
type Store interface {
	Screen(ctx context.Context, id string) (Screen, error)
	SaveScreen(ctx context.Context, id string, s Screen) error
	Monitor(ctx context.Context) (map[string]string, error)
	SaveMonitor(ctx context.Context, values map[string]string) error
}

// SQLiteStore implements Store on the screen_settings and
// monitor_settings tables.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore wraps an open, migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// Screen returns the settings of id, or DefaultScreen() if none are saved.
func (s *SQLiteStore) Screen(ctx context.Context, id string) (Screen, error) {
	var (
		out       Screen
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT brightness, rotation, last_theme, updated_at FROM screen_settings WHERE screen_id = ?`, id,
	).Scan(&out.Brightness, &out.Rotation, &out.LastTheme, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultScreen(), nil
	}
	if err != nil {
		return Screen{}, fmt.Errorf("querying screen settings %q: %w", id, err)
	}
	out.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // written by SaveScreen
	return out, nil
}

// SaveScreen upserts the settings of id.
func (s *SQLiteStore) SaveScreen(ctx context.Context, id string, scr Screen) error {
	if id == "" {
		return fmt.Errorf("%w: empty screen id", ErrInvalidSettings)
	}
	if err := scr.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO screen_settings (screen_id, brightness, rotation, last_theme, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(screen_id) DO UPDATE SET
			brightness = excluded.brightness,
			rotation   = excluded.rotation,
			last_theme = excluded.last_theme,
			updated_at = excluded.updated_at`,
		id, scr.Brightness, scr.Rotation, scr.LastTheme, s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving screen settings %q: %w", id, err)
	}
	return nil
}

// Monitor returns every stored monitor setting.
func (s *SQLiteStore) Monitor(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM monitor_settings`)
	if err != nil {
		return nil, fmt.Errorf("querying monitor settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scanning monitor setting: %w", err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating monitor settings: %w", err)
	}
	return out, nil
}

// SaveMonitor merges values into the stored monitor settings in one
// transaction. Keys not present in values are left alone.
func (s *SQLiteStore) SaveMonitor(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO monitor_settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("preparing monitor upsert: %w", err)
	}
	defer stmt.Close()

	now := s.now().UTC().Format(time.RFC3339)
	for k, v := range values {
		if k == "" {
			return fmt.Errorf("%w: empty monitor setting key", ErrInvalidSettings)
		}
		if _, err := stmt.ExecContext(ctx, k, v, now); err != nil {
			return fmt.Errorf("saving monitor setting %q: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing monitor settings: %w", err)
	}
	return nil
}

// MemoryStore is an in-process Store for tests and for running without a
// database file.
type MemoryStore struct {
	mu      sync.Mutex
	screens map[string]Screen
	monitor map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{screens: make(map[string]Screen), monitor: make(map[string]string)}
}

func (m *MemoryStore) Screen(_ context.Context, id string) (Screen, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.screens[id]; ok {
		return s, nil
	}
	return DefaultScreen(), nil
}

func (m *MemoryStore) SaveScreen(_ context.Context, id string, s Screen) error {
	if id == "" {
		return fmt.Errorf("%w: empty screen id", ErrInvalidSettings)
	}
	if err := s.Validate(); err != nil {
		return err
	}
	s.UpdatedAt = time.Now().UTC()
	m.mu.Lock()
	m.screens[id] = s
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Monitor(context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.monitor), nil
}

func (m *MemoryStore) SaveMonitor(_ context.Context, values map[string]string) error {
	for k := range values {
		if k == "" {
			return fmt.Errorf("%w: empty monitor setting key", ErrInvalidSettings)
		}
	}
	m.mu.Lock()
	maps.Copy(m.monitor, values)
	m.mu.Unlock()
	return nil
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
