package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/lcdcanvas/internal/display"
	"github.com/nerrad567/lcdcanvas/internal/infrastructure/database"
	"github.com/nerrad567/lcdcanvas/internal/monitor"
	"github.com/nerrad567/lcdcanvas/internal/screen"
	"github.com/nerrad567/lcdcanvas/migrations"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "history.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewStore(db.DB)
}

func TestRecordAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 12, 14, 0, 0, 0, time.UTC)

	events := []monitor.Event{
		{Type: monitor.EventScreenSelected, Screen: "WCH32", Timestamp: base},
		{Type: monitor.EventDisplayStarted, Screen: "WCH32", Timestamp: base.Add(time.Second),
			Session: display.Session{Active: &screen.Descriptor{Identity: "WCH32", Width: 480, Height: 320}, Running: true, Brightness: 70}},
		{Type: monitor.EventDisplayFailure, Screen: "QDTFT35_V1COM", Message: "transport failure", Timestamp: base.Add(2 * time.Second)},
	}
	for _, ev := range events {
		if err := s.Record(ctx, ev); err != nil {
			t.Fatalf("Record(%s) error = %v", ev.Type, err)
		}
	}

	all, err := s.List(ctx, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("List() returned %d entries, want 3", len(all))
	}
	if all[0].Type != monitor.EventDisplayFailure || all[0].Message != "transport failure" {
		t.Errorf("newest entry = %+v", all[0])
	}
	if !all[2].CreatedAt.Equal(base) {
		t.Errorf("oldest CreatedAt = %v, want %v", all[2].CreatedAt, base)
	}

	wch, err := s.List(ctx, "WCH32", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(wch) != 1 || wch[0].Type != monitor.EventDisplayStarted {
		t.Fatalf("List(WCH32, 1) = %+v", wch)
	}
	if got := wch[0].Session; !got.Running || got.Brightness != 70 || got.Active == nil || got.Active.Width != 480 {
		t.Errorf("session round trip = %+v", got)
	}
}

func TestRecordRejectsEmptyType(t *testing.T) {
	s := newTestStore(t)
	if err := s.Record(context.Background(), monitor.Event{}); err == nil {
		t.Error("Record() with empty type should fail")
	}
}

func TestRecordDefaultsTimestamp(t *testing.T) {
	s := newTestStore(t)
	fixed := time.Date(2026, 4, 1, 8, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	if err := s.Record(context.Background(), monitor.Event{Type: monitor.EventDisplayStopped}); err != nil {
		t.Fatal(err)
	}
	got, err := s.List(context.Background(), "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || !got[0].CreatedAt.Equal(fixed) {
		t.Errorf("entries = %+v", got)
	}
}

func TestPrune(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	for _, age := range []time.Duration{40 * 24 * time.Hour, 31 * 24 * time.Hour, time.Hour} {
		if err := s.Record(ctx, monitor.Event{Type: monitor.EventDisplayStopped, Timestamp: now.Add(-age)}); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.Prune(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Prune() deleted %d, want 2", n)
	}
	if _, err := s.Prune(ctx, 0); err == nil {
		t.Error("Prune(0) should fail")
	}
}

func TestRecorder(t *testing.T) {
	s := newTestStore(t)
	r := NewRecorder(s, 24*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	r.Notify(monitor.Event{Type: monitor.EventDisplayFrame})
	r.Notify(monitor.Event{Type: monitor.EventDisplayStarted, Screen: "WCH32"})
	r.Notify(monitor.Event{Type: monitor.EventDisplayStopped, Screen: "WCH32"})

	cancel()
	<-done

	got, err := s.List(context.Background(), "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("stored %d events, want 2 (frames skipped)", len(got))
	}
	if got[0].Type != monitor.EventDisplayStopped {
		t.Errorf("newest = %s", got[0].Type)
	}
}

func TestRecorderDropsWhenFull(t *testing.T) {
	r := NewRecorder(nil, 0)
	for range queueSize + 10 {
		r.Notify(monitor.Event{Type: monitor.EventDisplayFailure})
	}
	if len(r.queue) != queueSize {
		t.Errorf("queue length = %d, want %d", len(r.queue), queueSize)
	}
}
