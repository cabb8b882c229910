package history

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T, limit int) (*Store, *sql.DB) {
	t.Helper()

	db, err := Connect(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	return NewStore(db, limit), db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db, err := Connect(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if err := Migrate(db); err != nil {
		t.Fatalf("first Migrate() error = %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestAppendAndRecent(t *testing.T) {
	store, _ := newTestStore(t, 50)
	ctx := context.Background()

	capturedAt := time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC)
	if err := store.AppendPulse(ctx, 72, capturedAt); err != nil {
		t.Fatalf("AppendPulse() error = %v", err)
	}
	if err := store.AppendNutrition(ctx, "1 apple, ~95 kcal", capturedAt.Add(time.Minute)); err != nil {
		t.Fatalf("AppendNutrition() error = %v", err)
	}

	entries, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}

	// Newest first.
	if entries[0].Kind != KindNutrition {
		t.Errorf("entries[0].Kind = %s, want nutrition", entries[0].Kind)
	}
	if entries[0].Payload != "1 apple, ~95 kcal" {
		t.Errorf("entries[0].Payload = %q", entries[0].Payload)
	}
	if entries[1].Kind != KindPulse || entries[1].BPM != 72 {
		t.Errorf("entries[1] = %+v, want pulse 72", entries[1])
	}
	if !entries[1].CapturedAt.Equal(capturedAt) {
		t.Errorf("CapturedAt = %v, want %v", entries[1].CapturedAt, capturedAt)
	}
	if entries[0].CorrelationID == "" || entries[0].CorrelationID == entries[1].CorrelationID {
		t.Error("entries must carry distinct correlation ids")
	}
}

func TestRetentionCap(t *testing.T) {
	store, _ := newTestStore(t, 5)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		if err := store.AppendPulse(ctx, 60+i, time.Now()); err != nil {
			t.Fatalf("AppendPulse(#%d) error = %v", i, err)
		}
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 5 {
		t.Errorf("retained = %d, want 5", count)
	}

	entries, err := store.Recent(ctx, 50)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("len(entries) = %d, want 5", len(entries))
	}
	// The newest five survive, oldest first discarded.
	if entries[0].BPM != 71 {
		t.Errorf("newest BPM = %d, want 71", entries[0].BPM)
	}
	if entries[4].BPM != 67 {
		t.Errorf("oldest retained BPM = %d, want 67", entries[4].BPM)
	}
}

func TestRecentClampsRequest(t *testing.T) {
	store, _ := newTestStore(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := store.AppendPulse(ctx, 70, time.Now()); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := store.Recent(ctx, 100)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("len(entries) = %d, want 3", len(entries))
	}
}

func TestRecentEmptyHistory(t *testing.T) {
	store, _ := newTestStore(t, 50)

	entries, err := store.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("len(entries) = %d, want 0", len(entries))
	}
}
