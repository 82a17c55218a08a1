package checkpoint

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "harvestd.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func TestLoadMissingCheckpoint(t *testing.T) {
	store := newTestStore(t)

	cp, ok, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok {
		t.Fatalf("expected no checkpoint, got %+v", cp)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)

	saved := Checkpoint{
		LastRun:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		LastJobID:     "job-1",
		LastHarvested: "120",
		EventCursor:   42,
		Runs:          7,
		Failures:      1,
	}
	if err := store.Save(saved); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, ok, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok {
		t.Fatalf("expected stored checkpoint")
	}
	if !loaded.LastRun.Equal(saved.LastRun) {
		t.Fatalf("unexpected last run: %v", loaded.LastRun)
	}
	if loaded.LastJobID != "job-1" || loaded.LastHarvested != "120" {
		t.Fatalf("unexpected job fields: %+v", loaded)
	}
	if loaded.EventCursor != 42 || loaded.Runs != 7 || loaded.Failures != 1 {
		t.Fatalf("unexpected counters: %+v", loaded)
	}
	if loaded.UpdatedAt.IsZero() {
		t.Fatalf("expected UpdatedAt to be stamped")
	}
}

func TestSaveOverwritesPrevious(t *testing.T) {
	store := newTestStore(t)

	if err := store.Save(Checkpoint{EventCursor: 1, Runs: 1}); err != nil {
		t.Fatalf("save first: %v", err)
	}
	if err := store.Save(Checkpoint{EventCursor: 9, Runs: 2}); err != nil {
		t.Fatalf("save second: %v", err)
	}

	loaded, ok, err := store.Load()
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if loaded.EventCursor != 9 || loaded.Runs != 2 {
		t.Fatalf("expected latest checkpoint, got %+v", loaded)
	}
}

func TestCheckpointSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harvestd.db")
	store, err := Open(path, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Save(Checkpoint{EventCursor: 5, LastHarvested: "30"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path, nil)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer reopened.Close()

	loaded, ok, err := reopened.Load()
	if err != nil || !ok {
		t.Fatalf("load after reopen: ok=%v err=%v", ok, err)
	}
	if loaded.EventCursor != 5 || loaded.LastHarvested != "30" {
		t.Fatalf("unexpected checkpoint after reopen: %+v", loaded)
	}
}
