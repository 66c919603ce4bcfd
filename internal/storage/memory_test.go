package storage

import (
	"context"
	"testing"

	"aoratos/internal/model"
)

func testRun(id string, value float64, createdAt string) model.RunRecord {
	return model.RunRecord{
		VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion},
		ID:              id,
		Kind:            model.RunKindReachProbs,
		MinMax:          model.MinMax{Max: true, MaxUnc: true},
		NumStates:       3,
		Value:           value,
		Converged:       true,
		CreatedAtUTC:    createdAt,
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	run := testRun("r1", 0.6, "2026-01-01T00:00:00Z")
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, ok, err := store.GetRun(ctx, "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("run not found")
	}
	if loaded != run {
		t.Fatalf("loaded %+v, want %+v", loaded, run)
	}

	_, ok, err = store.GetRun(ctx, "missing")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if ok {
		t.Fatal("expected missing run")
	}
}

func TestMemoryStoreListNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	for i, id := range []string{"a", "b", "c"} {
		if err := store.SaveRun(ctx, testRun(id, float64(i), "2026-01-01T00:00:00Z")); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	runs, err := store.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("list length = %d, want 2", len(runs))
	}
	if runs[0].ID != "c" || runs[1].ID != "b" {
		t.Fatalf("list order = [%s, %s], want [c, b]", runs[0].ID, runs[1].ID)
	}
}

func TestCodecRejectsVersionMismatch(t *testing.T) {
	run := testRun("r1", 0.5, "2026-01-01T00:00:00Z")
	run.SchemaVersion = 99

	data, err := EncodeRun(run)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeRun(data); err != ErrVersionMismatch {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
}

func TestFactory(t *testing.T) {
	if _, err := NewStore("", ""); err != nil {
		t.Fatalf("default store: %v", err)
	}
	if _, err := NewStore("memory", ""); err != nil {
		t.Fatalf("memory store: %v", err)
	}
	if _, err := NewStore("redis", ""); err == nil {
		t.Fatal("expected error for unsupported backend")
	}
	if err := CloseIfSupported(NewMemoryStore()); err != nil {
		t.Fatalf("close memory store: %v", err)
	}
}
