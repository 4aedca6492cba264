package recorder

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/replaykit/replayd/internal/domain"
	"github.com/replaykit/replayd/internal/store"
)

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func TestRecorderCaptureAndLoad(t *testing.T) {
	ctx := context.Background()
	rec := newTestRecorder(t)

	hash, err := RequestHash("prompt", nil, map[string]interface{}{"model": "m"}, nil)
	if err != nil {
		t.Fatalf("RequestHash failed: %v", err)
	}

	id, err := rec.Start(ctx, hash, domain.RecordingMeta{Prompt: "prompt", Provider: "test"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := rec.Append(ctx, id, json.RawMessage(`{"delta":"hi"}`)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := rec.Finalize(ctx, id, json.RawMessage(`{"text":"hi"}`)); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	loaded, err := rec.Load(ctx, hash)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected recording")
	}
	if loaded.Hash != hash || len(loaded.Events) != 1 {
		t.Fatalf("unexpected recording: %+v", loaded)
	}

	infos, err := rec.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(infos) != 1 || infos[0].Hash != hash {
		t.Fatalf("unexpected listing: %+v", infos)
	}

	if err := rec.Delete(ctx, hash); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	loaded, err = rec.Load(ctx, hash)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != nil {
		t.Fatal("expected recording to be deleted")
	}
}

func TestRecorderMissingHash(t *testing.T) {
	ctx := context.Background()
	rec := newTestRecorder(t)

	loaded, err := rec.Load(ctx, "no-such-hash")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != nil {
		t.Fatal("expected nil for unknown hash")
	}
}
