package metadata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/edusim/knowledge/internal/log"
	"github.com/edusim/knowledge/internal/objectstore"
)

func newTestCatalog() (*Catalog, *objectstore.Memory) {
	store := objectstore.NewMemory()
	return NewCatalog(store, log.NewNop()), store
}

func sampleEntry(sourceID, scope string, uploadedAt time.Time) Entry {
	return Entry{
		SourceID:    sourceID,
		Title:       "Sample Document",
		Filename:    "sample.pdf",
		MediaType:   "application/pdf",
		Scope:       scope,
		ChunkCount:  7,
		SizeBytes:   4096,
		UploadedAt:  uploadedAt,
		ProcessedAt: uploadedAt.Add(5 * time.Second),
	}
}

func TestCatalog_SaveAndGet(t *testing.T) {
	catalog, _ := newTestCatalog()
	ctx := context.Background()

	want := sampleEntry("src-1", "shared", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	if err := catalog.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := catalog.Get(ctx, "shared", "src-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != want {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestCatalog_SaveValidation(t *testing.T) {
	catalog, _ := newTestCatalog()
	ctx := context.Background()

	if err := catalog.Save(ctx, Entry{Scope: "shared"}); err == nil {
		t.Error("expected error for missing sourceId")
	}
	if err := catalog.Save(ctx, Entry{SourceID: "x"}); err == nil {
		t.Error("expected error for missing scope")
	}
}

func TestCatalog_GetNotFound(t *testing.T) {
	catalog, _ := newTestCatalog()

	_, err := catalog.Get(context.Background(), "shared", "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCatalog_ListSortsNewestFirst(t *testing.T) {
	catalog, _ := newTestCatalog()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		entry := sampleEntry(id, "shared", base.Add(time.Duration(i)*time.Hour))
		if err := catalog.Save(ctx, entry); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}

	entries, err := catalog.List(ctx, "shared")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	wantOrder := []string{"new", "mid", "old"}
	for i, want := range wantOrder {
		if entries[i].SourceID != want {
			t.Errorf("entry %d: got %q, want %q", i, entries[i].SourceID, want)
		}
	}
}

func TestCatalog_ListScopeIsolation(t *testing.T) {
	catalog, _ := newTestCatalog()
	ctx := context.Background()

	now := time.Now().UTC()
	if err := catalog.Save(ctx, sampleEntry("shared-doc", "shared", now)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := catalog.Save(ctx, sampleEntry("avatar-doc", "avatar-7", now)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	entries, err := catalog.List(ctx, "avatar-7")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].SourceID != "avatar-doc" {
		t.Errorf("scope listing leaked entries: %+v", entries)
	}
}

func TestCatalog_ListSkipsCorruptEntries(t *testing.T) {
	catalog, store := newTestCatalog()
	ctx := context.Background()

	if err := catalog.Save(ctx, sampleEntry("good", "shared", time.Now().UTC())); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Put(ctx, "knowledge/shared/broken.json", []byte("{not json")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	entries, err := catalog.List(ctx, "shared")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].SourceID != "good" {
		t.Errorf("expected corrupt entry skipped, got %+v", entries)
	}
}

func TestCatalog_DeleteIsIdempotent(t *testing.T) {
	catalog, _ := newTestCatalog()
	ctx := context.Background()

	if err := catalog.Save(ctx, sampleEntry("src-1", "shared", time.Now().UTC())); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := catalog.Delete(ctx, "shared", "src-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := catalog.Delete(ctx, "shared", "src-1"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if _, err := catalog.Get(ctx, "shared", "src-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}
