package upload

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestDiskStore(t *testing.T, maxSize int64) *DiskStore {
	t.Helper()
	store, err := NewDiskStore(t.TempDir(), maxSize)
	if err != nil {
		t.Fatalf("NewDiskStore failed: %v", err)
	}
	return store
}

func TestDiskStoreSaveOpen(t *testing.T) {
	store := newTestDiskStore(t, 0)
	ctx := context.Background()

	id, err := store.Save(ctx, "../../ceph.png", "image/png", 5, strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	f, err := store.Open(ctx, id)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()

	data, _ := io.ReadAll(f.Reader)
	if string(data) != "hello" {
		t.Errorf("expected payload hello, got %q", data)
	}
	if f.Filename != "ceph.png" {
		t.Errorf("expected filename reduced to base name, got %q", f.Filename)
	}
	if f.ContentType != "image/png" || f.Size != 5 {
		t.Errorf("unexpected metadata: %+v", f)
	}

	// Opening does not consume the upload.
	f2, err := store.Open(ctx, id)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	f2.Close()
}

func TestDiskStoreTooLarge(t *testing.T) {
	store := newTestDiskStore(t, 4)
	ctx := context.Background()

	if _, err := store.Save(ctx, "a.png", "image/png", 10, strings.NewReader("0123456789")); !errors.Is(err, ErrTooLarge) {
		t.Errorf("expected ErrTooLarge from declared size, got %v", err)
	}
	// Declared size lies; the copy still enforces the limit.
	if _, err := store.Save(ctx, "a.png", "image/png", -1, strings.NewReader("0123456789")); !errors.Is(err, ErrTooLarge) {
		t.Errorf("expected ErrTooLarge from streamed size, got %v", err)
	}

	entries, _ := os.ReadDir(store.dir)
	if len(entries) != 0 {
		t.Errorf("expected no leftover files, got %d", len(entries))
	}
}

func TestDiskStoreOpenRejectsBadIDs(t *testing.T) {
	store := newTestDiskStore(t, 0)
	ctx := context.Background()

	for _, id := range []string{"", "../etc/passwd", "abc", "{6ba7b810-9dad-11d1-80b4-00c04fd430c8}"} {
		if _, err := store.Open(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Errorf("Open(%q): expected ErrNotFound, got %v", id, err)
		}
	}
	if _, err := store.Open(ctx, "6ba7b810-9dad-11d1-80b4-00c04fd430c8"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestDiskStoreDelete(t *testing.T) {
	store := newTestDiskStore(t, 0)
	ctx := context.Background()

	id, _ := store.Save(ctx, "a.png", "image/png", 1, strings.NewReader("x"))
	if err := store.Delete(ctx, id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Open(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after Delete, got %v", err)
	}
	if err := store.Delete(ctx, id); err != nil {
		t.Errorf("deleting a missing upload should not fail: %v", err)
	}
}

func TestDiskStoreCleanup(t *testing.T) {
	store := newTestDiskStore(t, 0)
	ctx := context.Background()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now.Add(-2 * time.Hour) }
	old, _ := store.Save(ctx, "old.png", "image/png", 1, strings.NewReader("o"))
	store.now = func() time.Time { return now }
	fresh, _ := store.Save(ctx, "new.png", "image/png", 1, strings.NewReader("n"))

	if err := store.Cleanup(ctx, time.Hour); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(store.dir, old)); !os.IsNotExist(err) {
		t.Error("expected old payload removed")
	}
	if _, err := os.Stat(store.metaPath(old)); !os.IsNotExist(err) {
		t.Error("expected old metadata removed")
	}
	f, err := store.Open(ctx, fresh)
	if err != nil {
		t.Fatalf("expected fresh upload to survive, got %v", err)
	}
	f.Close()
}
