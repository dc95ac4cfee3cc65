package overlay

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBatchReturnsItsOwnResult(t *testing.T) {
	reg := NewRegistry()

	var notified []Snapshot
	reg.Subscribe(func(s Snapshot) { notified = append(notified, s) })

	snap, changed := reg.Batch(func(b *Batch) {
		b.AddImage(Image{ID: "pre", Visible: true, Opacity: 1})
		b.AddImage(Image{ID: "post", Visible: true, Opacity: 1})
		b.SetImageOpacity("post", 0.5)
		b.SetActiveImage("post")
		b.SetActiveImage("missing")
	})

	if !changed {
		t.Fatal("expected the batch to report a change")
	}
	want := Snapshot{
		Version: 4,
		Images: []Image{
			{ID: "pre", Visible: true, Opacity: 1},
			{ID: "post", Visible: true, Opacity: 0.5},
		},
		ActiveImageID: "post",
		Mode:          ModeOverlay,
	}
	if diff := cmp.Diff(want, snap); diff != "" {
		t.Errorf("batch snapshot mismatch (-want +got):\n%s", diff)
	}
	if len(notified) != 1 {
		t.Fatalf("expected one notification for the batch, got %d", len(notified))
	}
	if diff := cmp.Diff(snap, notified[0]); diff != "" {
		t.Errorf("notification differs from batch result (-want +got):\n%s", diff)
	}
}

func TestBatchWithoutChangesDoesNotNotify(t *testing.T) {
	reg := NewRegistry()
	reg.AddImage(Image{ID: "a"})

	calls := 0
	reg.Subscribe(func(Snapshot) { calls++ })

	snap, changed := reg.Batch(func(b *Batch) {
		b.RemoveImage("missing")
		b.SetImageVisibility("a", false)
		b.SetActiveImage("a")
	})
	if changed || calls != 0 {
		t.Errorf("changed=%v calls=%d, want no change and no notification", changed, calls)
	}
	if snap.Version != reg.Version() || len(snap.Images) != 1 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestBatchSnapshotExcludesLaterWrites(t *testing.T) {
	reg := NewRegistry()

	// A listener that writes again runs after the batch has released the
	// lock; its change must not leak into the batch result.
	wrote := false
	reg.Subscribe(func(Snapshot) {
		if !wrote {
			wrote = true
			reg.ToggleMode()
		}
	})

	snap, _ := reg.Batch(func(b *Batch) { b.ToggleActive() })

	if snap.Mode != ModeOverlay || !snap.Active || snap.Version != 1 {
		t.Errorf("batch snapshot = %+v, want only its own toggle", snap)
	}
	if reg.Mode() != ModeSideBySide || reg.Version() != 2 {
		t.Errorf("listener write was lost: mode=%v version=%d", reg.Mode(), reg.Version())
	}
}

func TestBatchMatchesRegistryOperations(t *testing.T) {
	apply := func(m Mutator) {
		m.AddImage(Image{ID: "a", Visible: true, Opacity: 1})
		m.AddImage(Image{ID: "b", Visible: true, Opacity: 1})
		m.SetImageColorFilter("a", "red")
		m.SetImageVisibility("b", false)
		m.RemoveImage("a")
		m.ToggleMode()
		m.ToggleActive()
	}

	single := NewRegistry()
	apply(single)

	batched := NewRegistry()
	snap, _ := batched.Batch(func(b *Batch) { apply(b) })

	if diff := cmp.Diff(single.Snapshot(), snap); diff != "" {
		t.Errorf("batch diverges from single operations (-single +batch):\n%s", diff)
	}
}
