// Package overlay manages the comparison images layered over a cephalometric
// radiograph during a viewing session.
//
// A Registry owns an ordered collection of overlay images, the currently
// active image, the comparison display mode and the comparison on/off switch.
// Every mutating operation is total: unknown image IDs resolve to no-ops and
// nothing ever returns an error. After each operation the registry upholds
// the following invariants:
//
//   - image IDs are unique and insertion order is preserved
//   - the active image ID is empty or names an image in the registry
//   - the first image added to an empty registry becomes active
//   - removing the active image activates the first remaining image
//   - mode and the comparison switch change only when toggled
//
// # Usage
//
//	reg := overlay.NewRegistry()
//	reg.AddImage(overlay.Image{ID: "pre", Visible: true, Opacity: 1})
//	reg.AddImage(overlay.Image{ID: "post", Visible: true, Opacity: 0.5})
//	reg.SetImageColorFilter("post", "sepia")
//	reg.ToggleActive()
//
// # Change Notification
//
// Renderers subscribe to receive a Snapshot after every state change:
//
//	unsubscribe := reg.Subscribe(func(s overlay.Snapshot) {
//	    render(s)
//	})
//	defer unsubscribe()
//
// Listeners run on the goroutine that performed the mutation, after the
// registry lock has been released, so they may read from the registry.
// Concurrent mutations can deliver snapshots out of order; Snapshot.Version
// increases with every change and lets receivers discard stale snapshots.
//
// # Concurrency
//
// A Registry is safe for concurrent use. Writers are serialized by a single
// lock, which is what keeps active-image reassignment consistent when two
// removals race.
package overlay
