package overlay

// Mutator is the set of overlay operations. *Registry applies each one on
// its own; *Batch applies them inside a single Registry.Batch call.
type Mutator interface {
	AddImage(img Image) bool
	RemoveImage(id string) bool
	SetImageVisibility(id string, visible bool) bool
	SetImageOpacity(id string, opacity float64) bool
	SetImageColorFilter(id, filter string) bool
	SetActiveImage(id string) bool
	ToggleMode() bool
	ToggleActive() bool
}

var (
	_ Mutator = (*Registry)(nil)
	_ Mutator = (*Batch)(nil)
)

// Batch applies operations while Registry.Batch holds the write lock.
// It is only valid inside the function passed to Registry.Batch.
type Batch struct {
	r       *Registry
	changes int
}

// Batch runs fn with exclusive access to the registry. No other writer can
// interleave with the operations fn applies. Each operation that changes
// state bumps the version, as it would outside a batch. Subscribers are
// notified once, with the final state, if anything changed.
//
// The returned snapshot is the state fn left behind, taken before the lock
// is released, and changed reports whether any operation had an effect.
// fn must not call methods on the Registry itself.
func (r *Registry) Batch(fn func(*Batch)) (snap Snapshot, changed bool) {
	r.mu.Lock()
	b := &Batch{r: r}
	fn(b)
	b.r = nil

	snap = r.snapshotLocked()
	if b.changes == 0 {
		r.mu.Unlock()
		return snap, false
	}
	r.publishAndUnlock(snap)
	return snap, true
}

func (b *Batch) record(changed bool) bool {
	if changed {
		b.changes++
		b.r.version++
	}
	return changed
}

// AddImage is Registry.AddImage inside the batch.
func (b *Batch) AddImage(img Image) bool {
	return b.record(b.r.addImageLocked(img))
}

// RemoveImage is Registry.RemoveImage inside the batch.
func (b *Batch) RemoveImage(id string) bool {
	return b.record(b.r.removeImageLocked(id))
}

// SetImageVisibility is Registry.SetImageVisibility inside the batch.
func (b *Batch) SetImageVisibility(id string, visible bool) bool {
	return b.record(b.r.setVisibilityLocked(id, visible))
}

// SetImageOpacity is Registry.SetImageOpacity inside the batch.
func (b *Batch) SetImageOpacity(id string, opacity float64) bool {
	return b.record(b.r.setOpacityLocked(id, opacity))
}

// SetImageColorFilter is Registry.SetImageColorFilter inside the batch.
func (b *Batch) SetImageColorFilter(id, filter string) bool {
	return b.record(b.r.setColorFilterLocked(id, filter))
}

// SetActiveImage is Registry.SetActiveImage inside the batch.
func (b *Batch) SetActiveImage(id string) bool {
	return b.record(b.r.setActiveLocked(id))
}

// ToggleMode is Registry.ToggleMode inside the batch.
func (b *Batch) ToggleMode() bool {
	return b.record(b.r.toggleModeLocked())
}

// ToggleActive is Registry.ToggleActive inside the batch.
func (b *Batch) ToggleActive() bool {
	return b.record(b.r.toggleActiveLocked())
}
