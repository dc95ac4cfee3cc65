package overlay

import "sync"

// Listener receives the registry state after a change.
// The snapshot is shared between listeners and must not be modified.
type Listener func(Snapshot)

// Snapshot is a point-in-time copy of a registry's state.
type Snapshot struct {
	// Version increases by one with every state change.
	Version uint64 `json:"version"`

	// Images in insertion order.
	Images []Image `json:"images"`

	// ActiveImageID is empty when no image is active.
	ActiveImageID string `json:"activeImageId,omitempty"`

	Mode   Mode `json:"mode"`
	Active bool `json:"active"`
}

// Option configures a Registry.
type Option func(*Registry)

// WithPermissiveActive makes SetActiveImage accept IDs that are not in the
// registry, leaving the active ID dangling until the next removal or
// assignment. Registries validate by default.
func WithPermissiveActive() Option {
	return func(r *Registry) {
		r.permissiveActive = true
	}
}

// Registry is the overlay image state of one comparison session.
// The zero value is not usable; call NewRegistry.
type Registry struct {
	mu sync.RWMutex

	images []Image
	index  map[string]int // image ID -> position in images

	activeID string
	mode     Mode
	active   bool
	version  uint64

	permissiveActive bool

	// subscribers, in subscription order
	subs   []subscriber
	nextID uint64
}

type subscriber struct {
	id uint64
	fn Listener
}

// NewRegistry creates an empty registry in overlay mode with comparison
// display disabled.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		index: make(map[string]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddImage appends img unless an image with the same ID already exists, in
// which case the existing entry is left untouched. The first image added to
// an empty registry becomes the active image. Images with an empty ID are
// ignored.
func (r *Registry) AddImage(img Image) bool {
	return r.mutate(func() bool { return r.addImageLocked(img) })
}

func (r *Registry) addImageLocked(img Image) bool {
	if img.ID == "" {
		return false
	}
	if _, exists := r.index[img.ID]; exists {
		return false
	}
	r.index[img.ID] = len(r.images)
	r.images = append(r.images, img)
	if len(r.images) == 1 {
		r.activeID = img.ID
	}
	return true
}

// RemoveImage deletes the image with the given ID, keeping the relative order
// of the rest. If it was the active image, the first remaining image becomes
// active, or no image if the registry is now empty.
func (r *Registry) RemoveImage(id string) bool {
	return r.mutate(func() bool { return r.removeImageLocked(id) })
}

func (r *Registry) removeImageLocked(id string) bool {
	pos, ok := r.index[id]
	if !ok {
		return false
	}

	r.images = append(r.images[:pos], r.images[pos+1:]...)
	delete(r.index, id)
	for i := pos; i < len(r.images); i++ {
		r.index[r.images[i].ID] = i
	}

	if r.activeID == id || len(r.images) == 0 {
		r.activeID = ""
		if len(r.images) > 0 {
			r.activeID = r.images[0].ID
		}
	}
	return true
}

// SetImageVisibility sets the visible flag of one image.
func (r *Registry) SetImageVisibility(id string, visible bool) bool {
	return r.mutate(func() bool { return r.setVisibilityLocked(id, visible) })
}

func (r *Registry) setVisibilityLocked(id string, visible bool) bool {
	return r.updateLocked(id, func(img *Image) bool {
		if img.Visible == visible {
			return false
		}
		img.Visible = visible
		return true
	})
}

// SetImageOpacity sets the opacity of one image. The value is stored as given.
func (r *Registry) SetImageOpacity(id string, opacity float64) bool {
	return r.mutate(func() bool { return r.setOpacityLocked(id, opacity) })
}

func (r *Registry) setOpacityLocked(id string, opacity float64) bool {
	return r.updateLocked(id, func(img *Image) bool {
		if img.Opacity == opacity {
			return false
		}
		img.Opacity = opacity
		return true
	})
}

// SetImageColorFilter sets the color filter of one image. An empty filter
// clears it.
func (r *Registry) SetImageColorFilter(id, filter string) bool {
	return r.mutate(func() bool { return r.setColorFilterLocked(id, filter) })
}

func (r *Registry) setColorFilterLocked(id, filter string) bool {
	return r.updateLocked(id, func(img *Image) bool {
		if img.ColorFilter == filter {
			return false
		}
		img.ColorFilter = filter
		return true
	})
}

// SetActiveImage makes the image with the given ID active. Unknown IDs are
// ignored unless the registry was built WithPermissiveActive.
func (r *Registry) SetActiveImage(id string) bool {
	return r.mutate(func() bool { return r.setActiveLocked(id) })
}

func (r *Registry) setActiveLocked(id string) bool {
	if r.activeID == id {
		return false
	}
	if _, ok := r.index[id]; !ok && !r.permissiveActive {
		return false
	}
	r.activeID = id
	return true
}

// ToggleMode switches between overlay and side-by-side display.
func (r *Registry) ToggleMode() bool {
	return r.mutate(r.toggleModeLocked)
}

func (r *Registry) toggleModeLocked() bool {
	r.mode = r.mode.Toggled()
	return true
}

// ToggleActive switches comparison display on or off.
func (r *Registry) ToggleActive() bool {
	return r.mutate(r.toggleActiveLocked)
}

func (r *Registry) toggleActiveLocked() bool {
	r.active = !r.active
	return true
}

// Images returns a copy of the images in insertion order.
func (r *Registry) Images() []Image {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.copyImagesLocked()
}

// Image returns the image with the given ID.
func (r *Registry) Image(id string) (Image, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pos, ok := r.index[id]
	if !ok {
		return Image{}, false
	}
	return r.images[pos], true
}

// ActiveImageID returns the active image ID, or "" if none is active.
func (r *Registry) ActiveImageID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeID
}

// ActiveImage returns the active image. The second result is false when no
// image is active or the active ID is dangling.
func (r *Registry) ActiveImage() (Image, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pos, ok := r.index[r.activeID]
	if !ok {
		return Image{}, false
	}
	return r.images[pos], true
}

// Mode returns the comparison display mode.
func (r *Registry) Mode() Mode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mode
}

// Active reports whether comparison display is enabled.
func (r *Registry) Active() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Len returns the number of images.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.images)
}

// Version returns the number of state changes so far.
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Snapshot returns a copy of the full registry state.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// Subscribe registers fn to be called after every state change and returns
// a function that removes it. Calling the returned function more than once
// is harmless.
func (r *Registry) Subscribe(fn Listener) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.subs = append(r.subs, subscriber{id: id, fn: fn})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			for i, s := range r.subs {
				if s.id == id {
					r.subs = append(r.subs[:i:i], r.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// updateLocked applies fn to the image with the given ID, if any.
func (r *Registry) updateLocked(id string, fn func(*Image) bool) bool {
	pos, ok := r.index[id]
	if !ok {
		return false
	}
	return fn(&r.images[pos])
}

// mutate runs fn under the write lock. If fn reports a change, the version
// is bumped and subscribers are notified after the lock is released.
func (r *Registry) mutate(fn func() bool) bool {
	r.mu.Lock()
	if !fn() {
		r.mu.Unlock()
		return false
	}
	r.version++
	r.publishAndUnlock(r.snapshotLocked())
	return true
}

// publishAndUnlock releases the write lock and hands snap to every
// subscriber.
func (r *Registry) publishAndUnlock(snap Snapshot) {
	// Copy subscribers so listeners may subscribe or unsubscribe.
	subs := make([]subscriber, len(r.subs))
	copy(subs, r.subs)
	r.mu.Unlock()

	for _, s := range subs {
		s.fn(snap)
	}
}

func (r *Registry) snapshotLocked() Snapshot {
	return Snapshot{
		Version:       r.version,
		Images:        r.copyImagesLocked(),
		ActiveImageID: r.activeID,
		Mode:          r.mode,
		Active:        r.active,
	}
}

func (r *Registry) copyImagesLocked() []Image {
	out := make([]Image, len(r.images))
	copy(out, r.images)
	return out
}
