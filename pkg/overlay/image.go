package overlay

import "fmt"

// Image is one comparison image with independent display controls.
type Image struct {
	// ID identifies the image for its whole lifetime. Assigned by the caller.
	ID string `json:"id"`

	// Visible reports whether the image currently renders.
	Visible bool `json:"visible"`

	// Opacity is the blend factor. The registry does not clamp it;
	// renderers are responsible for mapping it onto a valid range.
	Opacity float64 `json:"opacity"`

	// ColorFilter selects a rendering filter. Empty means no filter.
	ColorFilter string `json:"colorFilter,omitempty"`

	// Source locates the image payload (typically an upload URL).
	// Opaque to the registry.
	Source string `json:"source,omitempty"`

	// Label is a display name. Opaque to the registry.
	Label string `json:"label,omitempty"`
}

// Mode is the arrangement used to display multiple overlay images.
type Mode int

const (
	// ModeOverlay stacks and blends images on top of each other.
	ModeOverlay Mode = iota

	// ModeSideBySide lays images out next to each other.
	ModeSideBySide
)

// String returns the wire name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeOverlay:
		return "overlay"
	case ModeSideBySide:
		return "sideBySide"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Toggled returns the other mode.
func (m Mode) Toggled() Mode {
	if m == ModeSideBySide {
		return ModeOverlay
	}
	return ModeSideBySide
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	switch m {
	case ModeOverlay, ModeSideBySide:
		return []byte(m.String()), nil
	default:
		return nil, fmt.Errorf("overlay: invalid mode %d", int(m))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	mode, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// ParseMode parses a wire mode name.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "overlay":
		return ModeOverlay, nil
	case "sideBySide":
		return ModeSideBySide, nil
	default:
		return ModeOverlay, fmt.Errorf("overlay: unknown mode %q", s)
	}
}
