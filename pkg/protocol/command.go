package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cephview/cephview/pkg/overlay"
)

// Op names an overlay registry operation.
type Op string

const (
	OpAddImage            Op = "addImage"
	OpRemoveImage         Op = "removeImage"
	OpSetImageVisibility  Op = "setImageVisibility"
	OpSetImageOpacity     Op = "setImageOpacity"
	OpSetImageColorFilter Op = "setImageColorFilter"
	OpSetActiveImage      Op = "setActiveImage"
	OpToggleMode          Op = "toggleMode"
	OpToggleActive        Op = "toggleActive"
)

// Ops lists every supported operation.
var Ops = []Op{
	OpAddImage,
	OpRemoveImage,
	OpSetImageVisibility,
	OpSetImageOpacity,
	OpSetImageColorFilter,
	OpSetActiveImage,
	OpToggleMode,
	OpToggleActive,
}

// Valid reports whether op is a known operation.
func (op Op) Valid() bool {
	for _, known := range Ops {
		if op == known {
			return true
		}
	}
	return false
}

// Decoding errors.
var (
	// ErrMalformed is returned for input that is not a JSON command.
	ErrMalformed = errors.New("protocol: malformed command")

	// ErrUnknownOp is returned for an unrecognized op name.
	ErrUnknownOp = errors.New("protocol: unknown op")

	// ErrMissingField is returned when an op's required field is absent.
	ErrMissingField = errors.New("protocol: missing field")

	// ErrTooLarge is returned for input exceeding MaxMessageSize or MaxBatchSize.
	ErrTooLarge = errors.New("protocol: message too large")
)

// Command is one registry operation with its arguments. Pointer fields
// distinguish "absent" from the zero value so decoding can reject commands
// that omit a required argument.
type Command struct {
	Op      Op             `json:"op"`
	ID      string         `json:"id,omitempty"`
	Image   *overlay.Image `json:"image,omitempty"`
	Visible *bool          `json:"visible,omitempty"`
	Opacity *float64       `json:"opacity,omitempty"`
	Filter  *string        `json:"filter,omitempty"`
}

// DecodeCommand parses and validates a single command.
func DecodeCommand(data []byte) (Command, error) {
	if len(data) > MaxMessageSize {
		return Command{}, ErrTooLarge
	}

	var cmd Command
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if dec.More() {
		return Command{}, fmt.Errorf("%w: trailing data", ErrMalformed)
	}
	if err := cmd.Validate(); err != nil {
		return Command{}, err
	}
	return cmd, nil
}

// DecodeCommands parses and validates a JSON array of commands. Either every
// command is valid or none is returned.
func DecodeCommands(data []byte) ([]Command, error) {
	if len(data) > MaxMessageSize {
		return nil, ErrTooLarge
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(raw) > MaxBatchSize {
		return nil, ErrTooLarge
	}

	cmds := make([]Command, 0, len(raw))
	for i, r := range raw {
		cmd, err := DecodeCommand(r)
		if err != nil {
			return nil, fmt.Errorf("command %d: %w", i, err)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}

// Validate checks that the op is known and its required fields are present.
func (c Command) Validate() error {
	if !c.Op.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownOp, c.Op)
	}

	switch c.Op {
	case OpAddImage:
		if c.Image == nil {
			return missing(c.Op, "image")
		}
		if c.Image.ID == "" {
			return missing(c.Op, "image.id")
		}
	case OpRemoveImage, OpSetActiveImage:
		if c.ID == "" {
			return missing(c.Op, "id")
		}
	case OpSetImageVisibility:
		if c.ID == "" {
			return missing(c.Op, "id")
		}
		if c.Visible == nil {
			return missing(c.Op, "visible")
		}
	case OpSetImageOpacity:
		if c.ID == "" {
			return missing(c.Op, "id")
		}
		if c.Opacity == nil {
			return missing(c.Op, "opacity")
		}
	case OpSetImageColorFilter:
		if c.ID == "" {
			return missing(c.Op, "id")
		}
		// A null or absent filter clears it, same as "".
	}
	return nil
}

func missing(op Op, field string) error {
	return fmt.Errorf("%w: %s requires %q", ErrMissingField, op, field)
}

// Apply runs the command against reg, a Registry or a Batch, and reports
// whether state changed.
// Commands that fail Validate are ignored.
func (c Command) Apply(reg overlay.Mutator) bool {
	if c.Validate() != nil {
		return false
	}

	switch c.Op {
	case OpAddImage:
		return reg.AddImage(*c.Image)
	case OpRemoveImage:
		return reg.RemoveImage(c.ID)
	case OpSetImageVisibility:
		return reg.SetImageVisibility(c.ID, *c.Visible)
	case OpSetImageOpacity:
		return reg.SetImageOpacity(c.ID, *c.Opacity)
	case OpSetImageColorFilter:
		var filter string
		if c.Filter != nil {
			filter = *c.Filter
		}
		return reg.SetImageColorFilter(c.ID, filter)
	case OpSetActiveImage:
		return reg.SetActiveImage(c.ID)
	case OpToggleMode:
		return reg.ToggleMode()
	case OpToggleActive:
		return reg.ToggleActive()
	}
	return false
}

// Constructors for building commands in Go clients and tests.

// AddImage returns an addImage command.
func AddImage(img overlay.Image) Command {
	return Command{Op: OpAddImage, Image: &img}
}

// RemoveImage returns a removeImage command.
func RemoveImage(id string) Command {
	return Command{Op: OpRemoveImage, ID: id}
}

// SetImageVisibility returns a setImageVisibility command.
func SetImageVisibility(id string, visible bool) Command {
	return Command{Op: OpSetImageVisibility, ID: id, Visible: &visible}
}

// SetImageOpacity returns a setImageOpacity command.
func SetImageOpacity(id string, opacity float64) Command {
	return Command{Op: OpSetImageOpacity, ID: id, Opacity: &opacity}
}

// SetImageColorFilter returns a setImageColorFilter command.
func SetImageColorFilter(id, filter string) Command {
	return Command{Op: OpSetImageColorFilter, ID: id, Filter: &filter}
}

// SetActiveImage returns a setActiveImage command.
func SetActiveImage(id string) Command {
	return Command{Op: OpSetActiveImage, ID: id}
}

// ToggleMode returns a toggleMode command.
func ToggleMode() Command {
	return Command{Op: OpToggleMode}
}

// ToggleActive returns a toggleActive command.
func ToggleActive() Command {
	return Command{Op: OpToggleActive}
}
