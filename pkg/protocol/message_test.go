package protocol

import (
	"errors"
	"fmt"
	"testing"

	"github.com/cephview/cephview/pkg/overlay"
)

func TestSnapshotMessageEncode(t *testing.T) {
	reg := overlay.NewRegistry()
	reg.AddImage(overlay.Image{ID: "a", Visible: true, Opacity: 1})

	data, err := SnapshotMessage(reg.Snapshot()).Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	want := `{"type":"snapshot","snapshot":{"version":1,"images":[{"id":"a","visible":true,"opacity":1}],"activeImageId":"a","mode":"overlay","active":false}}`
	if string(data) != want {
		t.Errorf("unexpected JSON:\n got %s\nwant %s", data, want)
	}
}

func TestErrorMessageCodes(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorCode
	}{
		{fmt.Errorf("%w: x", ErrUnknownOp), CodeUnknownOp},
		{fmt.Errorf("command 2: %w", ErrMissingField), CodeMissingField},
		{ErrTooLarge, CodeTooLarge},
		{ErrMalformed, CodeMalformed},
		{errors.New("boom"), CodeServerError},
	}
	for _, tt := range tests {
		msg := ErrorMessage(tt.err)
		if msg.Type != MessageError || msg.Error == nil {
			t.Fatalf("unexpected message: %+v", msg)
		}
		if msg.Error.Code != tt.want {
			t.Errorf("CodeFor(%v) = %s, want %s", tt.err, msg.Error.Code, tt.want)
		}
	}
}

func TestEndedMessageEncode(t *testing.T) {
	data, err := EndedMessage().Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if string(data) != `{"type":"ended"}` {
		t.Errorf("unexpected JSON: %s", data)
	}
}
