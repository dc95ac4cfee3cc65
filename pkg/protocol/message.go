package protocol

import (
	"encoding/json"
	"errors"

	"github.com/cephview/cephview/pkg/overlay"
)

// MessageType identifies a server-to-client message.
type MessageType string

const (
	// MessageSnapshot carries the full registry state.
	MessageSnapshot MessageType = "snapshot"

	// MessageError reports a rejected command or a server problem.
	MessageError MessageType = "error"

	// MessageEnded tells the client its session has ended.
	MessageEnded MessageType = "ended"
)

// ErrorCode identifies the type of error in an error message.
type ErrorCode string

const (
	CodeMalformed    ErrorCode = "malformed"
	CodeUnknownOp    ErrorCode = "unknown_op"
	CodeMissingField ErrorCode = "missing_field"
	CodeTooLarge     ErrorCode = "too_large"
	CodeServerError  ErrorCode = "server_error"
)

// ErrorBody is the payload of an error message.
type ErrorBody struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Message is sent from the server to the client.
type Message struct {
	Type     MessageType       `json:"type"`
	Snapshot *overlay.Snapshot `json:"snapshot,omitempty"`
	Error    *ErrorBody        `json:"error,omitempty"`
}

// SnapshotMessage wraps a registry snapshot.
func SnapshotMessage(s overlay.Snapshot) Message {
	return Message{Type: MessageSnapshot, Snapshot: &s}
}

// ErrorMessage builds an error message, mapping decode errors to codes.
func ErrorMessage(err error) Message {
	return Message{
		Type: MessageError,
		Error: &ErrorBody{
			Code:    CodeFor(err),
			Message: err.Error(),
		},
	}
}

// EndedMessage tells the client the session is gone.
func EndedMessage() Message {
	return Message{Type: MessageEnded}
}

// CodeFor maps a decode error to its wire code.
func CodeFor(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrUnknownOp):
		return CodeUnknownOp
	case errors.Is(err, ErrMissingField):
		return CodeMissingField
	case errors.Is(err, ErrTooLarge):
		return CodeTooLarge
	case errors.Is(err, ErrMalformed):
		return CodeMalformed
	default:
		return CodeServerError
	}
}

// Encode marshals the message to JSON.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}
