// Package command owns the relay wire format: the outer frame carried on
// the broadcast socket, the typed envelope inside it, and the kind-specific
// payload inside that. The relay never looks past the envelope; everything
// below it is decoded client-side.
package command

import (
	"encoding/json"
	"fmt"
	"strings"

	"mini-live-chat/go-core/pkg/models"
)

// Kind discriminates the four envelope families carried over the relay.
type Kind string

const (
	KindCall         Kind = "call"
	KindMessage      Kind = "message"
	KindNotification Kind = "notification"
	KindUpdate       Kind = "update"
)

// EventGlobalCommand is the single event name the relay speaks.
const EventGlobalCommand = "global command"

// Frame is the socket-level wrapper: event name plus envelope.
type Frame struct {
	Event string   `json:"event"`
	Data  Envelope `json:"data"`
}

// Envelope is the transport-level wrapper. Content is opaque to the relay
// and immutable once sent.
type Envelope struct {
	Kind    Kind   `json:"type"`
	Content string `json:"content"`
}

// Payload is the decoded command. Sender and Target carry the full minimal
// user record so receivers can surface names without a lookup. Seq is a
// per-sender, per-kind monotonic sequence number used for duplicate
// suppression; zero means the sender predates sequencing. Origin names the
// sender's sequencer instance: sequence numbers restart at 1 when a client
// restarts, and without the origin a receiver's dedup cache would swallow
// the fresh seq=1 as a replay of the previous session's.
type Payload struct {
	Sender models.User `json:"sender"`
	Target models.User `json:"target"`
	Action string      `json:"action,omitempty"`
	Text   string      `json:"text,omitempty"`
	Seq    uint64      `json:"seq,omitempty"`
	Origin string      `json:"origin,omitempty"`
}

// DecodeError reports a malformed frame, envelope or payload. It is dropped
// with a diagnostic at the router boundary and never reaches a state machine.
type DecodeError struct {
	Stage  string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("command decode failed at %s: %s", e.Stage, e.Reason)
}

func decodeErr(stage, format string, args ...any) error {
	return &DecodeError{Stage: stage, Reason: fmt.Sprintf(format, args...)}
}

func knownKind(k Kind) bool {
	switch k {
	case KindCall, KindMessage, KindNotification, KindUpdate:
		return true
	}
	return false
}

// Encode builds an envelope around the payload.
func Encode(kind Kind, payload Payload) (Envelope, error) {
	if !knownKind(kind) {
		return Envelope{}, decodeErr("envelope", "unknown kind %q", kind)
	}
	if strings.TrimSpace(payload.Sender.ID) == "" {
		return Envelope{}, decodeErr("payload", "sender is required")
	}
	if strings.TrimSpace(payload.Target.ID) == "" {
		return Envelope{}, decodeErr("payload", "target is required")
	}
	content, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, decodeErr("payload", "marshal: %v", err)
	}
	return Envelope{Kind: kind, Content: string(content)}, nil
}

// EncodeFrame wraps the envelope in the socket-level frame.
func EncodeFrame(env Envelope) ([]byte, error) {
	return json.Marshal(Frame{Event: EventGlobalCommand, Data: env})
}

// DecodeFrame parses a raw socket message and validates the envelope shape.
// The relay uses this for its admit-or-drop decision; it never parses Content.
func DecodeFrame(raw []byte) (Envelope, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Envelope{}, decodeErr("frame", "unmarshal: %v", err)
	}
	if frame.Event != EventGlobalCommand {
		return Envelope{}, decodeErr("frame", "unexpected event %q", frame.Event)
	}
	return frame.Data, ValidateEnvelope(frame.Data)
}

// ValidateEnvelope checks the relay-visible envelope invariants: a known
// kind and a non-empty content string.
func ValidateEnvelope(env Envelope) error {
	if !knownKind(env.Kind) {
		return decodeErr("envelope", "unknown kind %q", env.Kind)
	}
	if env.Content == "" {
		return decodeErr("envelope", "empty content")
	}
	return nil
}

// DecodePayload parses the inner payload and enforces required fields.
func DecodePayload(env Envelope) (Payload, error) {
	if err := ValidateEnvelope(env); err != nil {
		return Payload{}, err
	}
	var payload Payload
	if err := json.Unmarshal([]byte(env.Content), &payload); err != nil {
		return Payload{}, decodeErr("payload", "unmarshal: %v", err)
	}
	if strings.TrimSpace(payload.Sender.ID) == "" {
		return Payload{}, decodeErr("payload", "sender is required")
	}
	if strings.TrimSpace(payload.Target.ID) == "" {
		return Payload{}, decodeErr("payload", "target is required")
	}
	return payload, nil
}
