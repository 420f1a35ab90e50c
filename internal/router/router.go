// Package router turns the undifferentiated broadcast stream into per-peer
// semantics: it decodes each envelope, discards traffic that is not
// addressed to the local identity, suppresses duplicates, and dispatches
// the rest to the owning state machine.
package router

import (
	"log/slog"
	"time"

	"mini-live-chat/go-core/internal/command"
)

// Deps wires the router to its consumers. Handlers run on the socket read
// goroutine; consumers serialize access to their own state.
type Deps struct {
	LocalID string
	Log     *slog.Logger
	Now     func() time.Time

	// Call receives every call-kind payload addressed to the local user.
	Call func(command.Payload)
	// Chat receives message-kind payloads carrying a delivery action
	// (typing, notTyping, seen).
	Chat func(command.Payload)
	// Activity receives message-kind payloads with no action: a hint that
	// new content exists for the sender's conversation.
	Activity func(command.Payload)
	// Observe receives notification and update kinds verbatim.
	Observe func(kind command.Kind, p command.Payload)
}

type Router struct {
	deps  Deps
	dedup *command.DedupCache
}

func New(deps Deps) *Router {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Router{deps: deps, dedup: command.NewDedupCache()}
}

// Handle consumes one rebroadcast envelope. Malformed or non-self-targeted
// envelopes are dropped here and never reach a state machine; duplicate
// commands are no-ops.
func (r *Router) Handle(env command.Envelope) {
	payload, err := command.DecodePayload(env)
	if err != nil {
		r.deps.Log.Warn("dropping undecodable envelope", "error", err)
		return
	}
	if payload.Target.ID != r.deps.LocalID {
		return
	}

	now := r.deps.Now()
	if !r.dedup.Admit(command.DedupKey(env.Kind, payload, now), now) {
		r.deps.Log.Debug("ignoring duplicate command",
			"kind", string(env.Kind), "sender_id", payload.Sender.ID)
		return
	}

	switch env.Kind {
	case command.KindCall:
		if r.deps.Call != nil {
			r.deps.Call(payload)
		}
	case command.KindMessage:
		switch payload.Action {
		case command.ActionTyping, command.ActionNotTyping, command.ActionSeen:
			if r.deps.Chat != nil {
				r.deps.Chat(payload)
			}
		case "":
			if r.deps.Activity != nil {
				r.deps.Activity(payload)
			}
		default:
			r.deps.Log.Warn("unknown message action",
				"action", payload.Action, "sender_id", payload.Sender.ID)
		}
	case command.KindNotification, command.KindUpdate:
		if r.deps.Observe != nil {
			r.deps.Observe(env.Kind, payload)
		}
	}
}
