package router

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"mini-live-chat/go-core/internal/command"
	"mini-live-chat/go-core/pkg/models"
)

type recorder struct {
	calls    []command.Payload
	chats    []command.Payload
	activity []command.Payload
	observed []command.Kind
}

func newTestRouter(localID string) (*Router, *recorder) {
	rec := &recorder{}
	r := New(Deps{
		LocalID:  localID,
		Log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Call:     func(p command.Payload) { rec.calls = append(rec.calls, p) },
		Chat:     func(p command.Payload) { rec.chats = append(rec.chats, p) },
		Activity: func(p command.Payload) { rec.activity = append(rec.activity, p) },
		Observe:  func(k command.Kind, _ command.Payload) { rec.observed = append(rec.observed, k) },
	})
	return r, rec
}

func envelopeFor(t *testing.T, kind command.Kind, p command.Payload) command.Envelope {
	t.Helper()
	env, err := command.Encode(kind, p)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return env
}

func payloadTo(target, action string) command.Payload {
	return command.Payload{
		Sender: models.User{ID: "remote"},
		Target: models.User{ID: target},
		Action: action,
	}
}

func TestForeignTargetNeverDispatches(t *testing.T) {
	r, rec := newTestRouter("me")
	r.Handle(envelopeFor(t, command.KindCall, payloadTo("someone-else", command.ActionInitiateCall)))
	r.Handle(envelopeFor(t, command.KindMessage, payloadTo("someone-else", command.ActionTyping)))
	if len(rec.calls)+len(rec.chats)+len(rec.activity)+len(rec.observed) != 0 {
		t.Fatalf("nothing should dispatch for foreign targets: %+v", rec)
	}
}

func TestDispatchByKind(t *testing.T) {
	r, rec := newTestRouter("me")

	r.Handle(envelopeFor(t, command.KindCall, payloadTo("me", command.ActionInitiateCall)))
	if len(rec.calls) != 1 {
		t.Fatalf("expected call dispatch, got %+v", rec)
	}

	r.Handle(envelopeFor(t, command.KindMessage, payloadTo("me", command.ActionTyping)))
	r.Handle(envelopeFor(t, command.KindMessage, payloadTo("me", command.ActionSeen)))
	if len(rec.chats) != 2 {
		t.Fatalf("expected chat dispatches, got %+v", rec)
	}

	r.Handle(envelopeFor(t, command.KindMessage, payloadTo("me", "")))
	if len(rec.activity) != 1 {
		t.Fatalf("expected activity hint, got %+v", rec)
	}

	r.Handle(envelopeFor(t, command.KindNotification, payloadTo("me", "")))
	r.Handle(envelopeFor(t, command.KindUpdate, payloadTo("me", "")))
	if len(rec.observed) != 2 {
		t.Fatalf("expected observer dispatches, got %+v", rec)
	}
}

func TestDuplicateEnvelopeIsNoOp(t *testing.T) {
	r, rec := newTestRouter("me")
	p := payloadTo("me", command.ActionInitiateCall)
	p.Seq = 42
	env := envelopeFor(t, command.KindCall, p)

	r.Handle(env)
	r.Handle(env)
	if len(rec.calls) != 1 {
		t.Fatalf("duplicate must not double-apply, got %d dispatches", len(rec.calls))
	}
}

func TestMalformedEnvelopeDropped(t *testing.T) {
	r, rec := newTestRouter("me")
	r.Handle(command.Envelope{Kind: command.KindCall, Content: "not json"})
	r.Handle(command.Envelope{Kind: "bogus", Content: "{}"})
	if len(rec.calls) != 0 {
		t.Fatalf("malformed envelopes must be dropped, got %+v", rec)
	}
}

func TestDuplicateFallbackKeySameBucket(t *testing.T) {
	rec := &recorder{}
	fixed := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	r := New(Deps{
		LocalID: "me",
		Log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:     func() time.Time { return fixed },
		Chat:    func(p command.Payload) { rec.chats = append(rec.chats, p) },
	})
	env := envelopeFor(t, command.KindMessage, payloadTo("me", command.ActionSeen))
	r.Handle(env)
	r.Handle(env)
	if len(rec.chats) != 1 {
		t.Fatalf("unsequenced duplicate in same bucket must be suppressed, got %d", len(rec.chats))
	}
}

func TestRestartedSenderSequenceNotSuppressed(t *testing.T) {
	r, rec := newTestRouter("me")

	send := func(origin string, seq uint64, action string) {
		p := payloadTo("me", action)
		p.Origin = origin
		p.Seq = seq
		r.Handle(envelopeFor(t, command.KindCall, p))
	}

	// First session: initiate then cancel.
	send("ses_one", 1, command.ActionInitiateCall)
	send("ses_one", 2, command.ActionCancelCall)

	// The sender restarts and calls again; its sequence begins at 1
	// again under a new origin. This is a fresh command, not a replay.
	send("ses_two", 1, command.ActionInitiateCall)

	if len(rec.calls) != 3 {
		t.Fatalf("dispatched %d call commands, want 3", len(rec.calls))
	}
	if got := rec.calls[2].Action; got != command.ActionInitiateCall {
		t.Fatalf("third dispatch = %q, want %q", got, command.ActionInitiateCall)
	}

	// A true replay from the new session is still suppressed.
	send("ses_two", 1, command.ActionInitiateCall)
	if len(rec.calls) != 3 {
		t.Fatalf("replayed command dispatched, have %d", len(rec.calls))
	}
}
