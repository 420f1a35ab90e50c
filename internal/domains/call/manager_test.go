package call

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"mini-live-chat/go-core/internal/command"
	"mini-live-chat/go-core/pkg/models"
)

type callHarness struct {
	m      *Manager
	sent   []command.Payload
	phases []Session
	media  *countingMedia
}

type countingMedia struct{ stops int }

func (c *countingMedia) Stop() { c.stops++ }

func newHarness(t *testing.T, local models.User) *callHarness {
	t.Helper()
	h := &callHarness{media: &countingMedia{}}
	h.m = New(Deps{
		Local: local,
		Log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Send: func(p command.Payload) error {
			h.sent = append(h.sent, p)
			return nil
		},
		Media:   h.media,
		OnPhase: func(s Session) { h.phases = append(h.phases, s) },
	})
	return h
}

func (h *callHarness) lastSent(t *testing.T) command.Payload {
	t.Helper()
	if len(h.sent) == 0 {
		t.Fatalf("expected at least one sent payload")
	}
	return h.sent[len(h.sent)-1]
}

var (
	alice = models.User{ID: "usr_a", DisplayName: "Alice"}
	bob   = models.User{ID: "usr_b", DisplayName: "Bob"}
	carol = models.User{ID: "usr_c", DisplayName: "Carol"}
)

func TestOutgoingCallLifecycle(t *testing.T) {
	caller := newHarness(t, alice)
	callee := newHarness(t, bob)

	token, err := caller.m.Initiate(bob)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if token == "" {
		t.Fatalf("expected non-empty room token")
	}
	if got := caller.m.Current().Phase; got != PhaseInitiated {
		t.Fatalf("caller phase = %q, want %q", got, PhaseInitiated)
	}
	init := caller.lastSent(t)
	if init.Action != command.ActionInitiateCall || init.Text != token {
		t.Fatalf("initiate payload = %+v, want action %q with token %q", init, command.ActionInitiateCall, token)
	}
	if init.Target.ID != bob.ID || init.Sender.ID != alice.ID {
		t.Fatalf("initiate addressed %s -> %s", init.Sender.ID, init.Target.ID)
	}

	callee.m.HandleRemote(init)
	got := callee.m.Current()
	if got.Phase != PhaseRinging || got.RoomToken != token || got.Peer.ID != alice.ID {
		t.Fatalf("callee session = %+v, want ringing from alice with token %q", got, token)
	}

	if err := callee.m.Accept(); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if callee.m.Current().Phase != PhaseConnected {
		t.Fatalf("callee not connected after accept")
	}

	caller.m.HandleRemote(callee.lastSent(t))
	final := caller.m.Current()
	if final.Phase != PhaseConnected || final.RoomToken != token {
		t.Fatalf("caller session = %+v, want connected with token %q", final, token)
	}
}

func TestInitiateRejectedWhileLive(t *testing.T) {
	h := newHarness(t, alice)
	if _, err := h.m.Initiate(bob); err != nil {
		t.Fatalf("first Initiate: %v", err)
	}
	if _, err := h.m.Initiate(carol); !errors.Is(err, ErrCallInProgress) {
		t.Fatalf("second Initiate err = %v, want ErrCallInProgress", err)
	}
}

func TestInitiateSendFailureResetsToIdle(t *testing.T) {
	h := &callHarness{media: &countingMedia{}}
	h.m = New(Deps{
		Local:   alice,
		Log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Send:    func(command.Payload) error { return errors.New("relay down") },
		Media:   h.media,
		OnPhase: func(s Session) { h.phases = append(h.phases, s) },
	})
	if _, err := h.m.Initiate(bob); err == nil {
		t.Fatalf("expected send error to surface")
	}
	if got := h.m.Current().Phase; got != PhaseNone {
		t.Fatalf("phase after failed initiate = %q, want %q", got, PhaseNone)
	}
}

func TestBusyAutoReject(t *testing.T) {
	h := newHarness(t, bob)
	if _, err := h.m.Initiate(alice); err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	before := h.m.Current()

	h.m.HandleRemote(command.Payload{
		Sender: carol,
		Target: bob,
		Action: command.ActionInitiateCall,
		Text:   "room-x",
	})

	reject := h.lastSent(t)
	if reject.Action != command.ActionRejectCall || reject.Target.ID != carol.ID {
		t.Fatalf("busy response = %+v, want reject to carol", reject)
	}
	after := h.m.Current()
	if after.Phase != before.Phase || after.Peer.ID != before.Peer.ID {
		t.Fatalf("existing session disturbed: %+v", after)
	}
}

func TestGlareLowerIDKeepsAttempt(t *testing.T) {
	h := newHarness(t, alice)
	token, err := h.m.Initiate(bob)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	sends := len(h.sent)

	h.m.HandleRemote(command.Payload{
		Sender: bob,
		Target: alice,
		Action: command.ActionInitiateCall,
		Text:   "bobs-room",
	})

	got := h.m.Current()
	if got.Phase != PhaseInitiated || got.RoomToken != token {
		t.Fatalf("lower ID should keep its attempt, got %+v", got)
	}
	if len(h.sent) != sends {
		t.Fatalf("lower ID sent %d extra payloads during glare", len(h.sent)-sends)
	}
}

func TestGlareHigherIDYields(t *testing.T) {
	h := newHarness(t, bob)
	if _, err := h.m.Initiate(alice); err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	sends := len(h.sent)

	h.m.HandleRemote(command.Payload{
		Sender: alice,
		Target: bob,
		Action: command.ActionInitiateCall,
		Text:   "alices-room",
	})

	got := h.m.Current()
	if got.Phase != PhaseRinging || got.RoomToken != "alices-room" || got.Peer.ID != alice.ID {
		t.Fatalf("higher ID should ring with winner token, got %+v", got)
	}
	if len(h.sent) != sends {
		t.Fatalf("yielding side must stay silent, sent %d payloads", len(h.sent)-sends)
	}
}

func TestCancelOnlyFromInitiated(t *testing.T) {
	h := newHarness(t, alice)
	if err := h.m.Cancel(); !errors.Is(err, ErrNoActiveCall) {
		t.Fatalf("Cancel with no session err = %v, want ErrNoActiveCall", err)
	}

	if _, err := h.m.Initiate(bob); err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if err := h.m.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got := h.lastSent(t).Action; got != command.ActionCancelCall {
		t.Fatalf("sent action = %q, want %q", got, command.ActionCancelCall)
	}
	if h.m.Current().Phase != PhaseNone {
		t.Fatalf("session not reset after cancel")
	}
	if h.media.stops != 0 {
		t.Fatalf("cancel must not touch media, stops = %d", h.media.stops)
	}
}

func TestRejectRingingCall(t *testing.T) {
	h := newHarness(t, bob)
	h.m.HandleRemote(command.Payload{
		Sender: alice,
		Target: bob,
		Action: command.ActionInitiateCall,
		Text:   "room-1",
	})
	if err := h.m.Reject(); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if got := h.lastSent(t).Action; got != command.ActionRejectCall {
		t.Fatalf("sent action = %q, want %q", got, command.ActionRejectCall)
	}
	if h.m.Current().Phase != PhaseNone {
		t.Fatalf("session not reset after reject")
	}
}

func TestLeaveStopsMediaBeforeTeardown(t *testing.T) {
	caller := newHarness(t, alice)
	if _, err := caller.m.Initiate(bob); err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	caller.m.HandleRemote(command.Payload{
		Sender: bob,
		Target: alice,
		Action: command.ActionAcceptCall,
	})
	if caller.m.Current().Phase != PhaseConnected {
		t.Fatalf("not connected after remote accept")
	}

	if err := caller.m.Leave(); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if caller.media.stops != 1 {
		t.Fatalf("media stops = %d, want 1", caller.media.stops)
	}
	if got := caller.lastSent(t).Action; got != command.ActionDisconnectCall {
		t.Fatalf("sent action = %q, want %q", got, command.ActionDisconnectCall)
	}
	if caller.m.Current().Phase != PhaseNone {
		t.Fatalf("session not reset after leave")
	}
}

func TestLeaveWithoutSessionIsNoop(t *testing.T) {
	h := newHarness(t, alice)
	if err := h.m.Leave(); err != nil {
		t.Fatalf("Leave on idle manager: %v", err)
	}
	if len(h.sent) != 0 || len(h.phases) != 0 {
		t.Fatalf("idle Leave produced side effects: sent=%d phases=%d", len(h.sent), len(h.phases))
	}
}

func TestRemoteTerminalIgnoredAfterTeardown(t *testing.T) {
	h := newHarness(t, bob)
	h.m.HandleRemote(command.Payload{
		Sender: alice,
		Target: bob,
		Action: command.ActionInitiateCall,
		Text:   "room-1",
	})
	h.m.HandleRemote(command.Payload{
		Sender: alice,
		Target: bob,
		Action: command.ActionCancelCall,
	})
	phases := len(h.phases)

	// A straggling duplicate terminal must not re-notify or send.
	h.m.HandleRemote(command.Payload{
		Sender: alice,
		Target: bob,
		Action: command.ActionCancelCall,
	})
	if len(h.phases) != phases {
		t.Fatalf("duplicate terminal re-notified observers")
	}
	if h.m.Current().Phase != PhaseNone {
		t.Fatalf("session phase = %q, want %q", h.m.Current().Phase, PhaseNone)
	}
}

func TestRemoteDisconnectStopsMedia(t *testing.T) {
	h := newHarness(t, bob)
	h.m.HandleRemote(command.Payload{
		Sender: alice,
		Target: bob,
		Action: command.ActionInitiateCall,
		Text:   "room-1",
	})
	if err := h.m.Accept(); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	h.m.HandleRemote(command.Payload{
		Sender: alice,
		Target: bob,
		Action: command.ActionDisconnectCall,
	})
	if h.media.stops != 1 {
		t.Fatalf("media stops = %d, want 1", h.media.stops)
	}
	if h.m.Current().Phase != PhaseNone {
		t.Fatalf("session not reset after remote disconnect")
	}
}

func TestRemoteAcceptRequiresMatchingPeer(t *testing.T) {
	h := newHarness(t, alice)
	if _, err := h.m.Initiate(bob); err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	h.m.HandleRemote(command.Payload{
		Sender: carol,
		Target: alice,
		Action: command.ActionAcceptCall,
	})
	if got := h.m.Current().Phase; got != PhaseInitiated {
		t.Fatalf("phase = %q after accept from wrong peer, want %q", got, PhaseInitiated)
	}
}

func TestNewRoomTokenShape(t *testing.T) {
	a, err := NewRoomToken()
	if err != nil {
		t.Fatalf("NewRoomToken: %v", err)
	}
	if parts := strings.Split(a, "-"); len(parts) != roomTokenWords {
		t.Fatalf("token %q has %d words, want %d", a, len(parts), roomTokenWords)
	}
	b, err := NewRoomToken()
	if err != nil {
		t.Fatalf("NewRoomToken: %v", err)
	}
	if a == b {
		t.Fatalf("two tokens collided: %q", a)
	}
}
