// Package call drives the signaling state machine for one-to-one calls.
// The relay gives at-least-once, unaddressed delivery; everything
// call-shaped about it (phases, glare, busy handling) lives here.
package call

import (
	"mini-live-chat/go-core/pkg/models"
)

// Phase is the lifecycle position of a call session.
type Phase string

const (
	PhaseNone         Phase = "none"
	PhaseInitiated    Phase = "initiated"
	PhaseRinging      Phase = "ringing"
	PhaseConnected    Phase = "connected"
	PhaseCancelled    Phase = "cancelled"
	PhaseDisconnected Phase = "disconnected"
)

// Terminal reports whether the phase ends a session.
func (p Phase) Terminal() bool {
	return p == PhaseCancelled || p == PhaseDisconnected
}

// Live reports whether a session in this phase blocks a new call.
func (p Phase) Live() bool {
	switch p {
	case PhaseInitiated, PhaseRinging, PhaseConnected:
		return true
	}
	return false
}

// Session is a snapshot of the current call: the remote peer, the phase and
// the room token minted by the caller and carried to the callee.
type Session struct {
	Peer      models.User
	Phase     Phase
	RoomToken string
}
