package call

import (
	"errors"
	"log/slog"
	"sync"

	"mini-live-chat/go-core/internal/command"
	"mini-live-chat/go-core/pkg/models"
)

var (
	// ErrCallInProgress rejects a second outgoing call; there is no call
	// waiting.
	ErrCallInProgress = errors.New("a call is already in progress")
	// ErrNoActiveCall rejects accept/cancel without a session to act on.
	ErrNoActiveCall = errors.New("no active call")
)

// Media abstracts the local media pipeline. Stop must be idempotent; the
// manager calls it synchronously before any session teardown.
type Media interface {
	Stop()
}

type noopMedia struct{}

func (noopMedia) Stop() {}

// Deps wires the manager to the transport and its observers.
type Deps struct {
	Local models.User
	Log   *slog.Logger

	// Send publishes one call command to the relay. The manager fills
	// sender, target, action and text.
	Send func(p command.Payload) error
	// Media is stopped before every teardown; nil means no local media.
	Media Media
	// OnPhase observes every session transition, including terminal ones
	// that immediately reset the manager to idle.
	OnPhase func(Session)
}

// Manager owns at most one live call session for the local identity and
// serializes every transition behind its lock: remote commands arrive on
// the socket goroutine while the UI calls Initiate/Accept/Leave.
type Manager struct {
	deps Deps

	mu   sync.Mutex
	sess Session
}

func New(deps Deps) *Manager {
	if deps.Media == nil {
		deps.Media = noopMedia{}
	}
	return &Manager{deps: deps, sess: Session{Phase: PhaseNone}}
}

// Current returns a snapshot of the session.
func (m *Manager) Current() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess
}

// Initiate starts an outgoing call to peer, minting the room token that
// rides the initiate command. Rejected while any session is live.
func (m *Manager) Initiate(peer models.User) (string, error) {
	m.mu.Lock()
	if m.sess.Phase.Live() {
		m.mu.Unlock()
		return "", ErrCallInProgress
	}
	token, err := NewRoomToken()
	if err != nil {
		m.mu.Unlock()
		return "", err
	}
	m.sess = Session{Peer: peer, Phase: PhaseInitiated, RoomToken: token}
	snapshot := m.sess
	m.mu.Unlock()

	m.notify(snapshot)
	if err := m.send(peer, command.ActionInitiateCall, token); err != nil {
		m.terminate(PhaseCancelled, false)
		return "", err
	}
	return token, nil
}

// Cancel withdraws an outgoing call before it connects.
func (m *Manager) Cancel() error {
	m.mu.Lock()
	if m.sess.Phase != PhaseInitiated {
		m.mu.Unlock()
		return ErrNoActiveCall
	}
	peer := m.sess.Peer
	m.mu.Unlock()

	m.terminate(PhaseCancelled, false)
	return m.send(peer, command.ActionCancelCall, "")
}

// Accept answers a ringing incoming call.
func (m *Manager) Accept() error {
	m.mu.Lock()
	if m.sess.Phase != PhaseRinging {
		m.mu.Unlock()
		return ErrNoActiveCall
	}
	m.sess.Phase = PhaseConnected
	snapshot := m.sess
	m.mu.Unlock()

	m.notify(snapshot)
	return m.send(snapshot.Peer, command.ActionAcceptCall, "")
}

// Reject declines a ringing incoming call.
func (m *Manager) Reject() error {
	m.mu.Lock()
	if m.sess.Phase != PhaseRinging {
		m.mu.Unlock()
		return ErrNoActiveCall
	}
	peer := m.sess.Peer
	m.mu.Unlock()

	m.terminate(PhaseCancelled, false)
	return m.send(peer, command.ActionRejectCall, "")
}

// Leave ends the session from any non-terminal phase. Local media stops
// before teardown. Calling Leave with nothing to leave is a no-op.
func (m *Manager) Leave() error {
	m.mu.Lock()
	if !m.sess.Phase.Live() {
		m.mu.Unlock()
		return nil
	}
	peer := m.sess.Peer
	m.mu.Unlock()

	m.terminate(PhaseDisconnected, true)
	return m.send(peer, command.ActionDisconnectCall, "")
}

// HandleRemote processes one call command addressed to the local user.
// Duplicates were already filtered by the router; a terminal action on an
// already-terminal session is still a no-op here.
func (m *Manager) HandleRemote(p command.Payload) {
	switch p.Action {
	case command.ActionInitiateCall:
		m.handleRemoteInitiate(p)
	case command.ActionAcceptCall:
		m.handleRemoteAccept(p)
	case command.ActionCancelCall, command.ActionRejectCall:
		m.handleRemoteTerminal(p, PhaseCancelled)
	case command.ActionDisconnectCall:
		m.handleRemoteTerminal(p, PhaseDisconnected)
	default:
		m.deps.Log.Warn("unknown call action", "action", p.Action, "sender_id", p.Sender.ID)
	}
}

func (m *Manager) handleRemoteInitiate(p command.Payload) {
	m.mu.Lock()
	if m.sess.Phase.Live() {
		glare := m.sess.Phase == PhaseInitiated && m.sess.Peer.ID == p.Sender.ID
		if !glare {
			// Busy with another call: decline without disturbing it.
			m.mu.Unlock()
			m.deps.Log.Info("auto-rejecting call while busy", "sender_id", p.Sender.ID)
			_ = m.send(p.Sender, command.ActionRejectCall, "")
			return
		}
		// Both sides dialed each other at once. The lower identity keeps
		// its outgoing attempt; the higher one yields and rings with the
		// winner's room token. No cancel goes on the wire: the winner
		// simply never sees the loser's attempt progress.
		if m.deps.Local.ID < p.Sender.ID {
			m.mu.Unlock()
			m.deps.Log.Info("glare: keeping local attempt", "sender_id", p.Sender.ID)
			return
		}
		m.deps.Log.Info("glare: yielding to remote attempt", "sender_id", p.Sender.ID)
		m.sess = Session{Peer: p.Sender, Phase: PhaseRinging, RoomToken: p.Text}
		snapshot := m.sess
		m.mu.Unlock()
		m.notify(snapshot)
		return
	}

	m.sess = Session{Peer: p.Sender, Phase: PhaseRinging, RoomToken: p.Text}
	snapshot := m.sess
	m.mu.Unlock()
	m.notify(snapshot)
}

func (m *Manager) handleRemoteAccept(p command.Payload) {
	m.mu.Lock()
	if m.sess.Phase != PhaseInitiated || m.sess.Peer.ID != p.Sender.ID {
		m.mu.Unlock()
		return
	}
	m.sess.Phase = PhaseConnected
	snapshot := m.sess
	m.mu.Unlock()
	m.notify(snapshot)
}

func (m *Manager) handleRemoteTerminal(p command.Payload, phase Phase) {
	m.mu.Lock()
	if !m.sess.Phase.Live() || m.sess.Peer.ID != p.Sender.ID {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.terminate(phase, phase == PhaseDisconnected)
}

// terminate moves the session to a terminal phase, notifies observers and
// resets to idle. stopMedia is true for disconnects of possibly-connected
// sessions.
func (m *Manager) terminate(phase Phase, stopMedia bool) {
	if stopMedia {
		m.deps.Media.Stop()
	}
	m.mu.Lock()
	m.sess.Phase = phase
	snapshot := m.sess
	m.sess = Session{Phase: PhaseNone}
	m.mu.Unlock()
	m.notify(snapshot)
}

func (m *Manager) send(peer models.User, action, text string) error {
	if m.deps.Send == nil {
		return nil
	}
	err := m.deps.Send(command.Payload{
		Sender: m.deps.Local,
		Target: peer,
		Action: action,
		Text:   text,
	})
	if err != nil {
		m.deps.Log.Warn("call signal send failed", "action", action, "error", err)
	}
	return err
}

func (m *Manager) notify(s Session) {
	if m.deps.OnPhase != nil {
		m.deps.OnPhase(s)
	}
}
