// Package chat coordinates the delivery signals around a conversation:
// the local typing debounce, the mirrored remote typing flag, and seen
// propagation. Message bodies travel over REST; only the signals about
// them pass through here.
package chat

import (
	"log/slog"
	"sync"
	"time"

	"mini-live-chat/go-core/internal/command"
	"mini-live-chat/go-core/pkg/models"
)

// Timer is the slice of *time.Timer the coordinator needs. Tests inject
// hand-fired timers; production uses time.AfterFunc.
type Timer interface {
	Stop() bool
	Reset(d time.Duration) bool
}

const (
	defaultDebounce = 2 * time.Second
	defaultExpiry   = 6 * time.Second
)

// Deps wires the coordinator to the transport and its observers.
type Deps struct {
	Local models.User
	Log   *slog.Logger

	// Send publishes one message-kind command to the relay.
	Send func(p command.Payload) error
	// OnTyping observes the remote typing flag, last write wins.
	OnTyping func(peer models.User, typing bool)
	// OnSeen fires when a peer reports having seen the conversation.
	OnSeen func(peer models.User)

	// Debounce is the quiet period after the last keystroke before
	// notTyping goes out.
	Debounce time.Duration
	// Expiry clears a remote typing flag whose notTyping never arrived.
	Expiry time.Duration

	AfterFunc func(d time.Duration, f func()) Timer
}

type remoteTyping struct {
	peer   models.User
	expiry Timer
}

// Coordinator owns the typing and seen state for the local identity.
// Keystrokes arrive from the UI, remote commands from the router's
// dispatch goroutine, and timer callbacks from the runtime; the mutex
// serializes all three.
type Coordinator struct {
	deps Deps

	mu          sync.Mutex
	localTyping bool
	localPeer   models.User
	debounce    Timer
	remote      map[string]*remoteTyping
}

func New(deps Deps) *Coordinator {
	if deps.Debounce <= 0 {
		deps.Debounce = defaultDebounce
	}
	if deps.Expiry <= 0 {
		deps.Expiry = defaultExpiry
	}
	if deps.AfterFunc == nil {
		deps.AfterFunc = func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		}
	}
	return &Coordinator{deps: deps, remote: make(map[string]*remoteTyping)}
}

// Keystroke records local input directed at peer. The first keystroke of
// a burst emits typing; every further one only pushes the debounce timer
// out. Switching peers mid-burst closes the old burst first.
func (c *Coordinator) Keystroke(peer models.User) {
	c.mu.Lock()
	var closeOld *models.User
	if c.localTyping && c.localPeer.ID != peer.ID {
		old := c.localPeer
		closeOld = &old
		c.localTyping = false
	}
	openNew := !c.localTyping
	c.localTyping = true
	c.localPeer = peer
	if c.debounce == nil {
		c.debounce = c.deps.AfterFunc(c.deps.Debounce, c.debounceExpired)
	} else {
		c.debounce.Reset(c.deps.Debounce)
	}
	c.mu.Unlock()

	if closeOld != nil {
		c.emit(*closeOld, command.ActionNotTyping)
	}
	if openNew {
		c.emit(peer, command.ActionTyping)
	}
}

// StopTyping closes the current burst immediately, e.g. when the message
// is sent or the conversation closes. No-op outside a burst.
func (c *Coordinator) StopTyping() {
	c.mu.Lock()
	if !c.localTyping {
		c.mu.Unlock()
		return
	}
	c.localTyping = false
	peer := c.localPeer
	if c.debounce != nil {
		c.debounce.Stop()
	}
	c.mu.Unlock()

	c.emit(peer, command.ActionNotTyping)
}

func (c *Coordinator) debounceExpired() {
	c.mu.Lock()
	if !c.localTyping {
		c.mu.Unlock()
		return
	}
	c.localTyping = false
	peer := c.localPeer
	c.mu.Unlock()

	c.emit(peer, command.ActionNotTyping)
}

// MarkSeen tells peer that the local viewer has caught up with the
// conversation.
func (c *Coordinator) MarkSeen(peer models.User) {
	c.emit(peer, command.ActionSeen)
}

// RemoteTyping reports the mirrored typing flag for peerID.
func (c *Coordinator) RemoteTyping(peerID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.remote[peerID]
	return ok
}

// HandleRemote processes one message-kind delivery signal addressed to
// the local user.
func (c *Coordinator) HandleRemote(p command.Payload) {
	switch p.Action {
	case command.ActionTyping:
		c.setRemoteTyping(p.Sender)
	case command.ActionNotTyping:
		c.clearRemoteTyping(p.Sender.ID, p.Sender)
	case command.ActionSeen:
		if c.deps.OnSeen != nil {
			c.deps.OnSeen(p.Sender)
		}
	default:
		c.deps.Log.Warn("unknown delivery action", "action", p.Action, "sender_id", p.Sender.ID)
	}
}

func (c *Coordinator) setRemoteTyping(peer models.User) {
	c.mu.Lock()
	st, ok := c.remote[peer.ID]
	if ok {
		st.peer = peer
		st.expiry.Reset(c.deps.Expiry)
	} else {
		id := peer.ID
		st = &remoteTyping{peer: peer}
		st.expiry = c.deps.AfterFunc(c.deps.Expiry, func() { c.expireRemoteTyping(id) })
		c.remote[peer.ID] = st
	}
	c.mu.Unlock()

	if !ok && c.deps.OnTyping != nil {
		c.deps.OnTyping(peer, true)
	}
}

func (c *Coordinator) clearRemoteTyping(peerID string, peer models.User) {
	c.mu.Lock()
	st, ok := c.remote[peerID]
	if ok {
		st.expiry.Stop()
		delete(c.remote, peerID)
		peer = st.peer
	}
	c.mu.Unlock()

	if ok && c.deps.OnTyping != nil {
		c.deps.OnTyping(peer, false)
	}
}

func (c *Coordinator) expireRemoteTyping(peerID string) {
	c.mu.Lock()
	st, ok := c.remote[peerID]
	if ok {
		delete(c.remote, peerID)
	}
	c.mu.Unlock()

	if ok {
		c.deps.Log.Debug("remote typing flag expired", "peer_id", peerID)
		if c.deps.OnTyping != nil {
			c.deps.OnTyping(st.peer, false)
		}
	}
}

func (c *Coordinator) emit(peer models.User, action string) {
	if c.deps.Send == nil {
		return
	}
	err := c.deps.Send(command.Payload{
		Sender: c.deps.Local,
		Target: peer,
		Action: action,
	})
	if err != nil {
		c.deps.Log.Warn("delivery signal send failed", "action", action, "error", err)
	}
}
