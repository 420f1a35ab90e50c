// Package session is the client core's composition root. It owns the
// local identity, wires the relay socket through the router into the
// call, chat, thread and transcript state machines, and fronts the REST
// collaborator for everything persistent.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"mini-live-chat/go-core/internal/apiclient"
	"mini-live-chat/go-core/internal/command"
	"mini-live-chat/go-core/internal/config"
	"mini-live-chat/go-core/internal/domains/call"
	"mini-live-chat/go-core/internal/domains/chat"
	"mini-live-chat/go-core/internal/domains/thread"
	"mini-live-chat/go-core/internal/router"
	"mini-live-chat/go-core/internal/securestore"
	"mini-live-chat/go-core/internal/socket"
	"mini-live-chat/go-core/internal/transcript"
	"mini-live-chat/go-core/pkg/models"
)

// Notification is the out-of-app alert for activity in a conversation
// that is not currently open.
type Notification struct {
	From models.User
	Text string
}

// Hooks are the UI-facing observers. All of them are optional and may be
// invoked from network goroutines.
type Hooks struct {
	OnCallPhase  func(call.Session)
	OnTyping     func(peer models.User, typing bool)
	OnNotify     func(n Notification)
	OnTranscript func(threadID string)
	OnObserve    func(kind command.Kind, p command.Payload)
}

// Core drives one signed-in client. Construct with New, authenticate with
// Login, Signup or Resume, then Start to go live on the relay.
type Core struct {
	cfg   config.ClientConfig
	log   *slog.Logger
	api   *apiclient.Client
	sock  *socket.Client
	vault *securestore.Vault
	media call.Media
	hooks Hooks

	mu     sync.Mutex
	local  models.User
	seq    *command.Sequencer
	route  *router.Router
	calls  *call.Manager
	chat   *chat.Coordinator
	store  *thread.MemoryStore
	solver *thread.Resolver
	script *transcript.Transcript
	open   models.Thread
}

func New(cfg config.ClientConfig, log *slog.Logger, api *apiclient.Client, sock *socket.Client, vault *securestore.Vault, media call.Media, hooks Hooks) *Core {
	c := &Core{
		cfg:   cfg,
		log:   log,
		api:   api,
		sock:  sock,
		vault: vault,
		media: media,
		hooks: hooks,
	}
	sock.OnEnvelope(c.handleEnvelope)
	sock.OnReconnect(func() {
		c.log.Info("relay reconnected, refreshing state")
		go func() {
			if err := c.Refresh(context.Background()); err != nil {
				c.log.Warn("post-reconnect refresh failed", "error", err)
			}
		}()
	})
	return c
}

// Login authenticates against the REST collaborator and persists the
// credentials in the vault.
func (c *Core) Login(ctx context.Context, email, password string) error {
	resp, err := c.api.Login(ctx, email, password)
	if err != nil {
		return err
	}
	return c.adopt(resp)
}

// Signup registers a new account and signs it in.
func (c *Core) Signup(ctx context.Context, displayName, email, password string) error {
	resp, err := c.api.Signup(ctx, displayName, email, password)
	if err != nil {
		return err
	}
	return c.adopt(resp)
}

// Resume restores a previous sign-in from the vault. ok is false when no
// credentials are stored.
func (c *Core) Resume(ctx context.Context) (bool, error) {
	creds, ok, err := c.vault.Load()
	if err != nil || !ok {
		return false, err
	}
	c.api.SetToken(creds.Token)
	user, err := c.api.Me(ctx)
	if err != nil {
		return false, fmt.Errorf("validate stored session: %w", err)
	}
	c.activate(user)
	return true, nil
}

// Logout tears down the live session and clears the vault.
func (c *Core) Logout() error {
	if calls := c.callManager(); calls != nil {
		_ = calls.Leave()
	}
	if coord := c.chatCoord(); coord != nil {
		coord.StopTyping()
	}
	c.api.SetToken("")
	return c.vault.Clear()
}

func (c *Core) adopt(resp apiclient.LoginResponse) error {
	c.api.SetToken(resp.Token)
	if err := c.vault.Save(securestore.Credentials{Token: resp.Token, User: resp.User}); err != nil {
		return fmt.Errorf("persist credentials: %w", err)
	}
	c.activate(resp.User)
	return nil
}

// activate binds every state machine to the signed-in identity.
func (c *Core) activate(user models.User) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.local = user
	c.seq = command.NewSequencer()
	c.store = thread.NewMemoryStore()
	c.solver = thread.NewResolver(user, c.store, c.log)
	c.script = transcript.New(user.ID)

	c.calls = call.New(call.Deps{
		Local:   user,
		Log:     c.log,
		Send:    func(p command.Payload) error { return c.publish(command.KindCall, p) },
		Media:   c.media,
		OnPhase: c.hooks.OnCallPhase,
	})
	c.chat = chat.New(chat.Deps{
		Local:    user,
		Log:      c.log,
		Send:     func(p command.Payload) error { return c.publish(command.KindMessage, p) },
		OnTyping: c.hooks.OnTyping,
		OnSeen:   func(models.User) { c.applyPeerSeen() },
		Debounce: c.cfg.TypingDebounce,
		Expiry:   c.cfg.TypingExpiry,
	})
	c.route = router.New(router.Deps{
		LocalID:  user.ID,
		Log:      c.log,
		Call:     c.calls.HandleRemote,
		Chat:     c.chat.HandleRemote,
		Activity: c.handleActivity,
		Observe:  c.hooks.OnObserve,
	})
}

// Start connects to the relay. Requires a signed-in identity.
func (c *Core) Start(ctx context.Context) error {
	if c.currentRouter() == nil {
		return fmt.Errorf("session not authenticated")
	}
	return c.sock.Start(ctx)
}

// Close leaves any live call and drops the relay connection.
func (c *Core) Close() error {
	if calls := c.callManager(); calls != nil {
		_ = calls.Leave()
	}
	if coord := c.chatCoord(); coord != nil {
		coord.StopTyping()
	}
	return c.sock.Close()
}

// User returns the signed-in identity.
func (c *Core) User() models.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local
}

// Calls exposes the call manager for UI actions.
func (c *Core) Calls() *call.Manager { return c.callManager() }

// Refresh reloads all thread state from the REST layer and, when a
// conversation is open, its transcript. Called after reconnect: the relay
// keeps no backlog, so anything since the disconnect is gone.
func (c *Core) Refresh(ctx context.Context) error {
	threads, err := c.api.Threads(ctx)
	if err != nil {
		return fmt.Errorf("refresh threads: %w", err)
	}

	c.mu.Lock()
	store := c.store
	localID := c.local.ID
	open := c.open
	c.mu.Unlock()
	if store == nil {
		return fmt.Errorf("session not authenticated")
	}

	store.Reset()
	for _, t := range threads {
		if t.LastMessage != nil {
			lm := models.RecomputeOwnership(*t.LastMessage, localID)
			t.LastMessage = &lm
		}
		t.DisplayName = models.DeriveThreadName(t.Participants, localID)
		store.Put(t)
	}

	if open.ID != "" {
		page, err := c.api.Messages(ctx, open.ID)
		if err != nil {
			return fmt.Errorf("refresh open thread: %w", err)
		}
		c.script.Load(open.ID, page)
		c.notifyTranscript(open.ID)
	}
	return nil
}

// Threads returns the cached thread list.
func (c *Core) Threads() []models.Thread {
	c.mu.Lock()
	store := c.store
	c.mu.Unlock()
	if store == nil {
		return nil
	}
	return store.All()
}

// OpenThread makes threadID the active conversation: it loads the message
// page, and reports the backlog as seen to the senders.
func (c *Core) OpenThread(ctx context.Context, threadID string) ([]models.Message, error) {
	c.mu.Lock()
	solver := c.solver
	c.mu.Unlock()
	if solver == nil {
		return nil, fmt.Errorf("session not authenticated")
	}
	t, err := solver.Resolve(ctx, thread.Request{ThreadID: threadID})
	if err != nil {
		return nil, err
	}
	page, err := c.api.Messages(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	c.mu.Lock()
	c.open = t
	c.mu.Unlock()
	c.script.Load(threadID, page)
	c.markBacklogSeen(ctx, t)
	c.notifyTranscript(threadID)
	return c.script.Messages(), nil
}

// CloseThread leaves the active conversation.
func (c *Core) CloseThread() {
	coord := c.chatCoord()
	if coord != nil {
		coord.StopTyping()
	}
	c.mu.Lock()
	c.open = models.Thread{}
	c.mu.Unlock()
	c.script.Clear()
}

// Keystroke reports local typing in the open conversation. Only two-party
// threads carry typing signals.
func (c *Core) Keystroke() {
	peer, ok := c.openPeer()
	if !ok {
		return
	}
	c.chatCoord().Keystroke(peer)
}

// StopTyping closes the local typing burst early, e.g. on send.
func (c *Core) StopTyping() {
	if coord := c.chatCoord(); coord != nil {
		coord.StopTyping()
	}
}

// SendMessage persists text through the REST layer, resolving the thread
// from either an explicit id or a participant set, then hints every other
// participant over the relay.
func (c *Core) SendMessage(ctx context.Context, text string, threadID string, participants []models.User) (models.Message, error) {
	c.StopTyping()

	req := apiclient.SendMessageRequest{Text: text, ThreadID: threadID}
	for _, u := range participants {
		req.ParticipantIDs = append(req.ParticipantIDs, u.ID)
	}
	resp, err := c.api.SendMessage(ctx, req)
	if err != nil {
		return models.Message{}, err
	}

	c.mu.Lock()
	localID := c.local.ID
	store := c.store
	openID := c.open.ID
	c.mu.Unlock()

	resp.Thread.DisplayName = models.DeriveThreadName(resp.Thread.Participants, localID)
	if store != nil {
		store.Put(resp.Thread)
	}
	msg := models.RecomputeOwnership(resp.Message, localID)
	if openID == resp.Thread.ID {
		c.script.Append(msg)
		c.notifyTranscript(openID)
	}

	for _, peer := range otherParticipants(resp.Thread, localID) {
		err := c.publish(command.KindMessage, command.Payload{
			Sender: c.User(),
			Target: peer,
			Text:   msg.ID,
		})
		if err != nil {
			c.log.Warn("activity hint not delivered", "peer_id", peer.ID, "error", err)
		}
	}
	return msg, nil
}

// ToggleReaction flips emoji on a message locally and persists the new
// reaction set.
func (c *Core) ToggleReaction(ctx context.Context, messageID, emoji string) error {
	reactions, ok := c.script.ToggleReaction(messageID, emoji)
	if !ok {
		return fmt.Errorf("message %s not in transcript", messageID)
	}
	if reactions == nil {
		reactions = []string{}
	}
	_, err := c.api.UpdateMessage(ctx, messageID, apiclient.UpdateMessageRequest{Reactions: &reactions})
	if err != nil {
		return fmt.Errorf("persist reaction: %w", err)
	}
	c.mu.Lock()
	openID := c.open.ID
	c.mu.Unlock()
	c.notifyTranscript(openID)
	return nil
}

// handleActivity reacts to a message command with no action: new content
// exists in the sender's conversation. For the open conversation that
// means re-fetch and merge; for any other, an out-of-app notification.
func (c *Core) handleActivity(p command.Payload) {
	c.mu.Lock()
	open := c.open
	c.mu.Unlock()

	if open.ID != "" && threadHasParticipant(open, p.Sender.ID) {
		ctx := context.Background()
		page, err := c.api.Messages(ctx, open.ID)
		if err != nil {
			c.log.Warn("activity refresh failed", "thread_id", open.ID, "error", err)
			return
		}
		c.script.Merge(open.ID, page)
		c.markBacklogSeen(ctx, open)
		c.notifyTranscript(open.ID)
		return
	}

	if c.hooks.OnNotify != nil {
		c.hooks.OnNotify(Notification{From: p.Sender, Text: "New message"})
	}
}

// markBacklogSeen walks the open transcript, promotes every incoming
// message to Seen locally and on the server, and signals the peers.
func (c *Core) markBacklogSeen(ctx context.Context, t models.Thread) {
	c.mu.Lock()
	localID := c.local.ID
	c.mu.Unlock()

	status := models.MessageStatusSeen
	promoted := false
	for _, m := range c.script.Messages() {
		if m.IsMine || m.Status == models.MessageStatusSeen {
			continue
		}
		if !c.script.UpdateStatus(m.ID, status) {
			continue
		}
		promoted = true
		if _, err := c.api.UpdateMessage(ctx, m.ID, apiclient.UpdateMessageRequest{Status: &status}); err != nil {
			c.log.Warn("seen status not persisted", "message_id", m.ID, "error", err)
		}
	}
	if !promoted {
		return
	}
	for _, peer := range otherParticipants(t, localID) {
		c.chatCoord().MarkSeen(peer)
	}
}

// applyPeerSeen is the receive side of the seen signal: every message the
// local user authored in the open conversation moves to Seen.
func (c *Core) applyPeerSeen() {
	updated := c.script.MarkMineSeen()
	if len(updated) == 0 {
		return
	}
	c.mu.Lock()
	openID := c.open.ID
	c.mu.Unlock()
	c.notifyTranscript(openID)
}

// publish stamps the payload with the next per-kind sequence number and
// sends it through the relay socket.
func (c *Core) publish(kind command.Kind, p command.Payload) error {
	c.mu.Lock()
	seq := c.seq
	local := c.local
	c.mu.Unlock()
	if seq == nil {
		return fmt.Errorf("session not authenticated")
	}
	if p.Sender.ID == "" {
		p.Sender = local
	}
	p.Seq = seq.Next(kind)
	p.Origin = seq.Instance()
	env, err := command.Encode(kind, p)
	if err != nil {
		return err
	}
	return c.sock.Send(env)
}

func (c *Core) handleEnvelope(env command.Envelope) {
	if r := c.currentRouter(); r != nil {
		r.Handle(env)
	}
}

func (c *Core) openPeer() (models.User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open.ID == "" || len(c.open.Participants) != 2 {
		return models.User{}, false
	}
	for _, u := range c.open.Participants {
		if u.ID != c.local.ID {
			return u, true
		}
	}
	return models.User{}, false
}

func (c *Core) currentRouter() *router.Router {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.route
}

func (c *Core) callManager() *call.Manager {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *Core) chatCoord() *chat.Coordinator {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chat
}

func (c *Core) notifyTranscript(threadID string) {
	if c.hooks.OnTranscript != nil && threadID != "" {
		c.hooks.OnTranscript(threadID)
	}
}

func otherParticipants(t models.Thread, localID string) []models.User {
	out := make([]models.User, 0, len(t.Participants))
	for _, u := range t.Participants {
		if u.ID != localID {
			out = append(out, u)
		}
	}
	return out
}

func threadHasParticipant(t models.Thread, id string) bool {
	for _, u := range t.Participants {
		if u.ID == id {
			return true
		}
	}
	return false
}
