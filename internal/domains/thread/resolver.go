// Package thread resolves message submissions to exactly one canonical
// conversation. A thread is identified by its exact participant set; two
// peers that message each other for the first time concurrently must end
// up in the same thread no matter who resolved first.
package thread

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"mini-live-chat/go-core/pkg/models"
)

var (
	ErrNotFound     = errors.New("thread not found")
	ErrNoRecipients = errors.New("no recipients")
)

// Store is the persistence port the resolver works against. FindByKey
// matches on exact participant-set equality, not subset or superset.
type Store interface {
	ThreadByID(ctx context.Context, id string) (models.Thread, bool, error)
	FindByKey(ctx context.Context, key string) (models.Thread, bool, error)
	Create(ctx context.Context, t models.Thread) (models.Thread, error)
}

// Request names a conversation either directly or by its participants.
// Exactly one of the two fields should be set; ThreadID wins when both are.
type Request struct {
	ThreadID     string
	Participants []models.User
}

// Resolver finds or creates the canonical thread for a request. Lookups by
// participant set are serialized per canonical key so two concurrent
// first-message sends cannot race a duplicate into the store.
type Resolver struct {
	local models.User
	store Store
	log   *slog.Logger

	mu    sync.Mutex
	byKey map[string]*sync.Mutex
}

func NewResolver(local models.User, store Store, log *slog.Logger) *Resolver {
	return &Resolver{
		local: local,
		store: store,
		log:   log,
		byKey: make(map[string]*sync.Mutex),
	}
}

// Key computes the canonical lookup key for a participant identity set:
// deduplicated, local identity included, sorted.
func Key(localID string, participantIDs []string) string {
	return strings.Join(models.CanonicalParticipants(localID, participantIDs), "|")
}

// Resolve returns the one thread for the request, creating it when a
// participant set has no thread yet. An explicit ThreadID never creates:
// it fails with ErrNotFound when absent.
func (r *Resolver) Resolve(ctx context.Context, req Request) (models.Thread, error) {
	if req.ThreadID != "" {
		t, ok, err := r.store.ThreadByID(ctx, req.ThreadID)
		if err != nil {
			return models.Thread{}, fmt.Errorf("resolve thread %s: %w", req.ThreadID, err)
		}
		if !ok {
			return models.Thread{}, fmt.Errorf("resolve thread %s: %w", req.ThreadID, ErrNotFound)
		}
		return t, nil
	}

	participants := r.canonicalUsers(req.Participants)
	if len(participants) < 2 {
		return models.Thread{}, ErrNoRecipients
	}
	ids := make([]string, 0, len(participants))
	for _, u := range participants {
		ids = append(ids, u.ID)
	}
	key := Key(r.local.ID, ids)

	lock := r.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	if t, ok, err := r.store.FindByKey(ctx, key); err != nil {
		return models.Thread{}, fmt.Errorf("find thread by participants: %w", err)
	} else if ok {
		return t, nil
	}

	created, err := r.store.Create(ctx, models.Thread{
		Participants: participants,
		DisplayName:  models.DeriveThreadName(participants, r.local.ID),
	})
	if err != nil {
		return models.Thread{}, fmt.Errorf("create thread: %w", err)
	}
	r.log.Info("created thread", "thread_id", created.ID, "participants", len(participants))
	return created, nil
}

// canonicalUsers dedupes the requested participants by identity, forces the
// local user in, and orders them by the canonical key order so the stored
// record is identical regardless of the initiator.
func (r *Resolver) canonicalUsers(requested []models.User) []models.User {
	byID := map[string]models.User{r.local.ID: r.local}
	ids := make([]string, 0, len(requested)+1)
	for _, u := range requested {
		if strings.TrimSpace(u.ID) == "" {
			continue
		}
		ids = append(ids, u.ID)
		if _, dup := byID[u.ID]; !dup {
			byID[u.ID] = u
		}
	}
	canonical := models.CanonicalParticipants(r.local.ID, ids)
	out := make([]models.User, 0, len(canonical))
	for _, id := range canonical {
		out = append(out, byID[id])
	}
	return out
}

func (r *Resolver) keyLock(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.byKey[key]
	if !ok {
		lock = &sync.Mutex{}
		r.byKey[key] = lock
	}
	return lock
}
