package thread

import (
	"context"
	"sync"

	"mini-live-chat/go-core/internal/command"
	"mini-live-chat/go-core/pkg/models"
)

// MemoryStore is the in-process thread cache behind the resolver. It keeps
// the exact-set uniqueness guarantee itself, so even a caller that skips
// the resolver's per-key lock cannot insert a duplicate participant set.
type MemoryStore struct {
	mu    sync.Mutex
	byID  map[string]models.Thread
	byKey map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[string]models.Thread),
		byKey: make(map[string]string),
	}
}

func participantKey(t models.Thread) string {
	ids := make([]string, 0, len(t.Participants))
	for _, u := range t.Participants {
		ids = append(ids, u.ID)
	}
	if len(ids) == 0 {
		return ""
	}
	return Key(ids[0], ids[1:])
}

func (s *MemoryStore) ThreadByID(_ context.Context, id string) (models.Thread, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	return t, ok, nil
}

func (s *MemoryStore) FindByKey(_ context.Context, key string) (models.Thread, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byKey[key]
	if !ok {
		return models.Thread{}, false, nil
	}
	return s.byID[id], true, nil
}

// Create inserts t, minting an identifier when none is set. Inserting a
// participant set that already exists returns the existing thread instead
// of a duplicate.
func (s *MemoryStore) Create(_ context.Context, t models.Thread) (models.Thread, error) {
	key := participantKey(t)
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byKey[key]; ok {
		return s.byID[id], nil
	}
	if t.ID == "" {
		id, err := command.NewID("thr")
		if err != nil {
			return models.Thread{}, err
		}
		t.ID = id
	}
	s.byID[t.ID] = t
	s.byKey[key] = t.ID
	return t, nil
}

// Put upserts a server-authoritative thread, replacing any cached copy of
// the same id or participant set. Used when refreshing from the REST layer.
func (s *MemoryStore) Put(t models.Thread) {
	key := participantKey(t)
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byKey[key]; ok && old != t.ID {
		delete(s.byID, old)
	}
	s.byID[t.ID] = t
	s.byKey[key] = t.ID
}

// All returns a snapshot of every cached thread.
func (s *MemoryStore) All() []models.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Thread, 0, len(s.byID))
	for _, t := range s.byID {
		out = append(out, t)
	}
	return out
}

// Reset drops the cache, e.g. before a full refresh after reconnect.
func (s *MemoryStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[string]models.Thread)
	s.byKey = make(map[string]string)
}
