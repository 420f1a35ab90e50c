package command

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const (
	dedupTTL        = 10 * time.Minute
	dedupMaxEntries = 4096
	// Fallback keys bucket the timestamp so a retransmitted command lands
	// on the same key even when the two sends straddle a few seconds.
	dedupBucket = time.Minute
)

// Sequencer hands out the per-kind monotonic sequence numbers stamped on
// outbound payloads. One instance per sign-in; the instance id goes on the
// wire as Payload.Origin so receivers can tell a restarted sender's fresh
// seq=1 apart from a replay.
type Sequencer struct {
	instance string

	mu   sync.Mutex
	next map[Kind]*uint64
}

func NewSequencer() *Sequencer {
	instance, err := NewID("ses")
	if err != nil {
		// crypto/rand failed; a wall-clock instance still separates
		// restarts for dedup purposes.
		instance = fmt.Sprintf("ses%d", time.Now().UnixNano())
	}
	return &Sequencer{instance: instance, next: make(map[Kind]*uint64)}
}

// Instance returns the id stamped as Origin on this sequencer's payloads.
func (s *Sequencer) Instance() string {
	return s.instance
}

// Next returns the next sequence number for kind, starting at 1.
func (s *Sequencer) Next(kind Kind) uint64 {
	s.mu.Lock()
	counter, ok := s.next[kind]
	if !ok {
		counter = new(uint64)
		s.next[kind] = counter
	}
	s.mu.Unlock()
	return atomic.AddUint64(counter, 1)
}

// DedupKey derives the idempotency key for a decoded command. Sequenced
// senders key on (sender, kind, origin, seq); unsequenced traffic falls
// back to a digest of (sender, kind, action, text, timestamp bucket).
func DedupKey(kind Kind, p Payload, now time.Time) string {
	if p.Seq > 0 {
		return fmt.Sprintf("%s|%s|%s|%d", p.Sender.ID, kind, p.Origin, p.Seq)
	}
	bucket := now.UTC().Truncate(dedupBucket).Unix()
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%s|%s|%d", p.Sender.ID, kind, p.Action, p.Text, bucket))
	return hex.EncodeToString(sum[:16])
}

// DedupCache remembers already-applied command keys so an at-least-once
// transport cannot double-apply a state transition. Bounded and TTL-pruned.
type DedupCache struct {
	mu      sync.Mutex
	applied map[string]time.Time
	hits    uint64
}

func NewDedupCache() *DedupCache {
	return &DedupCache{applied: make(map[string]time.Time)}
}

// Admit records the key and reports whether it was seen for the first time.
func (c *DedupCache) Admit(key string, now time.Time) bool {
	if c == nil || key == "" {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hits++
	if c.hits%256 == 0 || len(c.applied) > dedupMaxEntries {
		cutoff := now.Add(-dedupTTL)
		for k, seen := range c.applied {
			if seen.Before(cutoff) {
				delete(c.applied, k)
			}
		}
	}
	if len(c.applied) > dedupMaxEntries {
		// Still over after pruning: drop the oldest entry.
		var oldestKey string
		var oldestAt time.Time
		first := true
		for k, seen := range c.applied {
			if first || seen.Before(oldestAt) {
				oldestKey = k
				oldestAt = seen
				first = false
			}
		}
		delete(c.applied, oldestKey)
	}

	if _, dup := c.applied[key]; dup {
		return false
	}
	c.applied[key] = now
	return true
}
