// Package transcript reconciles the REST-fetched message history of one
// open conversation with the hints that arrive over the relay. The REST
// layer is the system of record; the transcript is the client's ordered,
// gap-free view of it.
package transcript

import (
	"sort"
	"sync"
	"time"

	"mini-live-chat/go-core/pkg/models"
)

// Transcript holds the visible message window of a single thread, ordered
// by timestamp ascending. All mutation goes through the lock: REST refresh
// results, relay hints and UI actions land on different goroutines.
type Transcript struct {
	localID string

	mu       sync.Mutex
	threadID string
	messages []models.Message
	index    map[string]int
}

func New(localID string) *Transcript {
	return &Transcript{localID: localID, index: make(map[string]int)}
}

// ThreadID returns the thread the transcript currently shows, empty when
// no conversation is open.
func (t *Transcript) ThreadID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.threadID
}

// Load replaces the transcript with a freshly fetched page. Ownership is
// recomputed locally; a server-supplied flag from another session would be
// wrong here.
func (t *Transcript) Load(threadID string, page []models.Message) {
	msgs := make([]models.Message, len(page))
	for i, m := range page {
		msgs[i] = models.RecomputeOwnership(m, t.localID)
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})

	t.mu.Lock()
	defer t.mu.Unlock()
	t.threadID = threadID
	t.messages = msgs
	t.reindex()
}

// Clear drops the transcript when the conversation closes.
func (t *Transcript) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.threadID = ""
	t.messages = nil
	t.index = make(map[string]int)
}

// Merge folds a re-fetched page into the open transcript after a new
// activity hint. Messages already present keep their position and only
// move status forward; strictly newer messages append in order. Older
// unknown messages are outside the window and stay dropped.
func (t *Transcript) Merge(threadID string, page []models.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.threadID != threadID {
		return
	}

	last := time.Time{}
	if n := len(t.messages); n > 0 {
		last = t.messages[n-1].Timestamp
	}

	fresh := make([]models.Message, 0)
	for _, m := range page {
		m = models.RecomputeOwnership(m, t.localID)
		if i, ok := t.index[m.ID]; ok {
			m.Status = models.MergeMessageStatus(t.messages[i].Status, m.Status)
			m.Timestamp = t.messages[i].Timestamp
			t.messages[i] = m
			continue
		}
		if m.Timestamp.After(last) {
			fresh = append(fresh, m)
		}
	}
	sort.SliceStable(fresh, func(i, j int) bool {
		return fresh[i].Timestamp.Before(fresh[j].Timestamp)
	})
	t.messages = append(t.messages, fresh...)
	t.reindex()
}

// Append adds one message optimistically, e.g. the local user's own send
// before the server echo arrives.
func (t *Transcript) Append(msg models.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.index[msg.ID]; ok {
		return
	}
	t.messages = append(t.messages, models.RecomputeOwnership(msg, t.localID))
	t.index[msg.ID] = len(t.messages) - 1
}

// UpdateStatus moves one message's status forward. Backward transitions
// are ignored, a Seen message never reverts to Sent.
func (t *Transcript) UpdateStatus(messageID, status string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.index[messageID]
	if !ok {
		return false
	}
	merged := models.MergeMessageStatus(t.messages[i].Status, status)
	changed := merged != t.messages[i].Status
	t.messages[i].Status = merged
	return changed
}

// MarkMineSeen moves every local-authored message to Seen. This is the
// receive side of the peer's seen signal, which covers the whole thread
// rather than single messages.
func (t *Transcript) MarkMineSeen() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var updated []string
	for i := range t.messages {
		if !t.messages[i].IsMine {
			continue
		}
		merged := models.MergeMessageStatus(t.messages[i].Status, models.MessageStatusSeen)
		if merged != t.messages[i].Status {
			t.messages[i].Status = merged
			updated = append(updated, t.messages[i].ID)
		}
	}
	return updated
}

// ToggleReaction adds emoji to the message's reaction set, or removes it
// when already present, and returns the resulting set.
func (t *Transcript) ToggleReaction(messageID, emoji string) ([]string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.index[messageID]
	if !ok {
		return nil, false
	}
	msg := t.messages[i]
	next := make([]string, 0, len(msg.Reactions)+1)
	removed := false
	for _, r := range msg.Reactions {
		if r == emoji {
			removed = true
			continue
		}
		next = append(next, r)
	}
	if !removed {
		next = append(next, emoji)
	}
	t.messages[i].Reactions = next
	return next, true
}

// Messages returns an ordered snapshot of the transcript.
func (t *Transcript) Messages() []models.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// LastTimestamp returns the newest known timestamp, zero when empty.
func (t *Transcript) LastTimestamp() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n := len(t.messages); n > 0 {
		return t.messages[n-1].Timestamp
	}
	return time.Time{}
}

func (t *Transcript) reindex() {
	t.index = make(map[string]int, len(t.messages))
	for i, m := range t.messages {
		t.index[m.ID] = i
	}
}

// DayGroup is one calendar day's slice of the transcript.
type DayGroup struct {
	Label    string
	Date     time.Time
	Messages []models.Message
}

// DayGroups buckets the transcript by calendar day for display. Labels are
// derived against now at render time; yesterday's "Today" header must not
// survive midnight.
func (t *Transcript) DayGroups(now time.Time) []DayGroup {
	msgs := t.Messages()
	var groups []DayGroup
	for _, m := range msgs {
		day := startOfDay(m.Timestamp.In(now.Location()))
		if n := len(groups); n > 0 && groups[n-1].Date.Equal(day) {
			groups[n-1].Messages = append(groups[n-1].Messages, m)
			continue
		}
		groups = append(groups, DayGroup{
			Label:    dayLabel(day, now),
			Date:     day,
			Messages: []models.Message{m},
		})
	}
	return groups
}

func startOfDay(ts time.Time) time.Time {
	y, m, d := ts.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, ts.Location())
}

func dayLabel(day, now time.Time) string {
	today := startOfDay(now)
	switch {
	case day.Equal(today):
		return "Today"
	case day.Equal(today.AddDate(0, 0, -1)):
		return "Yesterday"
	default:
		return day.Format("Jan 2, 2006")
	}
}
