package models

import (
	"sort"
	"strings"
	"time"
)

// User is the minimal user record carried on the wire and inside command
// payloads. It mirrors what the auth collaborator issues; the core never
// creates or mutates users.
type User struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Email       string    `json:"email"`
	CreatedAt   time.Time `json:"createdAt"`
}

const (
	MessageStatusSending = "Sending"
	MessageStatusSent    = "Sent"
	MessageStatusSeen    = "Seen"
)

// Message is the local cache copy of a persisted message. IsMine is always
// recomputed against the local identity and never trusted from the server.
type Message struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"threadId"`
	SenderID  string    `json:"senderId"`
	Text      string    `json:"text"`
	Status    string    `json:"status"`
	Reactions []string  `json:"reactions"`
	Timestamp time.Time `json:"timestamp"`
	IsMine    bool      `json:"-"`
}

// Thread is a canonical conversation identified by its exact participant set.
type Thread struct {
	ID           string    `json:"id"`
	Participants []User    `json:"participants"`
	DisplayName  string    `json:"threadName"`
	LastMessage  *Message  `json:"lastMessage,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func messageStatusRank(status string) int {
	switch status {
	case MessageStatusSending:
		return 0
	case MessageStatusSent:
		return 1
	case MessageStatusSeen:
		return 2
	default:
		return -1
	}
}

// MergeMessageStatus keeps message status monotonically non-decreasing under
// Sending < Sent < Seen. Unknown candidates never move the status.
func MergeMessageStatus(current, candidate string) string {
	if messageStatusRank(candidate) > messageStatusRank(current) {
		return candidate
	}
	return current
}

// CanonicalParticipants dedupes the participant identity set, forces the
// local identity in, and sorts so equal sets compare equal regardless of who
// initiated the resolution.
func CanonicalParticipants(localID string, participantIDs []string) []string {
	seen := map[string]struct{}{}
	set := make([]string, 0, len(participantIDs)+1)
	for _, id := range append([]string{localID}, participantIDs...) {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		set = append(set, id)
	}
	sort.Strings(set)
	return set
}

// SameParticipantSet reports exact set equality: same size, same members.
func SameParticipantSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// DeriveThreadName computes the display name for a thread as seen by
// localID. Two-party threads mirror the other participant's display name;
// larger threads join the first two names and mark any overflow.
func DeriveThreadName(participants []User, localID string) string {
	if len(participants) == 2 {
		for _, u := range participants {
			if u.ID != localID {
				return u.DisplayName
			}
		}
		return "Unknown"
	}
	names := make([]string, 0, len(participants))
	for _, u := range participants {
		names = append(names, u.DisplayName)
	}
	if len(names) == 0 {
		return "New Group"
	}
	name := strings.Join(names[:min(2, len(names))], ", ")
	if len(names) > 2 {
		name += "..."
	}
	return name
}

// RecomputeOwnership stamps IsMine on a message against the local identity.
func RecomputeOwnership(msg Message, localID string) Message {
	msg.IsMine = msg.SenderID == localID
	return msg
}
