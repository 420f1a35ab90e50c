package transcript

import (
	"testing"
	"time"

	"mini-live-chat/go-core/pkg/models"
)

const localID = "usr_a"

var base = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

func msg(id, sender, text string, at time.Time) models.Message {
	return models.Message{
		ID:        id,
		ThreadID:  "thr_1",
		SenderID:  sender,
		Text:      text,
		Status:    models.MessageStatusSent,
		Timestamp: at,
	}
}

func TestLoadReplacesAndRecomputesOwnership(t *testing.T) {
	tr := New(localID)
	tr.Load("thr_1", []models.Message{
		msg("m2", "usr_b", "hey", base.Add(time.Minute)),
		msg("m1", localID, "hi", base),
	})

	got := tr.Messages()
	if len(got) != 2 {
		t.Fatalf("messages = %d, want 2", len(got))
	}
	if got[0].ID != "m1" || got[1].ID != "m2" {
		t.Fatalf("order = %s,%s, want m1,m2", got[0].ID, got[1].ID)
	}
	if !got[0].IsMine || got[1].IsMine {
		t.Fatalf("ownership wrong: %v %v", got[0].IsMine, got[1].IsMine)
	}

	tr.Load("thr_2", []models.Message{msg("x1", "usr_b", "other", base)})
	if got := tr.Messages(); len(got) != 1 || got[0].ID != "x1" {
		t.Fatalf("load did not replace: %v", got)
	}
}

func TestMergeAppendsOnlyNewerMessages(t *testing.T) {
	tr := New(localID)
	tr.Load("thr_1", []models.Message{
		msg("m1", localID, "hi", base),
		msg("m2", "usr_b", "hey", base.Add(time.Minute)),
	})

	tr.Merge("thr_1", []models.Message{
		msg("m0", "usr_b", "scrolled out", base.Add(-time.Hour)),
		msg("m1", localID, "hi", base),
		msg("m2", "usr_b", "hey", base.Add(time.Minute)),
		msg("m3", "usr_b", "new", base.Add(2*time.Minute)),
		msg("m4", localID, "newer", base.Add(3*time.Minute)),
	})

	got := tr.Messages()
	if len(got) != 4 {
		t.Fatalf("messages = %d, want 4", len(got))
	}
	for i, want := range []string{"m1", "m2", "m3", "m4"} {
		if got[i].ID != want {
			t.Fatalf("position %d = %s, want %s", i, got[i].ID, want)
		}
	}
	if !got[3].IsMine {
		t.Fatalf("merged own message lost ownership")
	}
}

func TestMergeIgnoresForeignThread(t *testing.T) {
	tr := New(localID)
	tr.Load("thr_1", []models.Message{msg("m1", localID, "hi", base)})

	tr.Merge("thr_2", []models.Message{msg("z1", "usr_b", "elsewhere", base.Add(time.Hour))})
	if got := tr.Messages(); len(got) != 1 || got[0].ID != "m1" {
		t.Fatalf("foreign merge leaked into transcript: %v", got)
	}
}

func TestMergeKeepsStatusMonotonic(t *testing.T) {
	tr := New(localID)
	seen := msg("m1", localID, "hi", base)
	seen.Status = models.MessageStatusSeen
	tr.Load("thr_1", []models.Message{seen})

	// A stale page still reporting Sent must not revert the message.
	tr.Merge("thr_1", []models.Message{msg("m1", localID, "hi", base)})
	if got := tr.Messages()[0].Status; got != models.MessageStatusSeen {
		t.Fatalf("status = %q, want %q", got, models.MessageStatusSeen)
	}
}

func TestUpdateStatusNeverMovesBackward(t *testing.T) {
	tr := New(localID)
	sending := msg("m1", localID, "hi", base)
	sending.Status = models.MessageStatusSending
	tr.Load("thr_1", []models.Message{sending})

	if !tr.UpdateStatus("m1", models.MessageStatusSent) {
		t.Fatalf("Sending -> Sent should apply")
	}
	if !tr.UpdateStatus("m1", models.MessageStatusSeen) {
		t.Fatalf("Sent -> Seen should apply")
	}
	if tr.UpdateStatus("m1", models.MessageStatusSent) {
		t.Fatalf("Seen -> Sent must be ignored")
	}
	if tr.UpdateStatus("missing", models.MessageStatusSeen) {
		t.Fatalf("unknown message must report false")
	}
}

func TestMarkMineSeenTargetsOwnMessagesOnly(t *testing.T) {
	tr := New(localID)
	tr.Load("thr_1", []models.Message{
		msg("m1", localID, "hi", base),
		msg("m2", "usr_b", "hey", base.Add(time.Minute)),
		msg("m3", localID, "you there?", base.Add(2*time.Minute)),
	})

	updated := tr.MarkMineSeen()
	if len(updated) != 2 || updated[0] != "m1" || updated[1] != "m3" {
		t.Fatalf("updated = %v, want [m1 m3]", updated)
	}
	got := tr.Messages()
	if got[0].Status != models.MessageStatusSeen || got[2].Status != models.MessageStatusSeen {
		t.Fatalf("own messages not seen: %q %q", got[0].Status, got[2].Status)
	}
	if got[1].Status != models.MessageStatusSent {
		t.Fatalf("peer message status changed to %q", got[1].Status)
	}

	// Second signal finds nothing left to move.
	if again := tr.MarkMineSeen(); len(again) != 0 {
		t.Fatalf("repeat MarkMineSeen updated %v", again)
	}
}

func TestToggleReaction(t *testing.T) {
	tr := New(localID)
	tr.Load("thr_1", []models.Message{msg("m1", "usr_b", "hey", base)})

	got, ok := tr.ToggleReaction("m1", "❤️")
	if !ok || len(got) != 1 || got[0] != "❤️" {
		t.Fatalf("first toggle = %v %v", got, ok)
	}
	got, _ = tr.ToggleReaction("m1", "👍")
	if len(got) != 2 {
		t.Fatalf("second reaction = %v", got)
	}
	got, _ = tr.ToggleReaction("m1", "❤️")
	if len(got) != 1 || got[0] != "👍" {
		t.Fatalf("toggle off = %v, want [👍]", got)
	}
	if _, ok := tr.ToggleReaction("missing", "❤️"); ok {
		t.Fatalf("unknown message toggled")
	}
}

func TestDayGroupsRelabelAtRenderTime(t *testing.T) {
	tr := New(localID)
	tr.Load("thr_1", []models.Message{
		msg("m1", localID, "old", base.AddDate(0, 0, -5)),
		msg("m2", "usr_b", "yesterday", base.AddDate(0, 0, -1)),
		msg("m3", "usr_b", "today", base),
	})

	groups := tr.DayGroups(base.Add(3 * time.Hour))
	if len(groups) != 3 {
		t.Fatalf("groups = %d, want 3", len(groups))
	}
	if groups[0].Label != "Mar 5, 2025" {
		t.Fatalf("old label = %q", groups[0].Label)
	}
	if groups[1].Label != "Yesterday" || groups[2].Label != "Today" {
		t.Fatalf("labels = %q, %q", groups[1].Label, groups[2].Label)
	}

	// The same transcript rendered a day later shifts every label.
	later := tr.DayGroups(base.AddDate(0, 0, 1))
	if later[2].Label != "Yesterday" {
		t.Fatalf("after midnight label = %q, want Yesterday", later[2].Label)
	}
}

func TestAppendIsIdempotentPerID(t *testing.T) {
	tr := New(localID)
	tr.Load("thr_1", nil)

	m := msg("m1", localID, "hi", base)
	m.Status = models.MessageStatusSending
	tr.Append(m)
	tr.Append(m)
	got := tr.Messages()
	if len(got) != 1 {
		t.Fatalf("messages = %d, want 1", len(got))
	}
	if !got[0].IsMine || got[0].Status != models.MessageStatusSending {
		t.Fatalf("appended message = %+v", got[0])
	}
}
