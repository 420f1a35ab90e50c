package command

// Call signaling actions. The verbs match the original wire vocabulary and
// must not change while older clients are connected.
const (
	ActionInitiateCall   = "initiateoutgoingcall"
	ActionCancelCall     = "canceloutgoingcall"
	ActionDisconnectCall = "disconnectongoingcall"
	ActionAcceptCall     = "acceptincomingcall"
	ActionRejectCall     = "rejectincomingcall"
)

// Chat delivery actions carried under KindMessage. An absent action means
// "new activity" and only hints that the transcript should be refreshed.
const (
	ActionTyping    = "typing"
	ActionNotTyping = "notTyping"
	ActionSeen      = "seen"
)
