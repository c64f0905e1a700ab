package webhook

// Kind classifies how an inbound event ended.
type Kind int

const (
	KindOK Kind = iota
	KindRejected
	KindRateLimited
	KindNotFound
	KindInternalInconsistency
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindRejected:
		return "rejected"
	case KindRateLimited:
		return "rate_limited"
	case KindNotFound:
		return "not_found"
	case KindInternalInconsistency:
		return "internal_inconsistency"
	case KindFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Reasons attached to non-OK results.
const (
	ReasonCellOccupied    = "cell_occupied"
	ReasonInvalidPosition = "invalid_position"
	ReasonGameFinished    = "game_finished"
	ReasonNotPlayersTurn  = "not_players_turn"
	ReasonEmptyQuestion   = "empty_question"
	ReasonQuotaExhausted  = "quota_exhausted"
	ReasonGameNotFound    = "game_not_found"
	ReasonBotStuck        = "bot_stuck"
	ReasonStore           = "store"
	ReasonNotify          = "notify"
	ReasonAssistant       = "assistant"
	ReasonQuota           = "quota"
)

// Result is what the dispatcher hands back to the transport layer.
// Message is the user-facing text that was (or would have been) sent.
type Result struct {
	Kind    Kind
	Message string
	Reason  string
	GameID  int64
	Err     error
}

func (r Result) OK() bool { return r.Kind == KindOK }
