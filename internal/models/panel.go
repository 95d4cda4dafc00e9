package models

// PanelVote is one member's structured ballot. Every spawned member
// produces exactly one PanelVote; failures and coercions are recorded
// in place, never skipped.
type PanelVote struct {
	MemberID    string  `json:"member_id"`
	Perspective string  `json:"perspective"`
	Vote        Vote    `json:"vote"`
	Rationale   string  `json:"rationale"`
	Confidence  float64 `json:"confidence"`

	// Failed marks a member whose call (and single retry) errored; its
	// vote is the recorded HOLD default.
	Failed bool `json:"failed,omitempty"`
	// Coerced marks a vote that came back outside {BUY,SELL,HOLD} and
	// was forced to HOLD.
	Coerced bool `json:"coerced,omitempty"`
}

// PanelResult is the aggregated outcome of a convened panel.
type PanelResult struct {
	SpawnReason string       `json:"spawn_reason"`
	Members     []PanelVote  `json:"members"`
	Tally       map[Vote]int `json:"tally"`
	Decision    Action       `json:"decision"`
	Escalated   bool         `json:"escalated"`
}
