package models

// DebateOutcome is the judge's classification of the debate.
type DebateOutcome string

const (
	DebateAgreement    DebateOutcome = "AGREEMENT"
	DebateDisagreement DebateOutcome = "DISAGREEMENT"
)

// Argument is one side's statement in a debate round.
type Argument struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// DebateRound pairs the bull and bear arguments for one round. Round 1
// holds the independent openings; later rounds hold rebuttals.
type DebateRound struct {
	Number int      `json:"number"`
	Bull   Argument `json:"bull"`
	Bear   Argument `json:"bear"`
}

// DebateResult is the full transcript plus the judge's classification.
type DebateResult struct {
	Rounds  []DebateRound `json:"rounds"`
	Outcome DebateOutcome `json:"outcome"`

	// AgreedAction is set only when Outcome is AGREEMENT and the judge
	// named a direction.
	AgreedAction   Vote   `json:"agreed_action,omitempty"`
	JudgeRationale string `json:"judge_rationale"`

	// JudgeFellBack is set when the primary judge provider failed and
	// the secondary produced the classification.
	JudgeFellBack bool `json:"judge_fell_back"`
}
