// Package models defines the shared value types carried through the
// arbitration pipeline.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"signal-arbiter/internal/errors"
)

// Action is the final decision produced by the arbiter.
type Action string

const (
	ActionBuy       Action = "BUY"
	ActionSell      Action = "SELL"
	ActionHold      Action = "HOLD"
	ActionBlocked   Action = "BLOCKED"
	ActionEscalated Action = "ESCALATED"
)

// Vote is a directional opinion from a debate side or panel member.
type Vote string

const (
	VoteBuy  Vote = "BUY"
	VoteSell Vote = "SELL"
	VoteHold Vote = "HOLD"
)

// ValidVote reports whether v is one of the three accepted vote values.
func ValidVote(v Vote) bool {
	return v == VoteBuy || v == VoteSell || v == VoteHold
}

// RunState is the single record for one evaluation of one symbol. It is
// created at pipeline entry, written by exactly one stage at a time, and
// frozen by Finalize. After that it belongs to the audit sink.
type RunState struct {
	RunID     string    `json:"run_id"`
	Symbol    string    `json:"symbol"`
	StartedAt time.Time `json:"started_at"`

	Quant    *QuantResult    `json:"quant,omitempty"`
	Policy   *PolicyResult   `json:"policy,omitempty"`
	Debate   *DebateResult   `json:"debate,omitempty"`
	Panel    *PanelResult    `json:"panel,omitempty"`
	Risk     *RiskVerdict    `json:"risk,omitempty"`
	PreTrade *PreTradeReport `json:"pre_trade,omitempty"`

	FinalAction  Action  `json:"final_action,omitempty"`
	FinalReason  string  `json:"final_reason,omitempty"`
	PositionSize float64 `json:"position_size"`

	HumanApprovalRequired bool   `json:"human_approval_required"`
	HumanApprovalOutcome  string `json:"human_approval_outcome,omitempty"`

	Journal   []JournalEntry `json:"journal"`
	Finalized bool           `json:"finalized"`
}

// JournalEntry is one node-journal timestamp, appended as each stage
// commits its output.
type JournalEntry struct {
	Stage string    `json:"stage"`
	At    time.Time `json:"at"`
}

// NewRunState creates a fresh run for the given symbol.
func NewRunState(symbol string) *RunState {
	return &RunState{
		RunID:     uuid.NewString(),
		Symbol:    symbol,
		StartedAt: time.Now().UTC(),
		Journal:   make([]JournalEntry, 0, 8),
	}
}

// MarkStage appends a journal entry for the named stage. It is a no-op
// on a finalized run.
func (r *RunState) MarkStage(stage string) {
	if r.Finalized {
		return
	}
	r.Journal = append(r.Journal, JournalEntry{Stage: stage, At: time.Now().UTC()})
}

// Finalize sets the final action, reason and position size and freezes
// the run. A second call is an error: arbitration writes exactly once.
func (r *RunState) Finalize(action Action, reason string, size float64) error {
	if r.Finalized {
		return fmt.Errorf("run %s already finalized as %s: %w", r.RunID, r.FinalAction, errors.ErrRunFinalized)
	}
	r.FinalAction = action
	r.FinalReason = reason
	r.PositionSize = size
	if action == ActionEscalated {
		r.HumanApprovalRequired = true
	}
	r.Finalized = true
	return nil
}
