package pipeline

import (
	"signal-arbiter/internal/models"
)

// Stage names the pipeline stations in execution order.
type Stage string

const (
	StageQuant    Stage = "quant"
	StagePolicy   Stage = "policy"
	StageDebate   Stage = "debate"
	StagePanel    Stage = "panel"
	StageRisk     Stage = "risk"
	StagePreTrade Stage = "pretrade"
	StageArbiter  Stage = "arbiter"
	StageDone     Stage = "done"
)

// Next is the pure transition function of the run state machine. It
// reads only committed results off the run and never mutates it.
//
// The shape: quant feeds policy; a policy veto goes straight to
// arbitration; the debate convenes the panel only on disagreement.
// Every other path runs both gates as a pair before arbitration, even
// for a HOLD candidate or a deadlocked panel, so the audit record
// always carries both gate reports. Only the policy veto skips them.
func Next(current Stage, run *models.RunState) Stage {
	switch current {
	case StageQuant:
		return StagePolicy
	case StagePolicy:
		if run.Policy.Blocks() {
			return StageArbiter
		}
		return StageDebate
	case StageDebate:
		if run.Debate.Outcome == models.DebateDisagreement {
			return StagePanel
		}
		return StageRisk
	case StagePanel:
		return StageRisk
	case StageRisk:
		return StagePreTrade
	case StagePreTrade:
		return StageArbiter
	case StageArbiter:
		return StageDone
	default:
		return StageDone
	}
}
