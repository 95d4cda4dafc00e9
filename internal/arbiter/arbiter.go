// Package arbiter performs the final synthesis: it reads the completed
// stage results off the run state, applies the fixed priority rules,
// sizes the position and writes the single final decision.
//
// The package never imports the gate packages or consults the panel
// directly: by the time Decide runs, every stage has committed its
// result to the run state.
package arbiter

import (
	"fmt"

	"github.com/rs/zerolog"

	"signal-arbiter/internal/logging"
	"signal-arbiter/internal/models"
)

// Arbiter holds the sizing cap. The priority rules themselves are
// fixed and carry no configuration.
type Arbiter struct {
	maxPosition float64
	logger      zerolog.Logger
}

// New creates an arbiter with the given position-size cap, expressed as
// a fraction of portfolio value.
func New(maxPosition float64, logger zerolog.Logger) *Arbiter {
	return &Arbiter{maxPosition: maxPosition, logger: logger}
}

// Decide applies the priority rules in order and finalizes the run.
// The order is not configurable:
//
//  1. Policy BLOCK wins over everything.
//  2. Panel escalation forces ESCALATED with human approval required.
//  3. A failed risk gate blocks.
//  4. A failed pre-trade gate blocks.
//  5. Otherwise the directional signal (panel decision, else debate
//     agreement, else composite thresholds) decides, sized by
//     PositionSize.
func (a *Arbiter) Decide(run *models.RunState) error {
	action, reason := a.resolve(run)

	size := 0.0
	if action == models.ActionBuy || action == models.ActionSell {
		size = PositionSize(a.maxPosition, policyConfidence(run), run.Quant.Dispersion, run.Quant.HighDispersion)
	}

	if err := run.Finalize(action, reason, size); err != nil {
		return err
	}

	logging.LogDecision(logging.WithRun(a.logger, run.RunID, run.Symbol),
		run.Symbol, string(action), size, reason)
	return nil
}

func (a *Arbiter) resolve(run *models.RunState) (models.Action, string) {
	if run.Policy.Blocks() {
		return models.ActionBlocked, fmt.Sprintf("policy veto: %s", run.Policy.Rationale)
	}
	if run.Panel != nil && run.Panel.Escalated {
		return models.ActionEscalated, "panel deadlocked, human approval required"
	}
	if run.Risk != nil && !run.Risk.Passed {
		return models.ActionBlocked, fmt.Sprintf("risk gate failed: %v", run.Risk.FailedChecks)
	}
	if run.PreTrade != nil && !run.PreTrade.Clear {
		return models.ActionBlocked, fmt.Sprintf("pre-trade gate rejected: %v", run.PreTrade.Rejections)
	}
	return Direction(run)
}

// Direction picks the surviving directional signal. Panel consensus
// outranks the debate agreement, which outranks the raw composite. The
// orchestrator uses the same rule to shape the candidate order the
// gates inspect.
func Direction(run *models.RunState) (models.Action, string) {
	if run.Panel != nil {
		return run.Panel.Decision, "panel consensus"
	}
	if run.Debate != nil && run.Debate.Outcome == models.DebateAgreement && models.ValidVote(run.Debate.AgreedAction) {
		return models.Action(run.Debate.AgreedAction), "debate agreement"
	}

	composite := run.Quant.Composite
	switch {
	case composite > 0.6:
		return models.ActionBuy, fmt.Sprintf("composite %.2f above buy threshold", composite)
	case composite < 0.4:
		return models.ActionSell, fmt.Sprintf("composite %.2f below sell threshold", composite)
	default:
		return models.ActionHold, fmt.Sprintf("composite %.2f in neutral band", composite)
	}
}

// PositionSize computes maxPosition * confidence * (1 - dispersion),
// halved when dispersion is high, clamped to [0, maxPosition].
func PositionSize(maxPosition, confidence, dispersion float64, highDispersion bool) float64 {
	size := maxPosition * confidence * (1 - dispersion)
	if highDispersion {
		size /= 2
	}
	if size < 0 {
		size = 0
	}
	if size > maxPosition {
		size = maxPosition
	}
	return size
}

func policyConfidence(run *models.RunState) float64 {
	if run.Policy == nil {
		return 0
	}
	return run.Policy.Confidence
}
