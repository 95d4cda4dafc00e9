// Package pipeline orchestrates one run through the arbitration
// stages: quant ensemble, policy gate, debate, panel, the two
// independent gates, and final arbitration. Every run ends in the
// audit sink, whatever happened to it on the way.
package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"signal-arbiter/internal/arbiter"
	"signal-arbiter/internal/audit"
	"signal-arbiter/internal/debate"
	"signal-arbiter/internal/errors"
	"signal-arbiter/internal/logging"
	"signal-arbiter/internal/models"
	"signal-arbiter/internal/notify"
	"signal-arbiter/internal/panel"
	"signal-arbiter/internal/policy"
	"signal-arbiter/internal/pretrade"
	"signal-arbiter/internal/providers"
	"signal-arbiter/internal/quant"
	"signal-arbiter/internal/riskgate"
)

// Pipeline wires the stages together. All collaborators are injected;
// nothing is constructed lazily mid-run.
type Pipeline struct {
	ensemble   *quant.Ensemble
	policyGate *policy.Gate
	engine     *debate.Engine
	aggregator *panel.Aggregator
	riskGate   *riskgate.Gate
	preTrade   *pretrade.Gate
	arbiter    *arbiter.Arbiter

	portfolio   providers.SnapshotProvider
	sink        audit.Sink
	notifier    notify.Notifier
	maxPosition float64
	logger      zerolog.Logger
}

// Deps collects the pipeline's collaborators.
type Deps struct {
	Ensemble   *quant.Ensemble
	PolicyGate *policy.Gate
	Engine     *debate.Engine
	Aggregator *panel.Aggregator
	RiskGate   *riskgate.Gate
	PreTrade   *pretrade.Gate
	Arbiter    *arbiter.Arbiter

	Portfolio   providers.SnapshotProvider
	Sink        audit.Sink
	Notifier    notify.Notifier
	MaxPosition float64
	Logger      zerolog.Logger
}

// New creates a pipeline from its dependencies.
func New(d Deps) *Pipeline {
	return &Pipeline{
		ensemble:    d.Ensemble,
		policyGate:  d.PolicyGate,
		engine:      d.Engine,
		aggregator:  d.Aggregator,
		riskGate:    d.RiskGate,
		preTrade:    d.PreTrade,
		arbiter:     d.Arbiter,
		portfolio:   d.Portfolio,
		sink:        d.Sink,
		notifier:    d.Notifier,
		maxPosition: d.MaxPosition,
		logger:      d.Logger,
	}
}

// Evaluate runs one symbol through the full pipeline and returns the
// finalized run. The returned run is always non-nil and always
// finalized and audited, even when the error is non-nil: a fatal stage
// failure finalizes the run as ESCALATED with the failure recorded, it
// never produces a default BUY, SELL or HOLD.
func (p *Pipeline) Evaluate(ctx context.Context, symbol string, fundamentals *models.Fundamentals) (*models.RunState, error) {
	run := models.NewRunState(symbol)
	logger := logging.WithRun(p.logger, run.RunID, symbol)
	logger.Info().Msg("Run started")

	var snapshot *models.PortfolioSnapshot

	stage := StageQuant
	for stage != StageDone {
		if err := ctx.Err(); err != nil {
			return p.fail(ctx, run, logger, string(stage), "cancelled", errors.ErrRunCancelled)
		}
		stageLogger := logging.WithStage(logger, string(stage))
		stageLogger.Debug().Msg("Stage starting")

		switch stage {
		case StageQuant:
			result, err := p.ensemble.Collect(ctx, symbol)
			if err != nil {
				return p.fail(ctx, run, logger, "quant", "quant ensemble failed", err)
			}
			run.Quant = result
			run.MarkStage("quant")

		case StagePolicy:
			result, err := p.policyGate.Review(ctx, symbol, fundamentals)
			if err != nil {
				return p.fail(ctx, run, logger, "policy", "policy gate failed", err)
			}
			run.Policy = result
			run.MarkStage("policy")

		case StageDebate:
			result, err := p.engine.Run(ctx, debate.Input{
				Symbol:    symbol,
				Composite: run.Quant.Composite,
				Scores:    run.Quant.Scores,
				Policy:    run.Policy,
			})
			if err != nil {
				return p.fail(ctx, run, logger, "debate", "debate failed", err)
			}
			run.Debate = result
			run.MarkStage("debate")

		case StagePanel:
			result, err := p.aggregator.Convene(ctx, panel.Input{
				Symbol:      symbol,
				SpawnReason: "debate disagreement",
				Transcript:  run.Debate.Rounds,
				Composite:   run.Quant.Composite,
				Scores:      run.Quant.Scores,
				Policy:      run.Policy,
			})
			if err != nil {
				return p.fail(ctx, run, logger, "panel", "panel failed", err)
			}
			run.Panel = result
			run.MarkStage("panel")

		case StageRisk:
			if snapshot == nil {
				snap, err := p.portfolio.Snapshot(ctx)
				if err != nil {
					return p.fail(ctx, run, logger, "risk", "portfolio snapshot failed", err)
				}
				snapshot = snap
			}
			sector := ""
			if fundamentals != nil {
				sector = fundamentals.Sector
			}
			view := riskgate.ViewFromSnapshot(snapshot, sector, p.maxPosition)
			verdict := p.riskGate.Evaluate(view)
			run.Risk = &verdict
			run.MarkStage("risk")

		case StagePreTrade:
			order := p.candidateOrder(run)
			view := pretrade.ViewFromOrder(order, snapshot)
			report := p.preTrade.Inspect(view)
			run.PreTrade = &report
			run.MarkStage("pretrade")

		case StageArbiter:
			if err := p.arbiter.Decide(run); err != nil {
				return p.fail(ctx, run, logger, "arbiter", "arbitration failed", err)
			}
			run.MarkStage("arbiter")
		}

		stage = Next(stage, run)
	}

	p.record(ctx, run, logger)
	p.announce(ctx, run, logger)
	return run, nil
}

// candidateOrder shapes the order the pre-trade gate inspects. The
// notional is the position-size cap: gates screen the worst case, the
// arbiter sets the actual size afterwards.
func (p *Pipeline) candidateOrder(run *models.RunState) models.CandidateOrder {
	action, _ := arbiter.Direction(run)
	side := models.Vote(action)
	if !models.ValidVote(side) {
		// An escalated run carries no order side; screen the neutral case.
		side = models.VoteHold
	}
	return models.CandidateOrder{
		Symbol:   run.Symbol,
		Side:     side,
		Notional: p.maxPosition,
	}
}

// fail finalizes the run as ESCALATED, records it, and returns the
// typed failure. The run is still the caller's to inspect.
func (p *Pipeline) fail(ctx context.Context, run *models.RunState, logger zerolog.Logger,
	stage, reason string, cause error) (*models.RunState, error) {

	full := fmt.Sprintf("%s: %v", reason, cause)
	if err := run.Finalize(models.ActionEscalated, full, 0); err != nil {
		logger.Error().Err(err).Msg("Failed to finalize failed run")
	}
	logging.LogEscalation(logger, run.RunID, run.Symbol, full)

	// Recording must survive cancellation; use a detached context.
	p.record(context.WithoutCancel(ctx), run, logger)
	p.announce(context.WithoutCancel(ctx), run, logger)

	return run, errors.NewRunFailure(run.RunID, run.Symbol, stage, reason, cause)
}

func (p *Pipeline) record(ctx context.Context, run *models.RunState, logger zerolog.Logger) {
	if err := p.sink.Record(ctx, run); err != nil {
		logger.Error().Err(err).Msg("Failed to record run in audit sink")
	}
}

func (p *Pipeline) announce(ctx context.Context, run *models.RunState, logger zerolog.Logger) {
	if p.notifier == nil {
		return
	}
	var err error
	if run.FinalAction == models.ActionEscalated {
		err = p.notifier.SendEscalation(ctx, run)
	} else {
		err = p.notifier.SendDecision(ctx, run)
	}
	if err != nil {
		logger.Warn().Err(err).Msg("Notification delivery failed")
	}
}
