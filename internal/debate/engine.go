// Package debate drives the bounded adversarial exchange between the
// bull and bear reasoners and has a neutral judge classify the outcome.
package debate

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"signal-arbiter/internal/errors"
	"signal-arbiter/internal/models"
	"signal-arbiter/internal/providers"
)

// Input carries the upstream results a debate argues over.
type Input struct {
	Symbol    string
	Composite float64
	Scores    map[string]float64
	Policy    *models.PolicyResult
}

// Engine runs the debate. Bull and bear are distinct types bound to
// their own sources at construction; a failed side is never backfilled
// by the other. Rounds are strictly sequential: round k+1 sees round
// k's output and nothing newer.
type Engine struct {
	bull         *providers.BullReasoner
	bear         *providers.BearReasoner
	judge        *providers.Judge
	maxRebuttals int
	callTimeout  time.Duration
	logger       zerolog.Logger
}

// NewEngine creates a debate engine. maxRebuttals rounds follow the
// opening round; total rounds never exceed 3.
func NewEngine(bull *providers.BullReasoner, bear *providers.BearReasoner, judge *providers.Judge,
	maxRebuttals int, callTimeout time.Duration, logger zerolog.Logger) *Engine {
	if maxRebuttals > 2 {
		maxRebuttals = 2
	}
	if maxRebuttals < 0 {
		maxRebuttals = 0
	}
	return &Engine{
		bull:         bull,
		bear:         bear,
		judge:        judge,
		maxRebuttals: maxRebuttals,
		callTimeout:  callTimeout,
		logger:       logger,
	}
}

// Run executes the opening round, the rebuttal rounds, and the judge
// call. Any argument failure is fatal to the stage: the engine never
// substitutes a silent HOLD for a missing argument.
func (e *Engine) Run(ctx context.Context, input Input) (*models.DebateResult, error) {
	result := &models.DebateResult{
		Rounds: make([]models.DebateRound, 0, 1+e.maxRebuttals),
	}

	totalRounds := 1 + e.maxRebuttals
	for round := 1; round <= totalRounds; round++ {
		var prevBull, prevBear string
		if round > 1 {
			prev := result.Rounds[len(result.Rounds)-1]
			prevBull = prev.Bull.Text
			prevBear = prev.Bear.Text
		}

		bullArg, err := e.argueBull(ctx, input, round, prevBear)
		if err != nil {
			return nil, errors.NewStageError("debate", err)
		}
		bearArg, err := e.argueBear(ctx, input, round, prevBull)
		if err != nil {
			return nil, errors.NewStageError("debate", err)
		}

		result.Rounds = append(result.Rounds, models.DebateRound{
			Number: round,
			Bull:   bullArg,
			Bear:   bearArg,
		})

		e.logger.Debug().
			Str("symbol", input.Symbol).
			Int("round", round).
			Float64("bull_confidence", bullArg.Confidence).
			Float64("bear_confidence", bearArg.Confidence).
			Msg("Debate round complete")
	}

	judgeCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	judgment, fellBack, err := e.judge.Classify(judgeCtx, input.Symbol, result.Rounds)
	if err != nil {
		return nil, errors.NewStageError("debate", err)
	}

	result.Outcome = judgment.Outcome
	result.AgreedAction = judgment.Action
	result.JudgeRationale = judgment.Rationale
	result.JudgeFellBack = fellBack

	e.logger.Info().
		Str("symbol", input.Symbol).
		Str("outcome", string(result.Outcome)).
		Str("agreed_action", string(result.AgreedAction)).
		Bool("judge_fell_back", fellBack).
		Msg("Debate judged")

	return result, nil
}

func (e *Engine) argueBull(ctx context.Context, input Input, round int, opponent string) (models.Argument, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	return e.bull.Argue(callCtx, providers.ArgueContext{
		Symbol:    input.Symbol,
		Composite: input.Composite,
		Scores:    input.Scores,
		Policy:    input.Policy,
		Round:     round,
		Opponent:  opponent,
	})
}

func (e *Engine) argueBear(ctx context.Context, input Input, round int, opponent string) (models.Argument, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	return e.bear.Argue(callCtx, providers.ArgueContext{
		Symbol:    input.Symbol,
		Composite: input.Composite,
		Scores:    input.Scores,
		Policy:    input.Policy,
		Round:     round,
		Opponent:  opponent,
	})
}
