// Package policy implements the highest-priority authority in the
// pipeline: the qualitative policy gate that can unilaterally veto a
// run before any other stage sees it.
package policy

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"signal-arbiter/internal/errors"
	"signal-arbiter/internal/models"
	"signal-arbiter/internal/providers"
)

// Gate queries the policy-verdict collaborator once per run and applies
// the veto-floor downgrade rule before anything downstream reads the
// verdict.
type Gate struct {
	provider  providers.PolicyProvider
	vetoFloor float64
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewGate creates a policy gate.
func NewGate(provider providers.PolicyProvider, vetoFloor float64, timeout time.Duration, logger zerolog.Logger) *Gate {
	return &Gate{
		provider:  provider,
		vetoFloor: vetoFloor,
		timeout:   timeout,
		logger:    logger,
	}
}

// Review obtains the verdict and applies the downgrade rule. A BLOCK in
// the returned result always carries veto authority.
func (g *Gate) Review(ctx context.Context, symbol string, fundamentals *models.Fundamentals) (*models.PolicyResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	verdict, err := g.provider.Verdict(callCtx, symbol, fundamentals)
	if err != nil {
		return nil, errors.NewStageError("policy", err)
	}

	result := ApplyVetoFloor(verdict, g.vetoFloor)
	if result.Downgraded {
		g.logger.Info().
			Str("symbol", symbol).
			Float64("confidence", result.Confidence).
			Float64("veto_floor", g.vetoFloor).
			Msg("Policy BLOCK below veto floor, downgraded to NEUTRAL")
	}
	if result.Blocks() {
		g.logger.Warn().
			Str("symbol", symbol).
			Float64("confidence", result.Confidence).
			Str("rationale", result.Rationale).
			Msg("Policy veto")
	}

	return &result, nil
}

// ApplyVetoFloor downgrades a BLOCK verdict below the floor to NEUTRAL
// and records the downgrade. Applying it to an already-downgraded
// result is a no-op: the verdict is no longer BLOCK, so the rule does
// not fire again and the Downgraded flag is preserved.
func ApplyVetoFloor(result models.PolicyResult, floor float64) models.PolicyResult {
	if result.Verdict == models.VerdictBlock && result.Confidence < floor {
		result.Verdict = models.VerdictNeutral
		result.Downgraded = true
	}
	return result
}
