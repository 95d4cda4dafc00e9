// Package quant collects the independent statistical model scores and
// reduces them to a composite and a dispersion signal.
package quant

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"signal-arbiter/internal/errors"
	"signal-arbiter/internal/models"
	"signal-arbiter/internal/providers"
)

// ModelNames are the four ensemble members, in evaluation order.
var ModelNames = []string{"momentum", "mean_reversion", "breakout", "volume_flow"}

// Ensemble reads the configured score providers and computes the
// composite and dispersion over whichever models responded.
type Ensemble struct {
	providers []providers.ScoreProvider
	threshold float64
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewEnsemble creates an ensemble reader. threshold is the dispersion
// level above which high_dispersion is flagged.
func NewEnsemble(scoreProviders []providers.ScoreProvider, threshold float64, timeout time.Duration, logger zerolog.Logger) *Ensemble {
	return &Ensemble{
		providers: scoreProviders,
		threshold: threshold,
		timeout:   timeout,
		logger:    logger,
	}
}

// Collect queries every model once and reduces the available scores.
// Models that fail are recorded and excluded; if none respond the stage
// fails fatally rather than fabricating a score.
func (e *Ensemble) Collect(ctx context.Context, symbol string) (*models.QuantResult, error) {
	result := &models.QuantResult{
		Scores: make(map[string]float64, len(e.providers)),
	}

	for _, p := range e.providers {
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		score, err := p.Score(callCtx, symbol)
		cancel()
		if err != nil {
			e.logger.Warn().Str("model", p.Name()).Err(err).Msg("Quant model failed")
			result.FailedModels = append(result.FailedModels, p.Name())
			continue
		}
		result.Scores[p.Name()] = score
	}

	if len(result.Scores) == 0 {
		return nil, errors.NewStageError("quant", errors.ErrAllQuantModelsFailed)
	}

	result.Partial = len(result.FailedModels) > 0
	result.Composite = mean(result.Scores)
	result.Dispersion = populationStdDev(result.Scores, result.Composite)
	result.HighDispersion = result.Dispersion > e.threshold

	e.logger.Debug().
		Str("symbol", symbol).
		Float64("composite", result.Composite).
		Float64("dispersion", result.Dispersion).
		Bool("partial", result.Partial).
		Msg("Quant ensemble collected")

	return result, nil
}

func mean(scores map[string]float64) float64 {
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}

func populationStdDev(scores map[string]float64, mean float64) float64 {
	var sumSq float64
	for _, s := range scores {
		d := s - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(scores)))
}
