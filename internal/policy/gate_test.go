package policy

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-arbiter/internal/errors"
	"signal-arbiter/internal/models"
)

type stubPolicyProvider struct {
	result models.PolicyResult
	err    error
}

func (s *stubPolicyProvider) Verdict(ctx context.Context, symbol string, f *models.Fundamentals) (models.PolicyResult, error) {
	return s.result, s.err
}

func TestReview_BlockAtFloorKeepsVeto(t *testing.T) {
	gate := NewGate(&stubPolicyProvider{result: models.PolicyResult{
		Verdict:    models.VerdictBlock,
		Confidence: 0.80,
		Rationale:  "regulatory exposure",
	}}, 0.80, time.Second, zerolog.Nop())

	result, err := gate.Review(context.Background(), "ACME", nil)
	require.NoError(t, err)
	assert.Equal(t, models.VerdictBlock, result.Verdict)
	assert.False(t, result.Downgraded)
	assert.True(t, result.Blocks())
}

func TestReview_BlockBelowFloorDowngraded(t *testing.T) {
	gate := NewGate(&stubPolicyProvider{result: models.PolicyResult{
		Verdict:    models.VerdictBlock,
		Confidence: 0.79,
	}}, 0.80, time.Second, zerolog.Nop())

	result, err := gate.Review(context.Background(), "ACME", nil)
	require.NoError(t, err)
	assert.Equal(t, models.VerdictNeutral, result.Verdict)
	assert.True(t, result.Downgraded)
	assert.False(t, result.Blocks())
}

func TestReview_ProviderFailureIsFatal(t *testing.T) {
	gate := NewGate(&stubPolicyProvider{err: fmt.Errorf("both sources down")},
		0.80, time.Second, zerolog.Nop())

	result, err := gate.Review(context.Background(), "ACME", nil)
	require.Error(t, err)
	assert.Nil(t, result)

	var stageErr *errors.StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, "policy", stageErr.Stage)
}

func TestApplyVetoFloor_NonBlockUntouched(t *testing.T) {
	for _, verdict := range []models.PolicyVerdict{models.VerdictApprove, models.VerdictNeutral} {
		result := ApplyVetoFloor(models.PolicyResult{Verdict: verdict, Confidence: 0.10}, 0.80)
		assert.Equal(t, verdict, result.Verdict)
		assert.False(t, result.Downgraded)
	}
}

// Property: applying the veto floor twice produces the same result as
// applying it once, for any verdict, confidence and floor.
func TestProperty_VetoFloorIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	parameters.Rng.Seed(time.Now().UnixNano())
	properties := gopter.NewProperties(parameters)

	verdictGen := gen.OneConstOf(models.VerdictApprove, models.VerdictNeutral, models.VerdictBlock)

	properties.Property("downgrade is idempotent", prop.ForAll(
		func(verdict models.PolicyVerdict, confidence, floor float64) bool {
			initial := models.PolicyResult{Verdict: verdict, Confidence: confidence}
			once := ApplyVetoFloor(initial, floor)
			twice := ApplyVetoFloor(once, floor)
			return once == twice
		},
		verdictGen,
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
	))

	properties.Property("downgrade fires exactly on BLOCK below floor", prop.ForAll(
		func(confidence, floor float64) bool {
			result := ApplyVetoFloor(models.PolicyResult{
				Verdict:    models.VerdictBlock,
				Confidence: confidence,
			}, floor)
			if confidence < floor {
				return result.Verdict == models.VerdictNeutral && result.Downgraded
			}
			return result.Verdict == models.VerdictBlock && !result.Downgraded
		},
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}
