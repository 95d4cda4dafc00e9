package audit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-arbiter/internal/errors"
	"signal-arbiter/internal/models"
)

func finalizedRun(t *testing.T, symbol string, action models.Action) *models.RunState {
	t.Helper()
	run := models.NewRunState(symbol)
	run.Quant = &models.QuantResult{
		Scores:     map[string]float64{"momentum": 0.8, "breakout": 0.9},
		Composite:  0.85,
		Dispersion: 0.05,
	}
	run.Policy = &models.PolicyResult{Verdict: models.VerdictApprove, Confidence: 0.92, Rationale: "clean"}
	run.MarkStage("quant")
	run.MarkStage("policy")
	run.MarkStage("arbiter")
	size := 0.0
	if action == models.ActionBuy || action == models.ActionSell {
		size = 0.10488
	}
	require.NoError(t, run.Finalize(action, "test run", size))
	return run
}

func TestMemorySink_RoundTrip(t *testing.T) {
	sink := NewMemorySink()
	run := finalizedRun(t, "ACME", models.ActionBuy)

	require.NoError(t, sink.Record(context.Background(), run))

	got, err := sink.Get(context.Background(), run.RunID)
	require.NoError(t, err)
	assert.Equal(t, run, got)

	// Journal order is preserved exactly.
	require.Len(t, got.Journal, 3)
	assert.Equal(t, "quant", got.Journal[0].Stage)
	assert.Equal(t, "arbiter", got.Journal[2].Stage)
}

func TestMemorySink_GetUnknownRun(t *testing.T) {
	sink := NewMemorySink()
	_, err := sink.Get(context.Background(), "no-such-run")
	assert.True(t, errors.Is(err, errors.ErrRunNotFound))
}

func TestMemorySink_ListNewestFirstWithFilter(t *testing.T) {
	sink := NewMemorySink()
	first := finalizedRun(t, "ACME", models.ActionBuy)
	second := finalizedRun(t, "OTHER", models.ActionHold)
	third := finalizedRun(t, "ACME", models.ActionBlocked)

	for _, run := range []*models.RunState{first, second, third} {
		require.NoError(t, sink.Record(context.Background(), run))
	}

	all, err := sink.List(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, third.RunID, all[0].RunID)

	acme, err := sink.List(context.Background(), "ACME", 0)
	require.NoError(t, err)
	require.Len(t, acme, 2)

	limited, err := sink.List(context.Background(), "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestMemorySink_ClosedSinkRejectsWrites(t *testing.T) {
	sink := NewMemorySink()
	require.NoError(t, sink.Close())
	err := sink.Record(context.Background(), finalizedRun(t, "ACME", models.ActionHold))
	assert.True(t, errors.Is(err, errors.ErrSinkClosed))
}

func TestSQLiteSink_RoundTrip(t *testing.T) {
	dbPath := "test_audit_roundtrip.db"
	defer os.Remove(dbPath)

	sink, err := NewSQLiteSink(dbPath)
	require.NoError(t, err)
	defer sink.Close()

	escalated := finalizedRun(t, "ACME", models.ActionEscalated)
	bought := finalizedRun(t, "ACME", models.ActionBuy)

	require.NoError(t, sink.Record(context.Background(), escalated))
	require.NoError(t, sink.Record(context.Background(), bought))

	got, err := sink.Get(context.Background(), escalated.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.ActionEscalated, got.FinalAction)
	assert.True(t, got.HumanApprovalRequired)
	assert.Equal(t, escalated.Journal, got.Journal)

	runs, err := sink.List(context.Background(), "ACME", 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	_, err = sink.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, errors.ErrRunNotFound))
}

// Property: any finalized run survives the codec unchanged.
func TestProperty_RecordRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())
	properties := gopter.NewProperties(parameters)

	actionGen := gen.OneConstOf(
		models.ActionBuy, models.ActionSell, models.ActionHold,
		models.ActionBlocked, models.ActionEscalated)

	properties.Property("encode/decode preserves the record", prop.ForAll(
		func(symbol string, action models.Action, size float64, stages []string) bool {
			run := models.NewRunState(symbol)
			for _, s := range stages {
				run.MarkStage(s)
			}
			if err := run.Finalize(action, "property run", size); err != nil {
				return false
			}

			data, err := Encode(run)
			if err != nil {
				return false
			}
			got, err := Decode(data)
			if err != nil {
				return false
			}

			if got.RunID != run.RunID || got.Symbol != run.Symbol ||
				got.FinalAction != run.FinalAction || got.PositionSize != run.PositionSize {
				return false
			}
			if len(got.Journal) != len(run.Journal) {
				return false
			}
			for i := range got.Journal {
				if got.Journal[i].Stage != run.Journal[i].Stage {
					return false
				}
			}
			return got.Finalized
		},
		gen.AlphaString(),
		actionGen,
		gen.Float64Range(0, 0.5),
		gen.SliceOf(gen.Identifier()),
	))

	properties.TestingRun(t)
}
