package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunState(t *testing.T) {
	run := NewRunState("ACME")
	assert.NotEmpty(t, run.RunID)
	assert.Equal(t, "ACME", run.Symbol)
	assert.False(t, run.Finalized)
	assert.Empty(t, run.Journal)

	other := NewRunState("ACME")
	assert.NotEqual(t, run.RunID, other.RunID)
}

func TestMarkStage_PreservesOrder(t *testing.T) {
	run := NewRunState("ACME")
	stages := []string{"quant", "policy", "debate", "panel", "risk", "pretrade", "arbiter"}
	for _, s := range stages {
		run.MarkStage(s)
	}

	require.Len(t, run.Journal, len(stages))
	for i, s := range stages {
		assert.Equal(t, s, run.Journal[i].Stage)
		if i > 0 {
			assert.False(t, run.Journal[i].At.Before(run.Journal[i-1].At))
		}
	}
}

func TestFinalize_WritesExactlyOnce(t *testing.T) {
	run := NewRunState("ACME")
	require.NoError(t, run.Finalize(ActionBuy, "panel consensus", 0.10))

	assert.True(t, run.Finalized)
	assert.Equal(t, ActionBuy, run.FinalAction)
	assert.Equal(t, 0.10, run.PositionSize)

	err := run.Finalize(ActionSell, "second write", 0.05)
	require.Error(t, err)
	assert.Equal(t, ActionBuy, run.FinalAction)
	assert.Equal(t, "panel consensus", run.FinalReason)
}

func TestFinalize_EscalationRequiresHumanApproval(t *testing.T) {
	run := NewRunState("ACME")
	require.NoError(t, run.Finalize(ActionEscalated, "panel deadlocked", 0))
	assert.True(t, run.HumanApprovalRequired)
	assert.Zero(t, run.PositionSize)
}

func TestMarkStage_NoOpAfterFinalize(t *testing.T) {
	run := NewRunState("ACME")
	run.MarkStage("quant")
	require.NoError(t, run.Finalize(ActionHold, "neutral", 0))

	run.MarkStage("late")
	assert.Len(t, run.Journal, 1)
}
