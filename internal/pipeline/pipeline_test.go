package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-arbiter/internal/arbiter"
	"signal-arbiter/internal/audit"
	"signal-arbiter/internal/debate"
	"signal-arbiter/internal/errors"
	"signal-arbiter/internal/models"
	"signal-arbiter/internal/panel"
	"signal-arbiter/internal/policy"
	"signal-arbiter/internal/pretrade"
	"signal-arbiter/internal/providers"
	"signal-arbiter/internal/quant"
	"signal-arbiter/internal/riskgate"
)

type stubScorer struct {
	name  string
	score float64
	err   error
}

func (s *stubScorer) Name() string { return s.name }
func (s *stubScorer) Score(ctx context.Context, symbol string) (float64, error) {
	return s.score, s.err
}

type stubPolicy struct {
	result models.PolicyResult
	err    error
	calls  int
}

func (s *stubPolicy) Verdict(ctx context.Context, symbol string, f *models.Fundamentals) (models.PolicyResult, error) {
	s.calls++
	return s.result, s.err
}

// staticCompleter answers every call with the same payload.
type staticCompleter struct {
	name     string
	response string
	err      error
	mu       sync.Mutex
	calls    int
}

func (s *staticCompleter) Name() string { return s.name }
func (s *staticCompleter) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.response, s.err
}

func (s *staticCompleter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// alternatingCompleter cycles through responses by call order; with an
// even panel it produces an exact split whatever the goroutine order.
type alternatingCompleter struct {
	name      string
	responses []string
	mu        sync.Mutex
	calls     int
}

func (a *alternatingCompleter) Name() string { return a.name }
func (a *alternatingCompleter) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	a.mu.Lock()
	idx := a.calls % len(a.responses)
	a.calls++
	a.mu.Unlock()
	return a.responses[idx], nil
}

type stubSnapshot struct {
	snap *models.PortfolioSnapshot
	err  error
}

func (s *stubSnapshot) Snapshot(ctx context.Context) (*models.PortfolioSnapshot, error) {
	return s.snap, s.err
}

func healthySnapshot() *models.PortfolioSnapshot {
	return &models.PortfolioSnapshot{
		Positions: []models.Position{
			{Symbol: "AAA", Sector: "technology", Value: 20000},
		},
		Cash:           30000,
		TotalValue:     100000,
		SectorExposure: map[string]float64{"technology": 0.20},
		Correlations:   map[string]float64{"AAA": 0.40},
		OpenOrders:     3,
	}
}

type fixture struct {
	scorers   []*stubScorer
	policy    *stubPolicy
	debateLLM *staticCompleter
	judgeLLM  *staticCompleter
	panelLLM  providers.Completer
	snapshot  *stubSnapshot
	sink      *audit.MemorySink
	riskLim   riskgate.Limits
	rules     pretrade.Rules
}

func defaultFixture() *fixture {
	agreement := `{"outcome": "AGREEMENT", "action": "BUY", "rationale": "converged"}`
	return &fixture{
		scorers: []*stubScorer{
			{name: "momentum", score: 0.80},
			{name: "mean_reversion", score: 0.90},
			{name: "breakout", score: 0.80},
			{name: "volume_flow", score: 0.90},
		},
		policy:    &stubPolicy{result: models.PolicyResult{Verdict: models.VerdictApprove, Confidence: 0.92}},
		debateLLM: &staticCompleter{name: "debater", response: `{"text": "case", "confidence": 0.8}`},
		judgeLLM:  &staticCompleter{name: "judge", response: agreement},
		panelLLM:  &staticCompleter{name: "panelist", response: `{"vote": "BUY", "rationale": "x", "confidence": 0.6}`},
		snapshot:  &stubSnapshot{snap: healthySnapshot()},
		sink:      audit.NewMemorySink(),
		riskLim: riskgate.Limits{
			MinCashReserve:           0.10,
			CorrelationThreshold:     0.85,
			SectorConcentrationLimit: 0.30,
			MaxOpenPositions:         12,
		},
		rules: pretrade.Rules{
			MinNotional:      0.005,
			MaxNotional:      0.12,
			PriceBandPercent: 5.0,
			MaxOpenOrders:    20,
		},
	}
}

func (f *fixture) build() *Pipeline {
	logger := zerolog.Nop()
	ps := make([]providers.ScoreProvider, 0, len(f.scorers))
	for _, s := range f.scorers {
		ps = append(ps, s)
	}

	return New(Deps{
		Ensemble:   quant.NewEnsemble(ps, 0.50, time.Second, logger),
		PolicyGate: policy.NewGate(f.policy, 0.80, time.Second, logger),
		Engine: debate.NewEngine(
			providers.NewBullReasoner(f.debateLLM),
			providers.NewBearReasoner(f.debateLLM),
			providers.NewJudge(f.judgeLLM, f.judgeLLM),
			2, time.Second, logger),
		Aggregator:  panel.NewAggregator(10, providers.NewPanelReasoner(f.panelLLM), time.Second, logger),
		RiskGate:    riskgate.NewGate(f.riskLim, logger),
		PreTrade:    pretrade.NewGate(f.rules, logger),
		Arbiter:     arbiter.New(0.12, logger),
		Portfolio:   f.snapshot,
		Sink:        f.sink,
		MaxPosition: 0.12,
		Logger:      logger,
	})
}

func TestEvaluate_CleanApproval(t *testing.T) {
	f := defaultFixture()
	p := f.build()

	run, err := p.Evaluate(context.Background(), "ACME", &models.Fundamentals{Sector: "technology"})
	require.NoError(t, err)

	assert.Equal(t, models.ActionBuy, run.FinalAction)
	assert.InDelta(t, 0.10488, run.PositionSize, 1e-9)
	assert.True(t, run.Finalized)
	assert.Nil(t, run.Panel, "agreement skips the panel")

	// Journal covers every visited stage in order.
	stages := make([]string, 0, len(run.Journal))
	for _, e := range run.Journal {
		stages = append(stages, e.Stage)
	}
	assert.Equal(t, []string{"quant", "policy", "debate", "risk", "pretrade", "arbiter"}, stages)

	// The run was audited.
	stored, err := f.sink.Get(context.Background(), run.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.ActionBuy, stored.FinalAction)
}

func TestEvaluate_PolicyVetoSkipsDownstream(t *testing.T) {
	f := defaultFixture()
	f.policy.result = models.PolicyResult{Verdict: models.VerdictBlock, Confidence: 0.95, Rationale: "restricted issuer"}
	p := f.build()

	run, err := p.Evaluate(context.Background(), "ACME", nil)
	require.NoError(t, err)

	assert.Equal(t, models.ActionBlocked, run.FinalAction)
	assert.Zero(t, run.PositionSize)
	assert.Nil(t, run.Debate)
	assert.Nil(t, run.Risk)
	assert.Equal(t, 0, f.debateLLM.callCount(), "no debate after a veto")
}

func TestEvaluate_DowngradedBlockContinues(t *testing.T) {
	f := defaultFixture()
	f.policy.result = models.PolicyResult{Verdict: models.VerdictBlock, Confidence: 0.60}
	p := f.build()

	run, err := p.Evaluate(context.Background(), "ACME", &models.Fundamentals{Sector: "technology"})
	require.NoError(t, err)

	assert.True(t, run.Policy.Downgraded)
	assert.Equal(t, models.ActionBuy, run.FinalAction)
	assert.NotNil(t, run.Debate)
}

func TestEvaluate_DisagreementConvenesPanel(t *testing.T) {
	f := defaultFixture()
	f.judgeLLM.response = `{"outcome": "DISAGREEMENT", "rationale": "split"}`
	p := f.build()

	run, err := p.Evaluate(context.Background(), "ACME", &models.Fundamentals{Sector: "technology"})
	require.NoError(t, err)

	require.NotNil(t, run.Panel)
	assert.Equal(t, "debate disagreement", run.Panel.SpawnReason)
	assert.Len(t, run.Panel.Members, 10)
	assert.Equal(t, models.ActionBuy, run.FinalAction)
	assert.Equal(t, "panel consensus", run.FinalReason)
}

func TestEvaluate_PanelDeadlockEscalates(t *testing.T) {
	f := defaultFixture()
	f.judgeLLM.response = `{"outcome": "DISAGREEMENT", "rationale": "split"}`
	f.panelLLM = &alternatingCompleter{name: "panelist", responses: []string{
		`{"vote": "BUY", "rationale": "x", "confidence": 0.6}`,
		`{"vote": "SELL", "rationale": "y", "confidence": 0.6}`,
	}}
	p := f.build()

	run, err := p.Evaluate(context.Background(), "ACME", nil)
	require.NoError(t, err)

	assert.Equal(t, models.ActionEscalated, run.FinalAction)
	assert.True(t, run.HumanApprovalRequired)
	assert.Zero(t, run.PositionSize)

	// Escalation outranks the gates but never skips them: the audit
	// record carries both reports.
	require.NotNil(t, run.Risk)
	require.NotNil(t, run.PreTrade)

	stored, err := f.sink.Get(context.Background(), run.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.ActionEscalated, stored.FinalAction)
	require.NotNil(t, stored.Risk)
	require.NotNil(t, stored.PreTrade)
}

func TestEvaluate_RiskFailureBlocksButBothGatesReport(t *testing.T) {
	f := defaultFixture()
	f.snapshot.snap.Correlations = map[string]float64{"AAA": 0.95}
	p := f.build()

	run, err := p.Evaluate(context.Background(), "ACME", &models.Fundamentals{Sector: "technology"})
	require.NoError(t, err)

	assert.Equal(t, models.ActionBlocked, run.FinalAction)
	require.NotNil(t, run.Risk)
	assert.Equal(t, []string{"correlation"}, run.Risk.FailedChecks)

	// The pre-trade gate still ran and reported independently.
	require.NotNil(t, run.PreTrade)
	assert.True(t, run.PreTrade.Clear)
}

func TestEvaluate_GateResultsAreIndependent(t *testing.T) {
	// Flip only pre-trade inputs; the risk verdict must not move.
	clean := defaultFixture()
	cleanRun, err := clean.build().Evaluate(context.Background(), "ACME", &models.Fundamentals{Sector: "technology"})
	require.NoError(t, err)

	crowded := defaultFixture()
	crowded.snapshot.snap.OpenOrders = 50
	crowdedRun, err := crowded.build().Evaluate(context.Background(), "ACME", &models.Fundamentals{Sector: "technology"})
	require.NoError(t, err)

	assert.Equal(t, cleanRun.Risk, crowdedRun.Risk)
	assert.True(t, cleanRun.PreTrade.Clear)
	assert.Equal(t, []string{"open_order_limit"}, crowdedRun.PreTrade.Rejections)
	assert.Equal(t, models.ActionBlocked, crowdedRun.FinalAction)
}

func TestEvaluate_HoldStillRunsGates(t *testing.T) {
	f := defaultFixture()
	f.judgeLLM.response = `{"outcome": "AGREEMENT", "action": "HOLD", "rationale": "no edge"}`
	p := f.build()

	run, err := p.Evaluate(context.Background(), "ACME", nil)
	require.NoError(t, err)

	assert.Equal(t, models.ActionHold, run.FinalAction)
	assert.Zero(t, run.PositionSize)

	// Both gates screened the candidate even though no order follows.
	require.NotNil(t, run.Risk)
	assert.True(t, run.Risk.Passed)
	require.NotNil(t, run.PreTrade)
	assert.True(t, run.PreTrade.Clear)
}

func TestEvaluate_HoldOverRiskyPortfolioBlocks(t *testing.T) {
	// A risk-gate failure outranks the HOLD fallback.
	f := defaultFixture()
	f.judgeLLM.response = `{"outcome": "AGREEMENT", "action": "HOLD", "rationale": "no edge"}`
	f.snapshot.snap.Correlations = map[string]float64{"AAA": 0.99}
	p := f.build()

	run, err := p.Evaluate(context.Background(), "ACME", nil)
	require.NoError(t, err)

	assert.Equal(t, models.ActionBlocked, run.FinalAction)
	require.NotNil(t, run.Risk)
	assert.Contains(t, run.Risk.FailedChecks, "correlation")
	assert.Contains(t, run.FinalReason, "risk gate failed")
}

func TestEvaluate_PartialQuantDataFlows(t *testing.T) {
	f := defaultFixture()
	f.scorers[1].err = fmt.Errorf("model down")
	p := f.build()

	run, err := p.Evaluate(context.Background(), "ACME", &models.Fundamentals{Sector: "technology"})
	require.NoError(t, err)

	assert.True(t, run.Quant.Partial)
	assert.Equal(t, []string{"mean_reversion"}, run.Quant.FailedModels)
	assert.True(t, run.Finalized)
}

func TestEvaluate_AllQuantModelsFailedEscalates(t *testing.T) {
	f := defaultFixture()
	for _, s := range f.scorers {
		s.err = fmt.Errorf("down")
	}
	p := f.build()

	run, err := p.Evaluate(context.Background(), "ACME", nil)
	require.Error(t, err)
	require.NotNil(t, run)

	var failure *errors.RunFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "quant", failure.Stage)
	assert.True(t, errors.Is(err, errors.ErrAllQuantModelsFailed))

	// Never a default trade: the run escalated and was audited.
	assert.Equal(t, models.ActionEscalated, run.FinalAction)
	assert.True(t, run.HumanApprovalRequired)
	stored, sinkErr := f.sink.Get(context.Background(), run.RunID)
	require.NoError(t, sinkErr)
	assert.Equal(t, models.ActionEscalated, stored.FinalAction)
}

func TestEvaluate_SnapshotFailureEscalates(t *testing.T) {
	f := defaultFixture()
	f.snapshot.err = fmt.Errorf("portfolio service down")
	p := f.build()

	run, err := p.Evaluate(context.Background(), "ACME", &models.Fundamentals{Sector: "technology"})
	require.Error(t, err)

	var failure *errors.RunFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "risk", failure.Stage)
	assert.Equal(t, models.ActionEscalated, run.FinalAction)
}

func TestEvaluate_CancellationEscalates(t *testing.T) {
	f := defaultFixture()
	p := f.build()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := p.Evaluate(ctx, "ACME", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRunCancelled))
	assert.Equal(t, models.ActionEscalated, run.FinalAction)
	assert.Contains(t, run.FinalReason, "cancelled")

	// Cancellation never loses the audit record.
	stored, sinkErr := f.sink.Get(context.Background(), run.RunID)
	require.NoError(t, sinkErr)
	assert.True(t, stored.Finalized)
}

func TestNext_TransitionTable(t *testing.T) {
	run := models.NewRunState("ACME")
	run.Quant = &models.QuantResult{Composite: 0.85}
	run.Policy = &models.PolicyResult{Verdict: models.VerdictApprove}
	assert.Equal(t, StagePolicy, Next(StageQuant, run))
	assert.Equal(t, StageDebate, Next(StagePolicy, run))

	run.Policy = &models.PolicyResult{Verdict: models.VerdictBlock}
	assert.Equal(t, StageArbiter, Next(StagePolicy, run))

	run.Policy = &models.PolicyResult{Verdict: models.VerdictApprove}
	run.Debate = &models.DebateResult{Outcome: models.DebateDisagreement}
	assert.Equal(t, StagePanel, Next(StageDebate, run))

	run.Debate = &models.DebateResult{Outcome: models.DebateAgreement, AgreedAction: models.VoteBuy}
	assert.Equal(t, StageRisk, Next(StageDebate, run))

	run.Debate = &models.DebateResult{Outcome: models.DebateAgreement, AgreedAction: models.VoteHold}
	assert.Equal(t, StageRisk, Next(StageDebate, run), "a HOLD still gets screened")

	run.Panel = &models.PanelResult{Escalated: true}
	assert.Equal(t, StageRisk, Next(StagePanel, run), "a deadlock still gets screened")

	run.Panel = &models.PanelResult{Escalated: false, Decision: models.ActionSell}
	assert.Equal(t, StageRisk, Next(StagePanel, run))

	assert.Equal(t, StagePreTrade, Next(StageRisk, run))
	assert.Equal(t, StageArbiter, Next(StagePreTrade, run))
	assert.Equal(t, StageDone, Next(StageArbiter, run))
}
