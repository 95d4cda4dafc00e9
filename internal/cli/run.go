package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"signal-arbiter/internal/arbiter"
	"signal-arbiter/internal/debate"
	"signal-arbiter/internal/models"
	"signal-arbiter/internal/notify"
	"signal-arbiter/internal/panel"
	"signal-arbiter/internal/pipeline"
	"signal-arbiter/internal/policy"
	"signal-arbiter/internal/pretrade"
	"signal-arbiter/internal/providers"
	"signal-arbiter/internal/quant"
	"signal-arbiter/internal/riskgate"
)

func newRunCmd(app *App) *cobra.Command {
	var sector string
	var company string

	cmd := &cobra.Command{
		Use:   "run <symbol>",
		Short: "Evaluate a symbol through the full arbitration pipeline",
		Long: `Run one symbol through every pipeline stage and print the finalized
decision. The run is recorded in the audit database whether it completes,
blocks or escalates.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			symbol := args[0]

			p, err := buildPipeline(app)
			if err != nil {
				output.Error("Failed to build pipeline: %v", err)
				return err
			}

			var fundamentals *models.Fundamentals
			if sector != "" || company != "" {
				fundamentals = &models.Fundamentals{
					CompanyName: company,
					Sector:      sector,
				}
			}

			run, runErr := p.Evaluate(cmd.Context(), symbol, fundamentals)
			if output.IsJSON() {
				if err := output.JSON(run); err != nil {
					return err
				}
				return runErr
			}

			printRun(output, run)
			return runErr
		},
	}

	cmd.Flags().StringVar(&sector, "sector", "", "candidate's sector, used by the risk gate")
	cmd.Flags().StringVar(&company, "company", "", "company name passed to the policy gate")
	return cmd
}

// buildPipeline assembles the full stage graph from configuration.
func buildPipeline(app *App) (*pipeline.Pipeline, error) {
	cfg := app.Config
	creds := cfg.Credentials

	if creds.Primary.APIKey == "" {
		return nil, fmt.Errorf("no primary model credentials configured, run 'arbiter config path' and edit credentials.toml")
	}

	primary := providers.NewOpenAIClient("primary", creds.Primary.APIKey, creds.Primary.BaseURL, creds.Primary.Model)
	// Without a configured secondary the fallback degenerates to a second
	// attempt against the primary.
	var fallback providers.Completer = primary
	if creds.Secondary.APIKey != "" {
		fallback = providers.NewOpenAIClient("secondary", creds.Secondary.APIKey, creds.Secondary.BaseURL, creds.Secondary.Model)
	}

	scoreProviders := make([]providers.ScoreProvider, 0, len(quant.ModelNames))
	for _, name := range quant.ModelNames {
		scoreProviders = append(scoreProviders,
			providers.NewHTTPScoreProvider(name, creds.Quant.URL, creds.Quant.APIKey, cfg.Quant.CallTimeout))
	}

	deps := pipeline.Deps{
		Ensemble: quant.NewEnsemble(scoreProviders, cfg.Quant.DispersionThreshold, cfg.Quant.CallTimeout, app.Logger),
		PolicyGate: policy.NewGate(
			providers.NewLLMPolicyProvider(primary, fallback),
			cfg.Policy.VetoFloor, cfg.Policy.CallTimeout, app.Logger),
		Engine: debate.NewEngine(
			providers.NewBullReasoner(primary),
			providers.NewBearReasoner(fallback),
			providers.NewJudge(primary, fallback),
			cfg.Debate.MaxRebuttalRounds, cfg.Debate.CallTimeout, app.Logger),
		Aggregator: panel.NewAggregator(
			cfg.Panel.Size,
			providers.NewPanelReasoner(primary),
			cfg.Panel.MemberTimeout, app.Logger),
		RiskGate: riskgate.NewGate(riskgate.Limits{
			MinCashReserve:           cfg.Risk.MinCashReserve,
			CorrelationThreshold:     cfg.Risk.CorrelationThreshold,
			SectorConcentrationLimit: cfg.Risk.SectorConcentrationLimit,
			MaxOpenPositions:         cfg.Risk.MaxOpenPositions,
		}, app.Logger),
		PreTrade: pretrade.NewGate(pretrade.Rules{
			MinNotional:      cfg.PreTrade.MinNotional,
			MaxNotional:      cfg.PreTrade.MaxNotional,
			PriceBandPercent: cfg.PreTrade.PriceBandPercent,
			MaxOpenOrders:    cfg.PreTrade.MaxOpenOrders,
		}, app.Logger),
		Arbiter:     arbiter.New(cfg.Arbiter.MaxPosition, app.Logger),
		Portfolio:   providers.NewHTTPSnapshotProvider(creds.Portfolio.URL, creds.Portfolio.APIKey, cfg.Quant.CallTimeout),
		Sink:        app.Sink,
		Notifier:    notify.NewMultiNotifier(&cfg.Notifications),
		MaxPosition: cfg.Arbiter.MaxPosition,
		Logger:      app.Logger,
	}

	return pipeline.New(deps), nil
}

func printRun(output *Output, run *models.RunState) {
	output.Bold("Run %s", run.RunID)
	output.Printf("  Symbol: %s\n", run.Symbol)
	output.Println()

	if run.Quant != nil {
		output.Info("Quant Ensemble")
		for model, score := range run.Quant.Scores {
			output.Printf("  %-16s %.3f\n", model, score)
		}
		if len(run.Quant.FailedModels) > 0 {
			output.Warning("  failed: %v", run.Quant.FailedModels)
		}
		output.Printf("  composite %.3f, dispersion %.3f\n", run.Quant.Composite, run.Quant.Dispersion)
		if run.Quant.HighDispersion {
			output.Warning("  high dispersion")
		}
	}

	if run.Policy != nil {
		output.Info("Policy Gate")
		output.Printf("  %s (confidence %.2f)\n", run.Policy.Verdict, run.Policy.Confidence)
		if run.Policy.Downgraded {
			output.Dim("  BLOCK downgraded below veto floor")
		}
	}

	if run.Debate != nil {
		output.Info("Debate")
		output.Printf("  %d rounds, outcome %s\n", len(run.Debate.Rounds), run.Debate.Outcome)
		if run.Debate.AgreedAction != "" {
			output.Printf("  agreed action: %s\n", run.Debate.AgreedAction)
		}
	}

	if run.Panel != nil {
		output.Info("Panel")
		output.Printf("  tally BUY=%d SELL=%d HOLD=%d\n",
			run.Panel.Tally[models.VoteBuy],
			run.Panel.Tally[models.VoteSell],
			run.Panel.Tally[models.VoteHold])
		if run.Panel.Escalated {
			output.Warning("  deadlocked")
		}
	}

	if run.Risk != nil && !run.Risk.Passed {
		output.Warning("Risk gate failed: %v", run.Risk.FailedChecks)
	}
	if run.PreTrade != nil && !run.PreTrade.Clear {
		output.Warning("Pre-trade gate rejected: %v", run.PreTrade.Rejections)
	}

	output.Println()
	switch run.FinalAction {
	case models.ActionBuy, models.ActionSell:
		output.Success("%s %s, size %.4f", run.FinalAction, run.Symbol, run.PositionSize)
	case models.ActionEscalated:
		output.Warning("ESCALATED: %s", run.FinalReason)
	case models.ActionBlocked:
		output.Error("BLOCKED: %s", run.FinalReason)
	default:
		output.Println(string(run.FinalAction) + ": " + run.FinalReason)
	}
}
