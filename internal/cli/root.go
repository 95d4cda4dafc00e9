package cli

import (
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"signal-arbiter/internal/audit"
	"signal-arbiter/internal/config"
	"signal-arbiter/internal/logging"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-06-01"
)

// App holds the application dependencies shared across commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Sink   audit.Sink
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	dbPath := filepath.Join(config.DefaultConfigDir(), "audit.db")
	sink, err := audit.NewSQLiteSink(dbPath)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to open audit database, falling back to in-memory sink")
		app.Sink = audit.NewMemorySink()
	} else {
		app.Sink = sink
	}

	rootCmd := &cobra.Command{
		Use:   "arbiter",
		Short: "Signal Arbiter - multi-stage trade decision pipeline",
		Long: `Signal Arbiter evaluates trade candidates through a staged pipeline:
a quant model ensemble, a policy gate with veto authority, an adversarial
bull/bear debate, a voting panel for contested calls, independent risk and
pre-trade gates, and a final arbiter that sizes the position.

Every run is recorded in the audit database, including escalations.

Use 'arbiter help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/signal-arbiter)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newAuditCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("Signal Arbiter v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate pipeline configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			return showConfig(output, app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": config.DefaultConfigDir()})
			} else {
				output.Println(config.DefaultConfigDir())
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) error {
	output.Bold("Quant Ensemble")
	output.Printf("  Dispersion Threshold: %.2f\n", cfg.Quant.DispersionThreshold)
	output.Printf("  Call Timeout:         %s\n", cfg.Quant.CallTimeout)
	output.Println()

	output.Bold("Policy Gate")
	output.Printf("  Veto Floor:   %.2f\n", cfg.Policy.VetoFloor)
	output.Printf("  Call Timeout: %s\n", cfg.Policy.CallTimeout)
	output.Println()

	output.Bold("Debate")
	output.Printf("  Max Rebuttal Rounds: %d\n", cfg.Debate.MaxRebuttalRounds)
	output.Printf("  Call Timeout:        %s\n", cfg.Debate.CallTimeout)
	output.Println()

	output.Bold("Panel")
	output.Printf("  Size:           %d\n", cfg.Panel.Size)
	output.Printf("  Member Timeout: %s\n", cfg.Panel.MemberTimeout)
	output.Println()

	output.Bold("Arbiter")
	output.Printf("  Max Position: %.2f\n", cfg.Arbiter.MaxPosition)
	output.Println()

	output.Bold("Risk Limits")
	output.Printf("  Min Cash Reserve:     %.2f\n", cfg.Risk.MinCashReserve)
	output.Printf("  Correlation Limit:    %.2f\n", cfg.Risk.CorrelationThreshold)
	output.Printf("  Sector Concentration: %.2f\n", cfg.Risk.SectorConcentrationLimit)
	output.Printf("  Max Open Positions:   %d\n", cfg.Risk.MaxOpenPositions)
	output.Println()

	output.Bold("Order Rules")
	output.Printf("  Notional Bounds: [%.4f, %.4f]\n", cfg.PreTrade.MinNotional, cfg.PreTrade.MaxNotional)
	output.Printf("  Price Band:      %.1f%%\n", cfg.PreTrade.PriceBandPercent)
	output.Printf("  Max Open Orders: %d\n", cfg.PreTrade.MaxOpenOrders)

	return nil
}
