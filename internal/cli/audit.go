package cli

import (
	"github.com/spf13/cobra"

	"signal-arbiter/internal/models"
)

func newAuditCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect recorded runs",
		Long:  "List and inspect finalized runs from the audit database.",
	}

	var symbol string
	var limit int

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			runs, err := app.Sink.List(cmd.Context(), symbol, limit)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(runs)
			}
			if len(runs) == 0 {
				output.Dim("No recorded runs.")
				return nil
			}
			output.Printf("%-36s  %-10s  %-10s  %8s  %s\n", "RUN", "SYMBOL", "ACTION", "SIZE", "STARTED")
			for _, run := range runs {
				output.Printf("%-36s  %-10s  %-10s  %8.4f  %s\n",
					run.RunID, run.Symbol, run.FinalAction, run.PositionSize,
					run.StartedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
	listCmd.Flags().StringVar(&symbol, "symbol", "", "filter by symbol")
	listCmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to show")

	showCmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the full record of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			run, err := app.Sink.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(run)
			}
			printRun(output, run)
			output.Println()
			output.Bold("Journal")
			for _, entry := range run.Journal {
				output.Printf("  %-10s %s\n", entry.Stage, entry.At.Format("15:04:05.000"))
			}
			return nil
		},
	}

	escalationsCmd := &cobra.Command{
		Use:   "escalations",
		Short: "List runs awaiting human approval",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			runs, err := app.Sink.List(cmd.Context(), "", 0)
			if err != nil {
				return err
			}
			escalated := make([]*models.RunState, 0)
			for _, run := range runs {
				if run.FinalAction == models.ActionEscalated {
					escalated = append(escalated, run)
				}
			}
			if output.IsJSON() {
				return output.JSON(escalated)
			}
			if len(escalated) == 0 {
				output.Dim("No escalated runs.")
				return nil
			}
			for _, run := range escalated {
				output.Warning("%s  %s  %s", run.RunID, run.Symbol, run.FinalReason)
			}
			return nil
		},
	}

	cmd.AddCommand(listCmd, showCmd, escalationsCmd)
	return cmd
}
