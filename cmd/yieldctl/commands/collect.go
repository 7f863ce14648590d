package commands

import (
	"fmt"
	"log/slog"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/web3-frozen/yield-monitor/internal/app"
	"github.com/web3-frozen/yield-monitor/internal/config"
	"github.com/web3-frozen/yield-monitor/internal/market"
	"github.com/web3-frozen/yield-monitor/internal/monitor"
)

func newCollectCmd(logger func() *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "collect [source...]",
		Short: "Runs collectors once and stores their snapshots. With no arguments every enabled source runs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd.Context(), config.Load(), logger())
			if err != nil {
				return err
			}
			defer a.Close()

			names := args
			if len(names) == 0 {
				names = a.Engine.SourceNames()
			}

			var results []*monitor.RunResult
			var failed int
			for _, name := range names {
				res, err := a.Engine.Collect(cmd.Context(), name)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", name, err)
					failed++
					continue
				}
				results = append(results, res)
			}

			renderRuns(cmd, results)
			if failed > 0 {
				return fmt.Errorf("%d of %d sources failed", failed, len(names))
			}
			return nil
		},
	}
}

func renderRuns(cmd *cobra.Command, results []*monitor.RunResult) {
	t := newTable(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"Source", "Markets", "Stored", "Alerts"})
	var alerts []market.Alert
	for _, r := range results {
		t.AppendRow(table.Row{r.Source, r.MarketsProcessed, r.PoolsStored, r.AlertsGenerated})
		alerts = append(alerts, r.Alerts...)
	}
	t.Render()

	if len(alerts) == 0 {
		return
	}
	at := newTable(cmd.OutOrStdout())
	at.AppendHeader(table.Row{"Pool", "Alert", "Previous", "Current", "Change"})
	for _, a := range alerts {
		name := a.PoolID
		if a.Pool != nil {
			name = a.Pool.DisplayName()
		}
		at.AppendRow(table.Row{
			name,
			a.Label(),
			market.FormatPercent(a.PreviousValue),
			market.FormatPercent(a.CurrentValue),
			market.FormatChange(a.ChangePercent),
		})
	}
	at.Render()
}
