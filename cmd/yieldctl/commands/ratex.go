package commands

import (
	"log/slog"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/web3-frozen/yield-monitor/internal/app"
	"github.com/web3-frozen/yield-monitor/internal/config"
	"github.com/web3-frozen/yield-monitor/internal/market"
)

func newRateXCmd(logger func() *slog.Logger) *cobra.Command {
	rx := &cobra.Command{
		Use:   "ratex",
		Short: "Queries RateX directly without touching the database.",
	}
	rx.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "Prints platform TVL and volume.",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				_, client := app.Sources(config.Load(), nil, logger())
				st, err := client.Stats(cmd.Context())
				if err != nil {
					return err
				}
				t := newTable(cmd.OutOrStdout())
				t.AppendHeader(table.Row{"TVL", "Volume"})
				t.AppendRow(table.Row{market.FormatUSD(st.TVL), market.FormatUSD(st.Volume)})
				t.Render()
				return nil
			},
		},
		&cobra.Command{
			Use:   "implied-yield SYMBOL...",
			Short: "Scrapes swap pages for implied and real yields.",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				_, client := app.Sources(config.Load(), nil, logger())
				yields, err := client.ImpliedYields(cmd.Context(), args)
				if err != nil {
					return err
				}
				t := newTable(cmd.OutOrStdout())
				t.AppendHeader(table.Row{"Symbol", "Implied", "Real"})
				for _, y := range yields {
					t.AppendRow(table.Row{y.Symbol, market.FormatPercent(y.ImpliedYield), market.FormatPercent(y.RealYield)})
				}
				t.Render()
				return nil
			},
		},
	)
	return rx
}
