package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/web3-frozen/yield-monitor/internal/extract"
	"github.com/web3-frozen/yield-monitor/internal/market"
)

func newParseCmd() *cobra.Command {
	parse := &cobra.Command{
		Use:   "parse",
		Short: "Runs a page parser over saved markdown. FILE may be - for stdin.",
	}
	parse.AddCommand(
		&cobra.Command{
			Use:   "spectra FILE",
			Short: "Parses a Spectra pools page.",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				md, err := readInput(cmd, args[0])
				if err != nil {
					return err
				}
				pools := extract.ParseSpectra(md)
				t := newTable(cmd.OutOrStdout())
				t.AppendHeader(table.Row{"Name", "Chain", "Max APY", "Liquidity", "Expiry", "Pool"})
				for _, p := range pools {
					t.AppendRow(table.Row{p.Name, p.ChainName, fmt.Sprintf("%.2f%%", p.MaxAPY), market.FormatUSD(p.Liquidity), formatExpiry(p.Expiry), p.PoolAddress})
				}
				t.AppendFooter(table.Row{fmt.Sprintf("%d pools", len(pools))})
				t.Render()
				return nil
			},
		},
		&cobra.Command{
			Use:   "exponent FILE",
			Short: "Parses an Exponent income page.",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				md, err := readInput(cmd, args[0])
				if err != nil {
					return err
				}
				pools := extract.ParseExponent(md, time.Now())
				t := newTable(cmd.OutOrStdout())
				t.AppendHeader(table.Row{"Name", "PT", "Fixed APY", "Liquidity", "Expiry"})
				for _, p := range pools {
					t.AppendRow(table.Row{p.Name, p.PTToken, fmt.Sprintf("%.2f%%", p.FixedAPY), market.FormatUSD(p.Liquidity), formatExpiry(p.Expiry)})
				}
				t.AppendFooter(table.Row{fmt.Sprintf("%d pools", len(pools))})
				t.Render()
				return nil
			},
		},
		&cobra.Command{
			Use:   "ratex-yield FILE",
			Short: "Parses the implied and real yield from a RateX swap page.",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				md, err := readInput(cmd, args[0])
				if err != nil {
					return err
				}
				y := extract.ParseRateXYield(md)
				t := newTable(cmd.OutOrStdout())
				t.AppendHeader(table.Row{"Implied", "Real"})
				t.AppendRow(table.Row{formatFraction(y.Implied), formatFraction(y.Real)})
				t.Render()
				return nil
			},
		},
	)
	return parse
}

func readInput(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		return string(b), err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(b), nil
}

func formatExpiry(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02")
}

func formatFraction(v *float64) string {
	if v == nil {
		return "-"
	}
	return market.FormatPercent(*v)
}
