package commands

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/web3-frozen/yield-monitor/internal/app"
	"github.com/web3-frozen/yield-monitor/internal/config"
	"github.com/web3-frozen/yield-monitor/internal/scrape"
)

func newScrapeCmd(logger func() *slog.Logger) *cobra.Command {
	var (
		wait    time.Duration
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "scrape URL",
		Short: "Renders a page with the configured scraper and prints its markdown.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := app.Fetcher(config.Load(), logger())
			md, err := f.Markdown(cmd.Context(), scrape.Request{URL: args[0], WaitFor: wait, Timeout: timeout})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), md)
			return nil
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 8*time.Second, "time to let client-side rendering settle")
	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "overall render timeout")
	return cmd
}
