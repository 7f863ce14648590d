package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/web3-frozen/yield-monitor/internal/config"
	"github.com/web3-frozen/yield-monitor/internal/dedup"
)

func newDedupCmd() *cobra.Command {
	d := &cobra.Command{
		Use:   "dedup",
		Short: "Manages alert repeat windows held in Redis.",
	}
	var ttl time.Duration
	hold := &cobra.Command{
		Use:   "hold KEY",
		Short: "Opens a repeat window for KEY so the matching alert stays quiet. A zero --ttl never expires.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDedup(func(dd *dedup.Deduplicator) error {
				if err := dd.Record(cmd.Context(), args[0], ttl); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "holding %s\n", args[0])
				return nil
			})
		},
	}
	hold.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "window length")

	d.AddCommand(hold, &cobra.Command{
		Use:   "check KEY",
		Short: "Reports whether KEY has an open repeat window.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDedup(func(dd *dedup.Deduplicator) error {
				state := "closed"
				if dd.AlreadySent(cmd.Context(), args[0]) {
					state = "open"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], state)
				return nil
			})
		},
	}, &cobra.Command{
		Use:   "clear [pattern]",
		Short: `Removes repeat windows matching a glob pattern (default "alert:*").`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := "alert:*"
			if len(args) == 1 {
				pattern = args[0]
			}
			return withDedup(func(dd *dedup.Deduplicator) error {
				n, err := dd.ClearByPattern(cmd.Context(), pattern)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d windows matching %q\n", n, pattern)
				return nil
			})
		},
	})
	return d
}

func withDedup(fn func(*dedup.Deduplicator) error) error {
	cfg := config.Load()
	if cfg.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	dd, err := dedup.New(cfg.RedisURL, cfg.RedisPassword)
	if err != nil {
		return err
	}
	defer dd.Close()
	return fn(dd)
}
