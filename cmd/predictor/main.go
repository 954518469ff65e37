package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Alias1177/BTCPredictor/internal/app"
	"github.com/Alias1177/BTCPredictor/internal/config"
	"github.com/Alias1177/BTCPredictor/internal/cycle"
	"github.com/Alias1177/BTCPredictor/internal/report"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd(ctx).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd(ctx context.Context) *cobra.Command {
	root := &cobra.Command{
		Use:           "predictor",
		Short:         "Daily Bitcoin direction predictions scored against a random guess",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(runCmd(ctx))
	root.AddCommand(statsCmd(ctx))
	root.AddCommand(historyCmd(ctx))
	return root
}

// withApp loads configuration, wires the application and hands it to fn
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	app.SetupLogging(cfg.LogLevel)

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing application")
		}
	}()
	return fn(a)
}

func runCmd(ctx context.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run today's prediction cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(ctx, func(a *app.App) error {
				res, err := a.Runner.Run(ctx)
				switch {
				case err == nil:
					fmt.Fprint(cmd.OutOrStdout(), report.Today(res))
					return nil
				case errors.Is(err, cycle.ErrAlreadyRanToday):
					fmt.Fprintln(cmd.OutOrStdout(), report.AlreadyRunNotice)
					return nil
				case errors.Is(err, cycle.ErrNoData):
					fmt.Fprintln(cmd.OutOrStdout(), report.NoDataNotice)
					return nil
				default:
					return err
				}
			})
		},
	}
}

func statsCmd(ctx context.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show accuracy of the model and the random guess",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(ctx, func(a *app.App) error {
				s, err := a.Runner.Status(ctx)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), report.Status(s))
				return nil
			})
		},
	}
}

func historyCmd(ctx context.Context) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded predictions, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(ctx, func(a *app.App) error {
				records, err := a.Ledger.List(ctx)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), report.History(records, limit))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum number of records to show, 0 for all")
	return cmd
}
