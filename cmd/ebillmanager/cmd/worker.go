package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bher20/ebillmanager/internal/logging"
)

var workerOnce bool

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the scheduled billing job",
	Long: `Bill every configured worker source with the worker tariff on the
configured interval. The refresh_interval setting overrides the interval
at runtime. Replicas coordinate through an advisory lock.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().BoolVar(&workerOnce, "once", false, "run a single billing pass and exit")
}

func runWorker(cmd *cobra.Command, args []string) error {
	if len(cfg.Worker.Sources) == 0 {
		return errors.New("worker.sources is empty; nothing to bill")
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	w, err := a.newWorker()
	if err != nil {
		return err
	}

	if workerOnce {
		res, err := w.RunOnce(ctx)
		if res.Skipped {
			fmt.Fprintln(cmd.OutOrStdout(), "another worker holds the lock, nothing done")
			return nil
		}
		for _, rec := range res.Billed {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", rec.ID, rec.Source, rec.Summary.TotalCost.StringFixed(2))
		}
		return err
	}

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logging.Named("worker").Info("worker stopped", zap.String("reason", "signal"))
	return nil
}
