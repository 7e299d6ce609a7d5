package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/model"
)

var recalcCustomers []string

var recalculateCmd = &cobra.Command{
	Use:   "recalculate",
	Short: "Run one health recalculation batch",
	Long:  "Recalculates health scores for the given customers (or every customer the provider lists), persists snapshots, and dispatches alerts. Prints the batch summary as JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var ids []string
		if len(recalcCustomers) > 0 {
			ids = recalcCustomers
		}

		result, err := env.Scheduler.RunBatch(ctx, ids)
		if err != nil {
			return eris.Wrap(err, "run batch")
		}

		if result.State == model.BatchCompletedWithErrors {
			zap.L().Warn("batch completed with errors", zap.Int("failed", result.Failed))
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	recalculateCmd.Flags().StringSliceVar(&recalcCustomers, "customer", nil, "customer ID to recalculate (repeatable; default all)")
	rootCmd.AddCommand(recalculateCmd)
}
