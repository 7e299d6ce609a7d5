package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var scheduleInterval int

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run recalculation batches on a fixed interval",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		mins := scheduleInterval
		if mins <= 0 {
			mins = cfg.Schedule.IntervalMins
		}
		interval := time.Duration(mins) * time.Minute

		zap.L().Info("scheduler started", zap.Duration("interval", interval))

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			result, err := env.Scheduler.RunBatch(ctx, nil)
			if err != nil {
				zap.L().Error("batch failed to start", zap.Error(err))
			} else {
				zap.L().Info("batch finished",
					zap.String("state", string(result.State)),
					zap.Int("succeeded", result.Succeeded),
					zap.Int("failed", result.Failed))
			}

			select {
			case <-ctx.Done():
				zap.L().Info("scheduler stopped")
				return nil
			case <-ticker.C:
			}
		}
	},
}

func init() {
	scheduleCmd.Flags().IntVar(&scheduleInterval, "interval-mins", 0, "minutes between batches (default from config)")
	rootCmd.AddCommand(scheduleCmd)
}
