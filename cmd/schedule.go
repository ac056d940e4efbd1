package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var scheduleIntervalHours int

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Harvest on a fixed interval until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		if scheduleIntervalHours < 1 {
			return eris.Errorf("schedule: interval must be at least 1 hour, got %d", scheduleIntervalHours)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initHarvestEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		interval := time.Duration(scheduleIntervalHours) * time.Hour
		log := zap.L().With(zap.String("service", "schedule"))

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			// First sweep runs immediately, then on every tick.
			for {
				res, err := env.Harvester.Run(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					// A failed sweep is retried at the next tick.
					log.Error("scheduled harvest failed", zap.Error(err))
				} else {
					log.Info("scheduled harvest finished",
						zap.String("run_id", res.RunID),
						zap.Int("stored", res.Stored))
				}

				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		})

		log.Info("scheduler started", zap.Duration("interval", interval))
		return g.Wait()
	},
}

func init() {
	scheduleCmd.Flags().IntVar(&scheduleIntervalHours, "interval", 24, "hours between sweeps")
	rootCmd.AddCommand(scheduleCmd)
}
