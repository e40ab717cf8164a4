package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"quiz-round-service/internal/config"
)

// NewWorkerCmd builds the CLI subcommand that runs a background worker.
func NewWorkerCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run a lifecycle worker (scheduled jobs, leaderboard reconcile)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context(), *configPath)
		},
	}
}

func runWorker(ctx context.Context, configPath string) error {
	d, err := buildDeps(ctx, configPath)
	if err != nil {
		return err
	}
	defer d.Close()

	if d.redisSched == nil {
		return fmt.Errorf("worker requires redis to share state with api replicas")
	}
	if d.pool != nil {
		if err := runMigrationsWithConfig(ctx, d.cfg); err != nil {
			return err
		}
	}

	lifecycle := d.newLifecycle()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info().Msg("starting lifecycle worker")
		err := d.redisSched.Run(ctx, lifecycle.HandleJob)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	// Periodically rebuild the ranked set from durable win history so the
	// leaderboard survives a Redis flush.
	reconcile := config.Duration(d.cfg.Worker.Reconcile, 10*time.Minute)
	c := cron.New()
	_, err = c.AddFunc("@every "+reconcile.String(), func() {
		if err := lifecycle.ReconcileLeaderboard(ctx); err != nil {
			log.Error().Err(err).Msg("leaderboard reconcile failed")
		}
	})
	if err != nil {
		return err
	}
	c.Start()
	defer c.Stop()

	if err := lifecycle.Bootstrap(ctx); err != nil {
		return err
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
