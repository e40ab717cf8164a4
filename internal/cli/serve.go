package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	transport "quiz-round-service/internal/transport/http"
)

// NewServeCmd builds the CLI subcommand that runs an API replica.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run an API replica (HTTP, websocket fan-out, broadcast subscriber)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath, *port)
		},
	}
}

func runServe(ctx context.Context, configPath, portFlag string) error {
	d, err := buildDeps(ctx, configPath)
	if err != nil {
		return err
	}
	defer d.Close()

	if d.pool != nil {
		if err := runMigrationsWithConfig(ctx, d.cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = d.cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	service := d.newService()
	lifecycle := d.newLifecycle()
	hub := transport.NewHub()
	handler := transport.NewHandler(service, hub)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      handler.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info().Str("port", finalPort).Msg("starting api replica")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	// Relay cross-process broadcasts into this replica's websocket clients.
	if d.redisEvents != nil {
		group.Go(func() error {
			err := d.redisEvents.Subscribe(ctx, hub.Relay)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		d.memEvents.OnEvent(hub.Relay)
		// Without Redis there is no separate worker process; run the job
		// loop here so rounds still advance.
		group.Go(func() error {
			err := d.memSched.Run(ctx, 50*time.Millisecond, lifecycle.HandleJob)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if err := lifecycle.Bootstrap(ctx); err != nil {
		return err
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
