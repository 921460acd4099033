package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/kidwon/lifetree-app-api/config"
	"github.com/kidwon/lifetree-app-api/logging"
	"github.com/kidwon/lifetree-app-api/outbox"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	var store string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the outbox relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(store == storePostgres); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, store)
		},
	}
	cmd.Flags().StringVar(&store, "store", storePostgres, "storage backend (postgres|memory)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, store string) error {
	log, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, store, log)
	if err != nil {
		return err
	}
	defer a.Close()

	scheduler := cron.New()
	if _, err := outbox.Schedule(scheduler, a.relay, cfg.OutboxRelayInterval, log.WithField("component", "outbox")); err != nil {
		return err
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.WithFields(map[string]any{"addr": cfg.HTTPAddr, "store": store}).Info("api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
