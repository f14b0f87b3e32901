package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/commune-lab/commune/pkg/cli/config"
	httpctrl "github.com/commune-lab/commune/pkg/controller/http"
	"github.com/commune-lab/commune/pkg/service/backend"
	"github.com/commune-lab/commune/pkg/service/realtime"
	"github.com/commune-lab/commune/pkg/service/worker"
	"github.com/commune-lab/commune/pkg/usecase"
	"github.com/commune-lab/commune/pkg/utils/logging"
)

func cmdServe() *cli.Command {
	var addr string
	var refreshInterval time.Duration
	var backendCfg config.Backend
	var providerCfg config.Provider

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       "127.0.0.1:4989",
			Sources:     cli.EnvVars("COMMUNE_ADDR"),
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "session-refresh-interval",
			Usage:       "How often the session refresh worker checks credential expiry",
			Value:       time.Minute,
			Sources:     cli.EnvVars("COMMUNE_SESSION_REFRESH_INTERVAL"),
			Destination: &refreshInterval,
		},
	}
	flags = append(flags, backendCfg.Flags()...)
	flags = append(flags, providerCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start the local gateway for the view layer",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			be, err := backendCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to configure backend")
			}

			idp, rt, err := providerCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to configure providers")
			}
			defer func() {
				if err := rt.Close(); err != nil {
					logging.Default().Error("failed to close realtime service", "error", err.Error())
				}
			}()

			// in full in-process mode the memory backend drives the hub,
			// so creating a thread locally shows up on open feeds
			if mem, ok := be.(*backend.Memory); ok {
				if hub, ok := rt.(*realtime.Hub); ok {
					mem.SetInsertPublisher(hub.PublishRecord)
					logging.Default().Info("memory backend wired to in-process realtime hub")
				}
			}

			uc := usecase.New(be, idp, rt)
			uc.Start(ctx)

			refreshWorker := worker.NewSessionRefreshWorker(idp, uc.Sessions, refreshInterval)
			if err := refreshWorker.Start(ctx); err != nil {
				return goerr.Wrap(err, "failed to start session refresh worker")
			}

			server := &http.Server{
				Addr:              addr,
				Handler:           httpctrl.New(uc),
				ReadHeaderTimeout: 30 * time.Second,
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			errCh := make(chan error, 1)
			go func() {
				logging.Default().Info("Starting HTTP server", "addr", addr, "in_memory_backend", backendCfg.Memory())
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logging.Default().Info("Received shutdown signal", "signal", sig)

				refreshWorker.Stop()
				uc.Feeds.CloseAll()

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}

				logging.Default().Info("Server shutdown completed")
				return nil
			}
		},
	}
}
