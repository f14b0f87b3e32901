package cli

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/urfave/cli/v3"

	"github.com/commune-lab/commune/pkg/cli/config"
	"github.com/commune-lab/commune/pkg/utils/logging"
)

func Run(ctx context.Context, args []string, version string) error {
	var loggerCfg config.Logger
	var sentryDSN string
	var closer func()

	flags := loggerCfg.Flags()
	flags = append(flags, &cli.StringFlag{
		Name:        "sentry-dsn",
		Usage:       "Sentry DSN for error reporting (optional)",
		Sources:     cli.EnvVars("COMMUNE_SENTRY_DSN"),
		Destination: &sentryDSN,
	})

	app := &cli.Command{
		Name:    "commune",
		Usage:   "Commune community app client core",
		Version: version,
		Flags:   flags,
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			f, err := loggerCfg.Configure()
			if err != nil {
				return ctx, err
			}
			closer = f

			if sentryDSN != "" {
				if err := sentry.Init(sentry.ClientOptions{
					Dsn:     sentryDSN,
					Release: version,
				}); err != nil {
					return ctx, err
				}
				logging.Default().Info("Sentry error reporting enabled")
			}

			logging.Default().Info("Starting commune", "logger", loggerCfg)
			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			sentry.Flush(2 * time.Second)
			if closer != nil {
				closer()
			}
			return nil
		},
		Commands: []*cli.Command{
			cmdServe(),
		},
	}

	if err := app.Run(ctx, args); err != nil {
		logging.Default().Error("failed to run app", "error", err)
		return err
	}

	return nil
}
