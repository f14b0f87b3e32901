package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/urfave/cli/v3"

	"github.com/commune-lab/commune/pkg/cli/config"
	"github.com/commune-lab/commune/pkg/service/backend"
	"github.com/commune-lab/commune/pkg/service/identity"
	"github.com/commune-lab/commune/pkg/service/realtime"
)

// runFlags parses args through a throwaway command so flag destinations
// are populated the same way the real CLI populates them
func runFlags(t *testing.T, flags []cli.Flag, args ...string) {
	t.Helper()
	cmd := &cli.Command{
		Name:  "test",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			return nil
		},
	}
	gt.NoError(t, cmd.Run(context.Background(), append([]string{"test"}, args...))).Required()
}

func TestLoggerConfigure(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		var cfg config.Logger
		runFlags(t, cfg.Flags())

		closer, err := cfg.Configure()
		gt.NoError(t, err).Required()
		closer()
	})

	t.Run("file output", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "commune.log")
		var cfg config.Logger
		runFlags(t, cfg.Flags(), "--log-format", "json", "--log-output", path)

		closer, err := cfg.Configure()
		gt.NoError(t, err).Required()
		closer()

		_, err = os.Stat(path)
		gt.NoError(t, err)
	})

	t.Run("invalid level", func(t *testing.T) {
		var cfg config.Logger
		runFlags(t, cfg.Flags(), "--log-level", "verbose")
		_, err := cfg.Configure()
		gt.Value(t, err).NotNil()
	})

	t.Run("invalid format", func(t *testing.T) {
		var cfg config.Logger
		runFlags(t, cfg.Flags(), "--log-format", "xml")
		_, err := cfg.Configure()
		gt.Value(t, err).NotNil()
	})
}

func TestBackendConfigure(t *testing.T) {
	t.Run("rest requires a base URL", func(t *testing.T) {
		var cfg config.Backend
		runFlags(t, cfg.Flags())

		_, err := cfg.Configure()
		gt.Value(t, err).NotNil()
		gt.True(t, errors.Is(err, config.ErrInvalidConfig))
	})

	t.Run("rest", func(t *testing.T) {
		var cfg config.Backend
		runFlags(t, cfg.Flags(), "--backend-url", "http://127.0.0.1:8080")

		be, err := cfg.Configure()
		gt.NoError(t, err).Required()
		gt.Value(t, be).NotNil()
		gt.False(t, cfg.Memory())
	})

	t.Run("memory", func(t *testing.T) {
		var cfg config.Backend
		runFlags(t, cfg.Flags(), "--backend", "memory")

		be, err := cfg.Configure()
		gt.NoError(t, err).Required()
		gt.True(t, cfg.Memory())

		_, ok := be.(*backend.Memory)
		gt.True(t, ok)
	})

	t.Run("unknown kind", func(t *testing.T) {
		var cfg config.Backend
		runFlags(t, cfg.Flags(), "--backend", "graphql")

		_, err := cfg.Configure()
		gt.True(t, errors.Is(err, config.ErrInvalidConfig))
	})
}

func TestProviderConfigure(t *testing.T) {
	ctx := context.Background()

	t.Run("no file means in-process dev providers", func(t *testing.T) {
		var cfg config.Provider
		runFlags(t, cfg.Flags())
		gt.False(t, cfg.Configured())

		idp, rt, err := cfg.Configure(ctx)
		gt.NoError(t, err).Required()

		_, ok := idp.(*identity.Memory)
		gt.True(t, ok)
		hub, ok := rt.(*realtime.Hub)
		gt.True(t, ok).Required()
		gt.NoError(t, hub.Close())
	})

	t.Run("missing file", func(t *testing.T) {
		var cfg config.Provider
		runFlags(t, cfg.Flags(), "--provider-config", filepath.Join(t.TempDir(), "absent.toml"))

		_, _, err := cfg.Configure(ctx)
		gt.True(t, errors.Is(err, config.ErrConfigNotFound))
	})

	t.Run("malformed TOML", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "provider.toml")
		gt.NoError(t, os.WriteFile(path, []byte("identity = ["), 0600)).Required()

		var cfg config.Provider
		runFlags(t, cfg.Flags(), "--provider-config", path)

		_, _, err := cfg.Configure(ctx)
		gt.Value(t, err).NotNil()
	})

	t.Run("incomplete identity section", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "provider.toml")
		gt.NoError(t, os.WriteFile(path, []byte(`
[identity]
base_url = "https://auth.example.com"

[realtime]
ws_url = "wss://rt.example.com/socket"
`), 0600)).Required()

		var cfg config.Provider
		runFlags(t, cfg.Flags(), "--provider-config", path)

		_, _, err := cfg.Configure(ctx)
		gt.Value(t, err).NotNil()
	})

	t.Run("missing realtime ws_url", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "provider.toml")
		gt.NoError(t, os.WriteFile(path, []byte(`
[identity]
base_url = "https://auth.example.com"
client_id = "id"
client_secret = "secret"
callback_url = "https://app.example.com/cb"
`), 0600)).Required()

		var cfg config.Provider
		runFlags(t, cfg.Flags(), "--provider-config", path)

		_, _, err := cfg.Configure(ctx)
		gt.True(t, errors.Is(err, config.ErrInvalidConfig))
	})
}
