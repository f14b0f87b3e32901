package config

import (
	"context"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"

	"github.com/commune-lab/commune/pkg/domain/interfaces"
	"github.com/commune-lab/commune/pkg/service/identity"
	"github.com/commune-lab/commune/pkg/service/realtime"
	"github.com/commune-lab/commune/pkg/utils/logging"
)

// providerFile is the TOML layout of the provider configuration file
type providerFile struct {
	Identity identity.Config `toml:"identity"`
	Realtime realtimeConfig  `toml:"realtime"`
}

type realtimeConfig struct {
	WSURL  string `toml:"ws_url"`
	APIKey string `toml:"api_key"`
}

// Provider configures the external identity and realtime services from
// a TOML file. Without a file both run in-process, which is the
// development mode.
type Provider struct {
	path string
}

func (x *Provider) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "provider-config",
			Usage:       "Path to the identity/realtime provider TOML file (omit for in-process dev providers)",
			Category:    "Provider",
			Sources:     cli.EnvVars("COMMUNE_PROVIDER_CONFIG"),
			Destination: &x.path,
		},
	}
}

// Configured reports whether a provider file was given
func (x *Provider) Configured() bool {
	return x.path != ""
}

// Configure builds the identity provider and realtime service
func (x *Provider) Configure(ctx context.Context) (interfaces.IdentityProvider, interfaces.Realtime, error) {
	if x.path == "" {
		logging.Default().Warn("no provider config, using in-process identity and realtime (development only)")
		return identity.NewMemory(), realtime.NewHub(logging.Default()), nil
	}

	data, err := os.ReadFile(x.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, goerr.Wrap(ErrConfigNotFound, "provider config", goerr.V(ConfigPathKey, x.path))
		}
		return nil, nil, goerr.Wrap(err, "failed to read provider config", goerr.V(ConfigPathKey, x.path))
	}

	var file providerFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, nil, goerr.Wrap(err, "failed to parse provider config", goerr.V(ConfigPathKey, x.path))
	}

	idp, err := identity.New(file.Identity)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "invalid identity provider config", goerr.V(ConfigPathKey, x.path))
	}

	if file.Realtime.WSURL == "" {
		return nil, nil, goerr.Wrap(ErrInvalidConfig, "realtime ws_url is required", goerr.V(ConfigPathKey, x.path))
	}
	rt, err := realtime.NewSocket(ctx, file.Realtime.WSURL, file.Realtime.APIKey, logging.Default())
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to connect realtime service")
	}

	return idp, rt, nil
}
