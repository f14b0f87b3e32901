package config

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/commune-lab/commune/pkg/domain/interfaces"
	"github.com/commune-lab/commune/pkg/service/backend"
)

// Backend selects and configures the community backend client
type Backend struct {
	kind string
	url  string
}

func (x *Backend) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "backend",
			Usage:       "Backend type (rest, memory)",
			Value:       "rest",
			Category:    "Backend",
			Sources:     cli.EnvVars("COMMUNE_BACKEND"),
			Destination: &x.kind,
		},
		&cli.StringFlag{
			Name:        "backend-url",
			Usage:       "Base URL of the community REST API",
			Category:    "Backend",
			Sources:     cli.EnvVars("COMMUNE_BACKEND_URL"),
			Destination: &x.url,
		},
	}
}

// Memory reports whether the in-memory backend was selected
func (x *Backend) Memory() bool {
	return x.kind == "memory"
}

// Configure builds the backend client. A rest backend without a base
// URL is a startup failure, not a degraded mode.
func (x *Backend) Configure() (interfaces.Backend, error) {
	switch x.kind {
	case "rest", "":
		if x.url == "" {
			return nil, goerr.Wrap(ErrInvalidConfig, "backend-url is required for the rest backend")
		}
		return backend.New(x.url)
	case "memory":
		return backend.NewMemory(), nil
	default:
		return nil, goerr.Wrap(ErrInvalidConfig, "unknown backend type", goerr.V(BackendKindKey, x.kind))
	}
}
