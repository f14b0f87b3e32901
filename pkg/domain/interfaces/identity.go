package interfaces

import (
	"context"

	"github.com/commune-lab/commune/pkg/domain/model"
	"github.com/commune-lab/commune/pkg/domain/types"
)

// IdentityProvider is the external auth service. It issues sessions via
// OAuth and owns their remote lifecycle; this process never mints tokens.
type IdentityProvider interface {
	// AuthURL returns the provider's authorization URL for the given
	// OAuth provider and CSRF state
	AuthURL(provider types.AuthProvider, state string) (string, error)

	// Exchange trades an authorization code for a session. The returned
	// session carries a verified identity (subject, email, profile).
	Exchange(ctx context.Context, provider types.AuthProvider, code string) (*model.Session, error)

	// CurrentSession returns the provider's view of the active session,
	// refreshing expired credentials when possible. (nil, nil) means no
	// session; an error means the lookup itself failed.
	CurrentSession(ctx context.Context) (*model.Session, error)

	// SignOut revokes the session with the provider
	SignOut(ctx context.Context, sess *model.Session) error
}
