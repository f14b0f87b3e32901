package usecase

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/commune-lab/commune/pkg/domain/interfaces"
	"github.com/commune-lab/commune/pkg/domain/model"
	"github.com/commune-lab/commune/pkg/domain/types"
	"github.com/commune-lab/commune/pkg/utils/async"
	"github.com/commune-lab/commune/pkg/utils/errutil"
	"github.com/commune-lab/commune/pkg/utils/logging"
)

// FeedRegistry tracks open feeds so a sign-out can tear all of them
// down without knowing which connections hold them.
type FeedRegistry struct {
	mu    sync.Mutex
	feeds map[string]interface{ Close() }
}

func NewFeedRegistry() *FeedRegistry {
	return &FeedRegistry{feeds: make(map[string]interface{ Close() })}
}

// Track registers a feed and returns a release function. Release only
// forgets the feed; closing remains the caller's job.
func (r *FeedRegistry) Track(feed interface{ Close() }) (release func()) {
	key := uuid.NewString()

	r.mu.Lock()
	r.feeds[key] = feed
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.feeds, key)
		r.mu.Unlock()
	}
}

// CloseAll closes every tracked feed
func (r *FeedRegistry) CloseAll() {
	r.mu.Lock()
	feeds := make([]interface{ Close() }, 0, len(r.feeds))
	for key, feed := range r.feeds {
		feeds = append(feeds, feed)
		delete(r.feeds, key)
	}
	r.mu.Unlock()

	for _, feed := range feeds {
		feed.Close()
	}
}

// AuthUseCase drives the sign-in and sign-out flows
type AuthUseCase struct {
	idp    interfaces.IdentityProvider
	store  *SessionStore
	sync   *SyncGate
	feeds  *FeedRegistry
	notify *NotificationCenter
}

func NewAuthUseCase(idp interfaces.IdentityProvider, store *SessionStore, sync *SyncGate, feeds *FeedRegistry, notify *NotificationCenter) *AuthUseCase {
	return &AuthUseCase{
		idp:    idp,
		store:  store,
		sync:   sync,
		feeds:  feeds,
		notify: notify,
	}
}

// LoginURL returns the provider's authorization URL for the flow
func (uc *AuthUseCase) LoginURL(provider types.AuthProvider, state string) (string, error) {
	return uc.idp.AuthURL(provider, state)
}

// HandleCallback finishes the OAuth flow: exchanges the code, installs
// the session and kicks the backend sync in the background. A sync
// failure here is not fatal; the next guarded request retries it.
func (uc *AuthUseCase) HandleCallback(ctx context.Context, provider types.AuthProvider, code string) (*model.Session, error) {
	sess, err := uc.idp.Exchange(ctx, provider, code)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to complete sign-in")
	}

	uc.store.Set(ctx, sess)

	async.Dispatch(ctx, func(ctx context.Context) error {
		if _, err := uc.sync.EnsureSynced(ctx, sess); err != nil {
			return goerr.Wrap(err, "initial backend sync failed, will retry on next request")
		}
		return nil
	})

	return sess, nil
}

// SignOut revokes the session and tears down all derived state: sync
// cache, open feeds, pending notifications. Teardown proceeds even when
// the provider revoke fails.
func (uc *AuthUseCase) SignOut(ctx context.Context) error {
	snap := uc.store.Snapshot()
	if snap.Session == nil {
		return nil
	}

	if err := uc.idp.SignOut(ctx, snap.Session); err != nil {
		errutil.Handle(ctx, err, "provider sign-out failed, continuing local teardown")
	}

	uc.store.Set(ctx, nil)
	uc.sync.ResetAll()
	uc.feeds.CloseAll()
	uc.notify.Clear()

	logging.From(ctx).Info("signed out", "subject", snap.Session.Subject)
	return nil
}

// Identity is the authenticated caller's combined view: the provider
// session plus the synced backend record when sync has completed.
type Identity struct {
	Session *model.Session `json:"session"`
	User    *model.User    `json:"user,omitempty"`
	Synced  bool           `json:"synced"`
}

// CurrentIdentity returns the caller's identity, syncing with the
// backend when that has not happened yet.
func (uc *AuthUseCase) CurrentIdentity(ctx context.Context) (*Identity, error) {
	snap := uc.store.Snapshot()
	if snap.Session == nil {
		return nil, goerr.New("not authenticated")
	}

	user, err := uc.sync.EnsureSynced(ctx, snap.Session)
	if err != nil {
		// the session itself is valid; report it unsynced
		errutil.Handle(ctx, err, "backend sync still failing")
		return &Identity{Session: snap.Session}, nil
	}
	return &Identity{Session: snap.Session, User: user, Synced: true}, nil
}
