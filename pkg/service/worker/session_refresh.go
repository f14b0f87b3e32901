package worker

import (
	"context"
	"time"

	"github.com/commune-lab/commune/pkg/domain/interfaces"
	"github.com/commune-lab/commune/pkg/usecase"
	"github.com/commune-lab/commune/pkg/utils/logging"
)

// refreshLeeway is how close to expiry a session may get before the
// worker asks the provider for fresh credentials
const refreshLeeway = 2 * time.Minute

// SessionRefreshWorker keeps the active session's credentials fresh by
// asking the identity provider before they expire. A signed-out process
// has nothing to refresh; the loop just idles.
//
// Single process, single session: no locking beyond the store's own.
type SessionRefreshWorker struct {
	idp      interfaces.IdentityProvider
	store    *usecase.SessionStore
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewSessionRefreshWorker(idp interfaces.IdentityProvider, store *usecase.SessionStore, interval time.Duration) *SessionRefreshWorker {
	return &SessionRefreshWorker{
		idp:      idp,
		store:    store,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background refresh loop. Does not block.
func (w *SessionRefreshWorker) Start(ctx context.Context) error {
	logging.Default().Info("session refresh worker starting", "interval", w.interval.String())
	go w.run(ctx)
	return nil
}

// Stop signals the worker to stop and waits for completion
func (w *SessionRefreshWorker) Stop() {
	close(w.stopCh)
	<-w.doneCh
	logging.Default().Info("session refresh worker stopped")
}

func (w *SessionRefreshWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.refresh(ctx)
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// refresh replaces the stored session when the provider hands back new
// credentials. Provider errors are logged and retried next interval.
func (w *SessionRefreshWorker) refresh(ctx context.Context) {
	snap := w.store.Snapshot()
	if snap.Session == nil {
		return
	}
	if snap.Session.ExpiresAt.IsZero() || time.Until(snap.Session.ExpiresAt) > refreshLeeway {
		return
	}

	sess, err := w.idp.CurrentSession(ctx)
	if err != nil {
		logging.Default().Error("session refresh failed (will retry next interval)",
			"error", err.Error())
		return
	}

	// the provider may have dropped the session entirely
	if sess == nil {
		logging.Default().Warn("session expired and could not be refreshed, signing out")
		w.store.Set(ctx, nil)
		return
	}
	if sess.AccessToken != snap.Session.AccessToken {
		w.store.Set(ctx, sess)
		logging.Default().Info("session credentials refreshed",
			"subject", sess.Subject, "expires_at", sess.ExpiresAt)
	}
}
