package usecase_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"

	"github.com/commune-lab/commune/pkg/domain/interfaces"
	"github.com/commune-lab/commune/pkg/domain/model"
	"github.com/commune-lab/commune/pkg/domain/types"
	"github.com/commune-lab/commune/pkg/service/identity"
	"github.com/commune-lab/commune/pkg/usecase"
	"github.com/commune-lab/commune/pkg/utils/logging"
)

// failingIdentity always errors on session lookup
type failingIdentity struct {
	interfaces.IdentityProvider
}

func (f *failingIdentity) CurrentSession(ctx context.Context) (*model.Session, error) {
	return nil, goerr.New("provider unreachable")
}

func TestSessionStore_Init(t *testing.T) {
	ctx := context.Background()

	t.Run("settles to unauthenticated without a stored session", func(t *testing.T) {
		store := usecase.NewSessionStore(identity.NewMemory())
		gt.Value(t, store.Snapshot().Status).Equal(usecase.StatusChecking)

		store.Init(ctx)
		gt.Value(t, store.Snapshot().Status).Equal(usecase.StatusUnauthenticated)
	})

	t.Run("picks up the provider session", func(t *testing.T) {
		idp := identity.NewMemory()
		idp.SetSession(model.NewSession("u1", types.AuthProviderGoogle, "u1@x.com", "One"))

		store := usecase.NewSessionStore(idp)
		store.Init(ctx)

		snap := store.Snapshot()
		gt.Value(t, snap.Status).Equal(usecase.StatusAuthenticated)
		gt.Value(t, snap.Session.Subject).Equal(types.SubjectID("u1"))
	})

	t.Run("lookup failure settles to signed out", func(t *testing.T) {
		store := usecase.NewSessionStore(&failingIdentity{identity.NewMemory()})
		store.Init(ctx)
		gt.Value(t, store.Snapshot().Status).Equal(usecase.StatusUnauthenticated)
	})

	t.Run("init runs the lookup once", func(t *testing.T) {
		idp := identity.NewMemory()
		store := usecase.NewSessionStore(idp)
		store.Init(ctx)

		// a session stored later must not leak in through a second Init
		idp.SetSession(model.NewSession("u1", types.AuthProviderGoogle, "u1@x.com", "One"))
		store.Init(ctx)
		gt.Value(t, store.Snapshot().Status).Equal(usecase.StatusUnauthenticated)
	})
}

func TestSessionStore_Watch(t *testing.T) {
	ctx := context.Background()

	recv := func(t *testing.T, ch <-chan usecase.SessionSnapshot) usecase.SessionSnapshot {
		t.Helper()
		select {
		case snap, ok := <-ch:
			gt.True(t, ok)
			return snap
		case <-time.After(2 * time.Second):
			t.Fatal("no snapshot received")
			return usecase.SessionSnapshot{}
		}
	}

	t.Run("delivers the current snapshot and every replacement", func(t *testing.T) {
		store := usecase.NewSessionStore(identity.NewMemory())
		store.Init(ctx)

		ch := store.Watch(ctx)
		gt.Value(t, recv(t, ch).Status).Equal(usecase.StatusUnauthenticated)

		store.Set(ctx, model.NewSession("u1", types.AuthProviderGoogle, "u1@x.com", "One"))
		gt.Value(t, recv(t, ch).Status).Equal(usecase.StatusAuthenticated)

		store.Set(ctx, nil)
		gt.Value(t, recv(t, ch).Status).Equal(usecase.StatusUnauthenticated)
	})

	t.Run("watch channel closes with its context", func(t *testing.T) {
		store := usecase.NewSessionStore(identity.NewMemory())
		store.Init(ctx)

		watchCtx, cancel := context.WithCancel(ctx)
		ch := store.Watch(watchCtx)
		recv(t, ch)
		cancel()

		select {
		case _, ok := <-ch:
			gt.False(t, ok)
		case <-time.After(2 * time.Second):
			t.Fatal("watch channel not closed")
		}
	})

	// watcher teardown closes channels under the store lock; a Set
	// notifying at the same moment must never hit a closed channel
	t.Run("replacements racing watcher teardown never panic", func(t *testing.T) {
		ctx := logging.With(ctx, logging.New(io.Discard, slog.LevelError, logging.FormatJSON))
		store := usecase.NewSessionStore(identity.NewMemory())
		store.Init(ctx)
		sess := model.NewSession("u1", types.AuthProviderGoogle, "u1@x.com", "One")

		stop := make(chan struct{})
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				select {
				case <-stop:
					return
				default:
					store.Set(ctx, sess)
				}
			}
		}()

		for i := 0; i < 2000; i++ {
			watchCtx, cancel := context.WithCancel(ctx)
			store.Watch(watchCtx)
			cancel()
		}

		close(stop)
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("setter did not finish")
		}
	})
}
