package usecase_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/commune-lab/commune/pkg/domain/model"
	"github.com/commune-lab/commune/pkg/domain/types"
	"github.com/commune-lab/commune/pkg/service/backend"
	"github.com/commune-lab/commune/pkg/service/identity"
	"github.com/commune-lab/commune/pkg/usecase"
)

func newGuardFixture() (*usecase.SessionStore, *usecase.SyncGate, *usecase.Guard) {
	store := usecase.NewSessionStore(identity.NewMemory())
	gate := usecase.NewSyncGate(backend.NewMemory())
	return store, gate, usecase.NewGuard(store, gate)
}

func TestGuard_Evaluate(t *testing.T) {
	ctx := context.Background()

	t.Run("defers while session state is unsettled", func(t *testing.T) {
		_, _, guard := newGuardFixture()
		gt.Value(t, guard.Evaluate(false)).Equal(usecase.GuardDefer)
		gt.Value(t, guard.Evaluate(true)).Equal(usecase.GuardDefer)
	})

	t.Run("unauthenticated caller is sent to login", func(t *testing.T) {
		store, _, guard := newGuardFixture()
		store.Init(ctx)

		gt.Value(t, guard.Evaluate(false)).Equal(usecase.GuardToLogin)
		gt.Value(t, guard.Evaluate(true)).Equal(usecase.GuardAllow)
	})

	t.Run("authenticated caller passes guarded routes", func(t *testing.T) {
		store, _, guard := newGuardFixture()
		store.Set(ctx, model.NewSession("u1", types.AuthProviderGoogle, "u1@x.com", "One"))

		gt.Value(t, guard.Evaluate(false)).Equal(usecase.GuardAllow)
		// sync still pending: the login route stays reachable
		gt.Value(t, guard.Evaluate(true)).Equal(usecase.GuardAllow)
	})

	t.Run("synced caller is bounced off the login route", func(t *testing.T) {
		store, gate, guard := newGuardFixture()
		sess := model.NewSession("u1", types.AuthProviderGoogle, "u1@x.com", "One")
		store.Set(ctx, sess)

		_, err := gate.EnsureSynced(ctx, sess)
		gt.NoError(t, err).Required()

		gt.Value(t, guard.Evaluate(true)).Equal(usecase.GuardToHome)
		gt.Value(t, guard.Evaluate(false)).Equal(usecase.GuardAllow)
	})

	t.Run("sign-out flips the verdict immediately", func(t *testing.T) {
		store, gate, guard := newGuardFixture()
		sess := model.NewSession("u1", types.AuthProviderGoogle, "u1@x.com", "One")
		store.Set(ctx, sess)
		_, err := gate.EnsureSynced(ctx, sess)
		gt.NoError(t, err).Required()
		gt.Value(t, guard.Evaluate(false)).Equal(usecase.GuardAllow)

		store.Set(ctx, nil)
		gt.Value(t, guard.Evaluate(false)).Equal(usecase.GuardToLogin)
	})
}
