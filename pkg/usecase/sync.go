package usecase

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/singleflight"

	"github.com/commune-lab/commune/pkg/domain/interfaces"
	"github.com/commune-lab/commune/pkg/domain/model"
	"github.com/commune-lab/commune/pkg/domain/types"
	"github.com/commune-lab/commune/pkg/utils/logging"
)

// SyncGate pushes each authenticated identity to the backend exactly
// once per session lifetime. Concurrent callers coalesce into one
// in-flight registration; failure leaves the subject unsynced so any
// later call retries. State is in-memory only and cleared on sign-out.
type SyncGate struct {
	backend interfaces.Backend
	group   singleflight.Group

	mu     sync.RWMutex
	synced map[types.SubjectID]*model.User
}

func NewSyncGate(backend interfaces.Backend) *SyncGate {
	return &SyncGate{
		backend: backend,
		synced:  make(map[types.SubjectID]*model.User),
	}
}

// EnsureSynced registers the session's identity with the backend unless
// it already happened. Returns the backend user record either way.
func (g *SyncGate) EnsureSynced(ctx context.Context, sess *model.Session) (*model.User, error) {
	if sess == nil {
		return nil, goerr.New("cannot sync without a session")
	}

	g.mu.RLock()
	user, ok := g.synced[sess.Subject]
	g.mu.RUnlock()
	if ok {
		return user, nil
	}

	v, err, _ := g.group.Do(sess.Subject.String(), func() (any, error) {
		g.mu.RLock()
		cached, ok := g.synced[sess.Subject]
		g.mu.RUnlock()
		if ok {
			return cached, nil
		}

		reg := model.NewRegistration(sess)
		registered, err := g.backend.RegisterUser(ctx, reg)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to register user with backend",
				goerr.V("subject", sess.Subject))
		}

		g.mu.Lock()
		g.synced[sess.Subject] = registered
		g.mu.Unlock()

		logging.From(ctx).Info("identity synced to backend",
			"subject", sess.Subject, "user_id", registered.ID)
		return registered, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.User), nil
}

// SyncedUser returns the cached backend record for a subject, if synced
func (g *SyncGate) SyncedUser(subject types.SubjectID) (*model.User, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	user, ok := g.synced[subject]
	return user, ok
}

// IsSynced reports whether the subject was registered in this session
func (g *SyncGate) IsSynced(subject types.SubjectID) bool {
	_, ok := g.SyncedUser(subject)
	return ok
}

// Reset forgets one subject's sync state
func (g *SyncGate) Reset(subject types.SubjectID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.synced, subject)
}

// ResetAll forgets all sync state. Called on sign-out.
func (g *SyncGate) ResetAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.synced = make(map[types.SubjectID]*model.User)
}
