package usecase

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/commune-lab/commune/pkg/domain/interfaces"
	"github.com/commune-lab/commune/pkg/domain/model"
	"github.com/commune-lab/commune/pkg/utils/errutil"
	"github.com/commune-lab/commune/pkg/utils/logging"
)

// SessionStatus is the session store's observable state. The store is
// "checking" until the initial provider lookup has settled, then flips
// between authenticated and unauthenticated as the session changes.
type SessionStatus string

const (
	StatusChecking        SessionStatus = "checking"
	StatusAuthenticated   SessionStatus = "authenticated"
	StatusUnauthenticated SessionStatus = "unauthenticated"
)

// SessionSnapshot is one consistent view of the store
type SessionSnapshot struct {
	Status  SessionStatus
	Session *model.Session
}

const sessionWatchBuffer = 4

// SessionStore holds the process-wide session. All reads go through
// Snapshot; Set is the single mutator and notifies every watcher.
type SessionStore struct {
	idp interfaces.IdentityProvider

	mu       sync.RWMutex
	session  *model.Session
	settled  bool
	watchers map[string]chan SessionSnapshot

	initOnce sync.Once
}

func NewSessionStore(idp interfaces.IdentityProvider) *SessionStore {
	return &SessionStore{
		idp:      idp,
		watchers: make(map[string]chan SessionSnapshot),
	}
}

// Init performs the one-time startup lookup against the provider. A
// lookup failure settles the store to no session; it is logged, never
// fatal, and never retried.
func (s *SessionStore) Init(ctx context.Context) {
	s.initOnce.Do(func() {
		sess, err := s.idp.CurrentSession(ctx)
		if err != nil {
			errutil.Handle(ctx, err, "initial session lookup failed, treating as signed out")
			sess = nil
		}

		s.mu.Lock()
		s.session = sess
		s.settled = true
		s.mu.Unlock()

		s.notify()
		logging.From(ctx).Debug("session store settled", "authenticated", sess != nil)
	})
}

// Snapshot returns the current status and session
func (s *SessionStore) Snapshot() SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *SessionStore) snapshotLocked() SessionSnapshot {
	switch {
	case !s.settled:
		return SessionSnapshot{Status: StatusChecking}
	case s.session == nil:
		return SessionSnapshot{Status: StatusUnauthenticated}
	default:
		return SessionSnapshot{Status: StatusAuthenticated, Session: s.session}
	}
}

// Set replaces the session. nil means signed out. Watchers receive the
// new snapshot.
func (s *SessionStore) Set(ctx context.Context, sess *model.Session) {
	s.mu.Lock()
	s.session = sess
	s.settled = true
	s.mu.Unlock()

	s.notify()
	logging.From(ctx).Info("session replaced", "authenticated", sess != nil)
}

// Watch registers an observer. The channel receives the snapshot at
// registration time and then every replacement; it is closed and the
// observer removed when ctx is done.
func (s *SessionStore) Watch(ctx context.Context) <-chan SessionSnapshot {
	id := uuid.NewString()
	ch := make(chan SessionSnapshot, sessionWatchBuffer)

	s.mu.Lock()
	s.watchers[id] = ch
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		if w, ok := s.watchers[id]; ok {
			delete(s.watchers, id)
			close(w)
		}
		s.mu.Unlock()
	}()

	return ch
}

// notify pushes the current snapshot to all watchers. Non-blocking: a
// watcher that stopped draining loses intermediate snapshots. The read
// lock is held through the sends; the Watch cleanup closes channels
// under the write lock, so no channel can be closed mid-send.
func (s *SessionStore) notify() {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshotLocked()
	for _, ch := range s.watchers {
		select {
		case ch <- snap:
		default:
		}
	}
}
