package usecase

// GuardDecision is the route guard's verdict for one request
type GuardDecision string

const (
	// GuardAllow lets the request through
	GuardAllow GuardDecision = "allow"
	// GuardDefer means the session state is not settled yet; render
	// nothing and let the client retry
	GuardDefer GuardDecision = "defer"
	// GuardToLogin redirects to the login route
	GuardToLogin GuardDecision = "to_login"
	// GuardToHome redirects an already-authenticated user off the login
	// route
	GuardToHome GuardDecision = "to_home"
)

// Guard decides route access from session state. It is stateless: every
// call recomputes the decision from the snapshot, so a stale verdict
// can never outlive a session change.
type Guard struct {
	store *SessionStore
	sync  *SyncGate
}

func NewGuard(store *SessionStore, sync *SyncGate) *Guard {
	return &Guard{store: store, sync: sync}
}

// Evaluate returns the verdict for a request. loginRoute marks the
// login page itself, which inverts the redirect: signed-in users with a
// finished sync are sent home, everyone else may stay.
func (g *Guard) Evaluate(loginRoute bool) GuardDecision {
	snap := g.store.Snapshot()

	switch snap.Status {
	case StatusChecking:
		return GuardDefer
	case StatusUnauthenticated:
		if loginRoute {
			return GuardAllow
		}
		return GuardToLogin
	case StatusAuthenticated:
		if loginRoute && g.sync.IsSynced(snap.Session.Subject) {
			return GuardToHome
		}
		return GuardAllow
	default:
		return GuardToLogin
	}
}
