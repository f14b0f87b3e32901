package http

import (
	"context"
	"net/http"

	"github.com/m-mizutani/goerr/v2"

	"github.com/commune-lab/commune/pkg/domain/model"
	"github.com/commune-lab/commune/pkg/usecase"
	"github.com/commune-lab/commune/pkg/utils/errutil"
)

type ctxKey string

const viewerCtxKey ctxKey = "viewer"

// viewerFromContext returns the synced backend record of the caller.
// Only present on guarded routes.
func viewerFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(viewerCtxKey).(*model.User)
	return user, ok
}

// guardMiddleware enforces the route guard on every request. The
// decision is recomputed per request, so a sign-out invalidates all
// guarded routes immediately.
//
// checking  -> 204, no body; the client retries once the store settles
// no session -> 401 with the login path (API clients follow it themselves)
// session    -> sync is ensured; still-failing sync is a 503, success
//               puts the synced user record on the request context
func guardMiddleware(uc *usecase.UseCases) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch uc.Guard.Evaluate(false) {
			case usecase.GuardDefer:
				w.WriteHeader(http.StatusNoContent)
				return
			case usecase.GuardToLogin:
				respondJSON(r.Context(), w, http.StatusUnauthorized, map[string]string{
					"error": "authentication required",
					"login": loginPath,
				})
				return
			}

			snap := uc.Sessions.Snapshot()
			if snap.Session == nil {
				// the session changed between Evaluate and Snapshot
				respondJSON(r.Context(), w, http.StatusUnauthorized, map[string]string{
					"error": "authentication required",
					"login": loginPath,
				})
				return
			}

			// every guarded request is a retry opportunity for the
			// backend sync
			user, err := uc.Sync.EnsureSynced(r.Context(), snap.Session)
			if err != nil {
				errutil.HandleHTTP(r.Context(), w,
					goerr.Wrap(err, "backend sync unavailable"), http.StatusServiceUnavailable)
				return
			}

			ctx := context.WithValue(r.Context(), viewerCtxKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
