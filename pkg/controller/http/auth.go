package http

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/commune-lab/commune/pkg/domain/types"
	"github.com/commune-lab/commune/pkg/usecase"
	"github.com/commune-lab/commune/pkg/utils/errutil"
)

const stateCookieName = "oauth_state"

// generateState generates a random state parameter for OAuth
func generateState() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", goerr.Wrap(err, "failed to generate random state")
	}
	return hex.EncodeToString(bytes), nil
}

// authLoginHandler starts the OAuth flow: state cookie plus redirect to
// the provider's authorization URL
func authLoginHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// an authenticated, synced caller has nothing to do here
		if uc.Guard.Evaluate(true) == usecase.GuardToHome {
			http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
			return
		}

		provider := types.AuthProvider(r.URL.Query().Get("provider"))
		if provider == "" {
			provider = types.AuthProviderGoogle
		}
		if !provider.IsValid() {
			respondJSON(r.Context(), w, http.StatusBadRequest,
				errorResponse{Error: "unsupported provider: " + provider.String()})
			return
		}

		state, err := generateState()
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, err, http.StatusInternalServerError)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     stateCookieName,
			Value:    state + ":" + provider.String(),
			Path:     "/",
			HttpOnly: true,
			Secure:   r.TLS != nil,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   600, // 10 minutes
		})

		authURL, err := uc.Auth.LoginURL(provider, state)
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, err, http.StatusInternalServerError)
			return
		}

		http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
	}
}

// authCallbackHandler finishes the OAuth flow
func authCallbackHandler(uc *usecase.UseCases, afterLogin string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stateCookie, err := r.Cookie(stateCookieName)
		if err != nil {
			respondJSON(r.Context(), w, http.StatusBadRequest,
				errorResponse{Error: "missing state cookie"})
			return
		}
		// cookie holds "<state>:<provider>"
		state := r.URL.Query().Get("state")
		parts := strings.SplitN(stateCookie.Value, ":", 2)
		if state == "" || len(parts) != 2 || parts[0] != state {
			respondJSON(r.Context(), w, http.StatusBadRequest,
				errorResponse{Error: "state mismatch"})
			return
		}
		provider := types.AuthProvider(parts[1])
		if !provider.IsValid() {
			respondJSON(r.Context(), w, http.StatusBadRequest,
				errorResponse{Error: "state mismatch"})
			return
		}

		// single use
		http.SetCookie(w, &http.Cookie{
			Name:   stateCookieName,
			Value:  "",
			Path:   "/",
			MaxAge: -1,
		})

		code := r.URL.Query().Get("code")
		if code == "" {
			respondJSON(r.Context(), w, http.StatusBadRequest,
				errorResponse{Error: "missing authorization code"})
			return
		}

		if _, err := uc.Auth.HandleCallback(r.Context(), provider, code); err != nil {
			errutil.HandleHTTP(r.Context(), w, err, http.StatusBadGateway)
			return
		}

		http.Redirect(w, r, afterLogin, http.StatusTemporaryRedirect)
	}
}

// authLogoutHandler revokes the session and tears down derived state
func authLogoutHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := uc.Auth.SignOut(r.Context()); err != nil {
			errutil.HandleHTTP(r.Context(), w, err, http.StatusInternalServerError)
			return
		}
		respondJSON(r.Context(), w, http.StatusOK, successResponse{Success: true})
	}
}

// authMeHandler reports the caller's identity. 204 while the session
// store has not settled, 401 when signed out.
func authMeHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch uc.Sessions.Snapshot().Status {
		case usecase.StatusChecking:
			w.WriteHeader(http.StatusNoContent)
			return
		case usecase.StatusUnauthenticated:
			respondJSON(r.Context(), w, http.StatusUnauthorized,
				errorResponse{Error: "not authenticated"})
			return
		}

		identity, err := uc.Auth.CurrentIdentity(r.Context())
		if err != nil {
			respondJSON(r.Context(), w, http.StatusUnauthorized,
				errorResponse{Error: "not authenticated"})
			return
		}
		respondJSON(r.Context(), w, http.StatusOK, identity)
	}
}
