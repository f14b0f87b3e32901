package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/m-mizutani/goerr/v2"

	"github.com/commune-lab/commune/pkg/usecase"
	"github.com/commune-lab/commune/pkg/utils/errutil"
	"github.com/commune-lab/commune/pkg/utils/logging"
	"github.com/commune-lab/commune/pkg/utils/safe"
)

// loginPath is where unauthenticated requests are sent
const loginPath = "/api/auth/login"

type Server struct {
	router *chi.Mux
	uc     *usecase.UseCases

	// afterLogin is where the OAuth callback redirects on success
	afterLogin string
}

type Options func(*Server)

// WithAfterLogin overrides the post-callback redirect target
func WithAfterLogin(path string) Options {
	return func(s *Server) {
		s.afterLogin = path
	}
}

func New(uc *usecase.UseCases, opts ...Options) *Server {
	r := chi.NewRouter()

	s := &Server{
		router:     r,
		uc:         uc,
		afterLogin: "/",
	}
	for _, opt := range opts {
		opt(s)
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api/auth", func(r chi.Router) {
		r.Get("/login", authLoginHandler(uc))
		r.Get("/callback", authCallbackHandler(uc, s.afterLogin))
		r.Post("/logout", authLogoutHandler(uc))
		r.Get("/me", authMeHandler(uc))
	})

	// Guarded surface: everything here requires a settled, synced session
	r.Group(func(r chi.Router) {
		r.Use(guardMiddleware(uc))

		r.Get("/api/home", homeHandler(uc))
		r.Get("/api/profile", profileGetHandler(uc))
		r.Put("/api/profile", profileUpdateHandler(uc))

		r.Route("/api/schedule", func(r chi.Router) {
			r.Get("/", scheduleListHandler(uc))
			r.Post("/", scheduleCreateHandler(uc))
			r.Put("/{eventID}", scheduleUpdateHandler(uc))
			r.Delete("/{eventID}", scheduleDeleteHandler(uc))
		})

		r.Route("/api/threads", func(r chi.Router) {
			r.Get("/", threadListHandler(uc))
			r.Post("/", threadCreateHandler(uc))
			r.Get("/stream", threadStreamHandler(uc))
			r.Get("/{threadID}", threadGetHandler(uc))
			r.Post("/{threadID}/comments", commentCreateHandler(uc))
			r.Get("/{threadID}/comments/stream", commentStreamHandler(uc))
		})

		r.Get("/api/notifications", notificationsHandler(uc))
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// accessLogger is a middleware that logs HTTP requests
func accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			logging.Default().Info("access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// respondJSON writes v as a JSON response
func respondJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to marshal response"), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	safe.Write(ctx, w, data)
}

// decodeJSON reads the request body into v
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return goerr.Wrap(err, "failed to decode request body")
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

type successResponse struct {
	Success bool `json:"success"`
}
