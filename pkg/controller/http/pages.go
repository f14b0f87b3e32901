package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"

	"github.com/commune-lab/commune/pkg/domain/model"
	"github.com/commune-lab/commune/pkg/domain/types"
	"github.com/commune-lab/commune/pkg/usecase"
	"github.com/commune-lab/commune/pkg/utils/errutil"
)

func homeHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer, _ := viewerFromContext(r.Context())
		summary, err := uc.Home.Summary(r.Context(), viewer.ID)
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, err, http.StatusBadGateway)
			return
		}
		respondJSON(r.Context(), w, http.StatusOK, summary)
	}
}

func profileGetHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer, _ := viewerFromContext(r.Context())
		user, err := uc.Profile.Get(r.Context(), viewer.ID)
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, err, http.StatusBadGateway)
			return
		}
		respondJSON(r.Context(), w, http.StatusOK, user)
	}
}

func profileUpdateHandler(uc *usecase.UseCases) http.HandlerFunc {
	type request struct {
		Username  string `json:"username"`
		AvatarURL string `json:"avatar_url"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		viewer, _ := viewerFromContext(r.Context())

		var req request
		if err := decodeJSON(r, &req); err != nil {
			errutil.HandleHTTP(r.Context(), w, err, http.StatusBadRequest)
			return
		}

		user := &model.User{
			ID:        viewer.ID,
			Username:  req.Username,
			Email:     viewer.Email,
			AvatarURL: req.AvatarURL,
		}
		updated, err := uc.Profile.Update(r.Context(), user)
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, err, http.StatusBadGateway)
			return
		}
		respondJSON(r.Context(), w, http.StatusOK, updated)
	}
}

func scheduleListHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer, _ := viewerFromContext(r.Context())
		events, err := uc.Schedule.List(r.Context(), viewer.ID)
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, err, http.StatusBadGateway)
			return
		}
		respondJSON(r.Context(), w, http.StatusOK, events)
	}
}

func scheduleCreateHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer, _ := viewerFromContext(r.Context())

		var event model.CalendarEvent
		if err := decodeJSON(r, &event); err != nil {
			errutil.HandleHTTP(r.Context(), w, err, http.StatusBadRequest)
			return
		}

		created, err := uc.Schedule.Create(r.Context(), viewer.ID, &event)
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, err, http.StatusBadGateway)
			return
		}
		respondJSON(r.Context(), w, http.StatusCreated, created)
	}
}

func scheduleUpdateHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer, _ := viewerFromContext(r.Context())

		var event model.CalendarEvent
		if err := decodeJSON(r, &event); err != nil {
			errutil.HandleHTTP(r.Context(), w, err, http.StatusBadRequest)
			return
		}
		event.ID = types.EventID(chi.URLParam(r, "eventID"))

		updated, err := uc.Schedule.Update(r.Context(), viewer.ID, &event)
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, err, http.StatusBadGateway)
			return
		}
		respondJSON(r.Context(), w, http.StatusOK, updated)
	}
}

func scheduleDeleteHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer, _ := viewerFromContext(r.Context())

		eventID := types.EventID(chi.URLParam(r, "eventID"))
		if err := eventID.Validate(); err != nil {
			errutil.HandleHTTP(r.Context(), w, err, http.StatusBadRequest)
			return
		}

		events, err := uc.Schedule.Delete(r.Context(), viewer.ID, eventID)
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, err, http.StatusBadGateway)
			return
		}
		respondJSON(r.Context(), w, http.StatusOK, events)
	}
}

// threadListResponse carries both board views in one response
type threadListResponse struct {
	All  []model.Thread `json:"all"`
	Mine []model.Thread `json:"mine"`
}

func threadListHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer, _ := viewerFromContext(r.Context())
		all, mine, err := uc.Threads.List(r.Context(), viewer.ID)
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, err, http.StatusBadGateway)
			return
		}
		respondJSON(r.Context(), w, http.StatusOK, threadListResponse{All: all, Mine: mine})
	}
}

func threadCreateHandler(uc *usecase.UseCases) http.HandlerFunc {
	type request struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		viewer, _ := viewerFromContext(r.Context())

		var req request
		if err := decodeJSON(r, &req); err != nil {
			errutil.HandleHTTP(r.Context(), w, err, http.StatusBadRequest)
			return
		}

		created, err := uc.Threads.Create(r.Context(), viewer, req.Title, req.Content)
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, err, http.StatusBadGateway)
			return
		}
		respondJSON(r.Context(), w, http.StatusCreated, created)
	}
}

func threadGetHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		threadID := types.ThreadID(chi.URLParam(r, "threadID"))
		if err := threadID.Validate(); err != nil {
			errutil.HandleHTTP(r.Context(), w, err, http.StatusBadRequest)
			return
		}

		detail, err := uc.Threads.Get(r.Context(), threadID)
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, err, http.StatusBadGateway)
			return
		}
		respondJSON(r.Context(), w, http.StatusOK, detail)
	}
}

func commentCreateHandler(uc *usecase.UseCases) http.HandlerFunc {
	type request struct {
		Content string `json:"content"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		viewer, _ := viewerFromContext(r.Context())

		threadID := types.ThreadID(chi.URLParam(r, "threadID"))
		if err := threadID.Validate(); err != nil {
			errutil.HandleHTTP(r.Context(), w, err, http.StatusBadRequest)
			return
		}

		var req request
		if err := decodeJSON(r, &req); err != nil {
			errutil.HandleHTTP(r.Context(), w, err, http.StatusBadRequest)
			return
		}
		if req.Content == "" {
			errutil.HandleHTTP(r.Context(), w, goerr.New("comment content is required"), http.StatusBadRequest)
			return
		}

		created, err := uc.Threads.Comment(r.Context(), viewer, threadID, req.Content)
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, err, http.StatusBadGateway)
			return
		}
		respondJSON(r.Context(), w, http.StatusCreated, created)
	}
}

func notificationsHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(r.Context(), w, http.StatusOK, uc.Notify.Drain())
	}
}
