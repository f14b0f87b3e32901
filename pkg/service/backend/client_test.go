package backend_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/commune-lab/commune/pkg/domain/model"
	"github.com/commune-lab/commune/pkg/service/backend"
)

func TestClient_RegisterUser(t *testing.T) {
	var gotPath, gotMethod string
	var gotBody map[string]any

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		gt.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		gt.NoError(t, json.NewEncoder(w).Encode(model.User{
			ID:       "user-1",
			Username: "No Name",
			Email:    "u1@x.com",
		}))
	}))
	defer ts.Close()

	client, err := backend.New(ts.URL)
	gt.NoError(t, err).Required()

	user, err := client.RegisterUser(context.Background(), model.Registration{
		GoogleID:  "u1",
		Email:     "u1@x.com",
		Username:  "No Name",
		AvatarURL: "",
	})
	gt.NoError(t, err).Required()

	gt.Value(t, gotMethod).Equal(http.MethodPost)
	gt.Value(t, gotPath).Equal("/auth/google")
	gt.Value(t, gotBody["google_id"]).Equal("u1")
	gt.Value(t, gotBody["email"]).Equal("u1@x.com")
	gt.Value(t, gotBody["username"]).Equal("No Name")
	gt.Value(t, gotBody["avatar_url"]).Equal("")

	gt.Value(t, string(user.ID)).Equal("user-1")
}

func TestClient_LookupUserID(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gt.Value(t, r.Method).Equal(http.MethodPost)
		gt.Value(t, r.URL.Path).Equal("/auth/google-id")

		var body map[string]string
		gt.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gt.Value(t, body["google_id"]).Equal("u1")

		w.Header().Set("Content-Type", "application/json")
		gt.NoError(t, json.NewEncoder(w).Encode(map[string]string{"id": "user-1"}))
	}))
	defer ts.Close()

	client, err := backend.New(ts.URL)
	gt.NoError(t, err).Required()

	id, err := client.LookupUserID(context.Background(), "u1")
	gt.NoError(t, err).Required()
	gt.Value(t, string(id)).Equal("user-1")

	_, err = client.LookupUserID(context.Background(), "")
	gt.Value(t, err).NotNil()
}

func TestClient_ListEvents(t *testing.T) {
	t.Run("missing schedule is an empty list", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}))
		defer ts.Close()

		client, err := backend.New(ts.URL)
		gt.NoError(t, err).Required()

		events, err := client.ListEvents(context.Background(), "user-1")
		gt.NoError(t, err).Required()
		gt.Array(t, events).Length(0)
	})

	t.Run("server errors surface", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer ts.Close()

		client, err := backend.New(ts.URL)
		gt.NoError(t, err).Required()

		_, err = client.ListEvents(context.Background(), "user-1")
		gt.Value(t, err).NotNil()
	})

	t.Run("events decode with timestamps", func(t *testing.T) {
		start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gt.Value(t, r.URL.Path).Equal("/users/user-1/events")
			gt.NoError(t, json.NewEncoder(w).Encode([]model.CalendarEvent{
				{ID: "ev-1", Title: "standup", StartTime: start, EndTime: start.Add(time.Hour), UserID: "user-1"},
			}))
		}))
		defer ts.Close()

		client, err := backend.New(ts.URL)
		gt.NoError(t, err).Required()

		events, err := client.ListEvents(context.Background(), "user-1")
		gt.NoError(t, err).Required()
		gt.Array(t, events).Length(1)
		gt.Value(t, events[0].StartTime.Equal(start)).Equal(true)
	})
}

func TestClient_GetThread(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gt.Value(t, r.URL.Path).Equal("/threads/th-1")
		gt.NoError(t, json.NewEncoder(w).Encode(model.ThreadDetail{
			Thread: model.Thread{ID: "th-1", Title: "hello", Content: "world", UserID: "user-1"},
			Comments: []model.Comment{
				{ID: "c-1", Content: "hi", ThreadID: "th-1", UserID: "user-2"},
			},
		}))
	}))
	defer ts.Close()

	client, err := backend.New(ts.URL)
	gt.NoError(t, err).Required()

	detail, err := client.GetThread(context.Background(), "th-1")
	gt.NoError(t, err).Required()
	gt.Value(t, detail.Thread.Title).Equal("hello")
	gt.Array(t, detail.Comments).Length(1)
}

func TestClient_New(t *testing.T) {
	t.Run("base URL is required", func(t *testing.T) {
		_, err := backend.New("")
		gt.Value(t, err).NotNil()
	})
}

func TestClient_DeleteEvent(t *testing.T) {
	var gotMethod, gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	client, err := backend.New(ts.URL)
	gt.NoError(t, err).Required()

	gt.NoError(t, client.DeleteEvent(context.Background(), "user-1", "ev-1"))
	gt.Value(t, gotMethod).Equal(http.MethodDelete)
	gt.Value(t, gotPath).Equal("/users/user-1/events/ev-1")
}
