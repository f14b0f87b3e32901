package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"

	"github.com/commune-lab/commune/pkg/domain/types"
	"github.com/commune-lab/commune/pkg/usecase"
	"github.com/commune-lab/commune/pkg/utils/errutil"
	"github.com/commune-lab/commune/pkg/utils/safe"
)

const streamKeepAlive = 25 * time.Second

// threadStreamHandler serves the thread board as a server-sent event
// stream: a full snapshot on connect and after every merge. One feed per
// connection, closed on disconnect.
func threadStreamHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer, _ := viewerFromContext(r.Context())

		feed, release, err := uc.Threads.OpenThreadFeed(r.Context(), viewer.ID)
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, err, http.StatusBadGateway)
			return
		}
		defer release()
		defer feed.Close()

		serveStream(w, r, feed.Watch(r.Context()), func() any {
			all, mine := feed.Snapshot()
			return threadListResponse{All: all, Mine: mine}
		})
	}
}

// commentStreamHandler serves one thread's detail as a server-sent
// event stream
func commentStreamHandler(uc *usecase.UseCases) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		threadID := types.ThreadID(chi.URLParam(r, "threadID"))
		if err := threadID.Validate(); err != nil {
			errutil.HandleHTTP(r.Context(), w, err, http.StatusBadRequest)
			return
		}

		feed, release, err := uc.Threads.OpenCommentFeed(r.Context(), threadID)
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, err, http.StatusBadGateway)
			return
		}
		defer release()
		defer feed.Close()

		serveStream(w, r, feed.Watch(r.Context()), func() any {
			return feed.Snapshot()
		})
	}
}

// serveStream runs the SSE loop: initial snapshot, one event per change
// signal, keep-alive comments in between. Returns when the client goes
// away or the feed closes.
func serveStream(w http.ResponseWriter, r *http.Request, changes <-chan struct{}, snapshot func() any) {
	ctx := r.Context()

	flusher, ok := w.(http.Flusher)
	if !ok {
		errutil.HandleHTTP(ctx, w, goerr.New("streaming unsupported by connection"), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if !writeEvent(ctx, w, flusher, snapshot()) {
		return
	}

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				// feed closed underneath us (e.g. sign-out teardown)
				return
			}
			if !writeEvent(ctx, w, flusher, snapshot()) {
				return
			}
		case <-keepAlive.C:
			safe.Write(ctx, w, []byte(": ping\n\n"))
			flusher.Flush()
		}
	}
}

func writeEvent(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		errutil.Handle(ctx, goerr.Wrap(err, "failed to marshal stream event"), "closing event stream")
		return false
	}

	safe.Write(ctx, w, []byte("event: snapshot\ndata: "))
	safe.Write(ctx, w, data)
	safe.Write(ctx, w, []byte("\n\n"))
	flusher.Flush()
	return true
}
