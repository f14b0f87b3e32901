package usecase_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/commune-lab/commune/pkg/domain/model"
	"github.com/commune-lab/commune/pkg/domain/types"
	"github.com/commune-lab/commune/pkg/service/backend"
	"github.com/commune-lab/commune/pkg/service/realtime"
	"github.com/commune-lab/commune/pkg/usecase"
)

// board is a memory backend wired to an in-process realtime hub, the
// same wiring serve uses in development mode
type board struct {
	mem *backend.Memory
	hub *realtime.Hub
}

func newBoard() *board {
	mem := backend.NewMemory()
	hub := realtime.NewHub(nil)
	mem.SetInsertPublisher(hub.PublishRecord)
	return &board{mem: mem, hub: hub}
}

func (b *board) register(t *testing.T, subject, email, name string) *model.User {
	t.Helper()
	sess := model.NewSession(types.SubjectID(subject), types.AuthProviderGoogle, email, name)
	user, err := b.mem.RegisterUser(context.Background(), model.NewRegistration(sess))
	gt.NoError(t, err).Required()
	return user
}

func (b *board) post(t *testing.T, author *model.User, title string) *model.Thread {
	t.Helper()
	created, err := b.mem.CreateThread(context.Background(), &model.Thread{
		Title:    title,
		Content:  "content of " + title,
		UserID:   author.ID,
		Username: author.Username,
	})
	gt.NoError(t, err).Required()
	return created
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func assertDescOrder(t *testing.T, threads []model.Thread) {
	t.Helper()
	for i := 1; i < len(threads); i++ {
		gt.False(t, threads[i-1].CreatedAt.Before(threads[i].CreatedAt))
	}
}

func assertUniqueIDs(t *testing.T, threads []model.Thread) {
	t.Helper()
	seen := map[types.ThreadID]bool{}
	for _, th := range threads {
		gt.False(t, seen[th.ID])
		seen[th.ID] = true
	}
}

func TestThreadFeed_InitialFetch(t *testing.T) {
	ctx := context.Background()
	b := newBoard()
	alice := b.register(t, "alice", "alice@x.com", "Alice")
	bob := b.register(t, "bob", "bob@x.com", "Bob")

	b.post(t, alice, "first")
	b.post(t, bob, "second")
	b.post(t, alice, "third")

	feed, err := usecase.OpenThreadFeed(ctx, b.mem, b.hub, alice.ID)
	gt.NoError(t, err).Required()
	defer feed.Close()

	all, mine := feed.Snapshot()
	gt.Array(t, all).Length(3)
	gt.Array(t, mine).Length(2)
	assertDescOrder(t, all)
	assertDescOrder(t, mine)
	gt.Value(t, all[0].Title).Equal("third")

	for _, th := range mine {
		gt.Value(t, th.UserID).Equal(alice.ID)
	}
}

func TestThreadFeed_RealtimeInsert(t *testing.T) {
	ctx := context.Background()
	b := newBoard()
	alice := b.register(t, "alice", "alice@x.com", "Alice")
	bob := b.register(t, "bob", "bob@x.com", "Bob")

	feed, err := usecase.OpenThreadFeed(ctx, b.mem, b.hub, alice.ID)
	gt.NoError(t, err).Required()
	defer feed.Close()

	t.Run("insert is enriched with the author name", func(t *testing.T) {
		created := b.post(t, bob, "from bob")

		eventually(t, func() bool {
			all, _ := feed.Snapshot()
			return len(all) == 1
		})
		all, mine := feed.Snapshot()
		gt.Value(t, all[0].ID).Equal(created.ID)
		// the envelope rides without the denormalized name; the feed
		// resolves it through the user lookup
		gt.Value(t, all[0].Username).Equal("Bob")
		gt.Array(t, mine).Length(0)
	})

	t.Run("own insert lands in both lists", func(t *testing.T) {
		b.post(t, alice, "from alice")

		eventually(t, func() bool {
			_, mine := feed.Snapshot()
			return len(mine) == 1
		})
		all, _ := feed.Snapshot()
		gt.Array(t, all).Length(2)
		assertDescOrder(t, all)
	})
}

func TestThreadFeed_Dedup(t *testing.T) {
	ctx := context.Background()
	b := newBoard()
	alice := b.register(t, "alice", "alice@x.com", "Alice")

	created := b.post(t, alice, "original")

	feed, err := usecase.OpenThreadFeed(ctx, b.mem, b.hub, alice.ID)
	gt.NoError(t, err).Required()
	defer feed.Close()

	// replay the insert that is already in the initial fetch, twice,
	// without the denormalized username as on the wire
	raw := *created
	raw.Username = ""
	record, err := json.Marshal(raw)
	gt.NoError(t, err).Required()
	b.hub.PublishRecord(model.TableThreads, record)
	b.hub.PublishRecord(model.TableThreads, record)

	// a fresh insert proves the replays were processed before we assert
	b.post(t, alice, "followup")
	eventually(t, func() bool {
		all, _ := feed.Snapshot()
		return len(all) == 2
	})

	all, mine := feed.Snapshot()
	assertUniqueIDs(t, all)
	assertUniqueIDs(t, mine)
	assertDescOrder(t, all)
}

func TestThreadFeed_DropsOnEnrichmentFailure(t *testing.T) {
	ctx := context.Background()
	b := newBoard()
	alice := b.register(t, "alice", "alice@x.com", "Alice")

	feed, err := usecase.OpenThreadFeed(ctx, b.mem, b.hub, alice.ID)
	gt.NoError(t, err).Required()
	defer feed.Close()

	// author unknown to the backend: the lookup fails and the event is
	// dropped, never merged partially
	record, err := json.Marshal(model.Thread{
		ID:        "ghost-thread",
		Title:     "ghost",
		Content:   "no author",
		UserID:    "no-such-user",
		CreatedAt: time.Now(),
	})
	gt.NoError(t, err).Required()
	b.hub.PublishRecord(model.TableThreads, record)

	b.post(t, alice, "real one")
	eventually(t, func() bool {
		all, _ := feed.Snapshot()
		return len(all) == 1
	})

	all, _ := feed.Snapshot()
	gt.Value(t, all[0].Title).Equal("real one")
}

func TestThreadFeed_Close(t *testing.T) {
	ctx := context.Background()
	b := newBoard()
	alice := b.register(t, "alice", "alice@x.com", "Alice")

	feed, err := usecase.OpenThreadFeed(ctx, b.mem, b.hub, alice.ID)
	gt.NoError(t, err).Required()

	feed.Close()
	feed.Close() // idempotent

	// merges after close are no-ops
	b.post(t, alice, "late arrival")
	time.Sleep(50 * time.Millisecond)
	all, _ := feed.Snapshot()
	gt.Array(t, all).Length(0)

	// a closed feed hands out a closed watch channel
	select {
	case _, ok := <-feed.Watch(ctx):
		gt.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("watch channel of closed feed should be closed")
	}
}

// TestThreadFeed_NotifyDuringTeardown races merge notifications against
// watcher cancellation and feed close. Both teardown paths close watcher
// channels under the feed mutex; a change signal landing at the same
// moment must never hit a closed channel.
func TestThreadFeed_NotifyDuringTeardown(t *testing.T) {
	ctx := context.Background()
	b := newBoard()
	alice := b.register(t, "alice", "alice@x.com", "Alice")

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
				_, _ = b.mem.CreateThread(ctx, &model.Thread{
					Title:    fmt.Sprintf("churn-%d", i),
					Content:  "churn",
					UserID:   alice.ID,
					Username: alice.Username,
				})
			}
		}
	}()

	for i := 0; i < 100; i++ {
		feed, err := usecase.OpenThreadFeed(ctx, b.mem, b.hub, alice.ID)
		gt.NoError(t, err).Required()

		watchCtx, cancel := context.WithCancel(ctx)
		feed.Watch(watchCtx)
		cancel()
		feed.Close()
	}

	close(stop)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("poster did not finish")
	}
}

func TestThreadFeed_WatchSignalsMerges(t *testing.T) {
	ctx := context.Background()
	b := newBoard()
	alice := b.register(t, "alice", "alice@x.com", "Alice")

	feed, err := usecase.OpenThreadFeed(ctx, b.mem, b.hub, alice.ID)
	gt.NoError(t, err).Required()
	defer feed.Close()

	ch := feed.Watch(ctx)
	b.post(t, alice, "news")

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("no change signal after insert")
	}
}

func TestCommentFeed(t *testing.T) {
	ctx := context.Background()
	b := newBoard()
	alice := b.register(t, "alice", "alice@x.com", "Alice")
	bob := b.register(t, "bob", "bob@x.com", "Bob")

	thread := b.post(t, alice, "discussion")
	other := b.post(t, bob, "unrelated")

	_, err := b.mem.CreateComment(ctx, &model.Comment{
		Content:  "first comment",
		ThreadID: thread.ID,
		UserID:   alice.ID,
	})
	gt.NoError(t, err).Required()

	feed, err := usecase.OpenCommentFeed(ctx, b.mem, b.hub, thread.ID)
	gt.NoError(t, err).Required()
	defer feed.Close()

	detail := feed.Snapshot()
	gt.Value(t, detail.Thread.ID).Equal(thread.ID)
	gt.Array(t, detail.Comments).Length(1)

	t.Run("live comment is enriched and appended", func(t *testing.T) {
		_, err := b.mem.CreateComment(ctx, &model.Comment{
			Content:  "reply",
			ThreadID: thread.ID,
			UserID:   bob.ID,
		})
		gt.NoError(t, err).Required()

		eventually(t, func() bool {
			return len(feed.Snapshot().Comments) == 2
		})
		detail := feed.Snapshot()
		// ascending by creation time
		gt.Value(t, detail.Comments[0].Content).Equal("first comment")
		gt.Value(t, detail.Comments[1].Content).Equal("reply")
		gt.Value(t, detail.Comments[1].Username).Equal("Bob")
	})

	t.Run("comments on other threads never arrive", func(t *testing.T) {
		_, err := b.mem.CreateComment(ctx, &model.Comment{
			Content:  "elsewhere",
			ThreadID: other.ID,
			UserID:   bob.ID,
		})
		gt.NoError(t, err).Required()

		time.Sleep(50 * time.Millisecond)
		gt.Array(t, feed.Snapshot().Comments).Length(2)
	})
}
