package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/commune-lab/commune/pkg/domain/interfaces"
	"github.com/commune-lab/commune/pkg/domain/model"
	"github.com/commune-lab/commune/pkg/domain/types"
	"github.com/commune-lab/commune/pkg/utils/async"
	"github.com/commune-lab/commune/pkg/utils/logging"
)

// FeedItem is a record that can live in a rendered feed: threads and
// comments both qualify.
type FeedItem interface {
	ItemID() string
	CreatedTime() time.Time
	OwnerID() types.UserID
}

// feedList is a deduplicated collection ordered by creation time. Both
// the initial bulk fetch and realtime inserts merge through insert, so
// the dedup and ordering invariants hold regardless of interleaving.
type feedList[T FeedItem] struct {
	items []T
	seen  map[string]struct{}
	asc   bool
	// viewer restricts the list to one owner's items when set
	viewer types.UserID
}

func newFeedList[T FeedItem](asc bool, viewer types.UserID) *feedList[T] {
	return &feedList[T]{
		seen:   make(map[string]struct{}),
		asc:    asc,
		viewer: viewer,
	}
}

// insert adds an item unless it is a duplicate or outside the viewer
// scope, then restores the ordering. Duplicates are dropped whole:
// records in these feeds are immutable after creation.
func (l *feedList[T]) insert(item T) bool {
	if l.viewer != "" && item.OwnerID() != l.viewer {
		return false
	}
	if _, ok := l.seen[item.ItemID()]; ok {
		return false
	}
	l.seen[item.ItemID()] = struct{}{}
	l.items = append([]T{item}, l.items...)
	l.sortItems()
	return true
}

func (l *feedList[T]) insertAll(items []T) bool {
	changed := false
	for _, item := range items {
		if l.insert(item) {
			changed = true
		}
	}
	return changed
}

func (l *feedList[T]) sortItems() {
	sort.SliceStable(l.items, func(i, j int) bool {
		if l.asc {
			return l.items[i].CreatedTime().Before(l.items[j].CreatedTime())
		}
		return l.items[i].CreatedTime().After(l.items[j].CreatedTime())
	})
}

func (l *feedList[T]) snapshot() []T {
	out := make([]T, len(l.items))
	copy(out, l.items)
	return out
}

// ThreadFeed is a live view of the discussion board: the full thread
// list plus the viewer's own threads, both kept in created_at
// descending order by one realtime subscription.
type ThreadFeed struct {
	backend interfaces.Backend
	rt      interfaces.Realtime
	scope   model.ChannelScope
	subID   string
	cancel  context.CancelFunc

	mu       sync.Mutex
	all      *feedList[model.Thread]
	mine     *feedList[model.Thread]
	closed   bool
	watchers map[string]chan struct{}

	closeOnce sync.Once
}

// OpenThreadFeed fetches both thread lists and subscribes to thread
// inserts. The caller must Close the feed exactly once.
func OpenThreadFeed(ctx context.Context, backend interfaces.Backend, rt interfaces.Realtime, viewer types.UserID) (*ThreadFeed, error) {
	all, err := backend.ListThreads(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load thread list")
	}
	mine, err := backend.ListUserThreads(ctx, viewer)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load own thread list", goerr.V("user_id", viewer))
	}

	f := &ThreadFeed{
		backend:  backend,
		rt:       rt,
		scope:    model.ThreadsScope(),
		all:      newFeedList[model.Thread](false, ""),
		mine:     newFeedList[model.Thread](false, viewer),
		watchers: make(map[string]chan struct{}),
	}
	f.all.insertAll(all)
	f.mine.insertAll(all)
	f.mine.insertAll(mine)

	pumpCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	f.cancel = cancel

	ch, subID, err := rt.Subscribe(pumpCtx, f.scope)
	if err != nil {
		cancel()
		return nil, goerr.Wrap(err, "failed to subscribe to thread inserts")
	}
	f.subID = subID

	go f.pump(pumpCtx, ch)
	return f, nil
}

func (f *ThreadFeed) pump(ctx context.Context, ch <-chan *model.InsertEnvelope) {
	for env := range ch {
		async.Dispatch(ctx, func(ctx context.Context) error {
			return f.handleInsert(ctx, env)
		})
	}
}

// handleInsert enriches and merges one thread insert. An enrichment
// failure drops the event: a partial record never reaches the feed.
func (f *ThreadFeed) handleInsert(ctx context.Context, env *model.InsertEnvelope) error {
	thread, err := env.Thread()
	if err != nil {
		return goerr.Wrap(err, "dropping malformed thread insert")
	}
	if thread.Username == "" {
		name, err := resolveUsername(ctx, f.backend, thread.UserID)
		if err != nil {
			return goerr.Wrap(err, "dropping thread insert, author lookup failed",
				goerr.V("thread_id", thread.ID))
		}
		thread.Username = name
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		logging.From(ctx).Debug("discarding insert for closed thread feed", "thread_id", thread.ID)
		return nil
	}
	changed := f.all.insert(*thread)
	if f.mine.insert(*thread) {
		changed = true
	}
	f.mu.Unlock()

	if changed {
		f.notify()
	}
	return nil
}

// Snapshot returns both lists, created_at descending
func (f *ThreadFeed) Snapshot() (all, mine []model.Thread) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.all.snapshot(), f.mine.snapshot()
}

// Watch returns a conflated change signal. The channel is closed when
// the feed closes or ctx is done.
func (f *ThreadFeed) Watch(ctx context.Context) <-chan struct{} {
	return watchFeed(ctx, &f.mu, f.watchers, &f.closed)
}

func (f *ThreadFeed) notify() {
	notifyFeed(&f.mu, f.watchers)
}

// Close tears the feed down: unsubscribes, stops the pump and closes
// watcher channels. Safe to call more than once; merges after Close are
// no-ops.
func (f *ThreadFeed) Close() {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		for id, ch := range f.watchers {
			delete(f.watchers, id)
			close(ch)
		}
		f.mu.Unlock()

		f.rt.Unsubscribe(f.scope, f.subID)
		f.cancel()
	})
}

// CommentFeed is a live view of one thread: the thread record plus its
// comments in created_at ascending order.
type CommentFeed struct {
	backend  interfaces.Backend
	rt       interfaces.Realtime
	threadID types.ThreadID
	scope    model.ChannelScope
	subID    string
	cancel   context.CancelFunc

	mu       sync.Mutex
	thread   model.Thread
	comments *feedList[model.Comment]
	closed   bool
	watchers map[string]chan struct{}

	closeOnce sync.Once
}

// OpenCommentFeed fetches the thread detail and subscribes to comment
// inserts scoped to the thread. The caller must Close the feed.
func OpenCommentFeed(ctx context.Context, backend interfaces.Backend, rt interfaces.Realtime, threadID types.ThreadID) (*CommentFeed, error) {
	detail, err := backend.GetThread(ctx, threadID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load thread detail", goerr.V("thread_id", threadID))
	}

	f := &CommentFeed{
		backend:  backend,
		rt:       rt,
		threadID: threadID,
		scope:    model.CommentsScope(threadID),
		thread:   detail.Thread,
		comments: newFeedList[model.Comment](true, ""),
		watchers: make(map[string]chan struct{}),
	}
	f.comments.insertAll(detail.Comments)

	pumpCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	f.cancel = cancel

	ch, subID, err := rt.Subscribe(pumpCtx, f.scope)
	if err != nil {
		cancel()
		return nil, goerr.Wrap(err, "failed to subscribe to comment inserts", goerr.V("thread_id", threadID))
	}
	f.subID = subID

	go f.pump(pumpCtx, ch)
	return f, nil
}

func (f *CommentFeed) pump(ctx context.Context, ch <-chan *model.InsertEnvelope) {
	for env := range ch {
		async.Dispatch(ctx, func(ctx context.Context) error {
			return f.handleInsert(ctx, env)
		})
	}
}

func (f *CommentFeed) handleInsert(ctx context.Context, env *model.InsertEnvelope) error {
	comment, err := env.Comment()
	if err != nil {
		return goerr.Wrap(err, "dropping malformed comment insert")
	}
	if comment.ThreadID != f.threadID {
		return nil
	}
	if comment.Username == "" {
		name, err := resolveUsername(ctx, f.backend, comment.UserID)
		if err != nil {
			return goerr.Wrap(err, "dropping comment insert, author lookup failed",
				goerr.V("comment_id", comment.ID))
		}
		comment.Username = name
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		logging.From(ctx).Debug("discarding insert for closed comment feed", "comment_id", comment.ID)
		return nil
	}
	changed := f.comments.insert(*comment)
	f.mu.Unlock()

	if changed {
		f.notify()
	}
	return nil
}

// Snapshot returns the thread and its comments, oldest first
func (f *CommentFeed) Snapshot() model.ThreadDetail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return model.ThreadDetail{
		Thread:   f.thread,
		Comments: f.comments.snapshot(),
	}
}

func (f *CommentFeed) Watch(ctx context.Context) <-chan struct{} {
	return watchFeed(ctx, &f.mu, f.watchers, &f.closed)
}

func (f *CommentFeed) notify() {
	notifyFeed(&f.mu, f.watchers)
}

func (f *CommentFeed) Close() {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		for id, ch := range f.watchers {
			delete(f.watchers, id)
			close(ch)
		}
		f.mu.Unlock()

		f.rt.Unsubscribe(f.scope, f.subID)
		f.cancel()
	})
}

// resolveUsername fetches the author's display name for an insert whose
// record lacks the denormalized username
func resolveUsername(ctx context.Context, backend interfaces.Backend, userID types.UserID) (string, error) {
	user, err := backend.GetUser(ctx, userID)
	if err != nil {
		return "", goerr.Wrap(err, "failed to look up author", goerr.V("user_id", userID))
	}
	if user.Username == "" {
		return model.DefaultUsername, nil
	}
	return user.Username, nil
}

// watchFeed registers a conflated change-signal channel in watchers
func watchFeed(ctx context.Context, mu *sync.Mutex, watchers map[string]chan struct{}, closed *bool) <-chan struct{} {
	id := uuid.NewString()
	ch := make(chan struct{}, 1)

	mu.Lock()
	if *closed {
		mu.Unlock()
		close(ch)
		return ch
	}
	watchers[id] = ch
	mu.Unlock()

	go func() {
		<-ctx.Done()
		mu.Lock()
		if w, ok := watchers[id]; ok {
			delete(watchers, id)
			close(w)
		}
		mu.Unlock()
	}()

	return ch
}

// notifyFeed pings every watcher; a pending ping already covers the
// change, so full channels are skipped. The mutex is held through the
// sends: Close and the watch cleanup close channels under the same
// mutex, so no channel can be closed mid-send.
func notifyFeed(mu *sync.Mutex, watchers map[string]chan struct{}) {
	mu.Lock()
	defer mu.Unlock()

	for _, ch := range watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
