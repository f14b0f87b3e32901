package usecase

import (
	"context"
	"sort"

	"github.com/m-mizutani/goerr/v2"

	"github.com/commune-lab/commune/pkg/domain/interfaces"
	"github.com/commune-lab/commune/pkg/domain/model"
	"github.com/commune-lab/commune/pkg/domain/types"
)

// ThreadsUseCase drives the discussion board: feeds, thread creation
// and commenting
type ThreadsUseCase struct {
	backend interfaces.Backend
	rt      interfaces.Realtime
	feeds   *FeedRegistry
	notify  *NotificationCenter
}

func NewThreadsUseCase(backend interfaces.Backend, rt interfaces.Realtime, feeds *FeedRegistry, notify *NotificationCenter) *ThreadsUseCase {
	return &ThreadsUseCase{
		backend: backend,
		rt:      rt,
		feeds:   feeds,
		notify:  notify,
	}
}

// OpenThreadFeed opens a live thread feed for the viewer. The returned
// release function must be called once the feed is closed.
func (uc *ThreadsUseCase) OpenThreadFeed(ctx context.Context, viewer types.UserID) (*ThreadFeed, func(), error) {
	feed, err := OpenThreadFeed(ctx, uc.backend, uc.rt, viewer)
	if err != nil {
		return nil, nil, err
	}
	release := uc.feeds.Track(feed)
	return feed, release, nil
}

// OpenCommentFeed opens a live view of one thread
func (uc *ThreadsUseCase) OpenCommentFeed(ctx context.Context, threadID types.ThreadID) (*CommentFeed, func(), error) {
	feed, err := OpenCommentFeed(ctx, uc.backend, uc.rt, threadID)
	if err != nil {
		return nil, nil, err
	}
	release := uc.feeds.Track(feed)
	return feed, release, nil
}

// List returns both thread lists without opening a live feed. Ordering
// is restored here rather than trusted: rendered lists are always
// created_at descending regardless of what the backend returns.
func (uc *ThreadsUseCase) List(ctx context.Context, viewer types.UserID) (all, mine []model.Thread, err error) {
	all, err = uc.backend.ListThreads(ctx)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to load thread list")
	}
	mine, err = uc.backend.ListUserThreads(ctx, viewer)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to load own thread list", goerr.V("user_id", viewer))
	}
	sortThreadsByCreatedDesc(all)
	sortThreadsByCreatedDesc(mine)
	return all, mine, nil
}

func sortThreadsByCreatedDesc(threads []model.Thread) {
	sort.SliceStable(threads, func(i, j int) bool {
		return threads[i].CreatedAt.After(threads[j].CreatedAt)
	})
}

// Get fetches one thread with its comments
func (uc *ThreadsUseCase) Get(ctx context.Context, threadID types.ThreadID) (*model.ThreadDetail, error) {
	detail, err := uc.backend.GetThread(ctx, threadID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load thread", goerr.V("thread_id", threadID))
	}
	return detail, nil
}

// Create posts a new thread. Open feeds pick it up through the realtime
// channel; dedup keeps it single.
func (uc *ThreadsUseCase) Create(ctx context.Context, author *model.User, title, content string) (*model.Thread, error) {
	thread := &model.Thread{
		Title:    title,
		Content:  content,
		UserID:   author.ID,
		Username: author.Username,
	}
	if err := thread.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid thread")
	}

	created, err := uc.backend.CreateThread(ctx, thread)
	if err != nil {
		uc.notify.Error(ctx, "Failed to post thread")
		return nil, goerr.Wrap(err, "failed to create thread", goerr.V("user_id", author.ID))
	}

	uc.notify.Success(ctx, "Thread posted")
	return created, nil
}

// Comment posts a reply to a thread
func (uc *ThreadsUseCase) Comment(ctx context.Context, author *model.User, threadID types.ThreadID, content string) (*model.Comment, error) {
	comment := &model.Comment{
		Content:  content,
		ThreadID: threadID,
		UserID:   author.ID,
		Username: author.Username,
	}
	if err := comment.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid comment")
	}

	created, err := uc.backend.CreateComment(ctx, comment)
	if err != nil {
		uc.notify.Error(ctx, "Failed to post comment")
		return nil, goerr.Wrap(err, "failed to create comment", goerr.V("thread_id", threadID))
	}

	uc.notify.Success(ctx, "Comment posted")
	return created, nil
}
