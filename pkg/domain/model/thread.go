package model

import (
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/commune-lab/commune/pkg/domain/types"
)

// Thread is a discussion-board thread. The `username` field is
// denormalized: realtime insert envelopes arrive without it and it must
// be resolved through a user lookup before the record is rendered.
// Threads are immutable after creation; the backend exposes no update
// endpoint for them.
type Thread struct {
	ID        types.ThreadID `json:"id"`
	Title     string         `json:"title"`
	Content   string         `json:"content"`
	Username  string         `json:"username"`
	UserID    types.UserID   `json:"user_id"`
	CreatedAt time.Time      `json:"created_at"`
}

// Validate checks if the Thread is valid
func (t *Thread) Validate() error {
	if t.Title == "" {
		return goerr.New("thread title is required")
	}
	if t.Content == "" {
		return goerr.New("thread content is required", goerr.V("title", t.Title))
	}
	return nil
}

// ItemID implements the feed item identity for dedup
func (t Thread) ItemID() string {
	return t.ID.String()
}

// CreatedTime implements the feed item ordering key
func (t Thread) CreatedTime() time.Time {
	return t.CreatedAt
}

// OwnerID implements the feed item ownership for "mine" scoping
func (t Thread) OwnerID() types.UserID {
	return t.UserID
}

// Comment is one reply within a thread. Like threads, comments are
// immutable after creation.
type Comment struct {
	ID        types.CommentID `json:"id"`
	Content   string          `json:"content"`
	ThreadID  types.ThreadID  `json:"thread_id"`
	UserID    types.UserID    `json:"user_id"`
	Username  string          `json:"username"`
	CreatedAt time.Time       `json:"created_at"`
}

// Validate checks if the Comment is valid
func (c *Comment) Validate() error {
	if c.Content == "" {
		return goerr.New("comment content is required")
	}
	if err := c.ThreadID.Validate(); err != nil {
		return goerr.Wrap(err, "invalid comment")
	}
	return nil
}

// ItemID implements the feed item identity for dedup
func (c Comment) ItemID() string {
	return c.ID.String()
}

// CreatedTime implements the feed item ordering key
func (c Comment) CreatedTime() time.Time {
	return c.CreatedAt
}

// OwnerID implements the feed item ownership for "mine" scoping
func (c Comment) OwnerID() types.UserID {
	return c.UserID
}

// ThreadDetail is the response of GET /threads/{id}
type ThreadDetail struct {
	Thread   Thread    `json:"thread"`
	Comments []Comment `json:"comments"`
}
