package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/commune-lab/commune/pkg/domain/interfaces"
	"github.com/commune-lab/commune/pkg/domain/model"
	"github.com/commune-lab/commune/pkg/domain/types"
	"github.com/commune-lab/commune/pkg/utils/safe"
)

// ErrNotFound is returned when the backend answers 404 for a resource
// that the caller asked for by ID.
var ErrNotFound = goerr.New("resource not found")

// Client is the HTTP client of the community backend REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ interfaces.Backend = &Client{}

// Option is a functional option for Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates a backend client for the given base URL
func New(baseURL string, options ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, goerr.New("backend base URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, goerr.Wrap(err, "invalid backend base URL", goerr.V("url", baseURL))
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// do issues one request and decodes the JSON response into out (when out
// is non-nil). Non-2xx statuses become errors carrying the status and
// response body; 404 maps to ErrNotFound.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return goerr.Wrap(err, "failed to encode request body", goerr.V("path", path))
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return goerr.Wrap(err, "failed to create request", goerr.V("path", path))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return goerr.Wrap(err, "backend request failed",
			goerr.V("method", method), goerr.V("path", path))
	}
	defer safe.Close(ctx, resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return goerr.Wrap(ErrNotFound, "backend returned 404", goerr.V("path", path))
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return goerr.New("backend returned error status",
			goerr.V("method", method),
			goerr.V("path", path),
			goerr.V("status", resp.StatusCode),
			goerr.V("body", string(data)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return goerr.Wrap(err, "failed to decode backend response", goerr.V("path", path))
	}
	return nil
}

// RegisterUser upserts the authenticated identity into the backend user store
func (c *Client) RegisterUser(ctx context.Context, reg model.Registration) (*model.User, error) {
	if err := reg.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid registration")
	}

	var user model.User
	if err := c.do(ctx, http.MethodPost, "/auth/google", reg, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// LookupUserID resolves a provider subject to the backend user ID
func (c *Client) LookupUserID(ctx context.Context, subject types.SubjectID) (types.UserID, error) {
	if err := subject.Validate(); err != nil {
		return "", goerr.Wrap(err, "invalid subject")
	}

	body := map[string]string{"google_id": subject.String()}
	var resp struct {
		ID types.UserID `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/google-id", body, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// GetUser fetches one user record
func (c *Client) GetUser(ctx context.Context, id types.UserID) (*model.User, error) {
	if err := id.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid user ID")
	}

	var user model.User
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(id.String()), nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUser replaces the user's profile
func (c *Client) UpdateUser(ctx context.Context, user *model.User) (*model.User, error) {
	if err := user.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid user")
	}

	var updated model.User
	path := "/users/" + url.PathEscape(user.ID.String())
	if err := c.do(ctx, http.MethodPut, path, user, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// ListEvents returns the user's calendar events. 404 means the user has
// no schedule yet and yields an empty list.
func (c *Client) ListEvents(ctx context.Context, userID types.UserID) ([]model.CalendarEvent, error) {
	if err := userID.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid user ID")
	}

	var events []model.CalendarEvent
	path := fmt.Sprintf("/users/%s/events", url.PathEscape(userID.String()))
	if err := c.do(ctx, http.MethodGet, path, nil, &events); err != nil {
		if errors.Is(err, ErrNotFound) {
			return []model.CalendarEvent{}, nil
		}
		return nil, err
	}
	if events == nil {
		events = []model.CalendarEvent{}
	}
	return events, nil
}

// CreateEvent adds a calendar event to the user's schedule
func (c *Client) CreateEvent(ctx context.Context, userID types.UserID, event *model.CalendarEvent) (*model.CalendarEvent, error) {
	if err := event.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid event")
	}

	var created model.CalendarEvent
	path := fmt.Sprintf("/users/%s/events", url.PathEscape(userID.String()))
	if err := c.do(ctx, http.MethodPost, path, event, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateEvent replaces a calendar event
func (c *Client) UpdateEvent(ctx context.Context, userID types.UserID, event *model.CalendarEvent) (*model.CalendarEvent, error) {
	if err := event.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid event")
	}
	if err := event.ID.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid event ID")
	}

	var updated model.CalendarEvent
	path := fmt.Sprintf("/users/%s/events/%s",
		url.PathEscape(userID.String()), url.PathEscape(event.ID.String()))
	if err := c.do(ctx, http.MethodPut, path, event, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteEvent removes a calendar event
func (c *Client) DeleteEvent(ctx context.Context, userID types.UserID, eventID types.EventID) error {
	if err := eventID.Validate(); err != nil {
		return goerr.Wrap(err, "invalid event ID")
	}

	path := fmt.Sprintf("/users/%s/events/%s",
		url.PathEscape(userID.String()), url.PathEscape(eventID.String()))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// ListThreads returns all threads
func (c *Client) ListThreads(ctx context.Context) ([]model.Thread, error) {
	var threads []model.Thread
	if err := c.do(ctx, http.MethodGet, "/threads", nil, &threads); err != nil {
		return nil, err
	}
	return threads, nil
}

// ListUserThreads returns the threads the user participates in
func (c *Client) ListUserThreads(ctx context.Context, userID types.UserID) ([]model.Thread, error) {
	if err := userID.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid user ID")
	}

	var threads []model.Thread
	path := fmt.Sprintf("/users/%s/threads", url.PathEscape(userID.String()))
	if err := c.do(ctx, http.MethodGet, path, nil, &threads); err != nil {
		return nil, err
	}
	return threads, nil
}

// CreateThread creates a discussion thread
func (c *Client) CreateThread(ctx context.Context, thread *model.Thread) (*model.Thread, error) {
	if err := thread.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid thread")
	}

	var created model.Thread
	if err := c.do(ctx, http.MethodPost, "/threads", thread, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// GetThread returns one thread with its comments
func (c *Client) GetThread(ctx context.Context, id types.ThreadID) (*model.ThreadDetail, error) {
	if err := id.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid thread ID")
	}

	var detail model.ThreadDetail
	if err := c.do(ctx, http.MethodGet, "/threads/"+url.PathEscape(id.String()), nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// CreateComment posts a comment to a thread
func (c *Client) CreateComment(ctx context.Context, comment *model.Comment) (*model.Comment, error) {
	if err := comment.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid comment")
	}

	var created model.Comment
	path := fmt.Sprintf("/threads/%s/comments", url.PathEscape(comment.ThreadID.String()))
	if err := c.do(ctx, http.MethodPost, path, comment, &created); err != nil {
		return nil, err
	}
	return &created, nil
}
