package backend

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/commune-lab/commune/pkg/domain/interfaces"
	"github.com/commune-lab/commune/pkg/domain/model"
	"github.com/commune-lab/commune/pkg/domain/types"
)

// InsertPublisher receives a copy of every row the memory backend
// inserts into a realtime-enabled table. The development serve mode
// wires this to the in-process realtime hub so the full feed pipeline
// runs without external services.
type InsertPublisher func(table model.Table, record json.RawMessage)

// Memory is an in-memory Backend for tests and development mode
type Memory struct {
	mu      sync.RWMutex
	users   map[types.UserID]*model.User
	bySub   map[types.SubjectID]types.UserID
	events  map[types.UserID][]model.CalendarEvent
	threads map[types.ThreadID]*model.Thread
	// comments keyed by thread, in insertion order
	comments map[types.ThreadID][]model.Comment

	publish InsertPublisher
}

var _ interfaces.Backend = &Memory{}

// NewMemory creates an empty in-memory backend
func NewMemory() *Memory {
	return &Memory{
		users:    make(map[types.UserID]*model.User),
		bySub:    make(map[types.SubjectID]types.UserID),
		events:   make(map[types.UserID][]model.CalendarEvent),
		threads:  make(map[types.ThreadID]*model.Thread),
		comments: make(map[types.ThreadID][]model.Comment),
	}
}

// SetInsertPublisher installs the hook called after thread and comment inserts
func (m *Memory) SetInsertPublisher(fn InsertPublisher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publish = fn
}

func (m *Memory) notifyInsert(table model.Table, record any) {
	m.mu.RLock()
	fn := m.publish
	m.mu.RUnlock()
	if fn == nil {
		return
	}

	// The realtime service strips denormalized fields before fan-out;
	// the raw row is what subscribers would receive on the wire.
	data, err := json.Marshal(record)
	if err != nil {
		return
	}
	fn(table, data)
}

// RegisterUser upserts a user keyed by the provider subject
func (m *Memory) RegisterUser(ctx context.Context, reg model.Registration) (*model.User, error) {
	if err := reg.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid registration")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	subject := types.SubjectID(reg.GoogleID)
	if id, ok := m.bySub[subject]; ok {
		user := m.users[id]
		user.Email = reg.Email
		user.Username = reg.Username
		user.AvatarURL = reg.AvatarURL
		clone := *user
		return &clone, nil
	}

	user := &model.User{
		ID:        types.UserID(uuid.New().String()),
		Username:  reg.Username,
		Email:     reg.Email,
		AvatarURL: reg.AvatarURL,
	}
	m.users[user.ID] = user
	m.bySub[subject] = user.ID

	clone := *user
	return &clone, nil
}

// LookupUserID resolves a provider subject to the internal user ID
func (m *Memory) LookupUserID(ctx context.Context, subject types.SubjectID) (types.UserID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.bySub[subject]
	if !ok {
		return "", goerr.Wrap(ErrNotFound, "unknown subject", goerr.V("subject", subject))
	}
	return id, nil
}

// GetUser returns one user record
func (m *Memory) GetUser(ctx context.Context, id types.UserID) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[id]
	if !ok {
		return nil, goerr.Wrap(ErrNotFound, "unknown user", goerr.V("id", id))
	}
	clone := *user
	return &clone, nil
}

// UpdateUser replaces the user's profile
func (m *Memory) UpdateUser(ctx context.Context, user *model.User) (*model.User, error) {
	if err := user.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid user")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[user.ID]; !ok {
		return nil, goerr.Wrap(ErrNotFound, "unknown user", goerr.V("id", user.ID))
	}
	clone := *user
	m.users[user.ID] = &clone

	result := clone
	return &result, nil
}

// ListEvents returns the user's calendar events
func (m *Memory) ListEvents(ctx context.Context, userID types.UserID) ([]model.CalendarEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]model.CalendarEvent, len(m.events[userID]))
	copy(events, m.events[userID])
	return events, nil
}

// CreateEvent adds a calendar event
func (m *Memory) CreateEvent(ctx context.Context, userID types.UserID, event *model.CalendarEvent) (*model.CalendarEvent, error) {
	if err := event.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid event")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	created := *event
	created.ID = types.EventID(uuid.New().String())
	created.UserID = userID
	m.events[userID] = append(m.events[userID], created)

	result := created
	return &result, nil
}

// UpdateEvent replaces a calendar event
func (m *Memory) UpdateEvent(ctx context.Context, userID types.UserID, event *model.CalendarEvent) (*model.CalendarEvent, error) {
	if err := event.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid event")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i, e := range m.events[userID] {
		if e.ID == event.ID {
			updated := *event
			updated.UserID = userID
			m.events[userID][i] = updated

			result := updated
			return &result, nil
		}
	}
	return nil, goerr.Wrap(ErrNotFound, "unknown event", goerr.V("id", event.ID))
}

// DeleteEvent removes a calendar event
func (m *Memory) DeleteEvent(ctx context.Context, userID types.UserID, eventID types.EventID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	events := m.events[userID]
	for i, e := range events {
		if e.ID == eventID {
			m.events[userID] = append(events[:i:i], events[i+1:]...)
			return nil
		}
	}
	return goerr.Wrap(ErrNotFound, "unknown event", goerr.V("id", eventID))
}

// ListThreads returns all threads sorted by creation time descending
func (m *Memory) ListThreads(ctx context.Context) ([]model.Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	threads := make([]model.Thread, 0, len(m.threads))
	for _, t := range m.threads {
		threads = append(threads, *t)
	}
	sortThreadsDesc(threads)
	return threads, nil
}

// ListUserThreads returns threads the user created or commented in
func (m *Memory) ListUserThreads(ctx context.Context, userID types.UserID) ([]model.Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	participating := make(map[types.ThreadID]bool)
	for id, t := range m.threads {
		if t.UserID == userID {
			participating[id] = true
		}
	}
	for id, comments := range m.comments {
		for _, c := range comments {
			if c.UserID == userID {
				participating[id] = true
				break
			}
		}
	}

	threads := make([]model.Thread, 0, len(participating))
	for id := range participating {
		threads = append(threads, *m.threads[id])
	}
	sortThreadsDesc(threads)
	return threads, nil
}

// CreateThread creates a thread and publishes its insert
func (m *Memory) CreateThread(ctx context.Context, thread *model.Thread) (*model.Thread, error) {
	if err := thread.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid thread")
	}

	m.mu.Lock()
	created := *thread
	created.ID = types.ThreadID(uuid.New().String())
	created.CreatedAt = time.Now()
	if user, ok := m.users[created.UserID]; ok {
		created.Username = user.Username
	}
	m.threads[created.ID] = &created
	m.mu.Unlock()

	raw := created
	raw.Username = "" // denormalized field never rides the insert envelope
	m.notifyInsert(model.TableThreads, raw)

	result := created
	return &result, nil
}

// GetThread returns one thread with its comments
func (m *Memory) GetThread(ctx context.Context, id types.ThreadID) (*model.ThreadDetail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	thread, ok := m.threads[id]
	if !ok {
		return nil, goerr.Wrap(ErrNotFound, "unknown thread", goerr.V("id", id))
	}

	comments := make([]model.Comment, len(m.comments[id]))
	copy(comments, m.comments[id])

	return &model.ThreadDetail{Thread: *thread, Comments: comments}, nil
}

// CreateComment posts a comment and publishes its insert
func (m *Memory) CreateComment(ctx context.Context, comment *model.Comment) (*model.Comment, error) {
	if err := comment.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid comment")
	}

	m.mu.Lock()
	if _, ok := m.threads[comment.ThreadID]; !ok {
		m.mu.Unlock()
		return nil, goerr.Wrap(ErrNotFound, "unknown thread", goerr.V("id", comment.ThreadID))
	}

	created := *comment
	created.ID = types.CommentID(uuid.New().String())
	created.CreatedAt = time.Now()
	if user, ok := m.users[created.UserID]; ok {
		created.Username = user.Username
	}
	m.comments[comment.ThreadID] = append(m.comments[comment.ThreadID], created)
	m.mu.Unlock()

	raw := created
	raw.Username = ""
	m.notifyInsert(model.TableComments, raw)

	result := created
	return &result, nil
}

func sortThreadsDesc(threads []model.Thread) {
	sort.SliceStable(threads, func(i, j int) bool {
		return threads[i].CreatedAt.After(threads[j].CreatedAt)
	})
}
