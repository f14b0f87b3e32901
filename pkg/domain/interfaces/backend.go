package interfaces

import (
	"context"

	"github.com/commune-lab/commune/pkg/domain/model"
	"github.com/commune-lab/commune/pkg/domain/types"
)

// Backend is the external REST API of the community product. All durable
// state lives behind it; this process only reads and writes through these
// operations.
type Backend interface {
	// RegisterUser upserts an authenticated identity (POST /auth/google)
	RegisterUser(ctx context.Context, reg model.Registration) (*model.User, error)

	// LookupUserID resolves a provider subject to the backend-internal
	// user ID (POST /auth/google-id). The sign-in flow takes the user
	// record from the RegisterUser response; this covers the rest of the
	// API surface for callers that hold only a subject.
	LookupUserID(ctx context.Context, subject types.SubjectID) (types.UserID, error)

	GetUser(ctx context.Context, id types.UserID) (*model.User, error)
	UpdateUser(ctx context.Context, user *model.User) (*model.User, error)

	// ListEvents returns the user's calendar events. A missing schedule
	// (HTTP 404) is an empty list, not an error.
	ListEvents(ctx context.Context, userID types.UserID) ([]model.CalendarEvent, error)
	CreateEvent(ctx context.Context, userID types.UserID, event *model.CalendarEvent) (*model.CalendarEvent, error)
	UpdateEvent(ctx context.Context, userID types.UserID, event *model.CalendarEvent) (*model.CalendarEvent, error)
	DeleteEvent(ctx context.Context, userID types.UserID, eventID types.EventID) error

	ListThreads(ctx context.Context) ([]model.Thread, error)
	ListUserThreads(ctx context.Context, userID types.UserID) ([]model.Thread, error)
	CreateThread(ctx context.Context, thread *model.Thread) (*model.Thread, error)
	GetThread(ctx context.Context, id types.ThreadID) (*model.ThreadDetail, error)
	CreateComment(ctx context.Context, comment *model.Comment) (*model.Comment, error)
}
