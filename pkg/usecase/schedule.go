package usecase

import (
	"context"
	"sort"

	"github.com/m-mizutani/goerr/v2"

	"github.com/commune-lab/commune/pkg/domain/interfaces"
	"github.com/commune-lab/commune/pkg/domain/model"
	"github.com/commune-lab/commune/pkg/domain/types"
)

// ScheduleUseCase manages the viewer's calendar events
type ScheduleUseCase struct {
	backend interfaces.Backend
	notify  *NotificationCenter
}

func NewScheduleUseCase(backend interfaces.Backend, notify *NotificationCenter) *ScheduleUseCase {
	return &ScheduleUseCase{backend: backend, notify: notify}
}

// List returns the user's events sorted by start time. A user without a
// schedule gets an empty list.
func (uc *ScheduleUseCase) List(ctx context.Context, userID types.UserID) ([]model.CalendarEvent, error) {
	events, err := uc.backend.ListEvents(ctx, userID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load schedule", goerr.V("user_id", userID))
	}
	sortEventsByStart(events)
	return events, nil
}

// Create adds an event and reports the outcome
func (uc *ScheduleUseCase) Create(ctx context.Context, userID types.UserID, event *model.CalendarEvent) (*model.CalendarEvent, error) {
	if err := event.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid event")
	}

	created, err := uc.backend.CreateEvent(ctx, userID, event)
	if err != nil {
		uc.notify.Error(ctx, "Failed to add event")
		return nil, goerr.Wrap(err, "failed to create event", goerr.V("user_id", userID))
	}

	uc.notify.Success(ctx, "Event added")
	return created, nil
}

// Update edits an event and reports the outcome
func (uc *ScheduleUseCase) Update(ctx context.Context, userID types.UserID, event *model.CalendarEvent) (*model.CalendarEvent, error) {
	if err := event.ID.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid event")
	}
	if err := event.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid event")
	}

	updated, err := uc.backend.UpdateEvent(ctx, userID, event)
	if err != nil {
		uc.notify.Error(ctx, "Failed to update event")
		return nil, goerr.Wrap(err, "failed to update event",
			goerr.V("user_id", userID), goerr.V("event_id", event.ID))
	}

	uc.notify.Success(ctx, "Event updated")
	return updated, nil
}

// Delete removes an event and refetches the schedule, so the returned
// list reflects the backend rather than a local guess
func (uc *ScheduleUseCase) Delete(ctx context.Context, userID types.UserID, eventID types.EventID) ([]model.CalendarEvent, error) {
	if err := uc.backend.DeleteEvent(ctx, userID, eventID); err != nil {
		uc.notify.Error(ctx, "Failed to delete event")
		return nil, goerr.Wrap(err, "failed to delete event",
			goerr.V("user_id", userID), goerr.V("event_id", eventID))
	}

	events, err := uc.backend.ListEvents(ctx, userID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to reload schedule after delete", goerr.V("user_id", userID))
	}

	uc.notify.Success(ctx, "Event deleted")
	sortEventsByStart(events)
	return events, nil
}

func sortEventsByStart(events []model.CalendarEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].StartTime.Before(events[j].StartTime)
	})
}
