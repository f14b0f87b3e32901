package model

import (
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/commune-lab/commune/pkg/domain/types"
)

// CalendarEvent is one entry of a user's schedule. Timestamps are
// ISO-8601 on the wire.
type CalendarEvent struct {
	ID        types.EventID `json:"id"`
	Title     string        `json:"title"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	UserID    types.UserID  `json:"user_id"`
}

// Validate checks if the CalendarEvent is valid
func (e *CalendarEvent) Validate() error {
	if e.Title == "" {
		return goerr.New("event title is required")
	}
	if e.StartTime.IsZero() || e.EndTime.IsZero() {
		return goerr.New("event start and end times are required", goerr.V("title", e.Title))
	}
	if e.EndTime.Before(e.StartTime) {
		return goerr.New("event must end after it starts",
			goerr.V("start", e.StartTime), goerr.V("end", e.EndTime))
	}
	return nil
}

// IsUpcoming reports whether the event starts after the given time
func (e *CalendarEvent) IsUpcoming(now time.Time) bool {
	return e.StartTime.After(now)
}
