package usecase

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/commune-lab/commune/pkg/domain/interfaces"
	"github.com/commune-lab/commune/pkg/domain/model"
	"github.com/commune-lab/commune/pkg/domain/types"
)

// recentThreadLimit caps the home summary's participating-thread list
const recentThreadLimit = 3

// HomeSummary is the home page's aggregate view
type HomeSummary struct {
	User           *model.User           `json:"user"`
	UpcomingEvents []model.CalendarEvent `json:"upcoming_events"`
	RecentThreads  []model.Thread        `json:"recent_threads"`
}

// HomeUseCase assembles the home summary from the backend
type HomeUseCase struct {
	backend interfaces.Backend
}

func NewHomeUseCase(backend interfaces.Backend) *HomeUseCase {
	return &HomeUseCase{backend: backend}
}

// Summary returns the viewer's profile, upcoming events and most
// recently active own threads
func (uc *HomeUseCase) Summary(ctx context.Context, userID types.UserID) (*HomeSummary, error) {
	user, err := uc.backend.GetUser(ctx, userID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load user for home summary", goerr.V("user_id", userID))
	}

	events, err := uc.backend.ListEvents(ctx, userID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load events for home summary", goerr.V("user_id", userID))
	}
	now := time.Now()
	upcoming := make([]model.CalendarEvent, 0, len(events))
	for _, ev := range events {
		if ev.IsUpcoming(now) {
			upcoming = append(upcoming, ev)
		}
	}
	sortEventsByStart(upcoming)

	threads, err := uc.backend.ListUserThreads(ctx, userID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load threads for home summary", goerr.V("user_id", userID))
	}
	list := newFeedList[model.Thread](false, "")
	list.insertAll(threads)
	recent := list.snapshot()
	if len(recent) > recentThreadLimit {
		recent = recent[:recentThreadLimit]
	}

	return &HomeSummary{
		User:           user,
		UpcomingEvents: upcoming,
		RecentThreads:  recent,
	}, nil
}
