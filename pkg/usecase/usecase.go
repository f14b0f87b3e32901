package usecase

import (
	"context"

	"github.com/commune-lab/commune/pkg/domain/interfaces"
)

// UseCases bundles the application core behind the HTTP layer
type UseCases struct {
	Sessions *SessionStore
	Sync     *SyncGate
	Guard    *Guard
	Notify   *NotificationCenter
	Feeds    *FeedRegistry

	Auth     *AuthUseCase
	Home     *HomeUseCase
	Profile  *ProfileUseCase
	Schedule *ScheduleUseCase
	Threads  *ThreadsUseCase
}

func New(backend interfaces.Backend, idp interfaces.IdentityProvider, rt interfaces.Realtime) *UseCases {
	sessions := NewSessionStore(idp)
	sync := NewSyncGate(backend)
	notify := NewNotificationCenter()
	feeds := NewFeedRegistry()

	return &UseCases{
		Sessions: sessions,
		Sync:     sync,
		Guard:    NewGuard(sessions, sync),
		Notify:   notify,
		Feeds:    feeds,
		Auth:     NewAuthUseCase(idp, sessions, sync, feeds, notify),
		Home:     NewHomeUseCase(backend),
		Profile:  NewProfileUseCase(backend, notify),
		Schedule: NewScheduleUseCase(backend, notify),
		Threads:  NewThreadsUseCase(backend, rt, feeds, notify),
	}
}

// Start settles the session store. Called once at process startup.
func (uc *UseCases) Start(ctx context.Context) {
	uc.Sessions.Init(ctx)
}
