package usecase

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/commune-lab/commune/pkg/domain/interfaces"
	"github.com/commune-lab/commune/pkg/domain/model"
	"github.com/commune-lab/commune/pkg/domain/types"
)

// ProfileUseCase reads and edits the viewer's backend user record
type ProfileUseCase struct {
	backend interfaces.Backend
	notify  *NotificationCenter
}

func NewProfileUseCase(backend interfaces.Backend, notify *NotificationCenter) *ProfileUseCase {
	return &ProfileUseCase{backend: backend, notify: notify}
}

// Get fetches the user record
func (uc *ProfileUseCase) Get(ctx context.Context, userID types.UserID) (*model.User, error) {
	user, err := uc.backend.GetUser(ctx, userID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load profile", goerr.V("user_id", userID))
	}
	return user, nil
}

// Update saves the edited profile and reports the outcome through the
// notification queue
func (uc *ProfileUseCase) Update(ctx context.Context, user *model.User) (*model.User, error) {
	if err := user.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid profile")
	}
	if user.Username == "" {
		user.Username = model.DefaultUsername
	}

	updated, err := uc.backend.UpdateUser(ctx, user)
	if err != nil {
		uc.notify.Error(ctx, "Failed to update profile")
		return nil, goerr.Wrap(err, "failed to update profile", goerr.V("user_id", user.ID))
	}

	uc.notify.Success(ctx, "Profile updated")
	return updated, nil
}
