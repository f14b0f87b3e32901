package model

import (
	"github.com/m-mizutani/goerr/v2"

	"github.com/commune-lab/commune/pkg/domain/types"
)

// Fallback values for registrations built from sessions whose provider
// profile carries no display name or avatar.
const (
	DefaultUsername  = "No Name"
	DefaultAvatarURL = ""
)

// User is the backend's user record
type User struct {
	ID        types.UserID `json:"id"`
	Username  string       `json:"username"`
	Email     string       `json:"email"`
	AvatarURL string       `json:"avatar_url"`
}

// Validate checks if the User is valid
func (u *User) Validate() error {
	if err := u.ID.Validate(); err != nil {
		return goerr.Wrap(err, "invalid user")
	}
	return nil
}

// Registration is the payload of the backend's identity upsert
// (POST /auth/google)
type Registration struct {
	GoogleID  string `json:"google_id"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
}

// NewRegistration builds the upsert payload from a session, substituting
// the documented fallbacks when profile metadata is absent.
func NewRegistration(sess *Session) Registration {
	reg := Registration{
		GoogleID:  sess.Subject.String(),
		Email:     sess.Email,
		Username:  sess.Name,
		AvatarURL: sess.AvatarURL,
	}
	if reg.Username == "" {
		reg.Username = DefaultUsername
	}
	if reg.AvatarURL == "" {
		reg.AvatarURL = DefaultAvatarURL
	}
	return reg
}

// Validate checks if the Registration is valid
func (r *Registration) Validate() error {
	if r.GoogleID == "" {
		return goerr.New("registration google_id is required")
	}
	if r.Email == "" {
		return goerr.New("registration email is required", goerr.V("google_id", r.GoogleID))
	}
	return nil
}
