package model

import (
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/commune-lab/commune/pkg/domain/types"
)

// Session is the authenticated identity bundle issued by the external
// identity provider. There is at most one active Session per process;
// the session store owns its lifecycle. Token fields are redacted from
// logs via the masq tag.
type Session struct {
	Subject   types.SubjectID    `json:"subject"`
	Provider  types.AuthProvider `json:"provider"`
	Email     string             `json:"email"`
	Name      string             `json:"name"`
	AvatarURL string             `json:"avatar_url"`

	AccessToken  string `json:"-" masq:"secret"`
	RefreshToken string `json:"-" masq:"secret"`

	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// NewSession creates a session for the given subject with defaults applied
func NewSession(subject types.SubjectID, provider types.AuthProvider, email, name string) *Session {
	return &Session{
		Subject:   subject,
		Provider:  provider,
		Email:     email,
		Name:      name,
		CreatedAt: time.Now(),
	}
}

// Validate checks if the Session is valid
func (s *Session) Validate() error {
	if err := s.Subject.Validate(); err != nil {
		return goerr.Wrap(err, "invalid session subject")
	}
	if s.Email == "" {
		return goerr.New("session email is required", goerr.V("subject", s.Subject))
	}
	return nil
}

// IsExpired reports whether the session's access token has expired.
// Sessions without an expiry never expire locally.
func (s *Session) IsExpired() bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(s.ExpiresAt)
}
