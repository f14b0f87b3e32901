package types

import (
	"github.com/m-mizutani/goerr/v2"
)

// SubjectID is the identity provider's stable subject identifier for a
// user (the `google_id` field of the backend registration payload).
type SubjectID string

// Validate checks if the SubjectID is valid
func (s SubjectID) Validate() error {
	if s == "" {
		return goerr.New("subject ID cannot be empty")
	}
	return nil
}

// String returns the string representation of SubjectID
func (s SubjectID) String() string {
	return string(s)
}

// UserID is the backend-internal user identifier
type UserID string

// Validate checks if the UserID is valid
func (u UserID) Validate() error {
	if u == "" {
		return goerr.New("user ID cannot be empty")
	}
	return nil
}

// String returns the string representation of UserID
func (u UserID) String() string {
	return string(u)
}

// ThreadID identifies a discussion thread
type ThreadID string

// Validate checks if the ThreadID is valid
func (t ThreadID) Validate() error {
	if t == "" {
		return goerr.New("thread ID cannot be empty")
	}
	return nil
}

// String returns the string representation of ThreadID
func (t ThreadID) String() string {
	return string(t)
}

// CommentID identifies a comment within a thread
type CommentID string

// Validate checks if the CommentID is valid
func (c CommentID) Validate() error {
	if c == "" {
		return goerr.New("comment ID cannot be empty")
	}
	return nil
}

// String returns the string representation of CommentID
func (c CommentID) String() string {
	return string(c)
}

// EventID identifies a calendar event
type EventID string

// Validate checks if the EventID is valid
func (e EventID) Validate() error {
	if e == "" {
		return goerr.New("event ID cannot be empty")
	}
	return nil
}

// String returns the string representation of EventID
func (e EventID) String() string {
	return string(e)
}

// AuthProvider names an OAuth provider offered by the identity service
type AuthProvider string

const (
	AuthProviderGoogle AuthProvider = "google"
	AuthProviderGitHub AuthProvider = "github"
)

// IsValid checks if the auth provider is supported
func (p AuthProvider) IsValid() bool {
	switch p {
	case AuthProviderGoogle, AuthProviderGitHub:
		return true
	}
	return false
}

// String returns the string representation of AuthProvider
func (p AuthProvider) String() string {
	return string(p)
}
