package model

import (
	"time"

	"github.com/google/uuid"
)

// NotificationLevel classifies a transient user-facing notification
type NotificationLevel string

const (
	NotificationSuccess NotificationLevel = "success"
	NotificationError   NotificationLevel = "error"
)

// Notification is one transient, dismissible message for the view layer.
// All pages surface operation outcomes through the same queue.
type Notification struct {
	ID        string            `json:"id"`
	Level     NotificationLevel `json:"level"`
	Message   string            `json:"message"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewNotification creates a notification with a fresh ID
func NewNotification(level NotificationLevel, message string) Notification {
	return Notification{
		ID:        uuid.New().String(),
		Level:     level,
		Message:   message,
		CreatedAt: time.Now(),
	}
}
