package usecase

import (
	"context"
	"sync"

	"github.com/commune-lab/commune/pkg/domain/model"
	"github.com/commune-lab/commune/pkg/utils/logging"
)

// maxPendingNotifications bounds the queue; the oldest entries give way
// when a view layer stops draining.
const maxPendingNotifications = 100

// NotificationCenter queues transient user-facing messages until the
// view layer drains them. Every operation outcome surfaces through this
// one queue instead of per-page ad-hoc reporting.
type NotificationCenter struct {
	mu      sync.Mutex
	pending []model.Notification
}

func NewNotificationCenter() *NotificationCenter {
	return &NotificationCenter{}
}

// Success queues a success message
func (n *NotificationCenter) Success(ctx context.Context, message string) {
	n.push(ctx, model.NotificationSuccess, message)
}

// Error queues an error message
func (n *NotificationCenter) Error(ctx context.Context, message string) {
	n.push(ctx, model.NotificationError, message)
}

func (n *NotificationCenter) push(ctx context.Context, level model.NotificationLevel, message string) {
	notification := model.NewNotification(level, message)

	n.mu.Lock()
	n.pending = append(n.pending, notification)
	if len(n.pending) > maxPendingNotifications {
		n.pending = n.pending[len(n.pending)-maxPendingNotifications:]
	}
	n.mu.Unlock()

	logging.From(ctx).Debug("notification queued", "level", level, "message", message)
}

// Drain returns all pending notifications, oldest first, and empties
// the queue
func (n *NotificationCenter) Drain() []model.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := n.pending
	n.pending = nil
	if out == nil {
		out = []model.Notification{}
	}
	return out
}

// Clear discards all pending notifications
func (n *NotificationCenter) Clear() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pending = nil
}
