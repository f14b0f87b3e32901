package interfaces

import (
	"context"

	"github.com/commune-lab/commune/pkg/domain/model"
)

// Realtime is the external push service delivering insert notifications.
// Subscribe opens one channel for a scope and returns a receive channel
// plus a subscription ID; the subscription is removed when ctx is done or
// Unsubscribe is called, whichever comes first. Every open must be paired
// with exactly one close.
type Realtime interface {
	Subscribe(ctx context.Context, scope model.ChannelScope) (<-chan *model.InsertEnvelope, string, error)
	Unsubscribe(scope model.ChannelScope, subID string)
	Close() error
}
