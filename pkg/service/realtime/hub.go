package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/commune-lab/commune/pkg/domain/interfaces"
	"github.com/commune-lab/commune/pkg/domain/model"
	"github.com/commune-lab/commune/pkg/domain/types"
)

// envelopeBufferSize is the channel buffer for each subscriber. A slow
// consumer loses envelopes rather than stalling the socket reader.
const envelopeBufferSize = 64

// Hub fans out insert envelopes to channel subscribers, keyed by topic.
// It backs both the socket transport and the in-process provider used
// for development and tests.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[string]chan *model.InsertEnvelope // topic -> subID -> ch
	logger *slog.Logger
	closed bool
}

var _ interfaces.Realtime = &Hub{}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[string]map[string]chan *model.InsertEnvelope),
		logger: logger.With("component", "realtime.hub"),
	}
}

// Subscribe registers a subscriber for inserts on the given scope. The
// returned channel is closed on Unsubscribe, hub Close, or ctx
// cancellation.
func (h *Hub) Subscribe(ctx context.Context, scope model.ChannelScope) (<-chan *model.InsertEnvelope, string, error) {
	if err := scope.Validate(); err != nil {
		return nil, "", err
	}

	topic := scope.Topic()
	subID := uuid.NewString()
	ch := make(chan *model.InsertEnvelope, envelopeBufferSize)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, subID, nil
	}
	if _, ok := h.subs[topic]; !ok {
		h.subs[topic] = make(map[string]chan *model.InsertEnvelope)
	}
	h.subs[topic][subID] = ch
	h.mu.Unlock()

	h.logger.Debug("subscriber added", "topic", topic, "sub_id", subID)

	go func() {
		<-ctx.Done()
		h.Unsubscribe(scope, subID)
	}()

	return ch, subID, nil
}

// Publish delivers an envelope to every subscriber of the topic.
// Non-blocking: full subscriber channels drop the envelope. The read
// lock is held through the sends; Unsubscribe and Close take the write
// lock, so a channel cannot be closed mid-send.
func (h *Hub) Publish(topic string, env *model.InsertEnvelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subs[topic] {
		select {
		case ch <- env:
		default:
			h.logger.Debug("dropped envelope for slow subscriber", "topic", topic)
		}
	}
}

// PublishRecord wraps a raw inserted row in an envelope and delivers it
// to the topics it belongs to: the table's unfiltered topic, plus the
// thread-scoped topic for comment rows. This is how the in-memory
// backend feeds the hub in development.
func (h *Hub) PublishRecord(table model.Table, record json.RawMessage) {
	env := &model.InsertEnvelope{
		Table:      table,
		Record:     record,
		ReceivedAt: time.Now(),
	}

	switch table {
	case model.TableThreads:
		h.Publish(model.ThreadsScope().Topic(), env)
	case model.TableComments:
		var row struct {
			ThreadID types.ThreadID `json:"thread_id"`
		}
		if err := json.Unmarshal(record, &row); err != nil || row.ThreadID == "" {
			h.logger.Warn("comment insert without thread_id, not delivered")
			return
		}
		h.Publish(model.CommentsScope(row.ThreadID).Topic(), env)
	default:
		h.logger.Warn("insert for unknown table, not delivered", "table", table)
	}
}

// Unsubscribe removes a subscription and closes its channel
func (h *Hub) Unsubscribe(scope model.ChannelScope, subID string) {
	topic := scope.Topic()

	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subs[topic]
	if !ok {
		return
	}
	ch, ok := subs[subID]
	if !ok {
		return
	}

	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(h.subs, topic)
	}

	h.logger.Debug("subscriber removed", "topic", topic, "sub_id", subID)
}

// Close shuts down the hub and closes all subscriber channels
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for topic, subs := range h.subs {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(h.subs, topic)
	}
	return nil
}
