package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/m-mizutani/goerr/v2"

	"github.com/commune-lab/commune/pkg/domain/interfaces"
	"github.com/commune-lab/commune/pkg/domain/model"
	"github.com/commune-lab/commune/pkg/utils/errutil"
)

const (
	heartbeatInterval = 25 * time.Second
	writeTimeout      = 10 * time.Second
	reconnectBaseWait = time.Second
	reconnectMaxWait  = 30 * time.Second
)

// frame is the wire format of the realtime channel protocol. Every
// message in both directions carries a topic, an event name, a payload
// and a client-assigned ref.
type frame struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref"`
}

// insertPayload is the payload of a postgres_changes INSERT frame
type insertPayload struct {
	Type   string          `json:"type"`
	Table  string          `json:"table"`
	Record json.RawMessage `json:"record"`
}

// Socket is a realtime provider backed by a websocket connection to the
// backend's channel endpoint. Topic joins are reference-counted: the
// first subscriber of a scope joins the channel, the last one leaves it.
type Socket struct {
	url    string
	apiKey string
	hub    *Hub
	logger *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	joins  map[string]int // topic -> subscriber count
	scopes map[string]model.ChannelScope
	ref    int
	closed bool

	cancel context.CancelFunc
	done   chan struct{}
}

var _ interfaces.Realtime = &Socket{}

// NewSocket dials the realtime endpoint and starts the read loop. The
// connection is retried with backoff until Close is called.
func NewSocket(ctx context.Context, wsURL, apiKey string, logger *slog.Logger) (*Socket, error) {
	if wsURL == "" {
		return nil, goerr.New("realtime websocket URL is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &Socket{
		url:    wsURL,
		apiKey: apiKey,
		hub:    NewHub(logger),
		logger: logger.With("component", "realtime.socket"),
		joins:  make(map[string]int),
		scopes: make(map[string]model.ChannelScope),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	if err := s.dial(ctx); err != nil {
		cancel()
		return nil, err
	}

	go s.run(runCtx)
	return s, nil
}

func (s *Socket) dial(ctx context.Context) error {
	dialURL := s.url
	if s.apiKey != "" {
		dialURL += "?apikey=" + s.apiKey
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, dialURL, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to dial realtime endpoint", goerr.V("url", s.url))
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	return nil
}

// run owns the connection lifecycle: read loop, heartbeat, and
// reconnect with rejoin of active topics.
func (s *Socket) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.send(frame{Topic: "phoenix", Event: "heartbeat", Payload: json.RawMessage(`{}`)}); err != nil {
					errutil.Handle(ctx, err, "realtime heartbeat failed")
				}
			}
		}
	}()

	wait := reconnectBaseWait
	for {
		err := s.readLoop(ctx)
		if ctx.Err() != nil {
			return
		}
		errutil.Handle(ctx, err, "realtime connection lost, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		wait *= 2
		if wait > reconnectMaxWait {
			wait = reconnectMaxWait
		}

		if err := s.dial(ctx); err != nil {
			continue
		}
		wait = reconnectBaseWait
		s.rejoinAll(ctx)
	}
}

func (s *Socket) readLoop(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return goerr.New("realtime connection is not established")
	}

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return goerr.Wrap(err, "failed to read realtime frame")
		}
		s.handleFrame(ctx, &f)
	}
}

func (s *Socket) handleFrame(ctx context.Context, f *frame) {
	switch f.Event {
	case "postgres_changes", "INSERT":
		var p insertPayload
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			errutil.Handle(ctx, goerr.Wrap(err, "failed to decode insert payload", goerr.V("topic", f.Topic)), "dropping realtime frame")
			return
		}
		if p.Type != "" && p.Type != "INSERT" {
			return
		}
		env := &model.InsertEnvelope{
			Table:      model.Table(p.Table),
			Record:     p.Record,
			ReceivedAt: time.Now(),
		}
		s.hub.Publish(f.Topic, env)
	case "phx_reply", "phx_error", "heartbeat":
		// protocol chatter, nothing to fan out
	default:
		s.logger.Debug("ignoring realtime frame", "event", f.Event, "topic", f.Topic)
	}
}

// Subscribe joins the scope's channel (first subscriber only) and
// registers a hub subscription for it.
func (s *Socket) Subscribe(ctx context.Context, scope model.ChannelScope) (<-chan *model.InsertEnvelope, string, error) {
	if err := scope.Validate(); err != nil {
		return nil, "", err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, "", goerr.New("realtime socket is closed")
	}
	topic := scope.Topic()
	s.joins[topic]++
	first := s.joins[topic] == 1
	if first {
		s.scopes[topic] = scope
	}
	s.mu.Unlock()

	if first {
		if err := s.join(scope); err != nil {
			s.mu.Lock()
			s.joins[topic]--
			if s.joins[topic] == 0 {
				delete(s.joins, topic)
				delete(s.scopes, topic)
			}
			s.mu.Unlock()
			return nil, "", err
		}
	}

	return s.hub.Subscribe(ctx, scope)
}

// Unsubscribe drops the hub subscription and leaves the channel when no
// subscriber remains.
func (s *Socket) Unsubscribe(scope model.ChannelScope, subID string) {
	s.hub.Unsubscribe(scope, subID)

	topic := scope.Topic()
	s.mu.Lock()
	if s.joins[topic] > 0 {
		s.joins[topic]--
	}
	last := s.joins[topic] == 0
	if last {
		delete(s.joins, topic)
		delete(s.scopes, topic)
	}
	closed := s.closed
	s.mu.Unlock()

	if last && !closed {
		if err := s.send(frame{Topic: topic, Event: "phx_leave", Payload: json.RawMessage(`{}`)}); err != nil {
			s.logger.Warn("failed to leave realtime channel", "topic", topic, "error", err)
		}
	}
}

func (s *Socket) join(scope model.ChannelScope) error {
	payload := map[string]string{"table": string(scope.Table)}
	if scope.FilterColumn != "" {
		payload["filter"] = scope.FilterColumn + "=eq." + scope.FilterValue
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return goerr.Wrap(err, "failed to encode join payload")
	}
	return s.send(frame{Topic: scope.Topic(), Event: "phx_join", Payload: raw})
}

func (s *Socket) rejoinAll(ctx context.Context) {
	s.mu.Lock()
	scopes := make([]model.ChannelScope, 0, len(s.scopes))
	for _, scope := range s.scopes {
		scopes = append(scopes, scope)
	}
	s.mu.Unlock()

	for _, scope := range scopes {
		if err := s.join(scope); err != nil {
			errutil.Handle(ctx, err, "failed to rejoin realtime channel")
		}
	}
}

func (s *Socket) send(f frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return goerr.New("realtime connection is not established")
	}
	s.ref++
	f.Ref = strconv.Itoa(s.ref)

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return goerr.Wrap(err, "failed to set write deadline")
	}
	if err := s.conn.WriteJSON(f); err != nil {
		return goerr.Wrap(err, "failed to write realtime frame", goerr.V("event", f.Event), goerr.V("topic", f.Topic))
	}
	return nil
}

// Close leaves all channels, stops the read loop and closes the
// connection. Subscriber channels are closed through the hub.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	s.cancel()
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
		if err := conn.Close(); err != nil {
			return goerr.Wrap(err, "failed to close realtime connection")
		}
	}
	<-s.done
	return s.hub.Close()
}
