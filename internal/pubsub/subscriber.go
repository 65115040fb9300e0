package pubsub

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/danmuck/redclient/internal/logging"
	"github.com/danmuck/redclient/internal/observability"
	"github.com/danmuck/redclient/internal/protocol/resp"
	"github.com/danmuck/redclient/internal/transport"
	"github.com/rs/zerolog"
)

// Conn is the connection surface a Subscriber or Publisher needs.
// *transport.Connection satisfies it.
type Conn interface {
	Send(ctx context.Context, v resp.Value) error
	Receive(ctx context.Context) (resp.Value, error)
	Disconnect() error
}

type ChannelState int

const (
	StateUnsubscribed ChannelState = iota
	StatePending
	StateSubscribed
)

func (s ChannelState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSubscribed:
		return "subscribed"
	default:
		return "unsubscribed"
	}
}

// ChannelInfo is one row of Subscriber.Snapshot.
type ChannelInfo struct {
	Channel   string       `json:"channel"`
	State     ChannelState `json:"-"`
	StateName string       `json:"state"`
	Consumers int          `json:"consumers"`
	Draining  bool         `json:"draining"`
}

const (
	kindSubscribe   = "subscribe"
	kindMessage     = "message"
	kindUnsubscribe = "unsubscribe"
)

// Subscriber multiplexes channel subscriptions for many consumers over one
// connection.
//
// Events are delivered while the subscriber lock is held, so per-channel
// order matches registration order. A consumer must not call Subscribe or
// Unsubscribe while another of its queues is full, or the loop deadlocks.
type Subscriber struct {
	conn Conn
	log  zerolog.Logger

	mu         sync.Mutex
	pending    map[string][]*Queue
	subscribed map[string][]*Queue
	draining   map[string]bool
	running    bool
	closed     bool
	err        error

	done chan struct{}
}

func NewSubscriber(conn Conn) *Subscriber {
	return &Subscriber{
		conn:       conn,
		log:        logging.Logger("pubsub"),
		pending:    make(map[string][]*Queue),
		subscribed: make(map[string][]*Queue),
		draining:   make(map[string]bool),
		done:       make(chan struct{}),
	}
}

// Subscribe binds q to channel. The first consumer of a channel causes a
// SUBSCRIBE to be written and sees EventSubscribed once the server acks;
// later consumers join the pending list or, if the channel is already
// subscribed, get EventSubscribed immediately. Binding the same queue twice
// is a no-op.
func (s *Subscriber) Subscribe(ctx context.Context, channel string, q *Queue) error {
	if err := validate(channel, q); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}

	if queues, ok := s.pending[channel]; ok {
		if !slices.Contains(queues, q) {
			s.pending[channel] = append(queues, q)
		}
		return nil
	}

	if queues, ok := s.subscribed[channel]; ok {
		if slices.Contains(queues, q) {
			return nil
		}
		s.subscribed[channel] = append(queues, q)
		if err := s.deliver(ctx, q, Event{Kind: EventSubscribed, Channel: channel}); err != nil {
			s.subscribed[channel] = removeQueue(s.subscribed[channel], q)
			return err
		}
		return nil
	}

	if err := s.send(ctx, "SUBSCRIBE", channel); err != nil {
		return err
	}
	s.pending[channel] = []*Queue{q}
	observability.AddChannels(StatePending.String(), 1)
	return nil
}

// Unsubscribe releases q from channel. While other consumers remain, q is
// removed at once and gets EventUnsubscribed with no wire traffic. The last
// consumer causes an UNSUBSCRIBE; the channel stays subscribed, and keeps
// delivering messages, until the server acks.
//
// Unsubscribe is a no-op when channel is not subscribed (including while
// it is still pending) or q is not bound to it.
func (s *Subscriber) Unsubscribe(ctx context.Context, channel string, q *Queue) error {
	if err := validate(channel, q); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return s.unsubscribeLocked(ctx, channel, q)
}

// UnsubscribeAll releases q from every subscribed channel it is bound to, in
// channel name order. It stops at the first failure.
func (s *Subscriber) UnsubscribeAll(ctx context.Context, q *Queue) error {
	if q == nil {
		return fmt.Errorf("%w: nil queue", ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}

	var channels []string
	for channel, queues := range s.subscribed {
		if slices.Contains(queues, q) {
			channels = append(channels, channel)
		}
	}
	slices.Sort(channels)
	for _, channel := range channels {
		if err := s.unsubscribeLocked(ctx, channel, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Subscriber) unsubscribeLocked(ctx context.Context, channel string, q *Queue) error {
	queues, ok := s.subscribed[channel]
	if !ok {
		return nil
	}
	idx := slices.Index(queues, q)
	if idx < 0 {
		return nil
	}

	if len(queues) > 1 {
		s.subscribed[channel] = slices.Delete(slices.Clone(queues), idx, idx+1)
		if err := s.deliver(ctx, q, Event{Kind: EventUnsubscribed, Channel: channel}); err != nil {
			s.subscribed[channel] = queues
			return err
		}
		return nil
	}

	if s.draining[channel] {
		return nil
	}
	if err := s.send(ctx, "UNSUBSCRIBE", channel); err != nil {
		return err
	}
	s.draining[channel] = true
	return nil
}

// Run reads pushes until ctx ends or the session fails, and dispatches
// them to bound queues. It may be called once. Read timeouts from the
// connection are retried; anything the state machine does not expect ends
// the session with ErrUnexpectedResponse.
func (s *Subscriber) Run(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.running:
		s.mu.Unlock()
		return ErrAlreadyRunning
	case s.closed:
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.running = true
	s.mu.Unlock()

	s.log.Debug().Msg("subscriber loop started")
	for {
		v, err := s.conn.Receive(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return s.finish(ctxErr, "")
			}
			if errors.Is(err, transport.ErrTimeout) {
				continue
			}
			reason := "closed"
			if errors.Is(err, resp.ErrParse) {
				reason = "parse"
			}
			return s.finish(fmt.Errorf("pubsub: receive: %w", err), reason)
		}
		if err := s.dispatch(ctx, v); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return s.finish(ctxErr, "")
			}
			return s.finish(err, "unexpected_response")
		}
	}
}

// Done is closed when Run has returned.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that ended the session, or nil while it is live.
func (s *Subscriber) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscriber) State(channel string) ChannelState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[channel]; ok {
		return StatePending
	}
	if _, ok := s.subscribed[channel]; ok {
		return StateSubscribed
	}
	return StateUnsubscribed
}

// Snapshot returns every tracked channel sorted by name.
func (s *Subscriber) Snapshot() []ChannelInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChannelInfo, 0, len(s.pending)+len(s.subscribed))
	for channel, queues := range s.pending {
		out = append(out, channelInfo(channel, StatePending, len(queues), false))
	}
	for channel, queues := range s.subscribed {
		out = append(out, channelInfo(channel, StateSubscribed, len(queues), s.draining[channel]))
	}
	slices.SortFunc(out, func(a, b ChannelInfo) int {
		return cmp.Compare(a.Channel, b.Channel)
	})
	return out
}

func channelInfo(channel string, state ChannelState, consumers int, draining bool) ChannelInfo {
	return ChannelInfo{
		Channel:   channel,
		State:     state,
		StateName: state.String(),
		Consumers: consumers,
		Draining:  draining,
	}
}

func (s *Subscriber) dispatch(ctx context.Context, v resp.Value) error {
	kind, channel, data, err := parsePush(v)
	if err != nil {
		return err
	}
	observability.RecordPush(kind)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch kind {
	case kindSubscribe:
		if _, ok := data.(resp.Integer); !ok {
			return unexpected("subscribe ack for %q carries %s", channel, data.Type())
		}
		queues, ok := s.pending[channel]
		if !ok {
			return unexpected("subscribe ack for %q which is not pending", channel)
		}
		delete(s.pending, channel)
		s.subscribed[channel] = queues
		observability.AddChannels(StatePending.String(), -1)
		observability.AddChannels(StateSubscribed.String(), 1)
		s.log.Debug().Str("channel", channel).Int("consumers", len(queues)).Msg("subscribed")
		return s.broadcast(ctx, queues, Event{Kind: EventSubscribed, Channel: channel})

	case kindMessage:
		payload, ok := data.(resp.BulkString)
		if !ok {
			return unexpected("message on %q carries %s", channel, data.Type())
		}
		queues, ok := s.subscribed[channel]
		if !ok {
			return unexpected("message on %q which is not subscribed", channel)
		}
		return s.broadcast(ctx, queues, Event{Kind: EventMessage, Channel: channel, Payload: []byte(payload)})

	case kindUnsubscribe:
		if _, ok := data.(resp.Integer); !ok {
			return unexpected("unsubscribe ack for %q carries %s", channel, data.Type())
		}
		queues, ok := s.subscribed[channel]
		if !ok {
			return unexpected("unsubscribe ack for %q which is not subscribed", channel)
		}
		delete(s.subscribed, channel)
		delete(s.draining, channel)
		observability.AddChannels(StateSubscribed.String(), -1)
		s.log.Debug().Str("channel", channel).Int("consumers", len(queues)).Msg("unsubscribed")
		return s.broadcast(ctx, queues, Event{Kind: EventUnsubscribed, Channel: channel})

	default:
		return unexpected("push kind %q", kind)
	}
}

func (s *Subscriber) broadcast(ctx context.Context, queues []*Queue, ev Event) error {
	for _, q := range queues {
		if err := s.deliver(ctx, q, ev); err != nil {
			return err
		}
	}
	return nil
}

func (s *Subscriber) deliver(ctx context.Context, q *Queue, ev Event) error {
	if err := q.deliver(ctx, ev); err != nil {
		return err
	}
	observability.RecordDelivery(ev.Kind.String())
	return nil
}

// send writes one command. Callers hold s.mu.
func (s *Subscriber) send(ctx context.Context, command, channel string) error {
	if err := s.conn.Send(ctx, resp.Command(command, channel)); err != nil {
		return fmt.Errorf("pubsub: %s %q: %w", command, channel, err)
	}
	observability.RecordCommand(command)
	s.log.Debug().Str("command", command).Str("channel", channel).Msg("command sent")
	return nil
}

// finish marks the session closed, drops all channel state and disconnects.
// An empty reason means a clean shutdown.
func (s *Subscriber) finish(err error, reason string) error {
	s.mu.Lock()
	s.closed = true
	s.err = err
	observability.AddChannels(StatePending.String(), -len(s.pending))
	observability.AddChannels(StateSubscribed.String(), -len(s.subscribed))
	clear(s.pending)
	clear(s.subscribed)
	clear(s.draining)
	s.mu.Unlock()

	_ = s.conn.Disconnect()
	if reason != "" {
		observability.RecordSessionFailure(reason)
		s.log.Warn().Err(err).Str("reason", reason).Msg("subscriber session failed")
	} else {
		s.log.Debug().Err(err).Msg("subscriber loop stopped")
	}
	close(s.done)
	return err
}

func parsePush(v resp.Value) (kind, channel string, data resp.Value, err error) {
	arr, ok := v.(*resp.Array)
	if !ok {
		return "", "", nil, unexpected("push is %s, want array", v.Type())
	}
	if arr.Len() != 3 {
		return "", "", nil, unexpected("push has %d items, want 3", arr.Len())
	}
	rawKind, ok := arr.At(0).(resp.BulkString)
	if !ok {
		return "", "", nil, unexpected("push kind is %s", arr.At(0).Type())
	}
	rawChannel, ok := arr.At(1).(resp.BulkString)
	if !ok {
		return "", "", nil, unexpected("push channel is %s", arr.At(1).Type())
	}
	return string(rawKind), string(rawChannel), arr.At(2), nil
}

func validate(channel string, q *Queue) error {
	if channel == "" {
		return fmt.Errorf("%w: empty channel", ErrInvalidArgument)
	}
	if q == nil {
		return fmt.Errorf("%w: nil queue", ErrInvalidArgument)
	}
	return nil
}

func removeQueue(queues []*Queue, q *Queue) []*Queue {
	if idx := slices.Index(queues, q); idx >= 0 {
		return slices.Delete(queues, idx, idx+1)
	}
	return queues
}

func unexpected(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnexpectedResponse, fmt.Sprintf(format, args...))
}
