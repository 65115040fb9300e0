package pubsub

import (
	"context"
	"errors"
	"testing"

	"github.com/danmuck/redclient/internal/protocol/resp"
	"github.com/danmuck/redclient/internal/testutil/respserver"
	"github.com/danmuck/redclient/internal/testutil/testlog"
	"github.com/danmuck/redclient/internal/transport"
)

func TestSubscribeFanOut(t *testing.T) {
	testlog.Start(t)
	sub, peer, _ := session(t)
	ctx := context.Background()
	q1, q2 := NewQueue(8), NewQueue(8)

	if err := sub.Subscribe(ctx, "news", q1); err != nil {
		t.Fatalf("subscribe q1: %v", err)
	}
	peer.Expect(t, "SUBSCRIBE", "news")
	if err := sub.Subscribe(ctx, "news", q2); err != nil {
		t.Fatalf("subscribe q2: %v", err)
	}
	if got := sub.State("news"); got != StatePending {
		t.Fatalf("state before ack: %s", got)
	}
	expectNoEvent(t, q1)

	peer.Send(t, respserver.Push("subscribe", "news", resp.Integer(1)))
	expectEvent(t, q1, EventSubscribed, "news", "")
	expectEvent(t, q2, EventSubscribed, "news", "")
	if got := sub.State("news"); got != StateSubscribed {
		t.Fatalf("state after ack: %s", got)
	}

	peer.Send(t, respserver.Push("message", "news", resp.BulkString("hello\r\nworld")))
	expectEvent(t, q1, EventMessage, "news", "hello\r\nworld")
	expectEvent(t, q2, EventMessage, "news", "hello\r\nworld")

	q3 := NewQueue(8)
	if err := sub.Subscribe(ctx, "news", q3); err != nil {
		t.Fatalf("subscribe q3: %v", err)
	}
	expectEvent(t, q3, EventSubscribed, "news", "")
	expectNoEvent(t, q1)

	// The next command on the wire proves the extra subscribes sent nothing.
	if err := sub.Subscribe(ctx, "sports", q1); err != nil {
		t.Fatalf("subscribe sports: %v", err)
	}
	peer.Expect(t, "SUBSCRIBE", "sports")
}

func TestSharedUnsubscribeSendsOnlyForLastConsumer(t *testing.T) {
	testlog.Start(t)
	sub, peer, _ := session(t)
	ctx := context.Background()
	q1, q2 := NewQueue(8), NewQueue(8)

	_ = sub.Subscribe(ctx, "news", q1)
	_ = sub.Subscribe(ctx, "news", q2)
	peer.Expect(t, "SUBSCRIBE", "news")
	peer.Send(t, respserver.Push("subscribe", "news", resp.Integer(1)))
	expectEvent(t, q1, EventSubscribed, "news", "")
	expectEvent(t, q2, EventSubscribed, "news", "")

	if err := sub.Unsubscribe(ctx, "news", q1); err != nil {
		t.Fatalf("unsubscribe q1: %v", err)
	}
	expectEvent(t, q1, EventUnsubscribed, "news", "")
	expectNoEvent(t, q2)

	if err := sub.Unsubscribe(ctx, "news", q2); err != nil {
		t.Fatalf("unsubscribe q2: %v", err)
	}
	peer.Expect(t, "UNSUBSCRIBE", "news")
	if got := sub.State("news"); got != StateSubscribed {
		t.Fatalf("state while draining: %s", got)
	}
	if err := sub.Unsubscribe(ctx, "news", q2); err != nil {
		t.Fatalf("repeat unsubscribe: %v", err)
	}

	peer.Send(t, respserver.Push("message", "news", resp.BulkString("late")))
	expectEvent(t, q2, EventMessage, "news", "late")
	expectNoEvent(t, q2)

	peer.Send(t, respserver.Push("unsubscribe", "news", resp.Integer(0)))
	expectEvent(t, q2, EventUnsubscribed, "news", "")
	expectNoEvent(t, q1)
	if got := sub.State("news"); got != StateUnsubscribed {
		t.Fatalf("state after ack: %s", got)
	}
}

func TestJoinDrainingChannel(t *testing.T) {
	testlog.Start(t)
	sub, peer, _ := session(t)
	ctx := context.Background()
	q1, q2 := NewQueue(8), NewQueue(8)

	_ = sub.Subscribe(ctx, "news", q1)
	peer.Expect(t, "SUBSCRIBE", "news")
	peer.Send(t, respserver.Push("subscribe", "news", resp.Integer(1)))
	expectEvent(t, q1, EventSubscribed, "news", "")

	_ = sub.Unsubscribe(ctx, "news", q1)
	peer.Expect(t, "UNSUBSCRIBE", "news")

	if err := sub.Subscribe(ctx, "news", q2); err != nil {
		t.Fatalf("subscribe while draining: %v", err)
	}
	expectEvent(t, q2, EventSubscribed, "news", "")

	peer.Send(t, respserver.Push("unsubscribe", "news", resp.Integer(0)))
	expectEvent(t, q1, EventUnsubscribed, "news", "")
	expectEvent(t, q2, EventUnsubscribed, "news", "")
}

func TestSubscribeDuplicateIsNoop(t *testing.T) {
	testlog.Start(t)
	sub, peer, _ := session(t)
	ctx := context.Background()
	q := NewQueue(8)

	_ = sub.Subscribe(ctx, "news", q)
	_ = sub.Subscribe(ctx, "news", q)
	peer.Expect(t, "SUBSCRIBE", "news")
	peer.Send(t, respserver.Push("subscribe", "news", resp.Integer(1)))
	expectEvent(t, q, EventSubscribed, "news", "")
	_ = sub.Subscribe(ctx, "news", q)
	expectNoEvent(t, q)

	snap := sub.Snapshot()
	if len(snap) != 1 || snap[0].Consumers != 1 || snap[0].StateName != "subscribed" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestUnsubscribeNoops(t *testing.T) {
	testlog.Start(t)
	sub, peer, _ := session(t)
	ctx := context.Background()
	q1, q2 := NewQueue(8), NewQueue(8)

	if err := sub.Unsubscribe(ctx, "nowhere", q1); err != nil {
		t.Fatalf("unsubscribe unknown: %v", err)
	}
	_ = sub.Subscribe(ctx, "news", q1)
	peer.Expect(t, "SUBSCRIBE", "news")
	if err := sub.Unsubscribe(ctx, "news", q1); err != nil {
		t.Fatalf("unsubscribe pending: %v", err)
	}
	if got := sub.State("news"); got != StatePending {
		t.Fatalf("pending unsubscribe changed state: %s", got)
	}

	peer.Send(t, respserver.Push("subscribe", "news", resp.Integer(1)))
	expectEvent(t, q1, EventSubscribed, "news", "")
	if err := sub.Unsubscribe(ctx, "news", q2); err != nil {
		t.Fatalf("unsubscribe unbound: %v", err)
	}
	expectNoEvent(t, q2)

	if err := sub.Subscribe(ctx, "other", q1); err != nil {
		t.Fatalf("subscribe other: %v", err)
	}
	peer.Expect(t, "SUBSCRIBE", "other")
}

func TestUnsubscribeAll(t *testing.T) {
	testlog.Start(t)
	sub, peer, _ := session(t)
	ctx := context.Background()
	q, other := NewQueue(8), NewQueue(8)

	for _, ch := range []string{"b", "a"} {
		_ = sub.Subscribe(ctx, ch, q)
		peer.Expect(t, "SUBSCRIBE", ch)
		peer.Send(t, respserver.Push("subscribe", ch, resp.Integer(1)))
		expectEvent(t, q, EventSubscribed, ch, "")
	}
	_ = sub.Subscribe(ctx, "b", other)
	expectEvent(t, other, EventSubscribed, "b", "")

	if err := sub.UnsubscribeAll(ctx, q); err != nil {
		t.Fatalf("unsubscribe all: %v", err)
	}
	peer.Expect(t, "UNSUBSCRIBE", "a")
	expectEvent(t, q, EventUnsubscribed, "b", "")
	peer.Send(t, respserver.Push("unsubscribe", "a", resp.Integer(1)))
	expectEvent(t, q, EventUnsubscribed, "a", "")
	expectNoEvent(t, other)

	if got := sub.State("b"); got != StateSubscribed {
		t.Fatalf("shared channel state: %s", got)
	}
}

func TestSubscribeInvalidArguments(t *testing.T) {
	testlog.Start(t)
	sub := NewSubscriber(nil)
	ctx := context.Background()
	if err := sub.Subscribe(ctx, "", NewQueue(1)); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("empty channel: %v", err)
	}
	if err := sub.Subscribe(ctx, "news", nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("nil queue: %v", err)
	}
	if err := sub.Unsubscribe(ctx, "", NewQueue(1)); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("unsubscribe empty channel: %v", err)
	}
	if err := sub.UnsubscribeAll(ctx, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("unsubscribe all nil: %v", err)
	}
}

func TestImmediateDeliveryCancelledRollsBack(t *testing.T) {
	testlog.Start(t)
	sub, peer, _ := session(t)
	ctx := context.Background()
	q := NewQueue(8)

	_ = sub.Subscribe(ctx, "news", q)
	peer.Expect(t, "SUBSCRIBE", "news")
	peer.Send(t, respserver.Push("subscribe", "news", resp.Integer(1)))
	expectEvent(t, q, EventSubscribed, "news", "")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	late := NewQueue(0)
	if err := sub.Subscribe(cancelled, "news", late); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	snap := sub.Snapshot()
	if len(snap) != 1 || snap[0].Consumers != 1 {
		t.Fatalf("cancelled subscribe left a binding: %+v", snap)
	}
}

func TestUnexpectedPushEndsSession(t *testing.T) {
	tests := []struct {
		name string
		push resp.Value
	}{
		{name: "not an array", push: resp.Integer(1)},
		{name: "short array", push: resp.Command("message", "news")},
		{name: "unknown kind", push: respserver.Push("psubscribe", "news", resp.Integer(1))},
		{name: "ack without pending", push: respserver.Push("subscribe", "ghost", resp.Integer(1))},
		{name: "message unsubscribed", push: respserver.Push("message", "ghost", resp.BulkString("x"))},
		{name: "unsubscribe unknown", push: respserver.Push("unsubscribe", "ghost", resp.Integer(0))},
		{name: "message integer payload", push: respserver.Push("message", "news", resp.Integer(9))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testlog.Start(t)
			sub, peer, runErr := session(t)
			ctx := context.Background()
			q := NewQueue(8)

			_ = sub.Subscribe(ctx, "news", q)
			peer.Expect(t, "SUBSCRIBE", "news")
			peer.Send(t, respserver.Push("subscribe", "news", resp.Integer(1)))
			expectEvent(t, q, EventSubscribed, "news", "")

			peer.Send(t, tt.push)
			if err := expectRunErr(t, runErr); !errors.Is(err, ErrUnexpectedResponse) {
				t.Fatalf("run: got %v want unexpected response", err)
			}
			if !errors.Is(sub.Err(), ErrUnexpectedResponse) {
				t.Fatalf("err: %v", sub.Err())
			}
			if err := sub.Subscribe(ctx, "other", q); !errors.Is(err, ErrSessionClosed) {
				t.Fatalf("subscribe after failure: %v", err)
			}
			if got := sub.State("news"); got != StateUnsubscribed {
				t.Fatalf("state after failure: %s", got)
			}
			expectNoEvent(t, q)
		})
	}
}

func TestRunTwice(t *testing.T) {
	testlog.Start(t)
	sub, peer, _ := session(t)
	q := NewQueue(1)

	// A delivered ack proves the loop is up.
	_ = sub.Subscribe(context.Background(), "news", q)
	peer.Expect(t, "SUBSCRIBE", "news")
	peer.Send(t, respserver.Push("subscribe", "news", resp.Integer(1)))
	expectEvent(t, q, EventSubscribed, "news", "")

	if err := sub.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second run: %v", err)
	}
}

func TestRunCancel(t *testing.T) {
	testlog.Start(t)
	conn, _ := dial(t)
	sub := NewSubscriber(conn)
	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- sub.Run(ctx) }()

	cancel()
	if err := expectRunErr(t, runErr); !errors.Is(err, context.Canceled) {
		t.Fatalf("run: %v", err)
	}
	<-sub.Done()
	if conn.Connected() {
		t.Fatalf("cancel should disconnect")
	}
	if err := sub.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second run: %v", err)
	}
}

func TestServerHangupEndsSession(t *testing.T) {
	testlog.Start(t)
	sub, peer, runErr := session(t)
	peer.Close()
	if err := expectRunErr(t, runErr); !errors.Is(err, transport.ErrConnectionClosed) {
		t.Fatalf("run: %v", err)
	}
	if err := sub.Subscribe(context.Background(), "news", NewQueue(1)); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("subscribe after hangup: %v", err)
	}
}
