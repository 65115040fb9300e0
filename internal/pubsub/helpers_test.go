package pubsub

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/danmuck/redclient/internal/testutil/respserver"
	"github.com/danmuck/redclient/internal/transport"
)

const eventWait = 2 * time.Second

func dial(t *testing.T) (*transport.Connection, *respserver.Peer) {
	t.Helper()
	srv := respserver.Start(t, nil)
	conn, err := transport.Dial(context.Background(), srv.Host(), srv.Port(), transport.DefaultConfig())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Disconnect() })
	return conn, srv.Accept(t)
}

// session starts a Subscriber loop against a scripted peer. The returned
// channel yields Run's result.
func session(t *testing.T) (*Subscriber, *respserver.Peer, <-chan error) {
	t.Helper()
	conn, peer := dial(t)
	sub := NewSubscriber(conn)
	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- sub.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-sub.Done()
	})
	return sub, peer, runErr
}

func expectEvent(t *testing.T, q *Queue, kind EventKind, channel string, payload string) {
	t.Helper()
	select {
	case ev := <-q.Events():
		if ev.Kind != kind || ev.Channel != channel {
			t.Fatalf("event: got %s %q want %s %q", ev.Kind, ev.Channel, kind, channel)
		}
		if kind == EventMessage && !bytes.Equal(ev.Payload, []byte(payload)) {
			t.Fatalf("event payload: got %q want %q", ev.Payload, payload)
		}
	case <-time.After(eventWait):
		t.Fatalf("event: timed out waiting for %s %q", kind, channel)
	}
}

func expectNoEvent(t *testing.T, q *Queue) {
	t.Helper()
	select {
	case ev := <-q.Events():
		t.Fatalf("unexpected event: %s %q", ev.Kind, ev.Channel)
	case <-time.After(50 * time.Millisecond):
	}
}

func expectRunErr(t *testing.T, runErr <-chan error) error {
	t.Helper()
	select {
	case err := <-runErr:
		return err
	case <-time.After(eventWait):
		t.Fatalf("run: did not return")
		return nil
	}
}
