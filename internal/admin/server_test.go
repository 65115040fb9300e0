package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danmuck/redclient/internal/pubsub"
	"github.com/danmuck/redclient/internal/testutil/testlog"
)

type fakeSession struct {
	channels []pubsub.ChannelInfo
	done     chan struct{}
	err      error
}

func (f *fakeSession) Snapshot() []pubsub.ChannelInfo { return f.channels }
func (f *fakeSession) Done() <-chan struct{}          { return f.done }
func (f *fakeSession) Err() error                     { return f.err }

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthAndReady(t *testing.T) {
	testlog.Start(t)
	session := &fakeSession{done: make(chan struct{})}
	s := New("subctl", session, nil)

	if rec := get(t, s, "/health"); rec.Code != http.StatusOK {
		t.Fatalf("health: status %d", rec.Code)
	}
	if rec := get(t, s, "/ready"); rec.Code != http.StatusOK {
		t.Fatalf("ready: status %d", rec.Code)
	}

	session.err = errors.New("pubsub: unexpected response: push kind \"x\"")
	close(session.done)
	rec := get(t, s, "/ready")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready after failure: status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "unexpected response") {
		t.Fatalf("ready body missing error: %s", rec.Body.String())
	}
}

func TestChannels(t *testing.T) {
	testlog.Start(t)
	session := &fakeSession{
		done: make(chan struct{}),
		channels: []pubsub.ChannelInfo{
			{Channel: "news", State: pubsub.StateSubscribed, StateName: "subscribed", Consumers: 2},
			{Channel: "sports", State: pubsub.StatePending, StateName: "pending", Consumers: 1},
		},
	}
	s := New("subctl", session, []string{"http://localhost:5173"})

	rec := get(t, s, "/channels")
	if rec.Code != http.StatusOK {
		t.Fatalf("channels: status %d", rec.Code)
	}
	var body struct {
		Channels []struct {
			Channel   string `json:"channel"`
			State     string `json:"state"`
			Consumers int    `json:"consumers"`
		} `json:"channels"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode channels: %v", err)
	}
	if len(body.Channels) != 2 || body.Channels[0].Channel != "news" || body.Channels[0].Consumers != 2 {
		t.Fatalf("unexpected channels: %+v", body.Channels)
	}
	if body.Channels[1].State != "pending" {
		t.Fatalf("unexpected state: %q", body.Channels[1].State)
	}
}

func TestMetricsRoute(t *testing.T) {
	testlog.Start(t)
	s := New("subctl", &fakeSession{done: make(chan struct{})}, nil)
	_ = get(t, s, "/health")

	rec := get(t, s, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "redclient_http_requests_total") {
		t.Fatalf("metrics output missing http counter")
	}
}
