package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/autopeer-io/groundpeer/internal/coordinator"
	"github.com/autopeer-io/groundpeer/internal/logsink"
	"github.com/autopeer-io/groundpeer/internal/ports"
	"github.com/autopeer-io/groundpeer/internal/vehicle/sim"
	"github.com/autopeer-io/groundpeer/pkg/log"
	pkgmqtt "github.com/autopeer-io/groundpeer/pkg/mqtt"
	"github.com/autopeer-io/groundpeer/pkg/mqtt/topic"
)

type published struct {
	topic   string
	retain  bool
	payload []byte
}

type fakeClient struct {
	mu        sync.Mutex
	connected bool
	handlers  map[string]pkgmqtt.MessageHandler
	published []published
	subbed    chan struct{}
}

var _ pkgmqtt.Client = (*fakeClient)(nil)

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: make(map[string]pkgmqtt.MessageHandler), subbed: make(chan struct{}, 1)}
}

func (f *fakeClient) Start(context.Context) error { return nil }

func (f *fakeClient) Disconnect(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func (f *fakeClient) Publish(_ context.Context, t string, _ int, retain bool, p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, published{topic: t, retain: retain, payload: p})
	return nil
}

func (f *fakeClient) Subscribe(_ context.Context, t string, _ int, h pkgmqtt.MessageHandler) error {
	f.mu.Lock()
	f.handlers[t] = h
	f.mu.Unlock()
	f.subbed <- struct{}{}
	return nil
}

func (f *fakeClient) Unsubscribe(_ context.Context, t string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, t)
	return nil
}

func (f *fakeClient) AwaitConnection(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) deliver(t string, payload []byte) {
	f.mu.Lock()
	h := f.handlers["gcs/v1/command/+"]
	f.mu.Unlock()
	h(context.Background(), t, payload)
}

func (f *fakeClient) on(t string) []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []published
	for _, p := range f.published {
		if p.topic == t {
			out = append(out, p)
		}
	}
	return out
}

func newCoordinator(t *testing.T) *coordinator.Coordinator {
	t.Helper()
	c := coordinator.New(coordinator.Config{Baud: 57600, ConnectTimeout: time.Second},
		sim.NewDialer(sim.Options{}), ports.StaticEnumerator{"/dev/ttyUSB0"}, ports.NewState(),
		logsink.New(16, logsink.WithLogger(log.NewNopLogger())))
	t.Cleanup(func() {
		c.Wait()
		_ = c.Close()
	})
	return c
}

func startServer(t *testing.T) (*fakeClient, *Server, context.CancelFunc) {
	t.Helper()

	client := newFakeClient()
	srv := NewServer(client, topic.NewBuilder("gcs/v1"), newCoordinator(t), "station-1", time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	select {
	case <-client.subbed:
	case <-time.After(time.Second):
		t.Fatal("server never subscribed")
	}
	waitFor(t, func() bool { return len(client.on("gcs/v1/status/station-1")) > 0 })

	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Start() = %v", err)
		}
	})
	return client, srv, cancel
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestCommandAck(t *testing.T) {
	tests := []struct {
		name     string
		topic    string
		payload  string
		accepted bool
	}{
		{name: "accepted", topic: "gcs/v1/command/mother", payload: `{"id":"1","action":"connect"}`, accepted: true},
		{name: "unknown action", topic: "gcs/v1/command/mother", payload: `{"id":"2","action":"loop"}`},
		{name: "unknown role", topic: "gcs/v1/command/sidecar", payload: `{"id":"3","action":"arm"}`},
		{name: "bad payload", topic: "gcs/v1/command/top", payload: `{`},
	}

	client, _, _ := startServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client.deliver(tt.topic, []byte(tt.payload))

			role := topic.Last(tt.topic)
			acks := client.on("gcs/v1/command/ack/" + role)
			if len(acks) == 0 {
				t.Fatal("no ack published")
			}
			var ack CommandAck
			if err := json.Unmarshal(acks[len(acks)-1].payload, &ack); err != nil {
				t.Fatal(err)
			}
			if ack.Accepted != tt.accepted || ack.Role != role {
				t.Errorf("ack = %+v, want accepted=%v", ack, tt.accepted)
			}
			if !tt.accepted && ack.Error == "" {
				t.Error("rejected ack carries no error")
			}
		})
	}
}

func TestStatusLifecycle(t *testing.T) {
	client, _, cancel := startServer(t)

	statuses := client.on("gcs/v1/status/station-1")
	if len(statuses) != 1 || !statuses[0].retain {
		t.Fatalf("initial status = %+v", statuses)
	}
	var st StationStatus
	if err := json.Unmarshal(statuses[0].payload, &st); err != nil {
		t.Fatal(err)
	}
	if !st.Online || len(st.Vehicles) != 3 {
		t.Errorf("status = %+v", st)
	}

	cancel()
	waitFor(t, func() bool { return len(client.on("gcs/v1/status/station-1")) == 2 })
	last := client.on("gcs/v1/status/station-1")[1]
	if err := json.Unmarshal(last.payload, &st); err != nil || st.Online {
		t.Errorf("final status = %+v, %v", st, err)
	}
}

func TestPublishLine(t *testing.T) {
	client, srv, _ := startServer(t)

	srv.PublishLine(context.Background(), logsink.Line{Role: "top", Text: "top arm complete"})
	srv.PublishLine(context.Background(), logsink.Line{Text: "station up"})

	if got := client.on("gcs/v1/log/top"); len(got) != 1 {
		t.Errorf("top lines = %d", len(got))
	}
	if got := client.on("gcs/v1/log/station-1"); len(got) != 1 {
		t.Errorf("station lines = %d", len(got))
	}

	client.Disconnect(context.Background())
	srv.PublishLine(context.Background(), logsink.Line{Role: "top", Text: "dropped"})
	if got := client.on("gcs/v1/log/top"); len(got) != 1 {
		t.Errorf("line published while offline")
	}
}

func TestOfflinePayload(t *testing.T) {
	var st StationStatus
	if err := json.Unmarshal(OfflinePayload("s"), &st); err != nil || st.Online || st.Station != "s" {
		t.Errorf("OfflinePayload = %+v, %v", st, err)
	}
}
