package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/autopeer-io/groundpeer/internal/coordinator"
	"github.com/autopeer-io/groundpeer/internal/logsink"
	"github.com/autopeer-io/groundpeer/pkg/log"
	pkgmqtt "github.com/autopeer-io/groundpeer/pkg/mqtt"
	"github.com/autopeer-io/groundpeer/pkg/mqtt/topic"
)

const qos = 1

// Command is a panel request received on {root}/command/{role}.
type Command struct {
	ID     string `json:"id,omitempty"`
	Action string `json:"action"`
}

// CommandAck answers a Command on {root}/command/ack/{role}. Accepted means
// the action was queued; its outcome arrives as log lines.
type CommandAck struct {
	ID       string `json:"id,omitempty"`
	Role     string `json:"role"`
	Action   string `json:"action"`
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

// StationStatus is published, retained, on {root}/status/{stationID}.
type StationStatus struct {
	Station  string               `json:"station"`
	Online   bool                 `json:"online"`
	Time     time.Time            `json:"time"`
	Vehicles []coordinator.Status `json:"vehicles,omitempty"`
}

// OfflinePayload is the will message of a station.
func OfflinePayload(stationID string) []byte {
	p, _ := json.Marshal(StationStatus{Station: stationID})
	return p
}

// Server bridges panel commands and station telemetry over MQTT.
type Server struct {
	client    pkgmqtt.Client
	topics    *topic.Builder
	coord     *coordinator.Coordinator
	stationID string
	interval  time.Duration
}

func NewServer(client pkgmqtt.Client, builder *topic.Builder, coord *coordinator.Coordinator, stationID string, interval time.Duration) *Server {
	if interval <= 0 {
		interval = time.Second
	}
	return &Server{
		client:    client,
		topics:    builder,
		coord:     coord,
		stationID: stationID,
		interval:  interval,
	}
}

// Start connects to the broker, subscribes to panel commands and publishes
// the station status every interval until ctx ends.
func (s *Server) Start(ctx context.Context) error {
	if err := s.client.Start(ctx); err != nil {
		return err
	}

	defer func() {
		log.Info("Disconnecting MQTT client...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.publishStatus(shutdownCtx, false)
		s.client.Disconnect(shutdownCtx)
	}()

	log.Info("Waiting for MQTT connection...")
	if err := s.client.AwaitConnection(ctx); err != nil {
		return err
	}
	log.Info("MQTT Connected")

	filter := s.topics.CommandWildcard()
	if err := s.client.Subscribe(ctx, filter, qos, func(_ context.Context, t string, p []byte) {
		s.handleCommand(ctx, t, p)
	}); err != nil {
		return fmt.Errorf("failed to subscribe to topic: %s, err: %w", filter, err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.publishStatus(ctx, true)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.publishStatus(ctx, true)
		}
	}
}

func (s *Server) handleCommand(ctx context.Context, t string, payload []byte) {
	role := topic.Last(t)
	ack := CommandAck{Role: role}

	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		ack.Error = fmt.Sprintf("invalid command payload: %v", err)
		s.publishAck(ctx, ack)
		return
	}
	ack.ID, ack.Action = cmd.ID, cmd.Action

	if err := s.coord.Submit(ctx, coordinator.Role(role), coordinator.Action(cmd.Action)); err != nil {
		log.Error(err, "Rejected panel command", "role", role, "action", cmd.Action)
		ack.Error = err.Error()
	} else {
		ack.Accepted = true
	}
	s.publishAck(ctx, ack)
}

func (s *Server) publishAck(ctx context.Context, ack CommandAck) {
	p, err := json.Marshal(ack)
	if err != nil {
		log.Error(err, "Failed to marshal command ack")
		return
	}
	if err := s.client.Publish(ctx, s.topics.CommandAck(ack.Role), qos, false, p); err != nil {
		log.Error(err, "Failed to publish command ack", "role", ack.Role)
	}
}

func (s *Server) publishStatus(ctx context.Context, online bool) {
	st := StationStatus{Station: s.stationID, Online: online, Time: time.Now()}
	if online {
		st.Vehicles = s.coord.Status()
	}
	p, err := json.Marshal(st)
	if err != nil {
		log.Error(err, "Failed to marshal station status")
		return
	}
	if err := s.client.Publish(ctx, s.topics.Status(s.stationID), qos, true, p); err != nil {
		log.Error(err, "Failed to publish station status")
	}
}

// PublishLine forwards one sink line to {root}/log/{role}. Lines are dropped
// while the client is offline.
func (s *Server) PublishLine(ctx context.Context, l logsink.Line) {
	if !s.client.IsConnected() {
		return
	}
	p, err := json.Marshal(l)
	if err != nil {
		log.Error(err, "Failed to marshal log line")
		return
	}
	role := l.Role
	if role == "" {
		role = s.stationID
	}
	if err := s.client.Publish(ctx, s.topics.Log(role), 0, false, p); err != nil {
		log.Warn("Failed to publish log line", "role", role, "error", err.Error())
	}
}
